package repository

import (
	"context"
	"database/sql"

	"github.com/gatherly/event-payments/internal/model"
)

// PaymentTransactionRepo reads the append-only ledger under payment
// orders. Writes only happen inside order transitions via
// insertTransactionTx; there is deliberately no update or delete path.
type PaymentTransactionRepo struct {
	db *sql.DB
}

// NewPaymentTransactionRepo returns a repo bound to the database.
func NewPaymentTransactionRepo(db *sql.DB) *PaymentTransactionRepo {
	return &PaymentTransactionRepo{db: db}
}

// ListByOrder returns an order's ledger entries, oldest first.
func (r *PaymentTransactionRepo) ListByOrder(ctx context.Context, orderID string) ([]model.PaymentTransaction, error) {
	const q = `SELECT id, order_id, type, amount_cents, currency, provider_ref, raw_response, created_at
	           FROM payment_transactions WHERE order_id = ? ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]model.PaymentTransaction, 0)
	for rows.Next() {
		var t model.PaymentTransaction
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Type, &t.AmountCents, &t.Currency, &t.ProviderRef, &t.RawResponse, &t.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// insertTransactionTx appends a ledger entry inside an existing
// transaction. The caller commits or rolls back.
func insertTransactionTx(ctx context.Context, tx *sql.Tx, t *model.PaymentTransaction) error {
	const q = `INSERT INTO payment_transactions (order_id, type, amount_cents, currency, provider_ref, raw_response)
	           VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, t.OrderID, t.Type, t.AmountCents, t.Currency, t.ProviderRef, t.RawResponse)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}
