package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/gatherly/event-payments/internal/model"
)

// OrderRepo provides data access to payment_orders and owns the atomic
// units of the order lifecycle. FinalizePaid is the critical one: it
// decides finality, captures the financial snapshot and performs
// fulfillment in a single transaction, so no reachable state has a paid
// order without its attendance record or vice versa.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the provided database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `id, user_id, event_id, seats, currency, amount_cents, status,
	provider, provider_payment_id, base_price_cents, fee_bps, fee_amount_cents,
	host_earning_cents, snapshot_captured, parent_order_id, is_final, finality_key,
	reservation_key, failure_reason, expires_at, created_at, updated_at`

func scanOrder(row rowScanner) (*model.PaymentOrder, error) {
	var o model.PaymentOrder
	var providerPaymentID, parentOrderID, finalityKey, reservationKey, failureReason sql.NullString
	if err := row.Scan(
		&o.ID, &o.UserID, &o.EventID, &o.Seats, &o.Currency, &o.AmountCents, &o.Status,
		&o.Provider, &providerPaymentID, &o.BasePriceCents, &o.FeeBps, &o.FeeAmountCents,
		&o.HostEarningCents, &o.SnapshotCaptured, &parentOrderID, &o.IsFinal, &finalityKey,
		&reservationKey, &failureReason, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.ProviderPaymentID = nullable(providerPaymentID)
	o.ParentOrderID = nullable(parentOrderID)
	o.FinalityKey = nullable(finalityKey)
	o.ReservationKey = nullable(reservationKey)
	o.FailureReason = nullable(failureReason)
	return &o, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullStr(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// Create inserts a new order in CREATED status. Amount validation and the
// reservation check belong to the service layer; this method only
// persists.
func (r *OrderRepo) Create(ctx context.Context, o *model.PaymentOrder) error {
	const q = `INSERT INTO payment_orders
		(id, user_id, event_id, seats, currency, amount_cents, status, provider,
		 base_price_cents, fee_bps, fee_amount_cents, host_earning_cents,
		 parent_order_id, reservation_key, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		o.ID, o.UserID, o.EventID, o.Seats, o.Currency, o.AmountCents, o.Status, o.Provider,
		o.BasePriceCents, o.FeeBps, o.FeeAmountCents, o.HostEarningCents,
		nullStr(o.ParentOrderID), nullStr(o.ReservationKey),
		o.ExpiresAt.Format("2006-01-02 15:04:05"),
	)
	return err
}

// GetByID loads a single order. Returns sql.ErrNoRows when absent.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*model.PaymentOrder, error) {
	const q = `SELECT ` + orderColumns + ` FROM payment_orders WHERE id = ?`
	return scanOrder(r.db.QueryRowContext(ctx, q, id))
}

// ListByUser returns a user's orders, newest first.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64) ([]model.PaymentOrder, error) {
	const q = `SELECT ` + orderColumns + ` FROM payment_orders WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := make([]model.PaymentOrder, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// SetPending records the provider's charge acknowledgement and moves a
// CREATED order to PENDING. The guard predicate keeps the transition
// inside the state machine even under concurrent webhook arrival: a row
// that already left CREATED is simply not updated, which is fine because
// PENDING is only informational on the way to a terminal state.
func (r *OrderRepo) SetPending(ctx context.Context, orderID, providerPaymentID string) error {
	const q = `UPDATE payment_orders
		SET status = ?, provider_payment_id = ?, updated_at = UTC_TIMESTAMP()
		WHERE id = ? AND status = ?`
	_, err := r.db.ExecContext(ctx, q, model.OrderStatusPending, providerPaymentID, orderID, model.OrderStatusCreated)
	return err
}

// FinalizePaidParams carries everything FinalizePaid needs that is
// computed outside the transaction: the provider correlation data and the
// pre-generated ticket secret hash (bcrypt work does not belong inside a
// transaction holding row locks).
type FinalizePaidParams struct {
	OrderID           string
	ProviderPaymentID string
	RawResponse       string
	TicketSecretHash  string
}

// FinalizePaid performs the critical markPaid transition as one atomic
// unit:
//
//  1. lock the order row FOR UPDATE,
//  2. lock any existing final order for the (user, event) pair; if one
//     exists, fail with ErrAlreadyFinalized (a safe no-op for callers),
//  3. verify the order is still CREATED/PENDING and unexpired,
//  4. set PAID, the final flag and the finality key, freezing the
//     financial snapshot persisted at checkout,
//  5. demote sibling orders' final flags (defensive; the unique index on
//     finality_key already guarantees at most one),
//  6. consume the funding reservation (fails loudly if consumed/expired),
//  7. insert the attendance record and bump the event's going counter,
//  8. append the PAYMENT ledger entry.
//
// Any failure rolls back the whole unit. When two orders for the same
// pair race and neither is final yet, step 2 finds no row to lock and
// both proceed; the unique index on finality_key then rejects the loser,
// which is reported as ErrAlreadyFinalized as well.
func (r *OrderRepo) FinalizePaid(ctx context.Context, p FinalizePaidParams) (*model.PaymentOrder, *model.AttendanceRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM payment_orders WHERE id = ? FOR UPDATE`, p.OrderID))
	if err != nil {
		return nil, nil, err
	}

	var finalID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM payment_orders WHERE user_id = ? AND event_id = ? AND is_final = 1 FOR UPDATE`,
		order.UserID, order.EventID,
	).Scan(&finalID)
	switch {
	case err == nil:
		return nil, nil, ErrAlreadyFinalized
	case errors.Is(err, sql.ErrNoRows):
		// No final order yet; proceed.
	default:
		return nil, nil, err
	}

	now := time.Now().UTC()
	if order.Expired(now) {
		return nil, nil, ErrExpired
	}
	if !order.Status.CanTransitionTo(model.OrderStatusPaid) {
		return nil, nil, fmt.Errorf("%w: %s -> PAID", ErrInvalidTransition, order.Status)
	}

	finalityKey := fmt.Sprintf("%d:%d", order.UserID, order.EventID)
	_, err = tx.ExecContext(ctx,
		`UPDATE payment_orders
		 SET status = ?, is_final = 1, finality_key = ?, provider_payment_id = ?,
		     snapshot_captured = 1, updated_at = UTC_TIMESTAMP()
		 WHERE id = ?`,
		model.OrderStatusPaid, finalityKey, p.ProviderPaymentID, order.ID,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, nil, ErrAlreadyFinalized
		}
		return nil, nil, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE payment_orders SET is_final = 0, finality_key = NULL, updated_at = UTC_TIMESTAMP()
		 WHERE user_id = ? AND event_id = ? AND id <> ?`,
		order.UserID, order.EventID, order.ID,
	); err != nil {
		return nil, nil, err
	}

	var reservationID uint64
	if order.ReservationKey != nil {
		res, err := consumeReservationTx(ctx, tx, *order.ReservationKey, order.UserID)
		if err != nil {
			return nil, nil, err
		}
		reservationID = res.ID
	}

	record := &model.AttendanceRecord{
		EventID:          order.EventID,
		UserID:           order.UserID,
		OrderID:          order.ID,
		ReservationID:    reservationID,
		Seats:            order.Seats,
		TicketSecretHash: p.TicketSecretHash,
		Status:           model.AttendanceStatusConfirmed,
	}
	if err := insertAttendanceTx(ctx, tx, record); err != nil {
		return nil, nil, err
	}
	if err := adjustGoingCountTx(ctx, tx, order.EventID, int64(order.Seats)); err != nil {
		return nil, nil, err
	}
	if err := insertTransactionTx(ctx, tx, &model.PaymentTransaction{
		OrderID:     order.ID,
		Type:        model.TransactionTypePayment,
		AmountCents: order.AmountCents,
		Currency:    order.Currency,
		ProviderRef: p.ProviderPaymentID,
		RawResponse: p.RawResponse,
	}); err != nil {
		return nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, err
	}
	committed = true

	order.Status = model.OrderStatusPaid
	order.IsFinal = true
	order.FinalityKey = &finalityKey
	order.ProviderPaymentID = &p.ProviderPaymentID
	order.SnapshotCaptured = true
	order.UpdatedAt = now
	record.CreatedAt = now
	return order, record, nil
}

// MarkFailed moves a CREATED/PENDING order to FAILED. Calling it on an
// order that is already FAILED (including implicitly via expiry) is an
// idempotent no-op so webhook re-deliveries settle cleanly; any other
// terminal state is ErrInvalidTransition.
func (r *OrderRepo) MarkFailed(ctx context.Context, orderID, reason string) (*model.PaymentOrder, error) {
	return r.terminalTransition(ctx, orderID, model.OrderStatusFailed, reason, nil)
}

// MarkRefunded moves a PAID order to REFUNDED, appends the REFUND ledger
// entry, cancels the attendance record and returns the seats to the
// going counter. Refunding an already-REFUNDED order is an idempotent
// no-op.
func (r *OrderRepo) MarkRefunded(ctx context.Context, orderID string, amountCents int64, reason, providerRef, rawResponse string) (*model.PaymentOrder, error) {
	refund := &model.PaymentTransaction{
		Type:        model.TransactionTypeRefund,
		AmountCents: amountCents,
		ProviderRef: providerRef,
		RawResponse: rawResponse,
	}
	return r.terminalTransition(ctx, orderID, model.OrderStatusRefunded, reason, refund)
}

// terminalTransition is the shared transactional body of MarkFailed and
// MarkRefunded.
func (r *OrderRepo) terminalTransition(ctx context.Context, orderID string, target model.OrderStatus, reason string, refund *model.PaymentTransaction) (*model.PaymentOrder, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM payment_orders WHERE id = ? FOR UPDATE`, orderID))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	effective := order.EffectiveStatus(now)
	if effective == target {
		// Already there (possibly only implicitly, via lazy expiry, for
		// FAILED). Persist nothing new; report the order as-is.
		if err = tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		order.Status = effective
		return order, nil
	}
	if !effective.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, effective, target)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE payment_orders SET status = ?, failure_reason = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		target, reason, orderID,
	); err != nil {
		return nil, err
	}

	if refund != nil {
		refund.OrderID = order.ID
		refund.Currency = order.Currency
		if err := insertTransactionTx(ctx, tx, refund); err != nil {
			return nil, err
		}
		if err := cancelAttendanceByOrderTx(ctx, tx, order.ID); err != nil {
			return nil, err
		}
		if err := adjustGoingCountTx(ctx, tx, order.EventID, -int64(order.Seats)); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	order.Status = target
	order.FailureReason = &reason
	order.UpdatedAt = now
	return order, nil
}

// isDuplicateKey reports whether err is a MySQL duplicate-key violation
// (error 1062), the signal that a unique constraint did its job.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
