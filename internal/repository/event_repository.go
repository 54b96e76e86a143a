package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gatherly/event-payments/internal/model"
)

// EventRepo provides read access to the events table plus the going
// counter updates performed during fulfillment. Event content is owned by
// the event collaborator; this engine only reads capacity, pricing and
// payment flags.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, title, capacity, is_paid, ticket_price_cents, currency, going_count, created_at, updated_at`

// rowScanner lets the scan helpers accept both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// GetByID loads a single event. Returns ErrEventNotFound when no row
// exists.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	ev, err := scanEvent(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var ev model.Event
	if err := row.Scan(
		&ev.ID, &ev.Title, &ev.Capacity, &ev.IsPaid, &ev.TicketPriceCents,
		&ev.Currency, &ev.GoingCount, &ev.CreatedAt, &ev.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ev, nil
}

// adjustGoingCountTx shifts the confirmed attendee counter inside an
// existing transaction. delta is positive on fulfillment and negative on
// refund cancellation. The caller commits or rolls back.
func adjustGoingCountTx(ctx context.Context, tx *sql.Tx, eventID uint64, delta int64) error {
	const q = `UPDATE events SET going_count = going_count + ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, delta, eventID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}
