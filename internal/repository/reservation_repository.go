package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gatherly/event-payments/internal/model"
	"github.com/gatherly/event-payments/internal/utils"
)

// ReservationRepo provides data access to capacity_reservations. Reserve
// is the single atomic unit closing the oversell race: the capacity check
// and the insert happen inside one transaction holding a row lock on the
// event, so two concurrent reserves for the same event are serialized at
// the data layer. All timestamps are UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, reservation_key, event_id, user_id, seats, consumed, expires_at, created_at`

func scanReservation(row rowScanner) (*model.CapacityReservation, error) {
	var res model.CapacityReservation
	if err := row.Scan(
		&res.ID, &res.ReservationKey, &res.EventID, &res.UserID,
		&res.Seats, &res.Consumed, &res.ExpiresAt, &res.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reserve creates a hold on seats for an event inside one transaction:
//
//  1. lock the event row FOR UPDATE (serializes reserves per event),
//  2. opportunistically delete this event's expired unconsumed holds,
//  3. compute held = active holds + confirmed attendee seats,
//  4. reject with ErrCapacityExceeded when held+seats would exceed
//     capacity (capacity 0 = unlimited),
//  5. insert the new hold with a fresh random reservation key.
//
// Lazy expiry in step 3 means correctness never depends on step 2 or on
// any background sweeper: expired holds are excluded by the predicate.
func (r *ReservationRepo) Reserve(ctx context.Context, eventID, userID uint64, seats uint32, ttl time.Duration) (*model.CapacityReservation, error) {
	if seats == 0 {
		return nil, errors.New("seats must be positive")
	}
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

	var capacity uint32
	err = tx.QueryRowContext(ctx, `SELECT capacity FROM events WHERE id = ? FOR UPDATE`, eventID).Scan(&capacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	// Opportunistic sweep; reclaimed rows shrink the table, the SUM below
	// would have ignored them anyway.
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM capacity_reservations WHERE event_id = ? AND consumed = 0 AND expires_at <= UTC_TIMESTAMP()`,
		eventID,
	); err != nil {
		return nil, err
	}

	if capacity != 0 {
		var held, confirmed uint64
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(seats), 0) FROM capacity_reservations
			 WHERE event_id = ? AND consumed = 0 AND expires_at > UTC_TIMESTAMP()`,
			eventID,
		).Scan(&held)
		if err != nil {
			return nil, err
		}
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(seats), 0) FROM attendance_records WHERE event_id = ? AND status = 'CONFIRMED'`,
			eventID,
		).Scan(&confirmed)
		if err != nil {
			return nil, err
		}
		if held+confirmed+uint64(seats) > uint64(capacity) {
			return nil, ErrCapacityExceeded
		}
	}

	key, err := utils.RandomHex(32)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(ttl)
	result, err := tx.ExecContext(ctx,
		`INSERT INTO capacity_reservations (reservation_key, event_id, user_id, seats, consumed, expires_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		key, eventID, userID, seats, expiresAt.Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &model.CapacityReservation{
		ID:             uint64(id),
		ReservationKey: key,
		EventID:        eventID,
		UserID:         userID,
		Seats:          seats,
		ExpiresAt:      expiresAt,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// GetByKey loads a reservation by its key. Returns sql.ErrNoRows when the
// key is unknown.
func (r *ReservationRepo) GetByKey(ctx context.Context, key string) (*model.CapacityReservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM capacity_reservations WHERE reservation_key = ?`
	return scanReservation(r.db.QueryRowContext(ctx, q, key))
}

// Release deletes an unconsumed reservation on explicit checkout
// abandonment. Expiry is the backstop, so a missing row is not an error
// worth distinguishing: sql.ErrNoRows is returned when nothing matched.
// Consumed reservations are never released.
func (r *ReservationRepo) Release(ctx context.Context, key string, userID uint64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM capacity_reservations WHERE reservation_key = ? AND user_id = ? AND consumed = 0`,
		key, userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// consumeReservationTx marks a reservation consumed inside an existing
// transaction, locking the row first. It fails loudly on re-consumption
// (ErrReservationConsumed) and on expiry (ErrExpired) so the surrounding
// finalization rolls back rather than double-fulfilling. userID 0 skips
// the ownership check (provider-driven paths already verified the order).
func consumeReservationTx(ctx context.Context, tx *sql.Tx, key string, userID uint64) (*model.CapacityReservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM capacity_reservations WHERE reservation_key = ? FOR UPDATE`
	res, err := scanReservation(tx.QueryRowContext(ctx, q, key))
	if err != nil {
		return nil, err
	}
	if userID != 0 && res.UserID != userID {
		return nil, ErrForbidden
	}
	if res.Consumed {
		return nil, ErrReservationConsumed
	}
	now := time.Now().UTC()
	if res.Expired(now) {
		return nil, ErrExpired
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE capacity_reservations SET consumed = 1 WHERE id = ?`, res.ID,
	); err != nil {
		return nil, err
	}
	res.Consumed = true
	return res, nil
}
