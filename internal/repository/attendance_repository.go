package repository

import (
	"context"
	"database/sql"

	"github.com/gatherly/event-payments/internal/model"
)

// AttendanceRepo reads attendance_records. Creation happens only inside
// the paid-finalization transaction (insertAttendanceTx); records are
// never deleted, cancellation is a status change performed during refund.
type AttendanceRepo struct {
	db *sql.DB
}

// NewAttendanceRepo returns a repo bound to the database.
func NewAttendanceRepo(db *sql.DB) *AttendanceRepo { return &AttendanceRepo{db: db} }

const attendanceColumns = `id, event_id, user_id, order_id, reservation_id, seats, ticket_secret_hash, status, created_at`

func scanAttendance(row rowScanner) (*model.AttendanceRecord, error) {
	var a model.AttendanceRecord
	var reservationID sql.NullInt64
	if err := row.Scan(&a.ID, &a.EventID, &a.UserID, &a.OrderID, &reservationID, &a.Seats, &a.TicketSecretHash, &a.Status, &a.CreatedAt); err != nil {
		return nil, err
	}
	if reservationID.Valid {
		a.ReservationID = uint64(reservationID.Int64)
	}
	return &a, nil
}

// GetByOrderID loads the attendance record funded by an order. Returns
// sql.ErrNoRows when the order never fulfilled.
func (r *AttendanceRepo) GetByOrderID(ctx context.Context, orderID string) (*model.AttendanceRecord, error) {
	const q = `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE order_id = ?`
	return scanAttendance(r.db.QueryRowContext(ctx, q, orderID))
}

// GetByEventAndUser loads a user's attendance for an event.
func (r *AttendanceRepo) GetByEventAndUser(ctx context.Context, eventID, userID uint64) (*model.AttendanceRecord, error) {
	const q = `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE event_id = ? AND user_id = ?`
	return scanAttendance(r.db.QueryRowContext(ctx, q, eventID, userID))
}

// insertAttendanceTx creates the attendance record inside an existing
// transaction and populates the generated ID.
func insertAttendanceTx(ctx context.Context, tx *sql.Tx, a *model.AttendanceRecord) error {
	const q = `INSERT INTO attendance_records (event_id, user_id, order_id, reservation_id, seats, ticket_secret_hash, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	var reservationID interface{}
	if a.ReservationID != 0 {
		reservationID = a.ReservationID
	}
	result, err := tx.ExecContext(ctx, q, a.EventID, a.UserID, a.OrderID, reservationID, a.Seats, a.TicketSecretHash, a.Status)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// cancelAttendanceByOrderTx flips the record funded by an order to
// CANCELLED inside an existing transaction. Missing records are ignored:
// a refund may target an order whose fulfillment predates attendance
// tracking.
func cancelAttendanceByOrderTx(ctx context.Context, tx *sql.Tx, orderID string) error {
	const q = `UPDATE attendance_records SET status = ? WHERE order_id = ? AND status = ?`
	_, err := tx.ExecContext(ctx, q, model.AttendanceStatusCancelled, orderID, model.AttendanceStatusConfirmed)
	return err
}
