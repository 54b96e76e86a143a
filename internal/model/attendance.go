package model

import "time"

// AttendanceStatus tracks whether a confirmed attendance still stands.
// Records are never deleted; cancellation (e.g. after a refund) is a
// status change.
type AttendanceStatus string

const (
	AttendanceStatusConfirmed AttendanceStatus = "CONFIRMED"
	AttendanceStatusCancelled AttendanceStatus = "CANCELLED"
)

// AttendanceRecord is created exactly once per successfully fulfilled
// reservation, inside the same transaction that marks the funding order
// paid. TicketSecretHash is the bcrypt hash of the ticket secret; the raw
// secret is surfaced exactly once, in the order-paid fact.
type AttendanceRecord struct {
	ID               uint64           // attendance_records.id
	EventID          uint64           // attendance_records.event_id
	UserID           uint64           // attendance_records.user_id
	OrderID          string           // attendance_records.order_id
	ReservationID    uint64           // attendance_records.reservation_id
	Seats            uint32           // attendance_records.seats
	TicketSecretHash string           // attendance_records.ticket_secret_hash
	Status           AttendanceStatus // attendance_records.status
	CreatedAt        time.Time        // attendance_records.created_at
}
