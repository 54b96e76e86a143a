package model

import "time"

// CapacityReservation is a temporary hold on N seats for one event/user
// pair, created when checkout begins. A reservation is consumed exactly
// once by fulfillment; otherwise it expires and releases its seats the
// moment it is past ExpiresAt. Expiry is lazy: every read that cares
// compares against the clock, no sweeper is needed for correctness.
//
// Fields:
//  ID             – primary key identifier.
//  ReservationKey – unique opaque token returned to the client.
//  EventID        – event the seats are held against.
//  UserID         – user who holds the seats.
//  Seats          – number of seats held.
//  Consumed       – set once by fulfillment; never cleared.
//  ExpiresAt      – when the hold releases its seats.
//  CreatedAt      – when the hold was created.
type CapacityReservation struct {
	ID             uint64    // capacity_reservations.id
	ReservationKey string    // capacity_reservations.reservation_key
	EventID        uint64    // capacity_reservations.event_id
	UserID         uint64    // capacity_reservations.user_id
	Seats          uint32    // capacity_reservations.seats
	Consumed       bool      // capacity_reservations.consumed
	ExpiresAt      time.Time // capacity_reservations.expires_at
	CreatedAt      time.Time // capacity_reservations.created_at
}

// Active reports whether the reservation still holds its seats: not yet
// consumed and not past its expiry at the given instant.
func (r *CapacityReservation) Active(now time.Time) bool {
	return !r.Consumed && now.Before(r.ExpiresAt)
}

// Expired reports whether the reservation is past its expiry.
func (r *CapacityReservation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
