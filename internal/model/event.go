package model

import "time"

// Event is the local read model of the event catalogue. The engine never
// writes event content; it only reads the fields that drive capacity and
// pricing decisions and maintains the going counter when attendance is
// confirmed or cancelled.
//
// Fields:
//  ID              – primary key identifier.
//  Title           – display title (carried into outbound facts only).
//  Capacity        – maximum seats; 0 means unlimited.
//  IsPaid          – whether attending requires payment.
//  TicketPriceCents – base price per seat in cents (host-facing price).
//  Currency        – ISO 4217 code, e.g. "INR".
//  GoingCount      – confirmed attendee seats.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Event struct {
	ID               uint64    // events.id
	Title            string    // events.title
	Capacity         uint32    // events.capacity (0 = unlimited)
	IsPaid           bool      // events.is_paid
	TicketPriceCents int64     // events.ticket_price_cents
	Currency         string    // events.currency
	GoingCount       uint32    // events.going_count
	CreatedAt        time.Time // events.created_at
	UpdatedAt        time.Time // events.updated_at
}

// Unlimited reports whether the event has no capacity bound.
func (e *Event) Unlimited() bool { return e.Capacity == 0 }
