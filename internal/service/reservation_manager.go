package service

import (
	"context"
	"errors"
	"time"

	"github.com/gatherly/event-payments/internal/model"
)

// ReservationStore is the persistence contract the reservation manager
// consumes. Reserve must be a single atomic unit: the capacity check and
// the insert happen under a lock scoped to the event so concurrent calls
// can never jointly oversell.
type ReservationStore interface {
	Reserve(ctx context.Context, eventID, userID uint64, seats uint32, ttl time.Duration) (*model.CapacityReservation, error)
	GetByKey(ctx context.Context, key string) (*model.CapacityReservation, error)
	Release(ctx context.Context, key string, userID uint64) error
}

// EventStore reads the event read model.
type EventStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
}

// ReservationManager creates and releases short-lived seat holds. Holds
// expire lazily; consumption happens exclusively inside the paid
// finalization, never through this manager.
type ReservationManager struct {
	events       EventStore
	reservations ReservationStore
	ttl          time.Duration
}

// NewReservationManager constructs a ReservationManager. ttl is the hold
// lifetime (system default 10 minutes).
func NewReservationManager(events EventStore, reservations ReservationStore, ttl time.Duration) *ReservationManager {
	return &ReservationManager{events: events, reservations: reservations, ttl: ttl}
}

// TTL returns the configured hold lifetime.
func (m *ReservationManager) TTL() time.Duration { return m.ttl }

// Reserve places a hold on seats for the user. ErrCapacityExceeded from
// the store is a definitive business rejection.
func (m *ReservationManager) Reserve(ctx context.Context, eventID, userID uint64, seats uint32) (*model.CapacityReservation, error) {
	if seats == 0 {
		return nil, errors.New("seats must be positive")
	}
	return m.reservations.Reserve(ctx, eventID, userID, seats, m.ttl)
}

// Release drops an unconsumed hold on explicit checkout abandonment.
// Expiry is the backstop, so callers may treat not-found as success.
func (m *ReservationManager) Release(ctx context.Context, key string, userID uint64) error {
	return m.reservations.Release(ctx, key, userID)
}
