package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gatherly/event-payments/internal/model"
	"github.com/gatherly/event-payments/internal/repository"
)

func TestReserveWithinCapacity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	res, err := env.resManager.Reserve(ctx, 1, 42, 2)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if res.ReservationKey == "" {
		t.Fatal("expected a reservation key")
	}
	if res.Seats != 2 {
		t.Fatalf("seats = %d, want 2", res.Seats)
	}
	if !res.Active(time.Now().UTC()) {
		t.Fatal("fresh reservation should be active")
	}
}

func TestReserveZeroSeats(t *testing.T) {
	env := newTestEnv()
	if _, err := env.resManager.Reserve(context.Background(), 1, 42, 0); err == nil {
		t.Fatal("expected error for zero seats")
	}
}

func TestReserveUnknownEvent(t *testing.T) {
	env := newTestEnv()
	if _, err := env.resManager.Reserve(context.Background(), 99, 42, 1); !errors.Is(err, repository.ErrEventNotFound) {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}
}

func TestReserveCapacityExceeded(t *testing.T) {
	env := newTestEnv() // capacity 5
	ctx := context.Background()

	if _, err := env.resManager.Reserve(ctx, 1, 42, 3); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if _, err := env.resManager.Reserve(ctx, 1, 43, 3); !errors.Is(err, repository.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	// A hold that still fits is accepted.
	if _, err := env.resManager.Reserve(ctx, 1, 43, 2); err != nil {
		t.Fatalf("fitting reserve: %v", err)
	}
}

func TestReserveUnlimitedEvent(t *testing.T) {
	env := newTestEnv(model.Event{ID: 7, Title: "Open Meetup", Capacity: 0, IsPaid: false, Currency: "INR"})
	ctx := context.Background()
	for user := uint64(1); user <= 50; user++ {
		if _, err := env.resManager.Reserve(ctx, 7, user, 10); err != nil {
			t.Fatalf("reserve for user %d: %v", user, err)
		}
	}
}

// Concurrent holds must never jointly exceed capacity, whichever subset
// of requests wins.
func TestConcurrentReserveNeverOversells(t *testing.T) {
	env := newTestEnv(model.Event{ID: 1, Title: "Small Venue", Capacity: 10, IsPaid: true, TicketPriceCents: 5_000, Currency: "INR"})
	ctx := context.Background()

	const attempts = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(user uint64) {
			defer wg.Done()
			_, err := env.resManager.Reserve(ctx, 1, user, 1)
			if err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			} else if !errors.Is(err, repository.ErrCapacityExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}(uint64(i + 1))
	}
	wg.Wait()

	if granted != 10 {
		t.Fatalf("granted %d holds, want exactly 10", granted)
	}
}

func TestExpiredHoldFreesCapacity(t *testing.T) {
	env := newTestEnv() // capacity 5
	ctx := context.Background()

	res, err := env.resManager.Reserve(ctx, 1, 42, 5)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := env.resManager.Reserve(ctx, 1, 43, 1); !errors.Is(err, repository.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded while hold is active", err)
	}

	// Once past its deadline the hold releases its seats without any
	// sweeper having run.
	env.reservations.expire(res.ReservationKey)
	if _, err := env.resManager.Reserve(ctx, 1, 43, 5); err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
}

func TestReleaseFreesCapacity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	res, err := env.resManager.Reserve(ctx, 1, 42, 5)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := env.resManager.Release(ctx, res.ReservationKey, 42); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := env.resManager.Reserve(ctx, 1, 43, 5); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
}

func TestReleaseByNonOwner(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	res, err := env.resManager.Reserve(ctx, 1, 42, 1)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	// The delete is scoped to the owner, so someone else's key behaves
	// like a missing one and the hold survives.
	if err := env.resManager.Release(ctx, res.ReservationKey, 99); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
	if got, err := env.reservations.GetByKey(ctx, res.ReservationKey); err != nil || got.Consumed {
		t.Fatal("hold must survive a foreign release attempt")
	}
}
