package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/gatherly/event-payments/internal/model"
	"github.com/gatherly/event-payments/internal/provider"
	"github.com/gatherly/event-payments/internal/queue"
	"github.com/gatherly/event-payments/internal/repository"
)

// In-memory stand-ins for the repository layer. Each fake guards its
// state with a mutex so the concurrency tests exercise the same
// atomicity contract the MySQL implementations provide with row locks.

type memEventStore struct {
	mu     sync.Mutex
	events map[uint64]model.Event
}

func newMemEventStore(events ...model.Event) *memEventStore {
	s := &memEventStore{events: make(map[uint64]model.Event)}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *memEventStore) GetByID(_ context.Context, id uint64) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	cp := e
	return &cp, nil
}

func (s *memEventStore) adjustGoing(id uint64, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[id]
	e.GoingCount = uint32(int64(e.GoingCount) + delta)
	s.events[id] = e
}

func (s *memEventStore) goingCount(id uint64) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id].GoingCount
}

type memReservationStore struct {
	mu     sync.Mutex
	seq    uint64
	byKey  map[string]*model.CapacityReservation
	events *memEventStore
}

func newMemReservationStore(events *memEventStore) *memReservationStore {
	return &memReservationStore{byKey: make(map[string]*model.CapacityReservation), events: events}
}

func (s *memReservationStore) Reserve(ctx context.Context, eventID, userID uint64, seats uint32, ttl time.Duration) (*model.CapacityReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if !event.Unlimited() {
		var held uint32
		for _, r := range s.byKey {
			if r.EventID == eventID && r.Active(now) {
				held += r.Seats
			}
		}
		if held+event.GoingCount+seats > event.Capacity {
			return nil, repository.ErrCapacityExceeded
		}
	}

	s.seq++
	r := &model.CapacityReservation{
		ID:             s.seq,
		ReservationKey: fmt.Sprintf("resv-%d", s.seq),
		EventID:        eventID,
		UserID:         userID,
		Seats:          seats,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
	}
	s.byKey[r.ReservationKey] = r
	cp := *r
	return &cp, nil
}

func (s *memReservationStore) GetByKey(_ context.Context, key string) (*model.CapacityReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byKey[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

// Release mirrors the MySQL implementation: a delete that matches no
// unconsumed row owned by the caller reports sql.ErrNoRows.
func (s *memReservationStore) Release(_ context.Context, key string, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byKey[key]
	if !ok || r.UserID != userID || r.Consumed {
		return sql.ErrNoRows
	}
	delete(s.byKey, key)
	return nil
}

// consume mirrors the transactional consumption inside FinalizePaid.
func (s *memReservationStore) consume(key string, now time.Time) (*model.CapacityReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byKey[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if r.Consumed {
		return nil, repository.ErrReservationConsumed
	}
	if r.Expired(now) {
		return nil, repository.ErrExpired
	}
	r.Consumed = true
	cp := *r
	return &cp, nil
}

// expire forces a hold past its deadline, for lazy-expiry tests.
func (s *memReservationStore) expire(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.byKey[key]; ok {
		r.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	}
}

type memOrderStore struct {
	mu           sync.Mutex
	orders       map[string]*model.PaymentOrder
	final        map[string]string
	attendance   []model.AttendanceRecord
	attSeq       uint64
	reservations *memReservationStore
	events       *memEventStore
}

func newMemOrderStore(events *memEventStore, reservations *memReservationStore) *memOrderStore {
	return &memOrderStore{
		orders:       make(map[string]*model.PaymentOrder),
		final:        make(map[string]string),
		events:       events,
		reservations: reservations,
	}
}

func (s *memOrderStore) Create(_ context.Context, o *model.PaymentOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *memOrderStore) GetByID(_ context.Context, id string) (*model.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (s *memOrderStore) ListByUser(_ context.Context, userID uint64) ([]model.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PaymentOrder
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memOrderStore) SetPending(_ context.Context, orderID, providerPaymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return sql.ErrNoRows
	}
	if o.Status != model.OrderStatusCreated {
		return repository.ErrInvalidTransition
	}
	o.Status = model.OrderStatusPending
	o.ProviderPaymentID = &providerPaymentID
	return nil
}

func (s *memOrderStore) FinalizePaid(_ context.Context, p repository.FinalizePaidParams) (*model.PaymentOrder, *model.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[p.OrderID]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	now := time.Now().UTC()
	fk := fmt.Sprintf("%d:%d", o.UserID, o.EventID)
	if _, taken := s.final[fk]; taken {
		return nil, nil, repository.ErrAlreadyFinalized
	}
	if o.Expired(now) {
		return nil, nil, repository.ErrExpired
	}
	if !o.Status.CanTransitionTo(model.OrderStatusPaid) {
		return nil, nil, repository.ErrInvalidTransition
	}

	var reservationID uint64
	if o.ReservationKey != nil {
		r, err := s.reservations.consume(*o.ReservationKey, now)
		if err != nil {
			return nil, nil, err
		}
		reservationID = r.ID
	}

	o.Status = model.OrderStatusPaid
	o.IsFinal = true
	o.FinalityKey = &fk
	o.SnapshotCaptured = true
	if p.ProviderPaymentID != "" {
		pid := p.ProviderPaymentID
		o.ProviderPaymentID = &pid
	}
	s.final[fk] = o.ID

	s.attSeq++
	record := model.AttendanceRecord{
		ID:               s.attSeq,
		EventID:          o.EventID,
		UserID:           o.UserID,
		OrderID:          o.ID,
		ReservationID:    reservationID,
		Seats:            o.Seats,
		TicketSecretHash: p.TicketSecretHash,
		Status:           model.AttendanceStatusConfirmed,
		CreatedAt:        now,
	}
	s.attendance = append(s.attendance, record)
	s.events.adjustGoing(o.EventID, int64(o.Seats))

	cp := *o
	return &cp, &record, nil
}

func (s *memOrderStore) MarkFailed(_ context.Context, orderID, reason string) (*model.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	eff := o.EffectiveStatus(time.Now().UTC())
	if eff == model.OrderStatusFailed {
		cp := *o
		cp.Status = model.OrderStatusFailed
		return &cp, nil
	}
	if !eff.CanTransitionTo(model.OrderStatusFailed) {
		return nil, repository.ErrInvalidTransition
	}
	o.Status = model.OrderStatusFailed
	o.FailureReason = &reason
	cp := *o
	return &cp, nil
}

func (s *memOrderStore) MarkRefunded(_ context.Context, orderID string, _ int64, reason, _, _ string) (*model.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if o.Status == model.OrderStatusRefunded {
		cp := *o
		return &cp, nil
	}
	if !o.Status.CanTransitionTo(model.OrderStatusRefunded) {
		return nil, repository.ErrInvalidTransition
	}
	o.Status = model.OrderStatusRefunded
	o.FailureReason = &reason
	for i := range s.attendance {
		if s.attendance[i].OrderID == orderID && s.attendance[i].Status == model.AttendanceStatusConfirmed {
			s.attendance[i].Status = model.AttendanceStatusCancelled
			s.events.adjustGoing(o.EventID, -int64(s.attendance[i].Seats))
		}
	}
	cp := *o
	return &cp, nil
}

func (s *memOrderStore) confirmedAttendance(orderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attendance {
		if a.OrderID == orderID && a.Status == model.AttendanceStatusConfirmed {
			n++
		}
	}
	return n
}

func (s *memOrderStore) attendanceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attendance)
}

type fakeFeeSource struct {
	mu  sync.Mutex
	bps uint32
	err error
}

func (f *fakeFeeSource) PercentageBps(context.Context) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bps, f.err
}

func (f *fakeFeeSource) set(bps uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bps = bps
}

type fakeCharger struct {
	mu    sync.Mutex
	resp  provider.ChargeResponse
	err   error
	calls int
}

func (c *fakeCharger) Charge(context.Context, provider.ChargeRequest) (provider.ChargeResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return provider.ChargeResponse{}, c.err
	}
	return c.resp, nil
}

func (c *fakeCharger) chargeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type memPublisher struct {
	mu         sync.Mutex
	orderFacts map[string][]queue.OrderFact
	attendance []queue.AttendanceFact
	audits     []queue.AuditFact
}

func newMemPublisher() *memPublisher {
	return &memPublisher{orderFacts: make(map[string][]queue.OrderFact)}
}

func (p *memPublisher) PublishOrderFact(_ context.Context, queueName string, fact queue.OrderFact) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderFacts[queueName] = append(p.orderFacts[queueName], fact)
	return nil
}

func (p *memPublisher) PublishAttendanceCreated(_ context.Context, fact queue.AttendanceFact) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attendance = append(p.attendance, fact)
	return nil
}

func (p *memPublisher) PublishAudit(_ context.Context, fact queue.AuditFact) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audits = append(p.audits, fact)
	return nil
}

func (p *memPublisher) facts(queueName string) []queue.OrderFact {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.OrderFact(nil), p.orderFacts[queueName]...)
}

func (p *memPublisher) attendanceFacts() []queue.AttendanceFact {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.AttendanceFact(nil), p.attendance...)
}

// testEnv bundles the wired services and the fakes behind them.
type testEnv struct {
	events       *memEventStore
	reservations *memReservationStore
	orders       *memOrderStore
	fees         *fakeFeeSource
	charger      *fakeCharger
	publisher    *memPublisher
	resManager   *ReservationManager
	orderManager *OrderManager
}

func newTestEnv(events ...model.Event) *testEnv {
	if len(events) == 0 {
		events = []model.Event{{
			ID:               1,
			Title:            "Go Conference",
			Capacity:         5,
			IsPaid:           true,
			TicketPriceCents: 10_000,
			Currency:         "INR",
		}}
	}
	es := newMemEventStore(events...)
	rs := newMemReservationStore(es)
	os := newMemOrderStore(es, rs)
	fees := &fakeFeeSource{bps: 1_000}
	charger := &fakeCharger{resp: provider.ChargeResponse{PaymentID: "pay-1", Status: "pending", RedirectURL: "https://pay.example/p/pay-1"}}
	pub := newMemPublisher()

	return &testEnv{
		events:       es,
		reservations: rs,
		orders:       os,
		fees:         fees,
		charger:      charger,
		publisher:    pub,
		resManager:   NewReservationManager(es, rs, 10*time.Minute),
		orderManager: NewOrderManager(os, es, rs, fees, charger, "midpay", NewFulfillmentCoordinator(4), pub, 10*time.Minute),
	}
}

func customer(id uint64) Identity { return Identity{UserID: id, Role: RoleCustomer} }
