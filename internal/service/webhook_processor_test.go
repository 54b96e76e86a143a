package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/gatherly/event-payments/internal/model"
	"github.com/gatherly/event-payments/internal/provider"
	"github.com/gatherly/event-payments/internal/repository"
)

const testWebhookSecret = "whsec_test"

type memWebhookStore struct {
	mu     sync.Mutex
	seq    uint64
	events map[string]*model.PaymentWebhookEvent
}

func newMemWebhookStore() *memWebhookStore {
	return &memWebhookStore{events: make(map[string]*model.PaymentWebhookEvent)}
}

func webhookKey(providerName, dedupKey string) string { return providerName + "|" + dedupKey }

func (s *memWebhookStore) GetByDedupKey(_ context.Context, providerName, dedupKey string) (*model.PaymentWebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[webhookKey(providerName, dedupKey)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *ev
	return &cp, nil
}

func (s *memWebhookStore) Insert(_ context.Context, ev *model.PaymentWebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := webhookKey(ev.Provider, ev.DedupKey)
	if _, exists := s.events[k]; exists {
		return repository.ErrDuplicateWebhookEvent
	}
	s.seq++
	ev.ID = s.seq
	cp := *ev
	s.events[k] = &cp
	return nil
}

func (s *memWebhookStore) MarkProcessed(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			ev.Processed = true
			ev.ProcessingError = nil
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *memWebhookStore) RecordError(_ context.Context, id uint64, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			m := msg
			ev.ProcessingError = &m
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *memWebhookStore) byDedup(dedupKey string) *model.PaymentWebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.DedupKey == dedupKey {
			cp := *ev
			return &cp
		}
	}
	return nil
}

func (s *memWebhookStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// fakeTransitioner records transition calls and returns configured
// errors, isolating processor behavior from the order manager.
type fakeTransitioner struct {
	mu          sync.Mutex
	paid        []string
	failed      []string
	refunded    []string
	paidErr     error
	failedErr   error
	refundedErr error
}

func (f *fakeTransitioner) MarkPaid(_ context.Context, orderID, _, _ string) (*model.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paidErr != nil {
		return nil, f.paidErr
	}
	f.paid = append(f.paid, orderID)
	return &model.PaymentOrder{ID: orderID, Status: model.OrderStatusPaid}, nil
}

func (f *fakeTransitioner) MarkFailed(_ context.Context, orderID, _ string) (*model.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failedErr != nil {
		return nil, f.failedErr
	}
	f.failed = append(f.failed, orderID)
	return &model.PaymentOrder{ID: orderID, Status: model.OrderStatusFailed}, nil
}

func (f *fakeTransitioner) MarkRefunded(_ context.Context, orderID string, _ int64, _, _, _ string) (*model.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundedErr != nil {
		return nil, f.refundedErr
	}
	f.refunded = append(f.refunded, orderID)
	return &model.PaymentOrder{ID: orderID, Status: model.OrderStatusRefunded}, nil
}

func (f *fakeTransitioner) paidCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paid)
}

func signedNotification(t *testing.T, n provider.Notification) (payload []byte, signature string) {
	t.Helper()
	payload, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal notification: %v", err)
	}
	return payload, provider.Sign(payload, testWebhookSecret)
}

func newProcessor() (*WebhookProcessor, *memWebhookStore, *fakeTransitioner) {
	store := newMemWebhookStore()
	orders := &fakeTransitioner{}
	return NewWebhookProcessor(store, orders, "midpay", testWebhookSecret), store, orders
}

func TestHandleAppliesPaid(t *testing.T) {
	proc, store, orders := newProcessor()
	payload, sig := signedNotification(t, provider.Notification{
		EventID: "evt_1", Type: "payment.success", OrderID: "ord_1", PaymentID: "pay_1",
	})

	disp, err := proc.Handle(context.Background(), payload, sig)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if disp != WebhookApplied {
		t.Fatalf("disposition = %s, want applied", disp)
	}
	if orders.paidCalls() != 1 || orders.paid[0] != "ord_1" {
		t.Fatalf("paid calls = %v", orders.paid)
	}
	ev := store.byDedup("evt_1")
	if ev == nil || !ev.Processed || !ev.SignatureValid {
		t.Fatalf("stored event = %+v", ev)
	}
}

func TestHandleFailedAndRefundedMapping(t *testing.T) {
	proc, _, orders := newProcessor()
	ctx := context.Background()

	payload, sig := signedNotification(t, provider.Notification{
		EventID: "evt_f", Type: "payment.failed", OrderID: "ord_2", Reason: "card declined",
	})
	if _, err := proc.Handle(ctx, payload, sig); err != nil {
		t.Fatalf("failed event: %v", err)
	}

	payload, sig = signedNotification(t, provider.Notification{
		EventID: "evt_r", Type: "refund.success", OrderID: "ord_3", PaymentID: "rf_1", AmountCents: 11_000,
	})
	if _, err := proc.Handle(ctx, payload, sig); err != nil {
		t.Fatalf("refund event: %v", err)
	}

	if len(orders.failed) != 1 || orders.failed[0] != "ord_2" {
		t.Fatalf("failed calls = %v", orders.failed)
	}
	if len(orders.refunded) != 1 || orders.refunded[0] != "ord_3" {
		t.Fatalf("refunded calls = %v", orders.refunded)
	}
}

// Re-delivery of the same logical event must be acknowledged without
// reapplying the transition.
func TestHandleReplay(t *testing.T) {
	proc, _, orders := newProcessor()
	ctx := context.Background()
	payload, sig := signedNotification(t, provider.Notification{
		EventID: "evt_1", Type: "payment.success", OrderID: "ord_1", PaymentID: "pay_1",
	})

	if _, err := proc.Handle(ctx, payload, sig); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	disp, err := proc.Handle(ctx, payload, sig)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if disp != WebhookReplayed {
		t.Fatalf("disposition = %s, want replayed", disp)
	}
	if orders.paidCalls() != 1 {
		t.Fatalf("paid calls = %d, want 1", orders.paidCalls())
	}
}

func TestHandleInvalidSignature(t *testing.T) {
	proc, store, orders := newProcessor()
	payload, _ := signedNotification(t, provider.Notification{
		EventID: "evt_1", Type: "payment.success", OrderID: "ord_1",
	})

	_, err := proc.Handle(context.Background(), payload, "deadbeef")
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("err = %v, want ErrSignatureInvalid", err)
	}
	if orders.paidCalls() != 0 {
		t.Fatal("forged delivery must not transition anything")
	}
	// The attempt is still persisted for audit, under a synthetic key so
	// it cannot occupy the genuine event's dedup slot.
	if store.count() != 1 {
		t.Fatalf("stored events = %d, want 1", store.count())
	}
	if ev := store.byDedup("evt_1"); ev != nil {
		t.Fatal("forgery must not be stored under the claimed event id")
	}
	var invalid *model.PaymentWebhookEvent
	store.mu.Lock()
	for _, ev := range store.events {
		invalid = ev
	}
	store.mu.Unlock()
	if !strings.HasPrefix(invalid.DedupKey, "invalid:") || invalid.SignatureValid || invalid.Processed {
		t.Fatalf("invalid-signature row = %+v", invalid)
	}
}

func TestHandleMalformedPayload(t *testing.T) {
	proc, _, _ := newProcessor()
	payload := []byte(`{"event_id":`)
	_, err := proc.Handle(context.Background(), payload, provider.Sign(payload, testWebhookSecret))
	if !errors.Is(err, provider.ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}
}

func TestHandleUnknownTypeIgnored(t *testing.T) {
	proc, store, orders := newProcessor()
	payload, sig := signedNotification(t, provider.Notification{
		EventID: "evt_9", Type: "payout.settled", OrderID: "ord_1",
	})

	disp, err := proc.Handle(context.Background(), payload, sig)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if disp != WebhookIgnored {
		t.Fatalf("disposition = %s, want ignored", disp)
	}
	if orders.paidCalls() != 0 || len(orders.failed) != 0 || len(orders.refunded) != 0 {
		t.Fatal("unknown type must not transition anything")
	}
	if ev := store.byDedup("evt_9"); ev == nil || !ev.Processed {
		t.Fatal("unknown type should be marked processed so retries stop")
	}
}

// An order already finalized by a concurrent path counts as success for
// a payment.success delivery.
func TestHandleAlreadyFinalizedIsSuccess(t *testing.T) {
	proc, store, orders := newProcessor()
	orders.paidErr = repository.ErrAlreadyFinalized
	payload, sig := signedNotification(t, provider.Notification{
		EventID: "evt_1", Type: "payment.success", OrderID: "ord_1",
	})

	disp, err := proc.Handle(context.Background(), payload, sig)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if disp != WebhookIgnored {
		t.Fatalf("disposition = %s, want ignored", disp)
	}
	if ev := store.byDedup("evt_1"); ev == nil || !ev.Processed {
		t.Fatal("event should be marked processed")
	}
}

// A payment.failed landing after the order was paid must be
// acknowledged as a handled no-op, not left for the provider to retry
// forever: the paid state stands and retrying cannot change it.
func TestHandleFailedAfterPaidAcknowledged(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	order := checkout(t, env, 1, 1)

	store := newMemWebhookStore()
	proc := NewWebhookProcessor(store, env.orderManager, "midpay", testWebhookSecret)

	payload, sig := signedNotification(t, provider.Notification{
		EventID: "evt_paid", Type: "payment.success", OrderID: order.ID, PaymentID: "pay-1",
	})
	if disp, err := proc.Handle(ctx, payload, sig); err != nil || disp != WebhookApplied {
		t.Fatalf("paid delivery: disposition=%s err=%v", disp, err)
	}

	payload, sig = signedNotification(t, provider.Notification{
		EventID: "evt_late", Type: "payment.failed", OrderID: order.ID, Reason: "card declined",
	})
	disp, err := proc.Handle(ctx, payload, sig)
	if err != nil {
		t.Fatalf("stale failed delivery: %v", err)
	}
	if disp != WebhookIgnored {
		t.Fatalf("disposition = %s, want ignored", disp)
	}
	if ev := store.byDedup("evt_late"); ev == nil || !ev.Processed {
		t.Fatal("stale delivery should be marked processed so retries stop")
	}
	got, err := env.orders.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.OrderStatusPaid {
		t.Fatalf("order status = %s, want PAID", got.Status)
	}
}

// Business rejections that no retry can change are acknowledged so the
// provider stops redelivering; only transient errors stay unprocessed.
func TestHandleDefinitiveRejectionsAcknowledged(t *testing.T) {
	cases := []struct {
		name         string
		notification provider.Notification
		configure    func(*fakeTransitioner)
	}{
		{
			name:         "expired order on payment.success",
			notification: provider.Notification{EventID: "evt_exp", Type: "payment.success", OrderID: "ord_1"},
			configure:    func(f *fakeTransitioner) { f.paidErr = repository.ErrExpired },
		},
		{
			name:         "stale payment.failed",
			notification: provider.Notification{EventID: "evt_stale", Type: "payment.failed", OrderID: "ord_1"},
			configure:    func(f *fakeTransitioner) { f.failedErr = repository.ErrInvalidTransition },
		},
		{
			name:         "refund amount mismatch",
			notification: provider.Notification{EventID: "evt_ref", Type: "refund.success", OrderID: "ord_1", AmountCents: 5_000},
			configure:    func(f *fakeTransitioner) { f.refundedErr = ErrAmountMismatch },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proc, store, orders := newProcessor()
			tc.configure(orders)
			payload, sig := signedNotification(t, tc.notification)

			disp, err := proc.Handle(context.Background(), payload, sig)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if disp != WebhookIgnored {
				t.Fatalf("disposition = %s, want ignored", disp)
			}
			ev := store.byDedup(tc.notification.EventID)
			if ev == nil || !ev.Processed {
				t.Fatalf("stored event = %+v, want processed", ev)
			}
		})
	}
}

// A transient failure leaves the event unprocessed with the error
// recorded; the provider's retry then succeeds and clears it.
func TestHandleTransitionErrorThenRetry(t *testing.T) {
	proc, store, orders := newProcessor()
	ctx := context.Background()
	orders.paidErr = errors.New("db connection lost")
	payload, sig := signedNotification(t, provider.Notification{
		EventID: "evt_1", Type: "payment.success", OrderID: "ord_1",
	})

	if _, err := proc.Handle(ctx, payload, sig); err == nil {
		t.Fatal("expected transition error to propagate")
	}
	ev := store.byDedup("evt_1")
	if ev == nil || ev.Processed || ev.ProcessingError == nil {
		t.Fatalf("stored event after failure = %+v", ev)
	}

	orders.mu.Lock()
	orders.paidErr = nil
	orders.mu.Unlock()
	disp, err := proc.Handle(ctx, payload, sig)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if disp != WebhookApplied {
		t.Fatalf("disposition = %s, want applied on retry", disp)
	}
	ev = store.byDedup("evt_1")
	if !ev.Processed || ev.ProcessingError != nil {
		t.Fatalf("stored event after retry = %+v", ev)
	}
}
