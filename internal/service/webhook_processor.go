package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"log"

	"github.com/gatherly/event-payments/internal/model"
	"github.com/gatherly/event-payments/internal/provider"
	"github.com/gatherly/event-payments/internal/repository"
)

// WebhookEventStore is the persistence contract for received provider
// events. Insert must enforce uniqueness of (provider, dedup_key) and
// report a duplicate as repository.ErrDuplicateWebhookEvent.
type WebhookEventStore interface {
	GetByDedupKey(ctx context.Context, providerName, dedupKey string) (*model.PaymentWebhookEvent, error)
	Insert(ctx context.Context, ev *model.PaymentWebhookEvent) error
	MarkProcessed(ctx context.Context, id uint64) error
	RecordError(ctx context.Context, id uint64, msg string) error
}

// OrderTransitioner applies webhook-driven order transitions. Satisfied
// by OrderManager.
type OrderTransitioner interface {
	MarkPaid(ctx context.Context, orderID, providerPaymentID, rawResponse string) (*model.PaymentOrder, error)
	MarkFailed(ctx context.Context, orderID, reason string) (*model.PaymentOrder, error)
	MarkRefunded(ctx context.Context, orderID string, amountCents int64, reason, providerRef, rawResponse string) (*model.PaymentOrder, error)
}

// WebhookDisposition tells the handler how a delivery ended so it can
// pick a response. All three map to HTTP 200: the provider must not
// retry any of them.
type WebhookDisposition string

const (
	// WebhookApplied means the mapped transition was applied now.
	WebhookApplied WebhookDisposition = "applied"
	// WebhookReplayed means this logical event was already handled.
	WebhookReplayed WebhookDisposition = "replayed"
	// WebhookIgnored means no transition was applied: the event type
	// requests none, or the order's current state definitively rejects
	// the requested one. Deliveries arrive out of order; the order's
	// state stands and retrying the event can never change the answer.
	WebhookIgnored WebhookDisposition = "ignored"
)

// WebhookProcessor applies provider notifications to orders, exactly
// once per logical event. Deliveries are persisted before processing so
// every attempt, including forgeries, leaves an audit row.
type WebhookProcessor struct {
	events       WebhookEventStore
	orders       OrderTransitioner
	providerName string
	secret       string
}

// NewWebhookProcessor wires a processor for one provider's webhook
// endpoint. secret is the shared HMAC key for that provider.
func NewWebhookProcessor(events WebhookEventStore, orders OrderTransitioner, providerName, secret string) *WebhookProcessor {
	return &WebhookProcessor{events: events, orders: orders, providerName: providerName, secret: secret}
}

// Handle processes one webhook delivery. payload is the raw request body
// exactly as received; signature is the provider's signature header.
//
// Deliveries that fail signature verification are persisted for audit
// under a synthetic dedup key and rejected with ErrSignatureInvalid.
// Malformed payloads return provider.ErrMalformedPayload. Everything
// else resolves to a disposition: the transition applied now, a replay
// of an event already handled, or an event this engine takes no action
// on. Transient processing failures leave the stored event unprocessed
// so the provider's retry reattempts it; rejections the order's state
// makes definitive are acknowledged instead (see definitiveRejection).
func (p *WebhookProcessor) Handle(ctx context.Context, payload []byte, signature string) (WebhookDisposition, error) {
	if !provider.VerifySignature(payload, signature, p.secret) {
		p.persistInvalid(ctx, payload)
		return "", ErrSignatureInvalid
	}

	n, err := provider.ParseNotification(payload)
	if err != nil {
		return "", err
	}

	ev, err := p.findOrInsert(ctx, n, payload)
	if err != nil {
		return "", err
	}
	if ev.Processed {
		return WebhookReplayed, nil
	}

	outcome, actionable := n.Outcome()
	if !actionable {
		// Unknown event types are acknowledged so the provider stops
		// retrying, but nothing is applied.
		if err := p.events.MarkProcessed(ctx, ev.ID); err != nil {
			return "", err
		}
		return WebhookIgnored, nil
	}

	disposition, err := p.apply(ctx, n, outcome, payload)
	if err != nil {
		if recErr := p.events.RecordError(ctx, ev.ID, err.Error()); recErr != nil {
			log.Printf("webhook: recording error for event %d failed: %v", ev.ID, recErr)
		}
		return "", err
	}
	if err := p.events.MarkProcessed(ctx, ev.ID); err != nil {
		return "", err
	}
	return disposition, nil
}

// findOrInsert returns the stored row for this logical event, inserting
// it on first delivery. The unique index is the real dedup guarantee;
// the read beforehand just saves an insert attempt on obvious replays.
func (p *WebhookProcessor) findOrInsert(ctx context.Context, n provider.Notification, payload []byte) (*model.PaymentWebhookEvent, error) {
	existing, err := p.events.GetByDedupKey(ctx, p.providerName, n.DedupKey())
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	ev := &model.PaymentWebhookEvent{
		Provider:       p.providerName,
		DedupKey:       n.DedupKey(),
		EventType:      n.Type,
		Payload:        string(payload),
		SignatureValid: true,
	}
	if err := p.events.Insert(ctx, ev); err != nil {
		if errors.Is(err, repository.ErrDuplicateWebhookEvent) {
			// Lost the race against a concurrent delivery of the same event.
			return p.events.GetByDedupKey(ctx, p.providerName, n.DedupKey())
		}
		return nil, err
	}
	return ev, nil
}

func (p *WebhookProcessor) apply(ctx context.Context, n provider.Notification, outcome provider.Outcome, payload []byte) (WebhookDisposition, error) {
	var err error
	switch outcome {
	case provider.OutcomePaid:
		_, err = p.orders.MarkPaid(ctx, n.OrderID, n.PaymentID, string(payload))
	case provider.OutcomeFailed:
		_, err = p.orders.MarkFailed(ctx, n.OrderID, n.Reason)
	case provider.OutcomeRefunded:
		_, err = p.orders.MarkRefunded(ctx, n.OrderID, n.AmountCents, n.Reason, n.PaymentID, string(payload))
	}
	if err != nil {
		if definitiveRejection(err) {
			return WebhookIgnored, nil
		}
		return "", err
	}
	return WebhookApplied, nil
}

// definitiveRejection reports whether a transition failed for a reason
// that no retry of the same delivery can change: the order was already
// finalized by a concurrent path, a stale out-of-order event names a
// state the order has moved past, the order expired before payment
// landed, or a refund amount does not match the order total. Such
// deliveries are acknowledged as handled no-ops so the provider stops
// retrying them; only transient failures stay unprocessed.
func definitiveRejection(err error) bool {
	return errors.Is(err, repository.ErrAlreadyFinalized) ||
		errors.Is(err, repository.ErrInvalidTransition) ||
		errors.Is(err, repository.ErrExpired) ||
		errors.Is(err, ErrAmountMismatch)
}

// persistInvalid stores a delivery that failed signature verification.
// The synthetic dedup key keeps forgeries from occupying the slot of a
// genuine provider event id. Best effort; the request is rejected either
// way.
func (p *WebhookProcessor) persistInvalid(ctx context.Context, payload []byte) {
	sum := sha256.Sum256(payload)
	ev := &model.PaymentWebhookEvent{
		Provider:       p.providerName,
		DedupKey:       "invalid:" + hex.EncodeToString(sum[:]),
		EventType:      "signature.invalid",
		Payload:        string(payload),
		SignatureValid: false,
	}
	if err := p.events.Insert(ctx, ev); err != nil && !errors.Is(err, repository.ErrDuplicateWebhookEvent) {
		log.Printf("webhook: persisting invalid-signature delivery failed: %v", err)
	}
}
