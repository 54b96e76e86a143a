package repository

import (
	"context"
	"database/sql"

	"github.com/gatherly/event-payments/internal/model"
)

// WebhookEventRepo provides data access to payment_webhook_events. The
// unique (provider, dedup_key) index is the idempotency guarantee: two
// concurrent deliveries of one logical event both pass the read check,
// but only one insert succeeds; the loser gets ErrDuplicateWebhookEvent
// and is treated as a replay.
type WebhookEventRepo struct {
	db *sql.DB
}

// NewWebhookEventRepo returns a repo bound to the database.
func NewWebhookEventRepo(db *sql.DB) *WebhookEventRepo { return &WebhookEventRepo{db: db} }

const webhookEventColumns = `id, provider, dedup_key, event_type, payload, signature_valid, processed, processing_error, created_at, processed_at`

func scanWebhookEvent(row rowScanner) (*model.PaymentWebhookEvent, error) {
	var ev model.PaymentWebhookEvent
	var processingError sql.NullString
	var processedAt sql.NullTime
	if err := row.Scan(
		&ev.ID, &ev.Provider, &ev.DedupKey, &ev.EventType, &ev.Payload,
		&ev.SignatureValid, &ev.Processed, &processingError, &ev.CreatedAt, &processedAt,
	); err != nil {
		return nil, err
	}
	if processingError.Valid {
		v := processingError.String
		ev.ProcessingError = &v
	}
	if processedAt.Valid {
		t := processedAt.Time
		ev.ProcessedAt = &t
	}
	return &ev, nil
}

// GetByDedupKey loads the stored event for a provider event id. Returns
// sql.ErrNoRows when this is the first delivery.
func (r *WebhookEventRepo) GetByDedupKey(ctx context.Context, providerName, dedupKey string) (*model.PaymentWebhookEvent, error) {
	const q = `SELECT ` + webhookEventColumns + ` FROM payment_webhook_events WHERE provider = ? AND dedup_key = ?`
	return scanWebhookEvent(r.db.QueryRowContext(ctx, q, providerName, dedupKey))
}

// Insert persists a received event (processed = false) and populates the
// generated ID. A duplicate (provider, dedup_key) pair is reported as
// ErrDuplicateWebhookEvent.
func (r *WebhookEventRepo) Insert(ctx context.Context, ev *model.PaymentWebhookEvent) error {
	const q = `INSERT INTO payment_webhook_events (provider, dedup_key, event_type, payload, signature_valid, processed)
	           VALUES (?, ?, ?, ?, ?, 0)`
	result, err := r.db.ExecContext(ctx, q, ev.Provider, ev.DedupKey, ev.EventType, ev.Payload, ev.SignatureValid)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateWebhookEvent
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)
	return nil
}

// MarkProcessed flags an event as applied and clears any recorded error.
func (r *WebhookEventRepo) MarkProcessed(ctx context.Context, id uint64) error {
	const q = `UPDATE payment_webhook_events
	           SET processed = 1, processing_error = NULL, processed_at = UTC_TIMESTAMP()
	           WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// RecordError stores the failure that prevented processing; the event
// stays unprocessed so the provider's retry can reattempt it.
func (r *WebhookEventRepo) RecordError(ctx context.Context, id uint64, msg string) error {
	const q = `UPDATE payment_webhook_events SET processing_error = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, msg, id)
	return err
}
