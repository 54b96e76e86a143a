package model

import "time"

// PaymentWebhookEvent stores a received provider notification with the
// metadata needed for idempotent processing. Rows are append-only: a
// re-delivery of the same logical event matches the unique
// (provider, dedup_key) index and is applied as a no-op. Events that fail
// signature verification are persisted too, for audit, with
// SignatureValid false and never processed.
//
// Fields:
//  ID              – primary key identifier.
//  Provider        – provider slug the notification came from.
//  DedupKey        – provider event id; unique per provider.
//  EventType       – provider event type string.
//  Payload         – raw request body as received.
//  SignatureValid  – outcome of HMAC verification.
//  Processed       – set once the mapped transition has been applied.
//  ProcessingError – last failure while applying; cleared on success.
//  CreatedAt       – first delivery timestamp.
//  ProcessedAt     – when processing succeeded (nullable).
type PaymentWebhookEvent struct {
	ID              uint64     // payment_webhook_events.id
	Provider        string     // payment_webhook_events.provider
	DedupKey        string     // payment_webhook_events.dedup_key
	EventType       string     // payment_webhook_events.event_type
	Payload         string     // payment_webhook_events.payload
	SignatureValid  bool       // payment_webhook_events.signature_valid
	Processed       bool       // payment_webhook_events.processed
	ProcessingError *string    // payment_webhook_events.processing_error (nullable)
	CreatedAt       time.Time  // payment_webhook_events.created_at
	ProcessedAt     *time.Time // payment_webhook_events.processed_at (nullable)
}
