package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Outcome is the business-level result a webhook notification maps to.
type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeFailed   Outcome = "failed"
	OutcomeRefunded Outcome = "refunded"
)

// ErrMalformedPayload is returned when a webhook body cannot be decoded
// or lacks required fields. Such requests are rejected synchronously and
// never retried by us.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Notification is a decoded provider webhook. EventID is assigned by the
// provider per logical event and doubles as the deduplication key:
// re-deliveries of the same event carry the same EventID.
type Notification struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Reason      string `json:"reason"`
}

// DedupKey returns the key under which re-deliveries of this logical
// event are detected.
func (n Notification) DedupKey() string { return n.EventID }

// Outcome maps the provider event type onto the order transition it
// requests. The second return is false for event types this engine does
// not act on.
func (n Notification) Outcome() (Outcome, bool) {
	switch n.Type {
	case "payment.success":
		return OutcomePaid, true
	case "payment.failed", "payment.expired":
		return OutcomeFailed, true
	case "refund.success":
		return OutcomeRefunded, true
	}
	return "", false
}

// ParseNotification decodes and validates a raw webhook body.
func ParseNotification(payload []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if n.EventID == "" {
		return Notification{}, fmt.Errorf("%w: missing event_id", ErrMalformedPayload)
	}
	if n.Type == "" {
		return Notification{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	if n.OrderID == "" {
		return Notification{}, fmt.Errorf("%w: missing order_id", ErrMalformedPayload)
	}
	return n, nil
}

// Sign computes the hex HMAC-SHA256 signature of a payload. Used by the
// provider side (and by tests) to produce the signature header.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header against the raw request body
// in constant time. The raw body must be verified exactly as received;
// re-serializing the JSON would break the MAC.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
