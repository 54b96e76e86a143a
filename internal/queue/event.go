// Package queue defines the facts the engine emits over the message
// broker and the consumers that drain them. Notification and audit are
// external collaborators: they receive facts fire-and-forget, and a
// publish failure must never roll back a payment.
package queue

// Queue names. All queues are durable and messages persistent.
const (
	QueueOrderPaid         = "order.paid"
	QueueOrderFailed       = "order.failed"
	QueueOrderRefunded     = "order.refunded"
	QueueAttendanceCreated = "attendance.created"
	QueueAudit             = "payment.audit"
)

// OrderFact is published when an order reaches PAID, FAILED or REFUNDED.
// It carries enough for downstream consumers to notify or reconcile
// without querying the primary database, including the frozen financial
// snapshot on paid orders.
type OrderFact struct {
	OrderID          string `json:"order_id"`
	UserID           uint64 `json:"user_id"`
	EventID          uint64 `json:"event_id"`
	EventTitle       string `json:"event_title,omitempty"`
	Seats            uint32 `json:"seats"`
	Currency         string `json:"currency"`
	AmountCents      int64  `json:"amount_cents"`
	Status           string `json:"status"`
	BasePriceCents   int64  `json:"base_price_cents,omitempty"`
	FeeBps           uint32 `json:"fee_bps,omitempty"`
	FeeAmountCents   int64  `json:"fee_amount_cents,omitempty"`
	HostEarningCents int64  `json:"host_earning_cents,omitempty"`
	Reason           string `json:"reason,omitempty"`
	OccurredAt       string `json:"occurred_at"`
}

// AttendanceFact is published when fulfillment creates an attendance
// record. TicketSecret is the raw secret, surfaced exactly once here for
// the notification collaborator to deliver to the buyer; only its hash
// is stored.
type AttendanceFact struct {
	AttendanceID uint64 `json:"attendance_id"`
	EventID      uint64 `json:"event_id"`
	UserID       uint64 `json:"user_id"`
	OrderID      string `json:"order_id"`
	Seats        uint32 `json:"seats"`
	TicketSecret string `json:"ticket_secret"`
	OccurredAt   string `json:"occurred_at"`
}

// AuditFact is the immutable snapshot handed to the audit collaborator
// on every financial state change.
type AuditFact struct {
	ActorUserID uint64 `json:"actor_user_id"`
	Action      string `json:"action"`
	OrderID     string `json:"order_id"`
	EventID     uint64 `json:"event_id"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	OccurredAt  string `json:"occurred_at"`
}
