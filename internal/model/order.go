package model

import "time"

// OrderStatus enumerates the payment order state machine:
//
//	CREATED → PENDING → {PAID | FAILED | CANCELLED}
//	PAID → REFUNDED
//
// Terminal states are immutable except for the single PAID → REFUNDED
// edge. CREATED and PENDING orders past their expiry are treated as
// implicitly failed by all business logic (lazy expiry, same pattern as
// reservations).
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// Terminal reports whether the status permits no further transition other
// than the PAID → REFUNDED edge.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from s
// to next. Write paths must consult this before mutating an order.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusCreated:
		return next == OrderStatusPending || next == OrderStatusPaid ||
			next == OrderStatusFailed || next == OrderStatusCancelled
	case OrderStatusPending:
		return next == OrderStatusPaid || next == OrderStatusFailed ||
			next == OrderStatusCancelled
	case OrderStatusPaid:
		return next == OrderStatusRefunded
	}
	return false
}

// PaymentOrder is the authoritative record of a payment attempt. Among all
// orders for a given (user, event) pair at most one may have IsFinal set;
// the unique index on FinalityKey is what enforces that under concurrency.
// The snapshot fields (BasePriceCents, FeeBps, FeeAmountCents,
// HostEarningCents) are frozen when SnapshotCaptured is set at the moment
// of successful payment and are never recomputed afterwards.
//
// Fields:
//  ID                – externally visible order identifier (UUID).
//  UserID            – buyer.
//  EventID           – event being paid for.
//  Seats             – seats purchased.
//  Currency          – ISO 4217 code.
//  AmountCents       – buyer-facing total (base + fee).
//  Status            – state machine position.
//  Provider          – payment provider slug.
//  ProviderPaymentID – provider-side charge identifier (set when PENDING).
//  BasePriceCents    – base price per seat at checkout time.
//  FeeBps            – platform fee in basis points at checkout time.
//  FeeAmountCents    – total platform fee for the order.
//  HostEarningCents  – total host earning (base price × seats).
//  SnapshotCaptured  – true once the snapshot is frozen at payment.
//  ParentOrderID     – original order when this one is a retry.
//  IsFinal           – the one successful order per (user, event).
//  FinalityKey       – "<user>:<event>" when final, NULL otherwise.
//  ReservationKey    – capacity reservation funding this order.
//  FailureReason     – recorded on FAILED/CANCELLED/REFUNDED.
//  ExpiresAt         – lazy-expiry deadline for CREATED/PENDING.
type PaymentOrder struct {
	ID                string      // payment_orders.id
	UserID            uint64      // payment_orders.user_id
	EventID           uint64      // payment_orders.event_id
	Seats             uint32      // payment_orders.seats
	Currency          string      // payment_orders.currency
	AmountCents       int64       // payment_orders.amount_cents
	Status            OrderStatus // payment_orders.status
	Provider          string      // payment_orders.provider
	ProviderPaymentID *string     // payment_orders.provider_payment_id (nullable)
	BasePriceCents    int64       // payment_orders.base_price_cents
	FeeBps            uint32      // payment_orders.fee_bps
	FeeAmountCents    int64       // payment_orders.fee_amount_cents
	HostEarningCents  int64       // payment_orders.host_earning_cents
	SnapshotCaptured  bool        // payment_orders.snapshot_captured
	ParentOrderID     *string     // payment_orders.parent_order_id (nullable)
	IsFinal           bool        // payment_orders.is_final
	FinalityKey       *string     // payment_orders.finality_key (nullable, unique)
	ReservationKey    *string     // payment_orders.reservation_key (nullable)
	FailureReason     *string     // payment_orders.failure_reason (nullable)
	ExpiresAt         time.Time   // payment_orders.expires_at
	CreatedAt         time.Time   // payment_orders.created_at
	UpdatedAt         time.Time   // payment_orders.updated_at
}

// Expired reports whether a non-terminal order is past its deadline.
func (o *PaymentOrder) Expired(now time.Time) bool {
	return !o.Status.Terminal() && !now.Before(o.ExpiresAt)
}

// EffectiveStatus applies lazy expiry: a CREATED or PENDING order past its
// expiry reads as FAILED everywhere in business logic, whether or not a
// sweeper has persisted the transition yet.
func (o *PaymentOrder) EffectiveStatus(now time.Time) OrderStatus {
	if o.Expired(now) {
		return OrderStatusFailed
	}
	return o.Status
}
