package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/event-payments/internal/feepolicy"
	"github.com/gatherly/event-payments/internal/model"
	"github.com/gatherly/event-payments/internal/provider"
	"github.com/gatherly/event-payments/internal/queue"
	"github.com/gatherly/event-payments/internal/repository"
)

// OrderStore is the persistence contract the order manager consumes.
// FinalizePaid is one atomic unit covering finality, snapshot capture and
// fulfillment; its implementation must enforce the one-final-order
// invariant with a transactional uniqueness mechanism, not application
// checks alone.
type OrderStore interface {
	Create(ctx context.Context, o *model.PaymentOrder) error
	GetByID(ctx context.Context, id string) (*model.PaymentOrder, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.PaymentOrder, error)
	SetPending(ctx context.Context, orderID, providerPaymentID string) error
	FinalizePaid(ctx context.Context, p repository.FinalizePaidParams) (*model.PaymentOrder, *model.AttendanceRecord, error)
	MarkFailed(ctx context.Context, orderID, reason string) (*model.PaymentOrder, error)
	MarkRefunded(ctx context.Context, orderID string, amountCents int64, reason, providerRef, rawResponse string) (*model.PaymentOrder, error)
}

// FeePercentSource yields the current platform fee in basis points. It
// is consulted when pricing an order and never again once the order's
// snapshot has been captured.
type FeePercentSource interface {
	PercentageBps(ctx context.Context) (uint32, error)
}

// FactPublisher emits outbound facts. All calls are fire-and-forget:
// errors are logged by implementations and ignored by this package, and
// no publish ever happens inside a transaction.
type FactPublisher interface {
	PublishOrderFact(ctx context.Context, queueName string, fact queue.OrderFact) error
	PublishAttendanceCreated(ctx context.Context, fact queue.AttendanceFact) error
	PublishAudit(ctx context.Context, fact queue.AuditFact) error
}

// CreateOrderInput is the checkout request after HTTP binding.
type CreateOrderInput struct {
	EventID        uint64
	ReservationKey string
	Seats          uint32
	AmountCents    int64
	ParentOrderID  string
}

// CheckoutResult is what a successful CreateOrder hands back to the
// presentation layer.
type CheckoutResult struct {
	Order       *model.PaymentOrder
	Amounts     feepolicy.Amounts
	RedirectURL string
}

// OrderManager owns the PaymentOrder lifecycle: creation with price
// validation, the markPaid finalization (including fulfillment), and the
// failed/refunded transitions.
type OrderManager struct {
	orders       OrderStore
	events       EventStore
	reservations ReservationStore
	fees         FeePercentSource
	charger      provider.Client
	providerName string
	fulfillment  *FulfillmentCoordinator
	publisher    FactPublisher
	orderTTL     time.Duration
}

// NewOrderManager wires an OrderManager.
func NewOrderManager(
	orders OrderStore,
	events EventStore,
	reservations ReservationStore,
	fees FeePercentSource,
	charger provider.Client,
	providerName string,
	fulfillment *FulfillmentCoordinator,
	publisher FactPublisher,
	orderTTL time.Duration,
) *OrderManager {
	return &OrderManager{
		orders:       orders,
		events:       events,
		reservations: reservations,
		fees:         fees,
		charger:      charger,
		providerName: providerName,
		fulfillment:  fulfillment,
		publisher:    publisher,
		orderTTL:     orderTTL,
	}
}

// CreateOrder validates a checkout request, persists the order and asks
// the provider to initiate the charge. Validation order: capability,
// event, seats, parent linkage, price, reservation. The submitted amount
// must equal the fee policy's computation exactly; a mismatch signals
// tampering or stale pricing and is rejected with ErrAmountMismatch.
//
// Free events short-circuit: a zero-amount order is created and finalized
// immediately with no provider roundtrip.
func (m *OrderManager) CreateOrder(ctx context.Context, identity Identity, in CreateOrderInput) (*CheckoutResult, error) {
	if !identity.IsCustomer() {
		// Admin-type identities must never initiate customer payments.
		return nil, repository.ErrForbidden
	}
	if in.Seats == 0 {
		return nil, errors.New("seats must be positive")
	}
	event, err := m.events.GetByID(ctx, in.EventID)
	if err != nil {
		return nil, err
	}

	var parentID *string
	if in.ParentOrderID != "" {
		parent, err := m.orders.GetByID(ctx, in.ParentOrderID)
		if err != nil {
			return nil, err
		}
		if parent.UserID != identity.UserID || parent.EventID != in.EventID {
			return nil, repository.ErrForbidden
		}
		parentID = &in.ParentOrderID
	}

	basePrice := event.TicketPriceCents
	if !event.IsPaid {
		basePrice = 0
	}
	bps, err := m.fees.PercentageBps(ctx)
	if err != nil {
		return nil, err
	}
	amounts := feepolicy.ComputeAmounts(basePrice, in.Seats, bps)
	if in.AmountCents != amounts.TotalAmountCents {
		return nil, fmt.Errorf("%w: submitted %d, computed %d", ErrAmountMismatch, in.AmountCents, amounts.TotalAmountCents)
	}

	var reservationKey *string
	if in.ReservationKey == "" {
		if event.IsPaid {
			return nil, ErrReservationRequired
		}
	} else {
		res, err := m.reservations.GetByKey(ctx, in.ReservationKey)
		if err != nil {
			return nil, err
		}
		if res.UserID != identity.UserID || res.EventID != in.EventID {
			return nil, repository.ErrForbidden
		}
		now := time.Now().UTC()
		if res.Consumed {
			return nil, repository.ErrReservationConsumed
		}
		if res.Expired(now) {
			return nil, repository.ErrExpired
		}
		if res.Seats != in.Seats {
			return nil, fmt.Errorf("%w: order %d, reservation %d", ErrSeatsMismatch, in.Seats, res.Seats)
		}
		reservationKey = &in.ReservationKey
	}

	order := &model.PaymentOrder{
		ID:               uuid.NewString(),
		UserID:           identity.UserID,
		EventID:          event.ID,
		Seats:            in.Seats,
		Currency:         event.Currency,
		AmountCents:      amounts.TotalAmountCents,
		Status:           model.OrderStatusCreated,
		Provider:         m.providerName,
		BasePriceCents:   amounts.BasePriceCents,
		FeeBps:           amounts.FeeBps,
		FeeAmountCents:   amounts.FeeAmountCents,
		HostEarningCents: amounts.HostEarningCents,
		ParentOrderID:    parentID,
		ReservationKey:   reservationKey,
		ExpiresAt:        time.Now().UTC().Add(m.orderTTL),
	}
	if err := m.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	if !event.IsPaid {
		paid, err := m.MarkPaid(ctx, order.ID, "", "free event, no charge")
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{Order: paid, Amounts: amounts}, nil
	}

	resp, err := m.charger.Charge(ctx, provider.ChargeRequest{
		OrderID:     order.ID,
		AmountCents: order.AmountCents,
		Currency:    order.Currency,
		Description: fmt.Sprintf("%d seat(s) for %s", order.Seats, event.Title),
	})
	if err != nil {
		// The charge never started; fail the order so the buyer can retry
		// with a fresh one (parent_order_id linking it back here).
		if _, failErr := m.orders.MarkFailed(ctx, order.ID, "charge initiation failed"); failErr != nil {
			log.Printf("order: marking %s failed after charge error: %v", order.ID, failErr)
		}
		return nil, err
	}
	if err := m.orders.SetPending(ctx, order.ID, resp.PaymentID); err != nil {
		return nil, err
	}
	order.Status = model.OrderStatusPending
	order.ProviderPaymentID = &resp.PaymentID

	m.audit(ctx, identity.UserID, "order.created", order, string(model.OrderStatusCreated), string(model.OrderStatusPending))
	return &CheckoutResult{Order: order, Amounts: amounts, RedirectURL: resp.RedirectURL}, nil
}

// MarkPaid applies the critical success transition. The store performs
// finality, snapshot capture and fulfillment in one transaction; this
// method prepares the ticket secret beforehand and publishes facts after
// commit. ErrAlreadyFinalized passes through untouched so webhook
// processing can treat it as already-handled.
func (m *OrderManager) MarkPaid(ctx context.Context, orderID, providerPaymentID, rawResponse string) (*model.PaymentOrder, error) {
	rawSecret, secretHash, err := m.fulfillment.PrepareTicket()
	if err != nil {
		return nil, err
	}
	order, record, err := m.orders.FinalizePaid(ctx, repository.FinalizePaidParams{
		OrderID:           orderID,
		ProviderPaymentID: providerPaymentID,
		RawResponse:       rawResponse,
		TicketSecretHash:  secretHash,
	})
	if err != nil {
		return nil, err
	}

	m.publishOrderFact(ctx, queue.QueueOrderPaid, order, "")
	m.audit(ctx, order.UserID, "order.paid", order, string(model.OrderStatusPending), string(model.OrderStatusPaid))
	if pubErr := m.publisher.PublishAttendanceCreated(ctx, queue.AttendanceFact{
		AttendanceID: record.ID,
		EventID:      record.EventID,
		UserID:       record.UserID,
		OrderID:      record.OrderID,
		Seats:        record.Seats,
		TicketSecret: rawSecret,
		OccurredAt:   time.Now().UTC().Format(time.RFC3339),
	}); pubErr != nil {
		log.Printf("order: attendance fact for %s not published: %v", order.ID, pubErr)
	}
	return order, nil
}

// MarkFailed applies the failure transition and publishes the fact.
func (m *OrderManager) MarkFailed(ctx context.Context, orderID, reason string) (*model.PaymentOrder, error) {
	order, err := m.orders.MarkFailed(ctx, orderID, reason)
	if err != nil {
		return nil, err
	}
	m.publishOrderFact(ctx, queue.QueueOrderFailed, order, reason)
	m.audit(ctx, order.UserID, "order.failed", order, string(model.OrderStatusPending), string(model.OrderStatusFailed))
	return order, nil
}

// MarkRefunded applies the refund transition. Only full refunds are
// accepted: the amount must equal the order total.
func (m *OrderManager) MarkRefunded(ctx context.Context, orderID string, amountCents int64, reason, providerRef, rawResponse string) (*model.PaymentOrder, error) {
	existing, err := m.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if amountCents != existing.AmountCents {
		return nil, fmt.Errorf("%w: refund %d, order total %d", ErrAmountMismatch, amountCents, existing.AmountCents)
	}
	order, err := m.orders.MarkRefunded(ctx, orderID, amountCents, reason, providerRef, rawResponse)
	if err != nil {
		return nil, err
	}
	m.publishOrderFact(ctx, queue.QueueOrderRefunded, order, reason)
	m.audit(ctx, order.UserID, "order.refunded", order, string(model.OrderStatusPaid), string(model.OrderStatusRefunded))
	return order, nil
}

// GetOrder returns an order visible to the caller: owners see their own,
// admins see all.
func (m *OrderManager) GetOrder(ctx context.Context, identity Identity, orderID string) (*model.PaymentOrder, error) {
	order, err := m.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != identity.UserID && !identity.IsAdmin() {
		// Hide the order's existence from other users.
		return nil, sql.ErrNoRows
	}
	return order, nil
}

// ListOrders returns the caller's order history, newest first.
func (m *OrderManager) ListOrders(ctx context.Context, identity Identity) ([]model.PaymentOrder, error) {
	return m.orders.ListByUser(ctx, identity.UserID)
}

func (m *OrderManager) publishOrderFact(ctx context.Context, queueName string, order *model.PaymentOrder, reason string) {
	fact := queue.OrderFact{
		OrderID:     order.ID,
		UserID:      order.UserID,
		EventID:     order.EventID,
		Seats:       order.Seats,
		Currency:    order.Currency,
		AmountCents: order.AmountCents,
		Status:      string(order.Status),
		Reason:      reason,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if order.SnapshotCaptured {
		fact.BasePriceCents = order.BasePriceCents
		fact.FeeBps = order.FeeBps
		fact.FeeAmountCents = order.FeeAmountCents
		fact.HostEarningCents = order.HostEarningCents
	}
	if err := m.publisher.PublishOrderFact(ctx, queueName, fact); err != nil {
		log.Printf("order: fact for %s not published to %s: %v", order.ID, queueName, err)
	}
}

func (m *OrderManager) audit(ctx context.Context, actor uint64, action string, order *model.PaymentOrder, oldStatus, newStatus string) {
	if err := m.publisher.PublishAudit(ctx, queue.AuditFact{
		ActorUserID: actor,
		Action:      action,
		OrderID:     order.ID,
		EventID:     order.EventID,
		OldStatus:   oldStatus,
		NewStatus:   newStatus,
		AmountCents: order.AmountCents,
		Currency:    order.Currency,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		log.Printf("order: audit fact for %s not published: %v", order.ID, err)
	}
}
