package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/event-payments/internal/model"
	"github.com/gatherly/event-payments/internal/repository"
	"github.com/gatherly/event-payments/internal/service"
)

// OrderHandler exposes checkout and order reads to customers.
type OrderHandler struct {
	Orders       *service.OrderManager
	Transactions *repository.PaymentTransactionRepo
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(orders *service.OrderManager, transactions *repository.PaymentTransactionRepo) *OrderHandler {
	if orders == nil || transactions == nil {
		panic("nil dependency passed to NewOrderHandler")
	}
	return &OrderHandler{Orders: orders, Transactions: transactions}
}

// createOrderRequest is the checkout body. amount_cents is the total the
// client showed the buyer; the server recomputes it and rejects any
// difference. parent_order_id links a retry to the failed attempt it
// replaces.
type createOrderRequest struct {
	EventID        uint64 `json:"event_id"`
	ReservationKey string `json:"reservation_key"`
	Seats          uint32 `json:"seats"`
	AmountCents    int64  `json:"amount_cents"`
	ParentOrderID  string `json:"parent_order_id"`
}

// CreateOrder handles POST /v1/orders. On success the response carries
// the order, the fee breakdown and, for paid events, the provider URL
// the buyer must be redirected to.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	identity, err := getIdentity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createOrderRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.EventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id is required"})
	}
	if body.Seats == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats must be positive"})
	}
	if body.AmountCents < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_cents must not be negative"})
	}

	result, err := h.Orders.CreateOrder(c.Request().Context(), identity, service.CreateOrderInput{
		EventID:        body.EventID,
		ReservationKey: body.ReservationKey,
		Seats:          body.Seats,
		AmountCents:    body.AmountCents,
		ParentOrderID:  body.ParentOrderID,
	})
	if err != nil {
		return writeDomainError(c, err)
	}

	resp := echo.Map{
		"order":     orderJSON(result.Order),
		"breakdown": result.Amounts,
	}
	if result.RedirectURL != "" {
		resp["redirect_url"] = result.RedirectURL
	}
	return c.JSON(http.StatusCreated, resp)
}

// GetOrder handles GET /v1/orders/:id. Owners and admins see the order
// together with its transaction ledger; everyone else gets 404.
func (h *OrderHandler) GetOrder(c echo.Context) error {
	identity, err := getIdentity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order id is required"})
	}

	order, err := h.Orders.GetOrder(c.Request().Context(), identity, orderID)
	if err != nil {
		return writeDomainError(c, err)
	}
	entries, err := h.Transactions.ListByOrder(c.Request().Context(), orderID)
	if err != nil {
		return writeDomainError(c, err)
	}

	ledger := make([]echo.Map, 0, len(entries))
	for _, t := range entries {
		ledger = append(ledger, echo.Map{
			"type":         t.Type,
			"amount_cents": t.AmountCents,
			"currency":     t.Currency,
			"provider_ref": t.ProviderRef,
			"created_at":   t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"order":        orderJSON(order),
		"transactions": ledger,
	})
}

// ListMyOrders handles GET /v1/my-orders.
func (h *OrderHandler) ListMyOrders(c echo.Context) error {
	identity, err := getIdentity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orders, err := h.Orders.ListOrders(c.Request().Context(), identity)
	if err != nil {
		return writeDomainError(c, err)
	}
	out := make([]echo.Map, 0, len(orders))
	now := time.Now().UTC()
	for i := range orders {
		out = append(out, orderJSON(&orders[i], now))
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": out})
}

// orderJSON shapes an order for responses. The reported status is the
// effective one, so an expired pending order reads FAILED even before a
// sweeper persists it. Snapshot fields appear only once frozen.
func orderJSON(o *model.PaymentOrder, at ...time.Time) echo.Map {
	now := time.Now().UTC()
	if len(at) > 0 {
		now = at[0]
	}
	out := echo.Map{
		"id":           o.ID,
		"event_id":     o.EventID,
		"seats":        o.Seats,
		"currency":     o.Currency,
		"amount_cents": o.AmountCents,
		"status":       o.EffectiveStatus(now),
		"provider":     o.Provider,
		"is_final":     o.IsFinal,
		"expires_at":   o.ExpiresAt.UTC().Format(time.RFC3339),
		"created_at":   o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.SnapshotCaptured {
		out["base_price_cents"] = o.BasePriceCents
		out["fee_bps"] = o.FeeBps
		out["fee_amount_cents"] = o.FeeAmountCents
		out["host_earning_cents"] = o.HostEarningCents
	}
	if o.ParentOrderID != nil {
		out["parent_order_id"] = *o.ParentOrderID
	}
	if o.ReservationKey != nil {
		out["reservation_key"] = *o.ReservationKey
	}
	if o.FailureReason != nil {
		out["failure_reason"] = *o.FailureReason
	}
	return out
}
