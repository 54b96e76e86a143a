package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/event-payments/internal/provider"
	"github.com/gatherly/event-payments/internal/service"
)

// SignatureHeader carries the provider's HMAC of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// WebhookHandler receives provider payment notifications. The endpoint
// is unauthenticated; the HMAC signature is the only trust anchor, so
// the raw body is passed to verification exactly as received.
type WebhookHandler struct {
	Processor *service.WebhookProcessor
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(processor *service.WebhookProcessor) *WebhookHandler {
	if processor == nil {
		panic("nil processor passed to NewWebhookHandler")
	}
	return &WebhookHandler{Processor: processor}
}

// Handle processes POST /v1/payments/webhook. Applied, replayed and
// ignored deliveries all answer 200 so the provider stops retrying;
// a bad signature is 401, a malformed body 400, and anything transient
// 500 to trigger the provider's retry.
func (h *WebhookHandler) Handle(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	signature := c.Request().Header.Get(SignatureHeader)

	disposition, err := h.Processor.Handle(c.Request().Context(), payload, signature)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"result": disposition})
	case errors.Is(err, service.ErrSignatureInvalid):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	case errors.Is(err, provider.ErrMalformedPayload):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed payload"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "processing failed"})
}
