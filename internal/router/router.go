// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/gatherly/event-payments/internal/handler"
)

// RegisterRoutes registers routes that require no authentication: the
// health check and the provider webhook endpoint. The webhook carries no
// JWT; its HMAC signature is verified inside the processor.
func RegisterRoutes(e *echo.Echo, webhook *handler.WebhookHandler) {
	e.GET("/healthz", handler.Health)
	e.POST("/v1/payments/webhook", webhook.Handle)
}
