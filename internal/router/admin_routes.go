package router

import (
	"github.com/labstack/echo/v4"

	"github.com/gatherly/event-payments/internal/handler"
	"github.com/gatherly/event-payments/internal/middleware"
	"github.com/gatherly/event-payments/internal/service"
)

// RegisterAdmin registers admin-scoped endpoints under /v1/admin. Admins
// configure the platform fee, read any order and verify tickets at
// check-in; they never initiate customer payments.
func RegisterAdmin(e *echo.Echo, fees *handler.FeeConfigHandler, orders *handler.OrderHandler, attendance *handler.AttendanceHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(service.RoleAdmin),
	)
	g.GET("/fee-config", fees.Get)
	g.PUT("/fee-config", fees.Update)
	g.GET("/orders/:id", orders.GetOrder)
	g.POST("/attendance/verify", attendance.VerifyTicket)
}
