package router

import (
	"github.com/labstack/echo/v4"

	"github.com/gatherly/event-payments/internal/handler"
	"github.com/gatherly/event-payments/internal/middleware"
	"github.com/gatherly/event-payments/internal/service"
)

// RegisterCustomer registers customer-scoped endpoints under /v1. All
// routes require a valid JWT and the CUSTOMER role. Customers reserve
// seats, check out, inspect their orders and fetch their attendance.
func RegisterCustomer(e *echo.Echo, reservations *handler.ReservationHandler, orders *handler.OrderHandler, attendance *handler.AttendanceHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(service.RoleCustomer),
	)
	g.POST("/events/:id/reservations", reservations.Reserve)
	g.DELETE("/events/:id/reservations/:key", reservations.Release)
	g.GET("/events/:id/attendance", attendance.GetMyAttendance)

	g.POST("/orders", orders.CreateOrder)
	g.GET("/orders/:id", orders.GetOrder)
	g.GET("/my-orders", orders.ListMyOrders)
}
