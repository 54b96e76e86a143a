package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/event-payments/internal/model"
	"github.com/gatherly/event-payments/internal/repository"
	"github.com/gatherly/event-payments/internal/service"
)

// AttendanceHandler exposes confirmed attendance to its owner and ticket
// verification to admins at check-in.
type AttendanceHandler struct {
	Attendance  *repository.AttendanceRepo
	Fulfillment *service.FulfillmentCoordinator
}

// NewAttendanceHandler constructs an AttendanceHandler.
func NewAttendanceHandler(attendance *repository.AttendanceRepo, fulfillment *service.FulfillmentCoordinator) *AttendanceHandler {
	if attendance == nil || fulfillment == nil {
		panic("nil dependency passed to NewAttendanceHandler")
	}
	return &AttendanceHandler{Attendance: attendance, Fulfillment: fulfillment}
}

// GetMyAttendance handles GET /v1/events/:id/attendance and returns the
// caller's attendance record for the event, if any.
func (h *AttendanceHandler) GetMyAttendance(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	record, err := h.Attendance.GetByEventAndUser(c.Request().Context(), eventID, userID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"attendance_id": record.ID,
		"event_id":      record.EventID,
		"order_id":      record.OrderID,
		"seats":         record.Seats,
		"status":        record.Status,
		"created_at":    record.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// VerifyTicket handles POST /v1/admin/attendance/verify. Check-in staff
// present the order id and the ticket secret from the buyer's ticket;
// the response says whether the secret matches and the attendance still
// stands. The secret itself is never stored, only its hash.
func (h *AttendanceHandler) VerifyTicket(c echo.Context) error {
	var body struct {
		OrderID      string `json:"order_id"`
		TicketSecret string `json:"ticket_secret"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.OrderID == "" || body.TicketSecret == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order_id and ticket_secret are required"})
	}

	record, err := h.Attendance.GetByOrderID(c.Request().Context(), body.OrderID)
	if err != nil {
		return writeDomainError(c, err)
	}
	valid := h.Fulfillment.VerifyTicket(record.TicketSecretHash, body.TicketSecret)
	return c.JSON(http.StatusOK, echo.Map{
		"valid":     valid && record.Status == model.AttendanceStatusConfirmed,
		"status":    record.Status,
		"event_id":  record.EventID,
		"seats":     record.Seats,
		"cancelled": record.Status == model.AttendanceStatusCancelled,
	})
}
