package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/event-payments/internal/service"
)

// ReservationHandler exposes seat holds to customers. JWT authentication
// and role validation have already run in middleware.
type ReservationHandler struct {
	Reservations *service.ReservationManager
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(reservations *service.ReservationManager) *ReservationHandler {
	if reservations == nil {
		panic("nil reservation manager passed to NewReservationHandler")
	}
	return &ReservationHandler{Reservations: reservations}
}

// Reserve handles POST /v1/events/:id/reservations. The body carries a
// "seats" count; on success it returns 201 with the reservation key and
// expiry the client must check out before. A full event yields 409.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var body struct {
		Seats uint32 `json:"seats"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Seats == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats must be positive"})
	}

	res, err := h.Reservations.Reserve(c.Request().Context(), eventID, userID, body.Seats)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_key": res.ReservationKey,
		"event_id":        res.EventID,
		"seats":           res.Seats,
		"expires_at":      res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Release handles DELETE /v1/events/:id/reservations/:key. Dropping a
// hold that already expired or never existed is fine; expiry is the
// backstop, an explicit release just returns the seats sooner.
func (h *ReservationHandler) Release(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	key := c.Param("key")
	if key == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation key is required"})
	}
	if err := h.Reservations.Release(c.Request().Context(), key, userID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return writeDomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
