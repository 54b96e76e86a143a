// Package handler contains the HTTP handlers. Handlers bind and validate
// requests, call into the service layer and translate sentinel errors
// into HTTP statuses. All business rules live below this package.
package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/event-payments/internal/provider"
	"github.com/gatherly/event-payments/internal/repository"
	"github.com/gatherly/event-payments/internal/service"
)

// getUserID extracts the user_id placed in the context by the JWT
// middleware and converts it to uint64. JWT numeric claims decode as
// float64, so several representations are accepted.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// getIdentity builds the service-level identity from the claims the JWT
// middleware stored in the context.
func getIdentity(c echo.Context) (service.Identity, error) {
	userID, err := getUserID(c)
	if err != nil {
		return service.Identity{}, err
	}
	role, _ := c.Get("role").(string)
	return service.Identity{UserID: userID, Role: role}, nil
}

// writeDomainError maps sentinel errors from the lower layers onto HTTP
// responses. Anything unrecognized is a 500 with a generic message; the
// real error is left to the logging middleware.
func writeDomainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrEventNotFound), errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrCapacityExceeded):
		return c.JSON(http.StatusConflict, echo.Map{"error": "event is full"})
	case errors.Is(err, repository.ErrAlreadyFinalized):
		return c.JSON(http.StatusConflict, echo.Map{"error": "order already completed for this event"})
	case errors.Is(err, repository.ErrReservationConsumed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation already used"})
	case errors.Is(err, repository.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "order state does not permit this operation"})
	case errors.Is(err, repository.ErrExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "expired"})
	case errors.Is(err, service.ErrAmountMismatch):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount does not match current pricing"})
	case errors.Is(err, service.ErrSeatsMismatch):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats do not match reservation"})
	case errors.Is(err, service.ErrReservationRequired):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation required for paid event"})
	case errors.Is(err, provider.ErrProviderUnavailable):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
