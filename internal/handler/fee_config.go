package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/event-payments/internal/feepolicy"
	"github.com/gatherly/event-payments/internal/model"
	"github.com/gatherly/event-payments/internal/repository"
)

// FeeConfigHandler exposes the platform fee configuration to admins.
// Updates append a new version and drop the cached percentage so the
// next pricing read sees the new value; orders already snapshotted are
// untouched.
type FeeConfigHandler struct {
	Repo   *repository.FeeConfigRepo
	Policy *feepolicy.Policy
}

// NewFeeConfigHandler constructs a FeeConfigHandler.
func NewFeeConfigHandler(repo *repository.FeeConfigRepo, policy *feepolicy.Policy) *FeeConfigHandler {
	if repo == nil || policy == nil {
		panic("nil dependency passed to NewFeeConfigHandler")
	}
	return &FeeConfigHandler{Repo: repo, Policy: policy}
}

// Get handles GET /v1/admin/fee-config and returns the percentage
// currently in force.
func (h *FeeConfigHandler) Get(c echo.Context) error {
	bps, err := h.Policy.PercentageBps(c.Request().Context())
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"percent_bps": bps})
}

// Update handles PUT /v1/admin/fee-config. The body carries the new
// percentage in basis points, bounded to 0..10000 inclusive.
func (h *FeeConfigHandler) Update(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		PercentBps uint32 `json:"percent_bps"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.PercentBps > feepolicy.MaxBps {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "percent_bps must be between 0 and 10000"})
	}

	cfg := &model.FeeConfig{PercentBps: body.PercentBps, CreatedBy: userID}
	if err := h.Repo.Create(c.Request().Context(), cfg); err != nil {
		return writeDomainError(c, err)
	}
	h.Policy.Invalidate(c.Request().Context())

	return c.JSON(http.StatusOK, echo.Map{
		"id":          cfg.ID,
		"percent_bps": cfg.PercentBps,
		"updated_at":  time.Now().UTC().Format(time.RFC3339),
	})
}
