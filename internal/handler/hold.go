package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
	"github.com/iliyamo/cinema-seat-inventory/internal/service"
)

// HoldHandler exposes the hold workflow to customers.
type HoldHandler struct {
	Holds *service.HoldManager
	Log   *logger.Logger
}

func NewHoldHandler(m *service.HoldManager, log *logger.Logger) *HoldHandler {
	return &HoldHandler{Holds: m, Log: log}
}

type holdRequest struct {
	SeatIDs []string `json:"seat_ids" validate:"dive,seatid"`
}

// Create handles POST /v1/shows/:id/holds.
func (h *HoldHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req holdRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err)
	}
	hold, err := h.Holds.RequestHold(c.Request().Context(), c.Param("id"), userID, req.SeatIDs)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, hold)
}

// Get handles GET /v1/holds/:holdId for the hold's owner.
func (h *HoldHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	hold, err := h.Holds.GetHold(c.Request().Context(), c.Param("holdId"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if hold.OwnerID != userID {
		return respondError(c, h.Log, service.ErrForbidden)
	}
	return c.JSON(http.StatusOK, hold)
}

// Release handles DELETE /v1/holds/:holdId.  Releasing a hold that is
// already gone succeeds.
func (h *HoldHandler) Release(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.Holds.ReleaseHold(c.Request().Context(), c.Param("holdId"), userID); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ReleaseMine handles DELETE /v1/shows/:id/holds and drops every hold the
// caller has on the show.
func (h *HoldHandler) ReleaseMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	n, err := h.Holds.ReleaseOwnerHolds(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": n})
}
