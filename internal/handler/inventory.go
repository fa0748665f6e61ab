package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-inventory/internal/ledger"
	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
	"github.com/iliyamo/cinema-seat-inventory/internal/model"
	"github.com/iliyamo/cinema-seat-inventory/internal/seatmap"
)

// InventoryHandler serves show inventories: creation by the show
// configuration side and the public seat map.
type InventoryHandler struct {
	Ledger *ledger.Ledger
	Log    *logger.Logger
}

func NewInventoryHandler(l *ledger.Ledger, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{Ledger: l, Log: log}
}

type initInventoryRequest struct {
	Rows               int   `json:"rows" validate:"required"`
	SeatsPerRow        int   `json:"seats_per_row" validate:"required"`
	MaxSeatsPerBooking int   `json:"max_seats_per_booking" validate:"gte=0"`
	BasePriceCents     int64 `json:"base_price_cents" validate:"gte=0"`
}

// Initialize handles POST /v1/shows/:id/inventory.  Every seat of the new
// inventory starts FREE.  A second call for the same show returns 409.
func (h *InventoryHandler) Initialize(c echo.Context) error {
	var req initInventoryRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err)
	}
	info, err := h.Ledger.Initialize(c.Request().Context(), model.ShowConfig{
		ShowID:             c.Param("id"),
		Layout:             seatmap.Layout{Rows: req.Rows, SeatsPerRow: req.SeatsPerRow},
		MaxSeatsPerBooking: req.MaxSeatsPerBooking,
		BasePriceCents:     req.BasePriceCents,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	h.Log.Info("inventory initialised", "show_id", info.ShowID, "seats", info.TotalSeats)
	return c.JSON(http.StatusCreated, info)
}

type seatView struct {
	SeatID string           `json:"seat_id"`
	Status model.SeatStatus `json:"status"`
}

type seatMapResponse struct {
	model.ShowInfo
	Counts model.SeatCounts `json:"counts"`
	Seats  []seatView       `json:"seats"`
}

// SeatMap handles GET /v1/shows/:id/seats.  Holds past their expiry are
// reported FREE.  Hold and booking identifiers are not exposed.
func (h *InventoryHandler) SeatMap(c echo.Context) error {
	ctx := c.Request().Context()
	showID := c.Param("id")
	info, err := h.Ledger.Show(ctx, showID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	snap, err := h.Ledger.Snapshot(ctx, showID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ids, err := info.Layout.SeatIDs()
	if err != nil {
		return respondError(c, h.Log, err)
	}

	resp := seatMapResponse{ShowInfo: info, Counts: model.SeatCounts{Total: len(ids)}, Seats: make([]seatView, 0, len(ids))}
	for _, id := range ids {
		st := snap[id].Status
		switch st {
		case model.SeatFree:
			resp.Counts.Free++
		case model.SeatHeld:
			resp.Counts.Held++
		case model.SeatBooked:
			resp.Counts.Booked++
		}
		resp.Seats = append(resp.Seats, seatView{SeatID: id, Status: st})
	}
	return c.JSON(http.StatusOK, resp)
}
