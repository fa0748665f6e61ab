package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
	"github.com/iliyamo/cinema-seat-inventory/internal/model"
	"github.com/iliyamo/cinema-seat-inventory/internal/service"
)

// BookingHandler finalizes holds into bookings and manages them.
type BookingHandler struct {
	Finalizer *service.Finalizer
	Log       *logger.Logger
}

func NewBookingHandler(f *service.Finalizer, log *logger.Logger) *BookingHandler {
	return &BookingHandler{Finalizer: f, Log: log}
}

// confirmRequest carries the outcome of a payment captured by the client
// side flow.
// confirmRequest carries the client's payment outcome.  Only the
// reference is used for a success; payer and amount are looked up at the
// gateway.
type confirmRequest struct {
	Success       bool   `json:"success"`
	Reference     string `json:"reference" validate:"required_if=Success true,max=128"`
	FailureReason string `json:"failure_reason"`
}

// Confirm handles POST /v1/holds/:holdId/confirm.
func (h *BookingHandler) Confirm(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req confirmRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err)
	}
	b, err := h.Finalizer.ConfirmOwnedBooking(c.Request().Context(), c.Param("holdId"), userID, model.PaymentResult{
		Success:       req.Success,
		Reference:     req.Reference,
		FailureReason: req.FailureReason,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Checkout handles POST /v1/holds/:holdId/checkout: the service charges
// the caller and confirms in one step.
func (h *BookingHandler) Checkout(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.Finalizer.Checkout(c.Request().Context(), c.Param("holdId"), userID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// List handles GET /v1/bookings.
func (h *BookingHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Finalizer.ListBookings(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// Get handles GET /v1/bookings/:id.  Admins may read any booking.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.Finalizer.GetBooking(requestContext(c), c.Param("id"), userID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Cancel handles DELETE /v1/bookings/:id.  The seats return to the
// inventory and the payment is queued for refund.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.Finalizer.CancelBooking(requestContext(c), c.Param("id"), userID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}
