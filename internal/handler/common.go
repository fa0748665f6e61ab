package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-inventory/internal/ledger"
	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
	"github.com/iliyamo/cinema-seat-inventory/internal/middleware"
	"github.com/iliyamo/cinema-seat-inventory/internal/service"
)

var errUnauthenticated = errors.New("unauthenticated")

// getUserID returns the JWT subject stored by middleware.JWTAuth.
func getUserID(c echo.Context) (string, error) {
	id := middleware.UserID(c)
	if id == "" {
		return "", errUnauthenticated
	}
	return id, nil
}

// requestContext carries the caller's role down to the service layer.
func requestContext(c echo.Context) context.Context {
	return service.WithRole(c.Request().Context(), middleware.Role(c))
}

func badRequest(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+" failed "+fe.Tag())
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body", "fields": fields})
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
}

// respondError maps domain errors onto HTTP responses.  Anything not
// recognised is logged and reported as 500.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	var (
		unavailable *ledger.UnavailableError
		failed      *service.BookingFailedError
	)
	switch {
	case errors.As(err, &unavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seats unavailable", "unavailable": unavailable.SeatIDs})
	case errors.As(err, &failed):
		if failed.Reason == service.ReasonHoldExpired || failed.Reason == service.ReasonHoldNotFound {
			return c.JSON(http.StatusConflict, echo.Map{"error": "seats no longer available, payment will be refunded", "reason": failed.Reason})
		}
		log.Error("booking failed", "hold_id", failed.HoldID, "reason", failed.Reason, "error", failed.Err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "booking could not be completed, payment will be refunded", "reason": failed.Reason})
	case errors.Is(err, ledger.ErrNoSeats), errors.Is(err, ledger.ErrInvalidSeat), errors.Is(err, ledger.ErrTooManySeats):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, ledger.ErrShowNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
	case errors.Is(err, ledger.ErrHoldNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "hold not found"})
	case errors.Is(err, ledger.ErrHoldExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "hold expired"})
	case errors.Is(err, service.ErrPaymentReused):
		return c.JSON(http.StatusConflict, echo.Map{"error": "payment reference already used"})
	case errors.Is(err, service.ErrAmountMismatch):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": err.Error(), "refund": "requested"})
	case errors.Is(err, service.ErrPaymentFailed):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, service.ErrBookingNotActive):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking is not active"})
	case errors.Is(err, ledger.ErrAlreadyExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "inventory already exists"})
	case errors.Is(err, ledger.ErrInvalidConfig):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	case errors.Is(err, ledger.ErrVersionConflict):
		log.Warn("inventory version conflict", "error", err)
		return c.JSON(http.StatusConflict, echo.Map{"error": "inventory changed concurrently, retry"})
	default:
		log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
