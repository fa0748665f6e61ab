package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-seat-inventory/internal/ledger"
)

// Ledger errors surface unchanged through the service layer so callers
// only need to import one package.
var (
	ErrShowNotFound    = ledger.ErrShowNotFound
	ErrNoSeats         = ledger.ErrNoSeats
	ErrInvalidSeat     = ledger.ErrInvalidSeat
	ErrTooManySeats    = ledger.ErrTooManySeats
	ErrSeatUnavailable = ledger.ErrSeatUnavailable
	ErrHoldNotFound    = ledger.ErrHoldNotFound
	ErrHoldExpired     = ledger.ErrHoldExpired
)

var (
	// ErrPaymentFailed is returned when the payment collaborator did not
	// capture the charge.  Nothing in the inventory changes.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrForbidden is returned when the caller does not own the hold or
	// booking and is not an administrator.
	ErrForbidden = errors.New("forbidden")
	// ErrBookingNotFound is returned for an unknown booking ID.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrBookingNotActive is returned when cancelling a booking that is not
	// CONFIRMED.
	ErrBookingNotActive = errors.New("booking is not active")
	// ErrBookingFailed matches every *BookingFailedError.
	ErrBookingFailed = errors.New("booking failed")
	// ErrPaymentReused is returned when a payment reference already backs
	// a booking or is being confirmed by another request.
	ErrPaymentReused = errors.New("payment reference already used")
	// ErrAmountMismatch is returned when the captured amount is not the
	// price of the held seats.  The payment is refunded.
	ErrAmountMismatch = fmt.Errorf("%w: amount does not match seat price", ErrPaymentFailed)
)

// Reasons carried by BookingFailedError.
const (
	ReasonHoldExpired    = "HOLD_EXPIRED"
	ReasonHoldNotFound   = "HOLD_NOT_FOUND"
	ReasonNotHoldOwner   = "NOT_HOLD_OWNER"
	ReasonLedgerError    = "LEDGER_ERROR"
	ReasonPersistFailed  = "PERSIST_FAILED"
	ReasonAmountMismatch = "AMOUNT_MISMATCH"
)

// BookingFailedError reports a payment that was captured but could not be
// turned into a booking.  A refund has been requested for it.
type BookingFailedError struct {
	HoldID string
	Reason string
	Err    error
}

func (e *BookingFailedError) Error() string {
	return fmt.Sprintf("%s: hold %s: %s: %v", ErrBookingFailed, e.HoldID, e.Reason, e.Err)
}

func (e *BookingFailedError) Is(target error) bool { return target == ErrBookingFailed }

func (e *BookingFailedError) Unwrap() error { return e.Err }
