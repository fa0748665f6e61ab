package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrShowNotFound is returned for a show without an initialised inventory.
	ErrShowNotFound = errors.New("show inventory not found")
	// ErrAlreadyExists is returned when a show inventory is initialised twice.
	ErrAlreadyExists = errors.New("show inventory already exists")
	// ErrInvalidConfig wraps geometry or limit problems in a show configuration.
	ErrInvalidConfig = errors.New("invalid show configuration")

	// ErrNoSeats is returned when a hold names no seats at all.
	ErrNoSeats = errors.New("at least one seat must be requested")
	// ErrInvalidSeat is returned for a seat outside the show's screen layout.
	ErrInvalidSeat = errors.New("invalid seat")
	// ErrTooManySeats is returned when a hold exceeds the show's per-booking cap.
	ErrTooManySeats = errors.New("too many seats requested")
	// ErrSeatUnavailable is returned when a requested seat is not free.
	ErrSeatUnavailable = errors.New("seat unavailable")

	// ErrHoldNotFound is returned when a hold does not exist (never granted,
	// released, swept or already promoted).
	ErrHoldNotFound = errors.New("hold not found")
	// ErrHoldExpired is returned when a hold exists but its TTL has passed.
	ErrHoldExpired = errors.New("hold expired")
	// ErrDuplicateHold is returned when a hold ID is reused.
	ErrDuplicateHold = errors.New("hold id already in use")

	// ErrVersionConflict is returned by a Store when the persisted inventory
	// moved past the version the ledger based its write on.
	ErrVersionConflict = errors.New("inventory version conflict")
)

// UnavailableError lists the seats that blocked a hold.  It matches
// ErrSeatUnavailable with errors.Is.
type UnavailableError struct {
	ShowID  string
	SeatIDs []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: show %s seats [%s]", ErrSeatUnavailable, e.ShowID, strings.Join(e.SeatIDs, ","))
}

func (e *UnavailableError) Is(target error) bool { return target == ErrSeatUnavailable }
