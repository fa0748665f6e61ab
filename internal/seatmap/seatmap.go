// Package seatmap translates a screen's rows × seats-per-row geometry into
// canonical seat identifiers such as "A1" or "C6".  Everything here is pure:
// no state, no I/O.
package seatmap

import (
	"errors"
	"fmt"
	"strconv"
)

// MaxRows is the number of row letters available (A..Z).
const MaxRows = 26

// MaxSeatsPerRow bounds the width of a row.
const MaxSeatsPerRow = 500

// ErrInvalidLayout is returned for screen geometry that cannot produce
// seat identifiers.  Callers treat it as a configuration error.
var ErrInvalidLayout = errors.New("invalid screen layout")

// ErrInvalidSeatID is returned by ParseSeatID for malformed identifiers.
var ErrInvalidSeatID = errors.New("invalid seat id")

// Layout describes a rectangular screen.
type Layout struct {
	Rows        int `json:"rows"`
	SeatsPerRow int `json:"seats_per_row"`
}

// Validate reports whether the layout can be turned into seat identifiers.
func (l Layout) Validate() error {
	if l.Rows <= 0 || l.SeatsPerRow <= 0 {
		return fmt.Errorf("%w: rows=%d seats_per_row=%d must be positive", ErrInvalidLayout, l.Rows, l.SeatsPerRow)
	}
	if l.Rows > MaxRows {
		return fmt.Errorf("%w: rows=%d exceeds %d row letters", ErrInvalidLayout, l.Rows, MaxRows)
	}
	if l.SeatsPerRow > MaxSeatsPerRow {
		return fmt.Errorf("%w: seats_per_row=%d exceeds %d", ErrInvalidLayout, l.SeatsPerRow, MaxSeatsPerRow)
	}
	return nil
}

// Total is the number of seats on the screen.
func (l Layout) Total() int { return l.Rows * l.SeatsPerRow }

// SeatIDs is GenerateSeatIDs bound to the layout.
func (l Layout) SeatIDs() ([]string, error) { return GenerateSeatIDs(l.Rows, l.SeatsPerRow) }

// Contains is IsValidSeat bound to the layout.
func (l Layout) Contains(seatID string) bool { return IsValidSeat(seatID, l.Rows, l.SeatsPerRow) }

// GenerateSeatIDs returns every seat identifier in row-major order:
// A1..A{n}, B1..B{n}, ...
func GenerateSeatIDs(rows, seatsPerRow int) ([]string, error) {
	if err := (Layout{Rows: rows, SeatsPerRow: seatsPerRow}).Validate(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, rows*seatsPerRow)
	for r := 0; r < rows; r++ {
		label := RowLabel(r)
		for col := 1; col <= seatsPerRow; col++ {
			ids = append(ids, label+strconv.Itoa(col))
		}
	}
	return ids, nil
}

// IsValidSeat reports whether seatID names a seat inside the given geometry.
func IsValidSeat(seatID string, rows, seatsPerRow int) bool {
	row, col, err := ParseSeatID(seatID)
	if err != nil {
		return false
	}
	return row < rows && row < MaxRows && col <= seatsPerRow
}

// RowLabel converts a zero-based row index to its letter.  It returns ""
// outside A..Z.
func RowLabel(i int) string {
	if i < 0 || i >= MaxRows {
		return ""
	}
	return string(rune('A' + i))
}

// ParseSeatID splits "C6" into a zero-based row index (2) and a 1-based
// column (6).  Only the canonical form is accepted: one upper-case letter
// followed by a positive decimal without leading zeros.
func ParseSeatID(seatID string) (row, col int, err error) {
	if len(seatID) < 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSeatID, seatID)
	}
	letter := seatID[0]
	if letter < 'A' || letter > 'Z' {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSeatID, seatID)
	}
	digits := seatID[1:]
	if digits[0] == '0' {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSeatID, seatID)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSeatID, seatID)
		}
	}
	n, convErr := strconv.Atoi(digits)
	if convErr != nil || n <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSeatID, seatID)
	}
	return int(letter - 'A'), n, nil
}
