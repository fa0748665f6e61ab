package model

import "time"

// SeatStatus is one of FREE, HELD or BOOKED.
type SeatStatus string

const (
	SeatFree   SeatStatus = "FREE"
	SeatHeld   SeatStatus = "HELD"
	SeatBooked SeatStatus = "BOOKED"
)

// SeatState is the state of one seat of one show.  HoldID and ExpiresAt
// are set only for HELD seats, BookingID only for BOOKED seats.
type SeatState struct {
	Status    SeatStatus `json:"status"`
	HoldID    string     `json:"hold_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	BookingID string     `json:"booking_id,omitempty"`
}

// Free returns the FREE state.
func Free() SeatState { return SeatState{Status: SeatFree} }

// HeldBy returns a HELD state for the given hold.
func HeldBy(holdID string, expiresAt time.Time) SeatState {
	exp := expiresAt
	return SeatState{Status: SeatHeld, HoldID: holdID, ExpiresAt: &exp}
}

// BookedBy returns a BOOKED state for the given booking.
func BookedBy(bookingID string) SeatState {
	return SeatState{Status: SeatBooked, BookingID: bookingID}
}

// SeatCounts tallies seat states of a show at one instant.
type SeatCounts struct {
	Total  int `json:"total"`
	Free   int `json:"free"`
	Held   int `json:"held"`
	Booked int `json:"booked"`
}
