package model

import "time"

// Hold is a time-boxed claim on a set of seats of one show by one owner.
// It ends by explicit release, by expiry, or by promotion into a Booking.
// A hold whose ExpiresAt has passed is invalid even if nothing has swept
// it yet.
type Hold struct {
	ID        string    `json:"hold_id"`
	ShowID    string    `json:"show_id"`
	OwnerID   string    `json:"owner_id"`
	SeatIDs   []string  `json:"seat_ids"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the hold is no longer a valid claim at now.
func (h Hold) ExpiredAt(now time.Time) bool { return !now.Before(h.ExpiresAt) }

// HoldRef identifies a hold across shows.
type HoldRef struct {
	ShowID    string
	HoldID    string
	ExpiresAt time.Time
}
