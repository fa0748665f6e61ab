package model

import "github.com/iliyamo/cinema-seat-inventory/internal/seatmap"

// ShowConfig is what the show configuration collaborator hands over when a
// show is created.  Every field is immutable for the lifetime of the
// show's inventory.
//
// Fields:
//  ShowID             – identity of the scheduled show.
//  Layout             – rows × seats-per-row of the screen.
//  MaxSeatsPerBooking – cap on seats a single hold may claim.
//  BasePriceCents     – flat price per seat charged at checkout.
type ShowConfig struct {
	ShowID             string         `json:"show_id"`
	Layout             seatmap.Layout `json:"layout"`
	MaxSeatsPerBooking int            `json:"max_seats_per_booking"`
	BasePriceCents     int64          `json:"base_price_cents"`
}

// DefaultMaxSeatsPerBooking applies when the show configuration leaves the
// cap unset.
const DefaultMaxSeatsPerBooking = 10

// ShowInfo is the read-only description of an initialised inventory.
type ShowInfo struct {
	ShowConfig
	TotalSeats int `json:"total_seats"`
}
