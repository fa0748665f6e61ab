package model

import "time"

// BookingStatus is CONFIRMED, CANCELLED or REFUNDED.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingRefunded  BookingStatus = "REFUNDED"
)

// Booking is a payment-backed claim on seats, created only by promoting a
// valid hold after a successful payment.
//
// Fields:
//  ID          – booking identifier, also stamped on the BOOKED seats.
//  ShowID      – show the seats belong to.
//  OwnerID     – user who paid.
//  HoldID      – hold the booking was promoted from.
//  SeatIDs     – seats covered by the booking.
//  AmountCents – amount captured by the payment collaborator.
//  PaymentRef  – external payment reference.
//  Status      – lifecycle state.
type Booking struct {
	ID          string        `json:"booking_id"`
	ShowID      string        `json:"show_id"`
	OwnerID     string        `json:"owner_id"`
	HoldID      string        `json:"hold_id"`
	SeatIDs     []string      `json:"seat_ids"`
	AmountCents int64         `json:"amount_cents"`
	PaymentRef  string        `json:"payment_ref,omitempty"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
