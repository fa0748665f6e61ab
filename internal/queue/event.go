// Package queue defines the messages exchanged over the broker and the
// publisher/consumer plumbing around RabbitMQ.
package queue

// Queue names.  Each queue is durable and addressed through the default
// exchange, so the routing key equals the queue name.
const (
	BookingConfirmedQueue = "booking.confirmed"
	BookingCancelledQueue = "booking.cancelled"
	RefundRequestedQueue  = "booking.refund"
)

// BookingConfirmedEvent is published once a hold has been promoted into a
// confirmed booking.  It carries enough for downstream consumers to log or
// notify without querying the inventory service.
type BookingConfirmedEvent struct {
	BookingID   string   `json:"booking_id"`
	HoldID      string   `json:"hold_id"`
	ShowID      string   `json:"show_id"`
	OwnerID     string   `json:"owner_id"`
	SeatIDs     []string `json:"seats"`
	AmountCents int64    `json:"amount_cents"`
	PaymentRef  string   `json:"payment_ref,omitempty"`
	ConfirmedAt string   `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a confirmed booking is cancelled
// and its seats returned to the inventory.
type BookingCancelledEvent struct {
	BookingID   string   `json:"booking_id"`
	ShowID      string   `json:"show_id"`
	OwnerID     string   `json:"owner_id"`
	SeatIDs     []string `json:"seats"`
	CancelledBy string   `json:"cancelled_by"`
	CancelledAt string   `json:"cancelled_at"`
}

// RefundRequestedEvent asks the refund worker to return a captured payment.
// BookingID is empty when the payment never turned into a booking (the
// hold lapsed before finalization).
type RefundRequestedEvent struct {
	BookingID   string `json:"booking_id,omitempty"`
	HoldID      string `json:"hold_id"`
	ShowID      string `json:"show_id"`
	OwnerID     string `json:"owner_id"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
	RequestedAt string `json:"requested_at"`
}
