package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
	"github.com/iliyamo/cinema-seat-inventory/internal/model"
	"github.com/iliyamo/cinema-seat-inventory/internal/queue"
	"github.com/iliyamo/cinema-seat-inventory/internal/repository"
)

// RefundWorker consumes refund requests, returns the money through the
// payment gateway and marks cancelled bookings REFUNDED.
type RefundWorker struct {
	payments PaymentGateway
	bookings BookingStore
	log      *logger.Logger
	now      func() time.Time
}

func NewRefundWorker(payments PaymentGateway, bookings BookingStore, log *logger.Logger) *RefundWorker {
	return &RefundWorker{payments: payments, bookings: bookings, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Register subscribes the worker to the refund queue.
func (w *RefundWorker) Register(s queue.Subscriber) {
	s.Handle(queue.RefundRequestedQueue, w.Handle)
}

// Handle processes one RefundRequestedEvent body.
func (w *RefundWorker) Handle(ctx context.Context, body []byte) error {
	var ev queue.RefundRequestedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal refund request: %w", err)
	}
	if ev.PaymentRef == "" {
		return fmt.Errorf("refund request for hold %s has no payment reference", ev.HoldID)
	}
	if ev.BookingID == "" {
		// A request for a failed confirmation is void once the same payment
		// went on to back a booking.
		b, err := w.bookings.GetByPaymentRef(ctx, ev.PaymentRef)
		switch {
		case err == nil && b.Status == model.BookingConfirmed:
			w.log.Warn("refund skipped, payment backs a booking", "payment_ref", ev.PaymentRef,
				"booking_id", b.ID, "hold_id", ev.HoldID, "reason", ev.Reason)
			return nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("look up payment %s: %w", ev.PaymentRef, err)
		}
	}
	res, err := w.payments.Refund(ctx, ev.PaymentRef, ev.AmountCents)
	if err != nil {
		return fmt.Errorf("refund %s: %w", ev.PaymentRef, err)
	}
	w.log.Info("payment refunded", "payment_ref", ev.PaymentRef, "refund_ref", res.Reference,
		"booking_id", ev.BookingID, "hold_id", ev.HoldID, "amount_cents", ev.AmountCents, "reason", ev.Reason)

	if ev.BookingID == "" {
		return nil
	}
	err = w.bookings.UpdateStatus(ctx, ev.BookingID, model.BookingCancelled, model.BookingRefunded, w.now())
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrConflict) {
		// Never persisted, or already refunded by an earlier delivery.
		return nil
	}
	return err
}
