package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-seat-inventory/internal/ledger"
	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
	"github.com/iliyamo/cinema-seat-inventory/internal/model"
	"github.com/iliyamo/cinema-seat-inventory/internal/queue"
	"github.com/iliyamo/cinema-seat-inventory/internal/repository"
)

// Finalizer turns paid holds into bookings and handles cancellations.
// Payment is always captured before the ledger is touched and never while
// a ledger lock is held.
type Finalizer struct {
	ledger   *ledger.Ledger
	bookings BookingStore
	payments PaymentGateway
	events   queue.Publisher
	admins   AdminPolicy
	log      *logger.Logger
	newID    func() string

	// claims holds the payment references being confirmed in this process.
	claims sync.Map
}

func NewFinalizer(l *ledger.Ledger, bookings BookingStore, payments PaymentGateway, events queue.Publisher, admins AdminPolicy, log *logger.Logger) *Finalizer {
	if admins == nil {
		admins = RoleAdminPolicy{}
	}
	return &Finalizer{
		ledger:   l,
		bookings: bookings,
		payments: payments,
		events:   events,
		admins:   admins,
		log:      log,
		newID:    uuid.NewString,
	}
}

// ConfirmBooking promotes holdID into a booking backed by pay.  Only
// pay.Reference is taken from the caller: the payer and amount come from
// the gateway's Verify.  A payment that did not succeed fails with
// ErrPaymentFailed and changes nothing.  A reference that already backs a
// booking fails with ErrPaymentReused.  A captured payment whose hold has
// lapsed fails with a *BookingFailedError and is queued for refund, as is
// one whose amount is not the price of the held seats (ErrAmountMismatch).
func (f *Finalizer) ConfirmBooking(ctx context.Context, holdID string, pay model.PaymentResult) (*model.Booking, error) {
	return f.confirm(ctx, holdID, "", pay)
}

// ConfirmOwnedBooking is ConfirmBooking for a caller who must own the hold.
func (f *Finalizer) ConfirmOwnedBooking(ctx context.Context, holdID, ownerID string, pay model.PaymentResult) (*model.Booking, error) {
	return f.confirm(ctx, holdID, ownerID, pay)
}

// Checkout charges the hold's owner len(seats) × the show's base price
// and confirms the booking with the result.  The charge happens exactly
// once per call.
func (f *Finalizer) Checkout(ctx context.Context, holdID, ownerID string) (*model.Booking, error) {
	hold, err := f.ledger.Hold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	info, err := f.ledger.Show(ctx, hold.ShowID)
	if err != nil {
		return nil, err
	}
	amount := int64(len(hold.SeatIDs)) * info.BasePriceCents

	pay, err := f.payments.Charge(ctx, ownerID, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	return f.confirm(ctx, holdID, ownerID, pay)
}

func (f *Finalizer) confirm(ctx context.Context, holdID, ownerID string, pay model.PaymentResult) (*model.Booking, error) {
	if !pay.Success {
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, pay.FailureReason)
	}
	// Only what the gateway recorded is trusted from here on.
	pay, err := f.payments.Verify(ctx, pay.Reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	if !pay.Success {
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, pay.FailureReason)
	}
	if ownerID != "" && pay.PayerID != ownerID {
		return nil, ErrForbidden
	}

	if _, busy := f.claims.LoadOrStore(pay.Reference, holdID); busy {
		return nil, fmt.Errorf("%w: %s", ErrPaymentReused, pay.Reference)
	}
	defer f.claims.Delete(pay.Reference)
	switch _, err := f.bookings.GetByPaymentRef(ctx, pay.Reference); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrPaymentReused, pay.Reference)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	hold, err := f.ledger.Hold(ctx, holdID)
	if err != nil {
		return nil, f.fail(ctx, hold, holdID, pay.PayerID, pay, err)
	}
	if hold.OwnerID != pay.PayerID {
		f.requestRefund(ctx, queue.RefundRequestedEvent{
			HoldID: holdID, ShowID: hold.ShowID, OwnerID: pay.PayerID,
			PaymentRef: pay.Reference, AmountCents: pay.AmountCents, Reason: ReasonNotHoldOwner,
		})
		return nil, ErrForbidden
	}
	info, err := f.ledger.Show(ctx, hold.ShowID)
	if err != nil {
		return nil, f.fail(ctx, hold, holdID, hold.OwnerID, pay, err)
	}
	if want := int64(len(hold.SeatIDs)) * info.BasePriceCents; pay.AmountCents != want {
		f.log.Warn("payment amount does not match seat price", "hold_id", holdID, "payment_ref", pay.Reference,
			"amount_cents", pay.AmountCents, "want_cents", want)
		f.requestRefund(ctx, queue.RefundRequestedEvent{
			HoldID: holdID, ShowID: hold.ShowID, OwnerID: hold.OwnerID,
			PaymentRef: pay.Reference, AmountCents: pay.AmountCents, Reason: ReasonAmountMismatch,
		})
		return nil, fmt.Errorf("%w: paid %d, want %d", ErrAmountMismatch, pay.AmountCents, want)
	}

	bookingID := f.newID()
	promoted, err := f.ledger.PromoteHold(ctx, hold.ShowID, holdID, bookingID)
	if err != nil {
		return nil, f.fail(ctx, hold, holdID, hold.OwnerID, pay, err)
	}

	now := f.ledger.Now()
	b := &model.Booking{
		ID:          bookingID,
		ShowID:      promoted.ShowID,
		OwnerID:     promoted.OwnerID,
		HoldID:      holdID,
		SeatIDs:     promoted.SeatIDs,
		AmountCents: pay.AmountCents,
		PaymentRef:  pay.Reference,
		Status:      model.BookingConfirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.bookings.Create(ctx, b); err != nil {
		f.log.Error("persist booking failed, releasing seats", "booking_id", bookingID, "hold_id", holdID, "error", err)
		if _, rerr := f.ledger.ReleaseBooking(ctx, b.ShowID, bookingID); rerr != nil {
			f.log.Error("release of unpersisted booking failed", "booking_id", bookingID, "error", rerr)
		}
		if errors.Is(err, repository.ErrDuplicatePayment) {
			// Another process booked with this reference; it owns the money.
			return nil, fmt.Errorf("%w: %s", ErrPaymentReused, pay.Reference)
		}
		f.requestRefund(ctx, queue.RefundRequestedEvent{
			HoldID: holdID, ShowID: b.ShowID, OwnerID: b.OwnerID,
			PaymentRef: pay.Reference, AmountCents: pay.AmountCents, Reason: ReasonPersistFailed,
		})
		return nil, &BookingFailedError{HoldID: holdID, Reason: ReasonPersistFailed, Err: err}
	}

	f.log.Info("booking confirmed", "booking_id", b.ID, "show_id", b.ShowID, "hold_id", holdID,
		"owner_id", b.OwnerID, "seats", len(b.SeatIDs), "amount_cents", b.AmountCents)
	f.publish(ctx, queue.BookingConfirmedQueue, queue.BookingConfirmedEvent{
		BookingID:   b.ID,
		HoldID:      holdID,
		ShowID:      b.ShowID,
		OwnerID:     b.OwnerID,
		SeatIDs:     b.SeatIDs,
		AmountCents: b.AmountCents,
		PaymentRef:  b.PaymentRef,
		ConfirmedAt: now.Format(time.RFC3339),
	})
	return b, nil
}

// fail queues the refund for a captured payment that could not become a
// booking and builds the error for the caller.
func (f *Finalizer) fail(ctx context.Context, hold model.Hold, holdID, ownerID string, pay model.PaymentResult, cause error) error {
	reason := ReasonLedgerError
	switch {
	case errors.Is(cause, ErrHoldExpired):
		reason = ReasonHoldExpired
	case errors.Is(cause, ErrHoldNotFound):
		reason = ReasonHoldNotFound
	}
	if ownerID == "" {
		ownerID = hold.OwnerID
	}
	f.log.Warn("booking failed after payment", "hold_id", holdID, "show_id", hold.ShowID, "reason", reason, "error", cause)
	f.requestRefund(ctx, queue.RefundRequestedEvent{
		HoldID: holdID, ShowID: hold.ShowID, OwnerID: ownerID,
		PaymentRef: pay.Reference, AmountCents: pay.AmountCents, Reason: reason,
	})
	return &BookingFailedError{HoldID: holdID, Reason: reason, Err: cause}
}

// CancelBooking cancels a confirmed booking, frees its seats and queues
// the refund.  Only the booking owner or an administrator may cancel.
func (f *Finalizer) CancelBooking(ctx context.Context, bookingID, actorID string) (*model.Booking, error) {
	b, err := f.GetBooking(ctx, bookingID, actorID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingConfirmed {
		return nil, fmt.Errorf("%w: %s is %s", ErrBookingNotActive, bookingID, b.Status)
	}

	now := f.ledger.Now()
	if err := f.bookings.UpdateStatus(ctx, bookingID, model.BookingConfirmed, model.BookingCancelled, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrBookingNotActive, bookingID)
		}
		return nil, err
	}
	b.Status = model.BookingCancelled
	b.UpdatedAt = now

	freed, err := f.ledger.ReleaseBooking(ctx, b.ShowID, b.ID)
	if err != nil {
		f.log.Error("release of cancelled booking failed, restoring booking", "booking_id", b.ID, "show_id", b.ShowID, "error", err)
		// The seats are still BOOKED, so the booking must stay CONFIRMED.
		if rerr := f.bookings.UpdateStatus(ctx, b.ID, model.BookingCancelled, model.BookingConfirmed, f.ledger.Now()); rerr != nil {
			f.log.Error("restore of booking status failed", "booking_id", b.ID, "error", rerr)
		}
		return nil, fmt.Errorf("release seats of booking %s: %w", b.ID, err)
	}
	f.log.Info("booking cancelled", "booking_id", b.ID, "show_id", b.ShowID, "actor_id", actorID, "seats_freed", freed)

	f.publish(ctx, queue.BookingCancelledQueue, queue.BookingCancelledEvent{
		BookingID:   b.ID,
		ShowID:      b.ShowID,
		OwnerID:     b.OwnerID,
		SeatIDs:     b.SeatIDs,
		CancelledBy: actorID,
		CancelledAt: now.Format(time.RFC3339),
	})
	f.requestRefund(ctx, queue.RefundRequestedEvent{
		BookingID: b.ID, HoldID: b.HoldID, ShowID: b.ShowID, OwnerID: b.OwnerID,
		PaymentRef: b.PaymentRef, AmountCents: b.AmountCents, Reason: "CANCELLED",
	})
	return b, nil
}

// GetBooking returns a booking visible to actorID.
func (f *Finalizer) GetBooking(ctx context.Context, bookingID, actorID string) (*model.Booking, error) {
	b, err := f.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, bookingID)
		}
		return nil, err
	}
	if b.OwnerID != actorID && !f.admins.IsAdmin(ctx, actorID) {
		return nil, ErrForbidden
	}
	return b, nil
}

// ListBookings returns ownerID's bookings, newest first.
func (f *Finalizer) ListBookings(ctx context.Context, ownerID string) ([]model.Booking, error) {
	return f.bookings.ListByOwner(ctx, ownerID)
}

func (f *Finalizer) requestRefund(ctx context.Context, ev queue.RefundRequestedEvent) {
	if ev.PaymentRef == "" {
		f.log.Warn("refund requested without payment reference", "hold_id", ev.HoldID, "reason", ev.Reason)
	}
	ev.RequestedAt = f.ledger.Now().Format(time.RFC3339)
	f.publish(ctx, queue.RefundRequestedQueue, ev)
}

// publish never fails the caller; the booking state is already final.
func (f *Finalizer) publish(ctx context.Context, queueName string, msg any) {
	if f.events == nil {
		return
	}
	if err := f.events.Publish(ctx, queueName, msg); err != nil {
		f.log.Error("publish event failed", "queue", queueName, "error", err)
	}
}
