package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/ledger"
	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
	"github.com/iliyamo/cinema-seat-inventory/internal/model"
	"github.com/iliyamo/cinema-seat-inventory/internal/payment"
	"github.com/iliyamo/cinema-seat-inventory/internal/queue"
	"github.com/iliyamo/cinema-seat-inventory/internal/repository"
	"github.com/iliyamo/cinema-seat-inventory/internal/seatmap"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock    *clock
	ledger   *ledger.Ledger
	holds    *HoldManager
	final    *Finalizer
	sweeper  *Sweeper
	bookings *repository.MemoryBookingRepo
	gateway  *payment.Simulated
	broker   *queue.Memory
}

const showID = "show-1"

func newFixture(t *testing.T, opts ...ledger.Option) *fixture {
	t.Helper()
	log := logger.Discard()
	clk := &clock{now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	l := ledger.New(append([]ledger.Option{ledger.WithClock(clk.Now)}, opts...)...)
	_, err := l.Initialize(context.Background(), model.ShowConfig{
		ShowID:             showID,
		Layout:             seatmap.Layout{Rows: 2, SeatsPerRow: 3},
		MaxSeatsPerBooking: 2,
		BasePriceCents:     1000,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	bookings := repository.NewMemoryBookingRepo()
	gw := payment.NewSimulated("declined-user")
	broker := queue.NewMemory(log)
	NewRefundWorker(gw, bookings, log).Register(broker)

	return &fixture{
		clock:    clk,
		ledger:   l,
		holds:    NewHoldManager(l, DefaultHoldTTL, log),
		final:    NewFinalizer(l, bookings, gw, broker, RoleAdminPolicy{}, log),
		sweeper:  NewSweeper(l, time.Minute, log),
		bookings: bookings,
		gateway:  gw,
		broker:   broker,
	}
}

func (f *fixture) status(t *testing.T, seat string) model.SeatStatus {
	t.Helper()
	snap, err := f.ledger.Snapshot(context.Background(), showID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap[seat].Status
}

// paid captures a real charge for owner on the fixture gateway.
func (f *fixture) paid(t *testing.T, owner string, amount int64) model.PaymentResult {
	t.Helper()
	res, err := f.gateway.Charge(context.Background(), owner, amount)
	if err != nil || !res.Success {
		t.Fatalf("charge %s: (%+v, %v)", owner, res, err)
	}
	return res
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hold1, err := f.holds.RequestHold(ctx, showID, "user1", []string{"A1", "A2"})
	if err != nil {
		t.Fatalf("user1 hold: %v", err)
	}
	if _, err := f.holds.RequestHold(ctx, showID, "user2", []string{"A2", "A3"}); !errors.Is(err, ErrSeatUnavailable) {
		t.Fatalf("user2 contested hold err = %v, want ErrSeatUnavailable", err)
	}
	if got := f.status(t, "A3"); got != model.SeatFree {
		t.Fatalf("A3 = %s, want FREE", got)
	}

	booking, err := f.final.ConfirmBooking(ctx, hold1.ID, f.paid(t, "user1", 2000))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	for _, s := range []string{"A1", "A2"} {
		if got := f.status(t, s); got != model.SeatBooked {
			t.Fatalf("%s = %s, want BOOKED", s, got)
		}
	}
	if _, err := f.holds.RequestHold(ctx, showID, "user2", []string{"A2"}); !errors.Is(err, ErrSeatUnavailable) {
		t.Fatalf("hold on booked seat err = %v, want ErrSeatUnavailable", err)
	}

	if _, err := f.final.CancelBooking(ctx, booking.ID, "user1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	for _, s := range []string{"A1", "A2"} {
		if got := f.status(t, s); got != model.SeatFree {
			t.Fatalf("%s = %s after cancel, want FREE", s, got)
		}
	}
	if _, err := f.holds.RequestHold(ctx, showID, "user2", []string{"A1"}); err != nil {
		t.Fatalf("hold after cancel: %v", err)
	}

	if n := len(f.broker.Messages(queue.BookingConfirmedQueue)); n != 1 {
		t.Fatalf("confirmed events = %d, want 1", n)
	}
	if n := len(f.broker.Messages(queue.BookingCancelledQueue)); n != 1 {
		t.Fatalf("cancelled events = %d, want 1", n)
	}
}

func TestRequestHold_Boundaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name  string
		seats []string
		want  error
	}{
		{name: "no seats", seats: []string{}, want: ErrNoSeats},
		{name: "max plus one", seats: []string{"A1", "A2", "A3"}, want: ErrTooManySeats},
		{name: "invalid seat", seats: []string{"C1"}, want: ErrInvalidSeat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.holds.RequestHold(ctx, showID, "user1", tc.seats); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	h, err := f.holds.RequestHold(ctx, showID, "user1", []string{"B1", "B2", "B1"})
	if err != nil {
		t.Fatalf("hold at max with duplicate: %v", err)
	}
	if len(h.SeatIDs) != 2 {
		t.Fatalf("seats = %v, want 2", h.SeatIDs)
	}
	if !h.ExpiresAt.Equal(f.clock.Now().Add(DefaultHoldTTL)) {
		t.Fatalf("expires at %s, want now+%s", h.ExpiresAt, DefaultHoldTTL)
	}
	if _, err := f.holds.RequestHold(ctx, "missing", "user1", []string{"A1"}); !errors.Is(err, ErrShowNotFound) {
		t.Fatalf("unknown show err = %v, want ErrShowNotFound", err)
	}
}

func TestReleaseHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := f.holds.ReleaseHold(ctx, h.ID, "user2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign release err = %v, want ErrForbidden", err)
	}
	if err := f.holds.ReleaseHold(ctx, h.ID, "user1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := f.holds.ReleaseHold(ctx, h.ID, "user1"); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if err := f.holds.ReleaseHold(ctx, "never-issued", ""); err != nil {
		t.Fatalf("unknown release: %v", err)
	}
	if got := f.status(t, "A1"); got != model.SeatFree {
		t.Fatalf("A1 = %s, want FREE", got)
	}
}

func TestReleaseOwnerHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	_, _ = f.holds.RequestHold(ctx, showID, "user1", []string{"A2", "A3"})
	_, _ = f.holds.RequestHold(ctx, showID, "user2", []string{"B1"})

	n, err := f.holds.ReleaseOwnerHolds(ctx, showID, "user1")
	if err != nil || n != 2 {
		t.Fatalf("release owner holds = (%d, %v), want (2, nil)", n, err)
	}
	c, _ := f.ledger.Counts(ctx, showID)
	if c.Held != 1 || c.Free != 5 {
		t.Fatalf("counts = %+v", c)
	}
}

func TestConfirmBooking_PaymentFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	_, err := f.final.ConfirmBooking(ctx, h.ID, model.PaymentResult{Success: false, FailureReason: "declined"})
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("err = %v, want ErrPaymentFailed", err)
	}
	if got := f.status(t, "A1"); got != model.SeatHeld {
		t.Fatalf("A1 = %s, want HELD", got)
	}
	if n := len(f.broker.Messages(queue.RefundRequestedQueue)); n != 0 {
		t.Fatalf("refund requests = %d, want 0", n)
	}
}

func TestConfirmBooking_ExpiredHoldRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1", "A2"})
	charge, err := f.gateway.Charge(ctx, "user1", 2000)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	f.clock.Advance(DefaultHoldTTL + time.Millisecond)

	_, err = f.final.ConfirmBooking(ctx, h.ID, charge)
	var bf *BookingFailedError
	if !errors.As(err, &bf) || bf.Reason != ReasonHoldExpired {
		t.Fatalf("err = %v, want BookingFailedError(%s)", err, ReasonHoldExpired)
	}
	if !errors.Is(err, ErrBookingFailed) || !errors.Is(err, ErrHoldExpired) {
		t.Fatalf("err = %v does not match ErrBookingFailed and ErrHoldExpired", err)
	}
	c, _ := f.ledger.Counts(ctx, showID)
	if c.Booked != 0 {
		t.Fatalf("booked = %d, want 0", c.Booked)
	}
	if !f.gateway.Refunded(charge.Reference) {
		t.Fatalf("payment %s not refunded", charge.Reference)
	}
}

func TestConfirmBooking_SweptHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"B3"})
	f.clock.Advance(DefaultHoldTTL)
	if n, err := f.sweeper.SweepOnce(ctx); err != nil || n != 1 {
		t.Fatalf("sweep = (%d, %v), want (1, nil)", n, err)
	}
	_, err := f.final.ConfirmBooking(ctx, h.ID, f.paid(t, "user1", 1000))
	var bf *BookingFailedError
	if !errors.As(err, &bf) || bf.Reason != ReasonHoldNotFound {
		t.Fatalf("err = %v, want BookingFailedError(%s)", err, ReasonHoldNotFound)
	}
	if n := len(f.broker.Messages(queue.RefundRequestedQueue)); n != 1 {
		t.Fatalf("refund requests = %d, want 1", n)
	}
}

func TestConfirmBooking_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	if _, err := f.final.ConfirmBooking(ctx, h.ID, f.paid(t, "user1", 1000)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.final.ConfirmBooking(ctx, h.ID, f.paid(t, "user1", 1000)); !errors.Is(err, ErrBookingFailed) {
		t.Fatalf("second confirm err = %v, want ErrBookingFailed", err)
	}
	list, _ := f.final.ListBookings(ctx, "user1")
	if len(list) != 1 {
		t.Fatalf("bookings = %d, want 1", len(list))
	}
}

func TestConfirmOwnedBooking_WrongOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	user2 := f.paid(t, "user2", 1000)
	if _, err := f.final.ConfirmOwnedBooking(ctx, h.ID, "user2", user2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if got := f.status(t, "A1"); got != model.SeatHeld {
		t.Fatalf("A1 = %s, want HELD", got)
	}
	// The stray payment goes back to user2.
	if !f.gateway.Refunded(user2.Reference) {
		t.Fatalf("payment %s not refunded", user2.Reference)
	}
}

func TestConfirmOwnedBooking_SomeoneElsesPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user2", []string{"A1"})
	user1 := f.paid(t, "user1", 1000)
	if _, err := f.final.ConfirmOwnedBooking(ctx, h.ID, "user2", user1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if f.gateway.Refunded(user1.Reference) {
		t.Fatalf("user1's payment was refunded on user2's request")
	}
	if got := f.status(t, "A1"); got != model.SeatHeld {
		t.Fatalf("A1 = %s, want HELD", got)
	}
}

func TestConfirmBooking_UnverifiedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	forged := model.PaymentResult{Success: true, Reference: "made-up", AmountCents: 1000, PayerID: "user1"}
	if _, err := f.final.ConfirmOwnedBooking(ctx, h.ID, "user1", forged); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("err = %v, want ErrPaymentFailed", err)
	}
	if got := f.status(t, "A1"); got != model.SeatHeld {
		t.Fatalf("A1 = %s, want HELD", got)
	}

	// The client's amount is ignored; the gateway's is booked.
	pay := f.paid(t, "user1", 1000)
	pay.AmountCents = 1
	b, err := f.final.ConfirmOwnedBooking(ctx, h.ID, "user1", pay)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if b.AmountCents != 1000 {
		t.Fatalf("amount = %d, want 1000", b.AmountCents)
	}
}

func TestConfirmBooking_ReusedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pay := f.paid(t, "user1", 1000)
	h1, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	if _, err := f.final.ConfirmOwnedBooking(ctx, h1.ID, "user1", pay); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	h2, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A2"})
	if _, err := f.final.ConfirmOwnedBooking(ctx, h2.ID, "user1", pay); !errors.Is(err, ErrPaymentReused) {
		t.Fatalf("reuse err = %v, want ErrPaymentReused", err)
	}
	if got := f.status(t, "A2"); got != model.SeatHeld {
		t.Fatalf("A2 = %s, want HELD", got)
	}
	if f.gateway.Refunded(pay.Reference) {
		t.Fatalf("payment backing a booking was refunded")
	}
}

func TestConfirmBooking_ConcurrentReuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pay := f.paid(t, "user1", 1000)
	holds := make([]string, 0, 6)
	for _, seat := range []string{"A1", "A2", "A3", "B1", "B2", "B3"} {
		h, err := f.holds.RequestHold(ctx, showID, "user1", []string{seat})
		if err != nil {
			t.Fatalf("hold %s: %v", seat, err)
		}
		holds = append(holds, h.ID)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	booked := 0
	for _, id := range holds {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.final.ConfirmOwnedBooking(ctx, id, "user1", pay)
			switch {
			case err == nil:
				mu.Lock()
				booked++
				mu.Unlock()
			case !errors.Is(err, ErrPaymentReused):
				t.Errorf("confirm %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()
	if booked != 1 {
		t.Fatalf("bookings from one payment = %d, want 1", booked)
	}
	c, _ := f.ledger.Counts(ctx, showID)
	if c.Booked != 1 {
		t.Fatalf("booked seats = %d, want 1", c.Booked)
	}
}

func TestConfirmBooking_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1", "A2"})
	short := f.paid(t, "user1", 1000)
	_, err := f.final.ConfirmOwnedBooking(ctx, h.ID, "user1", short)
	if !errors.Is(err, ErrAmountMismatch) || !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("err = %v, want ErrAmountMismatch", err)
	}
	for _, s := range []string{"A1", "A2"} {
		if got := f.status(t, s); got != model.SeatHeld {
			t.Fatalf("%s = %s, want HELD", s, got)
		}
	}
	if !f.gateway.Refunded(short.Reference) {
		t.Fatalf("short payment not refunded")
	}
	if _, err := f.final.ConfirmOwnedBooking(ctx, h.ID, "user1", f.paid(t, "user1", 2000)); err != nil {
		t.Fatalf("confirm with exact amount: %v", err)
	}
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1", "B1"})
	if _, err := f.final.Checkout(ctx, h.ID, "user2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign checkout err = %v, want ErrForbidden", err)
	}
	b, err := f.final.Checkout(ctx, h.ID, "user1")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if b.AmountCents != 2000 || b.PaymentRef == "" || b.Status != model.BookingConfirmed {
		t.Fatalf("booking = %+v", b)
	}
	if _, err := f.final.Checkout(ctx, h.ID, "user1"); !errors.Is(err, ErrHoldNotFound) {
		t.Fatalf("checkout of consumed hold err = %v, want ErrHoldNotFound", err)
	}

	var ev queue.BookingConfirmedEvent
	msgs := f.broker.Messages(queue.BookingConfirmedQueue)
	if len(msgs) != 1 {
		t.Fatalf("confirmed events = %d, want 1", len(msgs))
	}
	if err := json.Unmarshal(msgs[0], &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.BookingID != b.ID || ev.AmountCents != 2000 || len(ev.SeatIDs) != 2 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestCheckout_Declined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "declined-user", []string{"A1"})
	if _, err := f.final.Checkout(ctx, h.ID, "declined-user"); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("err = %v, want ErrPaymentFailed", err)
	}
	if got := f.status(t, "A1"); got != model.SeatHeld {
		t.Fatalf("A1 = %s, want HELD", got)
	}
}

func TestCheckout_ExpiredHoldIsNotCharged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	f.clock.Advance(DefaultHoldTTL)
	if _, err := f.final.Checkout(ctx, h.ID, "user1"); !errors.Is(err, ErrHoldExpired) {
		t.Fatalf("err = %v, want ErrHoldExpired", err)
	}
	if n := len(f.broker.Messages(queue.RefundRequestedQueue)); n != 0 {
		t.Fatalf("refund requests = %d, want 0", n)
	}
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	b, err := f.final.Checkout(ctx, h.ID, "user1")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := f.final.CancelBooking(ctx, b.ID, "user2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign cancel err = %v, want ErrForbidden", err)
	}
	if _, err := f.final.CancelBooking(ctx, "missing", "user1"); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("unknown cancel err = %v, want ErrBookingNotFound", err)
	}

	admin := WithRole(ctx, RoleAdmin)
	got, err := f.final.CancelBooking(admin, b.ID, "admin-1")
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if got.Status != model.BookingCancelled {
		t.Fatalf("status = %s, want CANCELLED", got.Status)
	}
	if _, err := f.final.CancelBooking(ctx, b.ID, "user1"); !errors.Is(err, ErrBookingNotActive) {
		t.Fatalf("second cancel err = %v, want ErrBookingNotActive", err)
	}

	// The refund worker ran synchronously on the in-memory broker.
	stored, _ := f.bookings.GetByID(ctx, b.ID)
	if stored.Status != model.BookingRefunded {
		t.Fatalf("stored status = %s, want REFUNDED", stored.Status)
	}
	if !f.gateway.Refunded(b.PaymentRef) {
		t.Fatalf("payment not refunded")
	}
}

func TestGetBooking_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	b, _ := f.final.ConfirmBooking(ctx, h.ID, f.paid(t, "user1", 1000))
	if _, err := f.final.GetBooking(ctx, b.ID, "user1"); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := f.final.GetBooking(ctx, b.ID, "user2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign get err = %v, want ErrForbidden", err)
	}
	if _, err := f.final.GetBooking(WithRole(ctx, RoleAdmin), b.ID, "root"); err != nil {
		t.Fatalf("admin get: %v", err)
	}
}

type failingBookings struct{ *repository.MemoryBookingRepo }

func (failingBookings) Create(context.Context, *model.Booking) error {
	return errors.New("disk full")
}

func TestConfirmBooking_PersistFailureCompensates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fin := NewFinalizer(f.ledger, failingBookings{f.bookings}, f.gateway, f.broker, nil, logger.Discard())

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	_, err := fin.ConfirmBooking(ctx, h.ID, f.paid(t, "user1", 1000))
	var bf *BookingFailedError
	if !errors.As(err, &bf) || bf.Reason != ReasonPersistFailed {
		t.Fatalf("err = %v, want BookingFailedError(%s)", err, ReasonPersistFailed)
	}
	if got := f.status(t, "A1"); got != model.SeatFree {
		t.Fatalf("A1 = %s, want FREE", got)
	}
	if n := len(f.broker.Messages(queue.RefundRequestedQueue)); n != 1 {
		t.Fatalf("refund requests = %d, want 1", n)
	}
}

func TestSweeper(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	f.clock.Advance(time.Minute)
	_, _ = f.holds.RequestHold(ctx, showID, "user2", []string{"A2"})

	if n, _ := f.sweeper.SweepOnce(ctx); n != 0 {
		t.Fatalf("early sweep released %d", n)
	}
	f.clock.Advance(DefaultHoldTTL - time.Minute)
	if n, err := f.sweeper.SweepOnce(ctx); err != nil || n != 1 {
		t.Fatalf("sweep = (%d, %v), want (1, nil)", n, err)
	}
	if n, _ := f.sweeper.SweepOnce(ctx); n != 0 {
		t.Fatalf("repeat sweep released %d", n)
	}
	if got := f.status(t, "A2"); got != model.SeatHeld {
		t.Fatalf("A2 = %s, want HELD", got)
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	s := NewSweeper(f.ledger, time.Millisecond, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
}

// toggleStore is a ledger.Store whose writes can be switched off.
type toggleStore struct {
	mu   sync.Mutex
	down bool
}

func (s *toggleStore) set(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *toggleStore) Create(context.Context, *ledger.Record) error { return nil }

func (s *toggleStore) Save(context.Context, *ledger.Record, int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errors.New("store offline")
	}
	return nil
}

func (s *toggleStore) LoadAll(context.Context) ([]*ledger.Record, error) { return nil, nil }

func TestCancelBooking_ReleaseFailureKeepsBooking(t *testing.T) {
	store := &toggleStore{}
	f := newFixture(t, ledger.WithStore(store))
	ctx := context.Background()

	h, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	b, err := f.final.Checkout(ctx, h.ID, "user1")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	store.set(true)
	if _, err := f.final.CancelBooking(ctx, b.ID, "user1"); err == nil {
		t.Fatalf("cancel with store offline succeeded")
	}
	stored, _ := f.bookings.GetByID(ctx, b.ID)
	if stored.Status != model.BookingConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", stored.Status)
	}
	if got := f.status(t, "A1"); got != model.SeatBooked {
		t.Fatalf("A1 = %s, want BOOKED", got)
	}
	if f.gateway.Refunded(b.PaymentRef) {
		t.Fatalf("payment refunded while seats are still booked")
	}

	store.set(false)
	if _, err := f.final.CancelBooking(ctx, b.ID, "user1"); err != nil {
		t.Fatalf("retry cancel: %v", err)
	}
	if got := f.status(t, "A1"); got != model.SeatFree {
		t.Fatalf("A1 = %s, want FREE", got)
	}
	if !f.gateway.Refunded(b.PaymentRef) {
		t.Fatalf("payment not refunded after cancel")
	}
}

// flakyRefunds fails the first refunds it is asked for.
type flakyRefunds struct {
	*payment.Simulated
	mu       sync.Mutex
	failures int
}

func (g *flakyRefunds) Refund(ctx context.Context, ref string, amount int64) (model.RefundResult, error) {
	g.mu.Lock()
	if g.failures > 0 {
		g.failures--
		g.mu.Unlock()
		return model.RefundResult{}, errors.New("gateway timeout")
	}
	g.mu.Unlock()
	return g.Simulated.Refund(ctx, ref, amount)
}

func TestRefund_RetriedAfterGatewayFailure(t *testing.T) {
	log := logger.Discard()
	clk := &clock{now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	l := ledger.New(ledger.WithClock(clk.Now))
	if _, err := l.Initialize(context.Background(), model.ShowConfig{
		ShowID: showID, Layout: seatmap.Layout{Rows: 1, SeatsPerRow: 2}, MaxSeatsPerBooking: 2, BasePriceCents: 1000,
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	gw := &flakyRefunds{Simulated: payment.NewSimulated(), failures: 1}
	bookings := repository.NewMemoryBookingRepo()
	broker := queue.NewMemory(log)
	NewRefundWorker(gw, bookings, log).Register(broker)
	holds := NewHoldManager(l, DefaultHoldTTL, log)
	fin := NewFinalizer(l, bookings, gw, broker, nil, log)
	ctx := context.Background()

	h, _ := holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	charge, _ := gw.Charge(ctx, "user1", 1000)
	clk.Advance(DefaultHoldTTL)
	if _, err := fin.ConfirmBooking(ctx, h.ID, charge); !errors.Is(err, ErrBookingFailed) {
		t.Fatalf("err = %v, want ErrBookingFailed", err)
	}
	if gw.Refunded(charge.Reference) {
		t.Fatalf("refunded despite gateway failure")
	}
	if n := broker.Pending(); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	if n := broker.Redeliver(ctx); n != 1 {
		t.Fatalf("redelivered = %d, want 1", n)
	}
	if !gw.Refunded(charge.Reference) {
		t.Fatalf("payment not refunded on redelivery")
	}
	if n := broker.Pending(); n != 0 {
		t.Fatalf("pending after redelivery = %d, want 0", n)
	}
}

func TestSweeper_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seats := []string{"A1", "A2", "A3", "B1", "B2", "B3"}
	for i, seat := range seats {
		owner := "user" + string(rune('1'+i))
		if _, err := f.holds.RequestHold(ctx, showID, owner, []string{seat}); err != nil {
			t.Fatalf("hold %s: %v", seat, err)
		}
	}
	f.clock.Advance(DefaultHoldTTL)

	const sweepers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < sweepers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := f.sweeper.SweepOnce(ctx)
			if err != nil {
				t.Errorf("sweep: %v", err)
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != len(seats) {
		t.Fatalf("released = %d, want %d", total, len(seats))
	}
	for _, s := range seats {
		if got := f.status(t, s); got != model.SeatFree {
			t.Fatalf("%s = %s, want FREE", s, got)
		}
	}
	if refs := f.ledger.ExpiredHolds(f.clock.Now()); len(refs) != 0 {
		t.Fatalf("expired holds left = %d", len(refs))
	}
}

func TestRefund_SkippedOncePaymentBacksABooking(t *testing.T) {
	f := newFixture(t)
	gw := &flakyRefunds{Simulated: f.gateway, failures: 1}
	log := logger.Discard()
	broker := queue.NewMemory(log)
	NewRefundWorker(gw, f.bookings, log).Register(broker)
	fin := NewFinalizer(f.ledger, f.bookings, gw, broker, nil, log)
	ctx := context.Background()

	h1, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A1"})
	pay := f.paid(t, "user1", 1000)
	f.clock.Advance(DefaultHoldTTL)
	if _, err := fin.ConfirmBooking(ctx, h1.ID, pay); !errors.Is(err, ErrBookingFailed) {
		t.Fatalf("err = %v, want ErrBookingFailed", err)
	}

	h2, _ := f.holds.RequestHold(ctx, showID, "user1", []string{"A2"})
	b, err := fin.ConfirmOwnedBooking(ctx, h2.ID, "user1", pay)
	if err != nil {
		t.Fatalf("confirm with unrefunded payment: %v", err)
	}
	broker.Redeliver(ctx)
	if gw.Refunded(pay.Reference) {
		t.Fatalf("payment backing booking %s was refunded", b.ID)
	}
	if n := broker.Pending(); n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}
}
