package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// BookingLog appends one human friendly line per booking event to
// <dir>/booking.log.
type BookingLog struct {
	dir string
	mu  sync.Mutex
}

func NewBookingLog(dir string) *BookingLog { return &BookingLog{dir: dir} }

// Register wires the log to the booking queues of s.
func (b *BookingLog) Register(s Subscriber) {
	s.Handle(BookingConfirmedQueue, b.HandleConfirmed)
	s.Handle(BookingCancelledQueue, b.HandleCancelled)
}

func (b *BookingLog) HandleConfirmed(_ context.Context, body []byte) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return b.write(fmt.Sprintf("[%s] Booking confirmed | booking_id=%s | owner_id=%s | show_id=%s | hold_id=%s | total=%d cents | seats=%s\n",
		ev.ConfirmedAt, ev.BookingID, ev.OwnerID, ev.ShowID, ev.HoldID, ev.AmountCents, seatList(ev.SeatIDs)))
}

func (b *BookingLog) HandleCancelled(_ context.Context, body []byte) error {
	var ev BookingCancelledEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return b.write(fmt.Sprintf("[%s] Booking cancelled | booking_id=%s | owner_id=%s | show_id=%s | by=%s | seats=%s\n",
		ev.CancelledAt, ev.BookingID, ev.OwnerID, ev.ShowID, ev.CancelledBy, seatList(ev.SeatIDs)))
}

func (b *BookingLog) write(line string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(b.dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func seatList(seats []string) string {
	return "[" + strings.Join(seats, ",") + "]"
}
