package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/model"
)

// MemoryBookingRepo keeps bookings in process memory with the same
// semantics as BookingRepo.  It is used when no database is configured.
type MemoryBookingRepo struct {
	mu       sync.RWMutex
	bookings map[string]model.Booking
}

func NewMemoryBookingRepo() *MemoryBookingRepo {
	return &MemoryBookingRepo{bookings: make(map[string]model.Booking)}
}

func (r *MemoryBookingRepo) Create(_ context.Context, b *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[b.ID]; ok {
		return fmt.Errorf("%w: booking %s exists", ErrConflict, b.ID)
	}
	for _, other := range r.bookings {
		if other.PaymentRef == b.PaymentRef {
			return fmt.Errorf("%w: %s", ErrDuplicatePayment, b.PaymentRef)
		}
	}
	cp := *b
	cp.SeatIDs = append([]string(nil), b.SeatIDs...)
	r.bookings[b.ID] = cp
	return nil
}

func (r *MemoryBookingRepo) GetByID(_ context.Context, id string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	b.SeatIDs = append([]string(nil), b.SeatIDs...)
	return &b, nil
}

func (r *MemoryBookingRepo) GetByPaymentRef(_ context.Context, paymentRef string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bookings {
		if b.PaymentRef == paymentRef {
			b.SeatIDs = append([]string(nil), b.SeatIDs...)
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryBookingRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []model.Booking{}
	for _, b := range r.bookings {
		if b.OwnerID == ownerID {
			b.SeatIDs = append([]string(nil), b.SeatIDs...)
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryBookingRepo) UpdateStatus(_ context.Context, id string, from, to model.BookingStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return ErrNotFound
	}
	if b.Status != from {
		return fmt.Errorf("%w: booking %s is %s, not %s", ErrConflict, id, b.Status, from)
	}
	b.Status = to
	b.UpdatedAt = at
	r.bookings[id] = b
	return nil
}
