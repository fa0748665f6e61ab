package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/model"
)

// BookingRepo provides persistence for bookings.  Seat IDs are stored as
// a JSON array and timestamps as unix milliseconds in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, show_id, owner_id, hold_id, seat_ids, amount_cents, payment_ref, status, created_at_ms, updated_at_ms`

// Create inserts a new booking.  A booking with the same ID yields
// ErrConflict; one with an already used payment reference yields
// ErrDuplicatePayment.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	seats, err := json.Marshal(b.SeatIDs)
	if err != nil {
		return err
	}
	q := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q,
		b.ID, b.ShowID, b.OwnerID, b.HoldID, string(seats), b.AmountCents, b.PaymentRef, string(b.Status),
		b.CreatedAt.UnixMilli(), b.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if isDuplicateKey(err) && mentions(err, "payment_ref") {
			return fmt.Errorf("%w: %s", ErrDuplicatePayment, b.PaymentRef)
		}
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: booking %s exists", ErrConflict, b.ID)
		}
		return fmt.Errorf("insert booking %s: %w", b.ID, err)
	}
	return nil
}

// GetByID returns the booking or ErrNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// GetByPaymentRef returns the booking paid with paymentRef or ErrNotFound.
func (r *BookingRepo) GetByPaymentRef(ctx context.Context, paymentRef string) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_ref = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, paymentRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// ListByOwner returns the owner's bookings, newest first.
func (r *BookingRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE owner_id = ? ORDER BY created_at_ms DESC, id`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// UpdateStatus moves a booking from one status to another.  It returns
// ErrNotFound for an unknown booking and ErrConflict when the booking is
// not in the from status.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, at time.Time) error {
	const q = `UPDATE bookings SET status = ?, updated_at_ms = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, string(to), at.UnixMilli(), id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: booking %s is %s, not %s", ErrConflict, id, cur.Status, from)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (*model.Booking, error) {
	var (
		b                  model.Booking
		seats, status      string
		createdMs, updated int64
	)
	if err := s.Scan(&b.ID, &b.ShowID, &b.OwnerID, &b.HoldID, &seats, &b.AmountCents, &b.PaymentRef, &status, &createdMs, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(seats), &b.SeatIDs); err != nil {
		return nil, fmt.Errorf("decode seats of booking %s: %w", b.ID, err)
	}
	b.Status = model.BookingStatus(status)
	b.CreatedAt = time.UnixMilli(createdMs).UTC()
	b.UpdatedAt = time.UnixMilli(updated).UTC()
	return &b, nil
}
