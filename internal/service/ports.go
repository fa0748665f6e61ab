// Package service contains the hold, booking and sweep workflows built on
// top of the inventory ledger.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/model"
)

// PaymentGateway is the payment collaborator.  Charge reports a declined
// card as an unsuccessful result; a non-nil error means the outcome is
// unknown.  Verify looks a reference up and reports what was actually
// captured, and by whom.
type PaymentGateway interface {
	Charge(ctx context.Context, ownerID string, amountCents int64) (model.PaymentResult, error)
	Verify(ctx context.Context, paymentRef string) (model.PaymentResult, error)
	Refund(ctx context.Context, paymentRef string, amountCents int64) (model.RefundResult, error)
}

// BookingStore persists bookings.  Implementations return
// repository.ErrNotFound and repository.ErrConflict, and
// repository.ErrDuplicatePayment when a payment reference is already
// backing another booking.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetByPaymentRef(ctx context.Context, paymentRef string) (*model.Booking, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Booking, error)
	UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, at time.Time) error
}

// AdminPolicy decides whether an actor may act on other users' bookings.
type AdminPolicy interface {
	IsAdmin(ctx context.Context, actorID string) bool
}

// RoleAdmin is the role claim that grants administrative rights.
const RoleAdmin = "ADMIN"

type roleKey struct{}

// WithRole attaches the authenticated caller's role to ctx.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RoleFrom returns the role stored by WithRole.
func RoleFrom(ctx context.Context) string {
	r, _ := ctx.Value(roleKey{}).(string)
	return r
}

// RoleAdminPolicy trusts the role carried in the request context.
type RoleAdminPolicy struct{}

func (RoleAdminPolicy) IsAdmin(ctx context.Context, _ string) bool {
	return RoleFrom(ctx) == RoleAdmin
}
