// Package payment contains the payment collaborators the service can be
// wired with.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-seat-inventory/internal/model"
)

// ErrUnknownPayment is returned when refunding a reference that was never
// charged.
var ErrUnknownPayment = errors.New("unknown payment reference")

// Simulated is an in-process gateway.  Charges succeed unless the owner is
// listed in Decline; refunds succeed once per captured reference.
type Simulated struct {
	mu       sync.Mutex
	decline  map[string]bool
	captured map[string]capture
	refunded map[string]bool
}

type capture struct {
	payer  string
	amount int64
}

func NewSimulated(declinedOwners ...string) *Simulated {
	s := &Simulated{
		decline:  make(map[string]bool),
		captured: make(map[string]capture),
		refunded: make(map[string]bool),
	}
	for _, o := range declinedOwners {
		s.decline[o] = true
	}
	return s
}

func (s *Simulated) Charge(_ context.Context, ownerID string, amountCents int64) (model.PaymentResult, error) {
	if amountCents < 0 {
		return model.PaymentResult{}, fmt.Errorf("negative amount %d", amountCents)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decline[ownerID] {
		return model.PaymentResult{Success: false, AmountCents: amountCents, FailureReason: "card declined"}, nil
	}
	ref := "pay_" + uuid.NewString()
	s.captured[ref] = capture{payer: ownerID, amount: amountCents}
	return model.PaymentResult{Success: true, Reference: ref, AmountCents: amountCents, PayerID: ownerID}, nil
}

// Verify reports the captured state of paymentRef.  A refunded payment is
// reported as unsuccessful.
func (s *Simulated) Verify(_ context.Context, paymentRef string) (model.PaymentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.captured[paymentRef]
	if !ok {
		return model.PaymentResult{}, fmt.Errorf("%w: %s", ErrUnknownPayment, paymentRef)
	}
	res := model.PaymentResult{Success: true, Reference: paymentRef, AmountCents: c.amount, PayerID: c.payer}
	if s.refunded[paymentRef] {
		res.Success = false
		res.FailureReason = "payment refunded"
	}
	return res, nil
}

// Refund is idempotent per reference: refunding twice returns the same
// refund reference.
func (s *Simulated) Refund(_ context.Context, paymentRef string, amountCents int64) (model.RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.captured[paymentRef]
	if !ok {
		return model.RefundResult{}, fmt.Errorf("%w: %s", ErrUnknownPayment, paymentRef)
	}
	if amountCents > c.amount {
		return model.RefundResult{}, fmt.Errorf("refund %d exceeds captured %d", amountCents, c.amount)
	}
	s.refunded[paymentRef] = true
	return model.RefundResult{Reference: "rf_" + paymentRef}, nil
}

// Refunded reports whether paymentRef has been refunded.
func (s *Simulated) Refunded(paymentRef string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refunded[paymentRef]
}
