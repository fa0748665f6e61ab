package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-seat-inventory/internal/ledger"
	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
	"github.com/iliyamo/cinema-seat-inventory/internal/model"
)

// DefaultHoldTTL is how long a hold blocks its seats when the service is
// not configured otherwise.
const DefaultHoldTTL = 7 * time.Minute

// HoldManager validates seat requests and turns them into ledger holds.
// Holds cannot be extended; a customer who needs more time must release
// and hold again.
type HoldManager struct {
	ledger *ledger.Ledger
	ttl    time.Duration
	log    *logger.Logger
	newID  func() string
}

func NewHoldManager(l *ledger.Ledger, ttl time.Duration, log *logger.Logger) *HoldManager {
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	return &HoldManager{ledger: l, ttl: ttl, log: log, newID: uuid.NewString}
}

// TTL returns the hold lifetime in use.
func (m *HoldManager) TTL() time.Duration { return m.ttl }

// RequestHold places a hold for ownerID on seatIDs.  Duplicate seat IDs
// are collapsed.  The per-booking cap comes from the show configuration.
func (m *HoldManager) RequestHold(ctx context.Context, showID, ownerID string, seatIDs []string) (model.Hold, error) {
	seats := uniqueSeats(seatIDs)
	if len(seats) == 0 {
		return model.Hold{}, ErrNoSeats
	}
	info, err := m.ledger.Show(ctx, showID)
	if err != nil {
		return model.Hold{}, err
	}
	if len(seats) > info.MaxSeatsPerBooking {
		return model.Hold{}, fmt.Errorf("%w: %d requested, max %d", ErrTooManySeats, len(seats), info.MaxSeatsPerBooking)
	}
	for _, s := range seats {
		if !info.Layout.Contains(s) {
			return model.Hold{}, fmt.Errorf("%w: %s", ErrInvalidSeat, s)
		}
	}

	hold, err := m.ledger.TryHold(ctx, showID, seats, m.newID(), ownerID, m.ttl)
	if err != nil {
		return model.Hold{}, err
	}
	m.log.Info("hold granted", "show_id", showID, "hold_id", hold.ID, "owner_id", ownerID,
		"seats", len(hold.SeatIDs), "expires_at", hold.ExpiresAt)
	return hold, nil
}

// GetHold returns a live hold.
func (m *HoldManager) GetHold(ctx context.Context, holdID string) (model.Hold, error) {
	return m.ledger.Hold(ctx, holdID)
}

// ReleaseHold gives the seats of holdID back.  Unknown, expired and
// already promoted holds are not an error.  When ownerID is set only the
// hold's owner may release it.
func (m *HoldManager) ReleaseHold(ctx context.Context, holdID, ownerID string) error {
	hold, err := m.ledger.Hold(ctx, holdID)
	switch {
	case errors.Is(err, ErrHoldNotFound):
		return nil
	case err != nil && !errors.Is(err, ErrHoldExpired):
		return err
	}
	if ownerID != "" && hold.OwnerID != ownerID {
		return ErrForbidden
	}
	n, err := m.ledger.ReleaseHold(ctx, hold.ShowID, holdID)
	if err != nil {
		return err
	}
	m.log.Info("hold released", "show_id", hold.ShowID, "hold_id", holdID, "seats_freed", n)
	return nil
}

// ReleaseOwnerHolds releases every live hold ownerID has on a show and
// returns how many holds were released.
func (m *HoldManager) ReleaseOwnerHolds(ctx context.Context, showID, ownerID string) (int, error) {
	holds, err := m.ledger.OwnerHolds(ctx, showID, ownerID)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, h := range holds {
		if _, err := m.ledger.ReleaseHold(ctx, showID, h.ID); err != nil {
			return released, err
		}
		released++
	}
	if released > 0 {
		m.log.Info("owner holds released", "show_id", showID, "owner_id", ownerID, "holds", released)
	}
	return released, nil
}

func uniqueSeats(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
