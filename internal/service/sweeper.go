package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/ledger"
	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
)

// DefaultSweepInterval is the sweeper period when none is configured.
const DefaultSweepInterval = 60 * time.Second

// Sweeper physically releases holds whose TTL has passed.  Reads already
// treat such holds as free, so the sweeper only tidies stored state; a
// late or overlapping sweep is harmless.
type Sweeper struct {
	ledger   *ledger.Ledger
	interval time.Duration
	log      *logger.Logger
}

func NewSweeper(l *ledger.Ledger, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{ledger: l, interval: interval, log: log}
}

// SweepOnce releases every expired hold and returns how many holds it
// released.  Failures on one show do not stop the others.  Concurrent
// sweeps may race for the same hold; only the one that frees its seats
// counts it.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	refs := s.ledger.ExpiredHolds(s.ledger.Now())
	released := 0
	var errs []error
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := s.ledger.ReleaseHold(ctx, ref.ShowID, ref.HoldID)
		if err != nil {
			s.log.Warn("sweep: release failed", "show_id", ref.ShowID, "hold_id", ref.HoldID, "error", err)
			errs = append(errs, err)
			continue
		}
		// Zero means another sweep or a promotion got there first.
		if n > 0 {
			released++
		}
	}
	if released > 0 {
		s.log.Info("sweep: expired holds released", "holds", released)
	}
	return released, errors.Join(errs...)
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.log.Info("sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-t.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("sweep failed", "error", err)
			}
		}
	}
}
