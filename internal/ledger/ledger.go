// Package ledger is the single authority for seat state.  Every show has
// its own inventory guarded by its own mutex, so mutations on one show are
// serialised while unrelated shows never contend.  Each mutation is built
// on a copy of the inventory, written through to the optional Store with
// an optimistic version check, and only then made visible.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/model"
)

// errUnchanged lets a mutation report that it was a no-op, skipping the
// version bump and the store write.
var errUnchanged = errors.New("unchanged")

type entry struct {
	mu  sync.Mutex
	inv *inventory // nil until Initialize finished
}

// Ledger holds the seat inventories of all shows.
type Ledger struct {
	mu    sync.RWMutex
	shows map[string]*entry

	idxMu     sync.Mutex
	holdIndex map[string]string // hold id -> show id

	store Store
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStore makes every mutation write through to s.
func WithStore(s Store) Option { return func(l *Ledger) { l.store = s } }

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// New returns an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		shows:     make(map[string]*entry),
		holdIndex: make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load rebuilds the ledger from its store.  It must run before the ledger
// serves requests.
func (l *Ledger) Load(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	recs, err := l.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load inventories: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.idxMu.Lock()
	defer l.idxMu.Unlock()
	for _, rec := range recs {
		inv := fromRecord(rec)
		l.shows[inv.info.ShowID] = &entry{inv: inv}
		for holdID := range inv.holds {
			l.holdIndex[holdID] = inv.info.ShowID
		}
	}
	return len(recs), nil
}

// Initialize creates the inventory of a show with every seat FREE.
func (l *Ledger) Initialize(ctx context.Context, cfg model.ShowConfig) (model.ShowInfo, error) {
	if cfg.ShowID == "" {
		return model.ShowInfo{}, fmt.Errorf("%w: show id is required", ErrInvalidConfig)
	}
	seatIDs, err := cfg.Layout.SeatIDs()
	if err != nil {
		return model.ShowInfo{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.MaxSeatsPerBooking == 0 {
		cfg.MaxSeatsPerBooking = model.DefaultMaxSeatsPerBooking
	}
	if cfg.MaxSeatsPerBooking < 0 {
		return model.ShowInfo{}, fmt.Errorf("%w: max seats per booking %d", ErrInvalidConfig, cfg.MaxSeatsPerBooking)
	}
	if cfg.BasePriceCents < 0 {
		return model.ShowInfo{}, fmt.Errorf("%w: negative base price", ErrInvalidConfig)
	}

	e := &entry{}
	e.mu.Lock()
	defer e.mu.Unlock()

	l.mu.Lock()
	if _, ok := l.shows[cfg.ShowID]; ok {
		l.mu.Unlock()
		return model.ShowInfo{}, fmt.Errorf("%w: %s", ErrAlreadyExists, cfg.ShowID)
	}
	l.shows[cfg.ShowID] = e
	l.mu.Unlock()

	info := model.ShowInfo{ShowConfig: cfg, TotalSeats: len(seatIDs)}
	inv := newInventory(info, seatIDs)
	if l.store != nil {
		if err := l.store.Create(ctx, inv.record()); err != nil {
			l.mu.Lock()
			delete(l.shows, cfg.ShowID)
			l.mu.Unlock()
			return model.ShowInfo{}, fmt.Errorf("persist inventory %s: %w", cfg.ShowID, err)
		}
	}
	e.inv = inv
	return info, nil
}

// Show returns the immutable description of a show's inventory.
func (l *Ledger) Show(ctx context.Context, showID string) (model.ShowInfo, error) {
	var info model.ShowInfo
	err := l.read(showID, func(inv *inventory, _ time.Time) {
		info = inv.info
	})
	return info, err
}

// Snapshot returns the state of every seat of a show.  Holds that have run
// out are reported FREE; stored state is not touched.
func (l *Ledger) Snapshot(ctx context.Context, showID string) (map[string]model.SeatState, error) {
	var out map[string]model.SeatState
	err := l.read(showID, func(inv *inventory, now time.Time) {
		out = make(map[string]model.SeatState, len(inv.seats))
		for id := range inv.seats {
			out[id], _ = inv.view(id, now)
		}
	})
	return out, err
}

// Counts tallies FREE/HELD/BOOKED seats with the same lazy expiry as
// Snapshot.
func (l *Ledger) Counts(ctx context.Context, showID string) (model.SeatCounts, error) {
	var c model.SeatCounts
	err := l.read(showID, func(inv *inventory, now time.Time) {
		c = inv.counts(now)
	})
	return c, err
}

// TryHold grants holdID on every seat in seatIDs, or on none of them.  A
// seat is available when it is FREE or HELD by a hold that has already
// expired; such expired holds are released as part of the same mutation.
func (l *Ledger) TryHold(ctx context.Context, showID string, seatIDs []string, holdID, ownerID string, ttl time.Duration) (model.Hold, error) {
	if holdID == "" {
		return model.Hold{}, fmt.Errorf("%w: empty hold id", ErrHoldNotFound)
	}
	if ttl <= 0 {
		return model.Hold{}, fmt.Errorf("hold ttl must be positive, got %s", ttl)
	}
	seats := dedupe(seatIDs)
	if len(seats) == 0 {
		return model.Hold{}, ErrNoSeats
	}
	if !l.reserveHoldID(holdID, showID) {
		return model.Hold{}, fmt.Errorf("%w: %s", ErrDuplicateHold, holdID)
	}

	var hold model.Hold
	err := l.mutate(ctx, showID, func(inv *inventory, now time.Time) error {
		if _, dup := inv.holds[holdID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateHold, holdID)
		}
		if len(seats) > inv.info.MaxSeatsPerBooking {
			return fmt.Errorf("%w: %d requested, max %d", ErrTooManySeats, len(seats), inv.info.MaxSeatsPerBooking)
		}
		var unavailable []string
		expired := make(map[string]struct{})
		for _, seatID := range seats {
			s, ok := inv.seats[seatID]
			if !ok {
				return fmt.Errorf("%w: %s", ErrInvalidSeat, seatID)
			}
			switch {
			case s.Status == model.SeatFree:
			case s.Status == model.SeatHeld && s.ExpiresAt != nil && !now.Before(*s.ExpiresAt):
				expired[s.HoldID] = struct{}{}
			default:
				unavailable = append(unavailable, seatID)
			}
		}
		if len(unavailable) > 0 {
			return &UnavailableError{ShowID: showID, SeatIDs: unavailable}
		}
		for id := range expired {
			inv.releaseHold(id)
		}
		hold = model.Hold{
			ID:        holdID,
			ShowID:    showID,
			OwnerID:   ownerID,
			SeatIDs:   seats,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		for _, seatID := range seats {
			inv.seats[seatID] = model.HeldBy(holdID, hold.ExpiresAt)
		}
		inv.holds[holdID] = hold
		return nil
	})
	if err != nil {
		l.releaseHoldID(holdID)
		return model.Hold{}, err
	}
	return hold, nil
}

// reserveHoldID claims holdID in the index before the show lock is taken,
// so the same ID cannot be granted on two shows at once.
func (l *Ledger) reserveHoldID(holdID, showID string) bool {
	l.idxMu.Lock()
	defer l.idxMu.Unlock()
	if _, taken := l.holdIndex[holdID]; taken {
		return false
	}
	l.holdIndex[holdID] = showID
	return true
}

func (l *Ledger) releaseHoldID(holdID string) {
	l.idxMu.Lock()
	delete(l.holdIndex, holdID)
	l.idxMu.Unlock()
}

// ReleaseHold frees the seats HELD under holdID.  Releasing a hold that is
// gone (released, swept or promoted) is a no-op.  Seats BOOKED from the
// hold are never touched.
func (l *Ledger) ReleaseHold(ctx context.Context, showID, holdID string) (int, error) {
	freed := 0
	err := l.mutate(ctx, showID, func(inv *inventory, _ time.Time) error {
		n, ok := inv.releaseHold(holdID)
		if !ok {
			return errUnchanged
		}
		freed = n
		return nil
	})
	if errors.Is(err, ErrShowNotFound) {
		return 0, nil
	}
	return freed, err
}

// PromoteHold turns the seats of a live hold into BOOKED under bookingID
// and consumes the hold.  A missing or expired hold fails with no change.
func (l *Ledger) PromoteHold(ctx context.Context, showID, holdID, bookingID string) (model.Hold, error) {
	var hold model.Hold
	err := l.mutate(ctx, showID, func(inv *inventory, now time.Time) error {
		h, ok := inv.holds[holdID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
		}
		if h.ExpiredAt(now) {
			return fmt.Errorf("%w: %s expired at %s", ErrHoldExpired, holdID, h.ExpiresAt.Format(time.RFC3339Nano))
		}
		for _, seatID := range h.SeatIDs {
			s := inv.seats[seatID]
			if s.Status != model.SeatHeld || s.HoldID != holdID {
				return fmt.Errorf("%w: seat %s no longer held by %s", ErrHoldNotFound, seatID, holdID)
			}
		}
		for _, seatID := range h.SeatIDs {
			inv.seats[seatID] = model.BookedBy(bookingID)
		}
		delete(inv.holds, holdID)
		hold = h
		return nil
	})
	if err != nil {
		return model.Hold{}, err
	}
	return hold, nil
}

// ReleaseBooking frees every seat BOOKED under bookingID.  It is a no-op
// when no seat carries the booking.
func (l *Ledger) ReleaseBooking(ctx context.Context, showID, bookingID string) (int, error) {
	freed := 0
	err := l.mutate(ctx, showID, func(inv *inventory, _ time.Time) error {
		for id, s := range inv.seats {
			if s.Status == model.SeatBooked && s.BookingID == bookingID {
				inv.seats[id] = model.Free()
				freed++
			}
		}
		if freed == 0 {
			return errUnchanged
		}
		return nil
	})
	return freed, err
}

// Hold looks a hold up by ID across all shows.  An expired hold is
// returned together with ErrHoldExpired.
func (l *Ledger) Hold(ctx context.Context, holdID string) (model.Hold, error) {
	l.idxMu.Lock()
	showID, ok := l.holdIndex[holdID]
	l.idxMu.Unlock()
	if !ok {
		return model.Hold{}, fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
	}
	var (
		hold  model.Hold
		found bool
		now   time.Time
	)
	err := l.read(showID, func(inv *inventory, t time.Time) {
		hold, found = inv.holds[holdID]
		now = t
	})
	if err != nil {
		return model.Hold{}, err
	}
	if !found {
		return model.Hold{}, fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
	}
	hold.SeatIDs = append([]string(nil), hold.SeatIDs...)
	if hold.ExpiredAt(now) {
		return hold, fmt.Errorf("%w: %s", ErrHoldExpired, holdID)
	}
	return hold, nil
}

// OwnerHolds lists the live holds of ownerID on a show.
func (l *Ledger) OwnerHolds(ctx context.Context, showID, ownerID string) ([]model.Hold, error) {
	var out []model.Hold
	err := l.read(showID, func(inv *inventory, now time.Time) {
		for _, h := range inv.holds {
			if h.OwnerID == ownerID && !h.ExpiredAt(now) {
				h.SeatIDs = append([]string(nil), h.SeatIDs...)
				out = append(out, h)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// ExpiredHolds lists every hold, across all shows, whose TTL ended at or
// before now.
func (l *Ledger) ExpiredHolds(now time.Time) []model.HoldRef {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.shows))
	for _, e := range l.shows {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	var refs []model.HoldRef
	for _, e := range entries {
		e.mu.Lock()
		if e.inv != nil {
			for _, h := range e.inv.holds {
				if h.ExpiredAt(now) {
					refs = append(refs, model.HoldRef{ShowID: h.ShowID, HoldID: h.ID, ExpiresAt: h.ExpiresAt})
				}
			}
		}
		e.mu.Unlock()
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ExpiresAt.Before(refs[j].ExpiresAt) })
	return refs
}

// Now exposes the ledger clock so collaborators share one notion of time.
func (l *Ledger) Now() time.Time { return l.now() }

func (l *Ledger) lookup(showID string) (*entry, error) {
	l.mu.RLock()
	e, ok := l.shows[showID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrShowNotFound, showID)
	}
	return e, nil
}

func (l *Ledger) read(showID string, fn func(inv *inventory, now time.Time)) error {
	e, err := l.lookup(showID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inv == nil {
		return fmt.Errorf("%w: %s", ErrShowNotFound, showID)
	}
	fn(e.inv, l.now())
	return nil
}

// mutate runs fn against a copy of the show's inventory while holding the
// show's lock.  The copy replaces the live inventory only if fn succeeds
// and the store accepted it.
func (l *Ledger) mutate(ctx context.Context, showID string, fn func(inv *inventory, now time.Time) error) error {
	e, err := l.lookup(showID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inv == nil {
		return fmt.Errorf("%w: %s", ErrShowNotFound, showID)
	}
	next := e.inv.clone()
	if err := fn(next, l.now()); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	next.version = e.inv.version + 1
	if l.store != nil {
		if err := l.store.Save(ctx, next.record(), e.inv.version); err != nil {
			return fmt.Errorf("persist inventory %s: %w", showID, err)
		}
	}
	l.reindex(e.inv, next)
	e.inv = next
	return nil
}

func (l *Ledger) reindex(prev, next *inventory) {
	l.idxMu.Lock()
	defer l.idxMu.Unlock()
	for id := range prev.holds {
		if _, ok := next.holds[id]; !ok {
			delete(l.holdIndex, id)
		}
	}
	for id := range next.holds {
		if _, ok := prev.holds[id]; !ok {
			l.holdIndex[id] = next.info.ShowID
		}
	}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
