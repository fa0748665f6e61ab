package ledger

import (
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/model"
)

// inventory is the in-memory state of one show.  It is only touched while
// the owning entry's mutex is held; mutations are applied to a clone which
// replaces the live one once persisted.
type inventory struct {
	info    model.ShowInfo
	version int64
	seats   map[string]model.SeatState
	holds   map[string]model.Hold
}

func newInventory(info model.ShowInfo, seatIDs []string) *inventory {
	inv := &inventory{
		info:  info,
		seats: make(map[string]model.SeatState, len(seatIDs)),
		holds: make(map[string]model.Hold),
	}
	for _, id := range seatIDs {
		inv.seats[id] = model.Free()
	}
	return inv
}

func fromRecord(rec *Record) *inventory {
	inv := &inventory{
		info:    rec.Show,
		version: rec.Version,
		seats:   make(map[string]model.SeatState, len(rec.Seats)),
		holds:   make(map[string]model.Hold, len(rec.Holds)),
	}
	for id, s := range rec.Seats {
		inv.seats[id] = s
	}
	for id, h := range rec.Holds {
		inv.holds[id] = h
	}
	return inv
}

func (inv *inventory) clone() *inventory {
	return fromRecord(inv.record())
}

// record shares nothing mutable with inv except SeatState.ExpiresAt
// pointers, which are never written through.
func (inv *inventory) record() *Record {
	rec := &Record{
		Show:    inv.info,
		Version: inv.version,
		Seats:   make(map[string]model.SeatState, len(inv.seats)),
		Holds:   make(map[string]model.Hold, len(inv.holds)),
	}
	for id, s := range inv.seats {
		rec.Seats[id] = s
	}
	for id, h := range inv.holds {
		h.SeatIDs = append([]string(nil), h.SeatIDs...)
		rec.Holds[id] = h
	}
	return rec
}

// view applies lazy expiry: a HELD seat whose hold has run out reads FREE.
func (inv *inventory) view(seatID string, now time.Time) (model.SeatState, bool) {
	s, ok := inv.seats[seatID]
	if !ok {
		return model.SeatState{}, false
	}
	if s.Status == model.SeatHeld && s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return model.Free(), true
	}
	return s, true
}

// releaseHold frees the seats still HELD under holdID and forgets the hold.
// Seats held by another hold or already BOOKED are left alone.
func (inv *inventory) releaseHold(holdID string) (int, bool) {
	h, ok := inv.holds[holdID]
	if !ok {
		return 0, false
	}
	freed := 0
	for _, seatID := range h.SeatIDs {
		s := inv.seats[seatID]
		if s.Status == model.SeatHeld && s.HoldID == holdID {
			inv.seats[seatID] = model.Free()
			freed++
		}
	}
	delete(inv.holds, holdID)
	return freed, true
}

func (inv *inventory) counts(now time.Time) model.SeatCounts {
	c := model.SeatCounts{Total: inv.info.TotalSeats}
	for id := range inv.seats {
		s, _ := inv.view(id, now)
		switch s.Status {
		case model.SeatFree:
			c.Free++
		case model.SeatHeld:
			c.Held++
		case model.SeatBooked:
			c.Booked++
		}
	}
	return c
}
