package ledger

import (
	"context"

	"github.com/iliyamo/cinema-seat-inventory/internal/model"
)

// Record is the persisted form of one show inventory: the immutable show
// info, the seat-state map, the live holds and the version the record was
// written at.
type Record struct {
	Show    model.ShowInfo
	Version int64
	Seats   map[string]model.SeatState
	Holds   map[string]model.Hold
}

// Store persists inventory records.  Save must be a conditional write:
// it succeeds only when the stored version equals expectedVersion and
// returns ErrVersionConflict otherwise.  Create returns ErrAlreadyExists
// for a show that is already stored.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Save(ctx context.Context, rec *Record, expectedVersion int64) error
	LoadAll(ctx context.Context) ([]*Record, error)
}
