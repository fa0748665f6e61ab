package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/ledger"
	"github.com/iliyamo/cinema-seat-inventory/internal/model"
	"github.com/iliyamo/cinema-seat-inventory/internal/seatmap"
)

// InventoryRepo stores one row per show: the immutable configuration in
// columns and the mutable seat/hold state as a JSON document, guarded by
// a version column.  It implements ledger.Store.
type InventoryRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewInventoryRepo(db *sql.DB) *InventoryRepo {
	return &InventoryRepo{db: db, now: time.Now}
}

var _ ledger.Store = (*InventoryRepo)(nil)

type inventoryState struct {
	Seats map[string]model.SeatState `json:"seats"`
	Holds map[string]model.Hold      `json:"holds"`
}

// Create inserts the first version of a show's inventory.  A second
// insert for the same show fails with ledger.ErrAlreadyExists.
func (r *InventoryRepo) Create(ctx context.Context, rec *ledger.Record) error {
	state, err := encodeState(rec)
	if err != nil {
		return err
	}
	const q = `INSERT INTO inventories
		(show_id, seat_rows, seats_per_row, max_seats_per_booking, base_price_cents, total_seats, version, state, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	s := rec.Show
	_, err = r.db.ExecContext(ctx, q,
		s.ShowID, s.Layout.Rows, s.Layout.SeatsPerRow, s.MaxSeatsPerBooking, s.BasePriceCents, s.TotalSeats,
		rec.Version, state, r.now().UnixMilli(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ledger.ErrAlreadyExists
		}
		return fmt.Errorf("insert inventory %s: %w", s.ShowID, err)
	}
	return nil
}

// Save replaces the state of a show only if the stored version still
// equals expectedVersion.
func (r *InventoryRepo) Save(ctx context.Context, rec *ledger.Record, expectedVersion int64) error {
	state, err := encodeState(rec)
	if err != nil {
		return err
	}
	const q = `UPDATE inventories SET version = ?, state = ?, updated_at_ms = ? WHERE show_id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, q, rec.Version, state, r.now().UnixMilli(), rec.Show.ShowID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update inventory %s: %w", rec.Show.ShowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: show %s expected version %d", ledger.ErrVersionConflict, rec.Show.ShowID, expectedVersion)
	}
	return nil
}

// LoadAll returns every stored inventory.
func (r *InventoryRepo) LoadAll(ctx context.Context) ([]*ledger.Record, error) {
	const q = `SELECT show_id, seat_rows, seats_per_row, max_seats_per_booking, base_price_cents, total_seats, version, state
		FROM inventories ORDER BY show_id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.Record
	for rows.Next() {
		var (
			rec   ledger.Record
			lay   seatmap.Layout
			state string
		)
		if err := rows.Scan(&rec.Show.ShowID, &lay.Rows, &lay.SeatsPerRow, &rec.Show.MaxSeatsPerBooking,
			&rec.Show.BasePriceCents, &rec.Show.TotalSeats, &rec.Version, &state); err != nil {
			return nil, err
		}
		rec.Show.Layout = lay
		var st inventoryState
		if err := json.Unmarshal([]byte(state), &st); err != nil {
			return nil, fmt.Errorf("decode inventory %s: %w", rec.Show.ShowID, err)
		}
		rec.Seats = st.Seats
		rec.Holds = st.Holds
		if rec.Holds == nil {
			rec.Holds = map[string]model.Hold{}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func encodeState(rec *ledger.Record) (string, error) {
	b, err := json.Marshal(inventoryState{Seats: rec.Seats, Holds: rec.Holds})
	if err != nil {
		return "", fmt.Errorf("encode inventory %s: %w", rec.Show.ShowID, err)
	}
	return string(b), nil
}
