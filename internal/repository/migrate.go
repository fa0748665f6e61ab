package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables owned by the inventory service.  Timestamps
// are stored as unix milliseconds so both MySQL and SQLite round-trip them
// exactly.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS inventories (
		show_id               VARCHAR(64) NOT NULL PRIMARY KEY,
		seat_rows             INT         NOT NULL,
		seats_per_row         INT         NOT NULL,
		max_seats_per_booking INT         NOT NULL,
		base_price_cents      BIGINT      NOT NULL,
		total_seats           INT         NOT NULL,
		version               BIGINT      NOT NULL,
		state                 LONGTEXT    NOT NULL,
		updated_at_ms         BIGINT      NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id            VARCHAR(64)  NOT NULL PRIMARY KEY,
		show_id       VARCHAR(64)  NOT NULL,
		owner_id      VARCHAR(64)  NOT NULL,
		hold_id       VARCHAR(64)  NOT NULL,
		seat_ids      TEXT         NOT NULL,
		amount_cents  BIGINT       NOT NULL,
		payment_ref   VARCHAR(128) NOT NULL UNIQUE,
		status        VARCHAR(16)  NOT NULL,
		created_at_ms BIGINT       NOT NULL,
		updated_at_ms BIGINT       NOT NULL
	)`,
}

// Migrate creates missing tables.  It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
