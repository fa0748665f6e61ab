// Package repository persists seat inventories and bookings in a SQL
// database.  Statements stick to the subset of SQL shared by MySQL and
// SQLite so the same code runs in production and in tests.
package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row does not exist.  Handlers translate
// it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update clashes with the
// stored state, such as a duplicate key or a status transition from the
// wrong state.  Handlers translate it into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrDuplicatePayment is the ErrConflict returned when a payment
// reference already backs another booking.
var ErrDuplicatePayment = fmt.Errorf("%w: payment reference already used", ErrConflict)

// isDuplicateKey recognises unique-key violations from MySQL (error 1062)
// and SQLite.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mentions reports whether a duplicate-key error names column.  Both
// drivers include the index or column in the message.
func mentions(err error, column string) bool {
	return strings.Contains(err.Error(), column)
}
