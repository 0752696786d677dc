package store

import (
	"database/sql"
	"errors"
	"strings"
)

// Store wraps the control-plane database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// ErrConflict is returned when a conditional insert loses to a concurrent
// writer (e.g. a second running execution for the same scout).
var ErrConflict = errors.New("store: conflicting row exists")

// isUnique reports whether err is a SQLite UNIQUE constraint violation.
func isUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
