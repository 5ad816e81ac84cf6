// Package store persists monitored targets and the run log in SQLite.
//
// Baseline writes are compare-and-swap on last_fingerprint so two runs
// racing on the same target (two processes, or a run that outlived its
// lock) cannot both advance it.
package store

import (
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a target or run does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a baseline write finds that another
	// writer already advanced last_fingerprint.
	ErrConflict = errors.New("store: baseline changed concurrently")
)

// Store wraps the pricewatch database.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// NewStore creates a Store from an already-opened database connection.
// The schema must already be applied (see ApplySchema).
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

func (s *Store) nowMs() int64 { return s.now().UnixMilli() }
