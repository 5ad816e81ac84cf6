// Package dbopen opens the pricewatch SQLite database with the pragmas every
// writer relies on, applied via EXEC so the choice of driver stays free.
//
// Default pragmas:
//
//	foreign_keys = ON
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("data/pricewatch.db", dbopen.WithMkdirAll())
//
// In tests:
//
//	db := dbopen.OpenMemory(t)
package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type config struct {
	driver      string
	busyTimeout int
	synchronous string
	foreignKeys bool
	mkdirAll    bool
	schemas     []string
}

func defaults() config {
	return config{
		driver:      "sqlite",
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		foreignKeys: true,
	}
}

// Option customises Open behaviour.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues inline SQL to execute after pragmas are applied.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// Open opens an SQLite database at path. The caller must blank-import the
// driver (modernc.org/sqlite registers "sqlite").
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}

	if err := applyPragmas(db, &cfg); err != nil {
		db.Close()
		return nil, err
	}

	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: exec schema: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for tests. MaxOpenConns is pinned
// to 1 because every new connection to ":memory:" is a separate database.
// The database is closed by t.Cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func (c *config) pragmas() []string {
	fk := "ON"
	if !c.foreignKeys {
		fk = "OFF"
	}
	return []string{
		"PRAGMA foreign_keys = " + fk,
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", c.busyTimeout),
		"PRAGMA synchronous = " + c.synchronous,
	}
}

func applyPragmas(db *sql.DB, cfg *config) error {
	for _, p := range cfg.pragmas() {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("dbopen: %s: %w", p, err)
		}
	}
	return nil
}

// Checkpoint folds the WAL back into the main database file and truncates
// it. Called on shutdown so a stopped service leaves a single file behind.
func Checkpoint(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("dbopen: checkpoint: %w", err)
	}
	return nil
}
