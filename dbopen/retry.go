package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Busy retry policy shared by RunTx and Exec: attempts, then linear
// backoff of backoffStep * attempt between them.
const (
	maxAttempts = 3
	backoffStep = 100 * time.Millisecond
)

// IsBusy reports whether err is an SQLite BUSY/locked condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"SQLITE_BUSY", "database is locked", "database table is locked"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// retryBusy calls fn until it succeeds, fails with a non-BUSY error, or
// runs out of attempts. Waits honour ctx.
func retryBusy[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil || !IsBusy(err) || attempt == maxAttempts {
			return v, err
		}
		t := time.NewTimer(backoffStep * time.Duration(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, fmt.Errorf("dbopen: %s: context cancelled during retry: %w", op, ctx.Err())
		case <-t.C:
		}
	}
}

// RunTx executes fn inside a transaction. The whole transaction is
// retried when SQLite reports BUSY; fn must therefore be safe to re-run.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	_, err := retryBusy(ctx, "tx", func() (struct{}, error) {
		return struct{}{}, runOnce(ctx, db, fn)
	})
	return err
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

// Exec runs a single statement with the RunTx retry policy. Baseline
// compare-and-swap writes go through here: one statement never
// half-applies, so a retry cannot double-advance a target.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return retryBusy(ctx, "exec", func() (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}
