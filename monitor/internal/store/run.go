package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/pricewatch/dbopen"
)

// Run is one recorded orchestrator invocation.
type Run struct {
	ID         string `json:"id"`
	Trigger    string `json:"trigger"` // "api", "mcp", "schedule", "cli"
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
	Total      int    `json:"total"`
	Changed    int    `json:"changed"`
	Failed     int    `json:"failed"`
}

// RunResult is one recorded target outcome.
type RunResult struct {
	Seq      int    `json:"seq"`
	TargetID string `json:"id"`
	URL      string `json:"url"`
	Changed  bool   `json:"changed"`
	Error    string `json:"error,omitempty"`
}

// RecordRun stores a run and its results atomically. Total, Changed and
// Failed are derived from results.
func (s *Store) RecordRun(ctx context.Context, run *Run, results []RunResult) error {
	run.Total, run.Changed, run.Failed = len(results), 0, 0
	for _, r := range results {
		switch {
		case r.Error != "":
			run.Failed++
		case r.Changed:
			run.Changed++
		}
	}

	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, triggered_by, started_at, finished_at, total, changed, failed)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Trigger, run.StartedAt, run.FinishedAt, run.Total, run.Changed, run.Failed)
		if err != nil {
			return fmt.Errorf("store: insert run: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_results (run_id, seq, target_id, url, changed, error)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare run result: %w", err)
		}
		defer stmt.Close()
		for i, r := range results {
			if _, err := stmt.ExecContext(ctx, run.ID, i, r.TargetID, r.URL, r.Changed, r.Error); err != nil {
				return fmt.Errorf("store: insert run result: %w", err)
			}
		}
		return nil
	})
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, triggered_by, started_at, finished_at, total, changed, failed
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun retrieves one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.DB.QueryRowContext(ctx,
		`SELECT id, triggered_by, started_at, finished_at, total, changed, failed
		FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return r, nil
}

// RunResults returns the results of a run in their original order.
func (s *Store) RunResults(ctx context.Context, runID string) ([]RunResult, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT seq, target_id, url, changed, error
		FROM run_results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: run results: %w", err)
	}
	defer rows.Close()

	var out []RunResult
	for rows.Next() {
		var r RunResult
		if err := rows.Scan(&r.Seq, &r.TargetID, &r.URL, &r.Changed, &r.Error); err != nil {
			return nil, fmt.Errorf("store: scan run result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	err := sc.Scan(&r.ID, &r.Trigger, &r.StartedAt, &r.FinishedAt, &r.Total, &r.Changed, &r.Failed)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
