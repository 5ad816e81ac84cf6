package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/pricewatch/dbopen"
)

// Target is one monitored (recipient, url) subscription.
type Target struct {
	ID              string  `json:"id"`
	Recipient       string  `json:"recipient"`
	URL             string  `json:"url"`
	LastFingerprint *string `json:"last_fingerprint,omitempty"` // nil: never observed
	LastSnapshot    *string `json:"-"`                          // nil until the second observation
	CreatedAt       int64   `json:"created_at"`
	UpdatedAt       int64   `json:"updated_at"`
}

// Established reports whether the target has a baseline.
func (t *Target) Established() bool { return t.LastFingerprint != nil }

const targetColumns = `id, recipient, url, last_fingerprint, last_snapshot, created_at, updated_at`

// InsertTarget adds a new target with no baseline.
func (s *Store) InsertTarget(ctx context.Context, t *Target) error {
	now := s.nowMs()
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	t.LastFingerprint, t.LastSnapshot = nil, nil

	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO targets (`+targetColumns+`) VALUES (?, ?, ?, NULL, NULL, ?, ?)`,
		t.ID, t.Recipient, t.URL, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert target: %w", err)
	}
	return nil
}

// GetTarget retrieves a target by ID.
func (s *Store) GetTarget(ctx context.Context, id string) (*Target, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = ?`, id)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get target: %w", err)
	}
	return t, nil
}

// ListAll returns every target, oldest first. The result is a snapshot:
// targets inserted afterwards are not included.
func (s *Store) ListAll(ctx context.Context) ([]*Target, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+targetColumns+` FROM targets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list targets: %w", err)
	}
	defer rows.Close()

	var targets []*Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// CountTargets returns the number of targets.
func (s *Store) CountTargets(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM targets`).Scan(&n)
	return n, err
}

// SetFingerprint records the first observation of a target: fingerprint
// only, snapshot untouched. expected is the fingerprint the caller loaded
// (nil for a New target).
func (s *Store) SetFingerprint(ctx context.Context, id, fp string, expected *string) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE targets SET last_fingerprint = ?, updated_at = ?
		WHERE id = ? AND last_fingerprint IS ?`,
		fp, s.nowMs(), id, nullable(expected))
	if err != nil {
		return fmt.Errorf("store: set fingerprint: %w", err)
	}
	return s.checkSwap(ctx, res, id)
}

// SetFingerprintAndSnapshot advances the baseline: fingerprint and
// snapshot are written in one statement, guarded by expected.
func (s *Store) SetFingerprintAndSnapshot(ctx context.Context, id, fp, text string, expected *string) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE targets SET last_fingerprint = ?, last_snapshot = ?, updated_at = ?
		WHERE id = ? AND last_fingerprint IS ?`,
		fp, text, s.nowMs(), id, nullable(expected))
	if err != nil {
		return fmt.Errorf("store: set fingerprint and snapshot: %w", err)
	}
	return s.checkSwap(ctx, res, id)
}

// checkSwap turns a zero-row update into ErrNotFound or ErrConflict.
func (s *Store) checkSwap(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = s.DB.QueryRowContext(ctx, `SELECT 1 FROM targets WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: check target: %w", err)
	}
	return ErrConflict
}

// nullable maps a nil *string to SQL NULL.
func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(sc scanner) (*Target, error) {
	var t Target
	var fp, snap sql.NullString
	if err := sc.Scan(&t.ID, &t.Recipient, &t.URL, &fp, &snap, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if fp.Valid {
		t.LastFingerprint = &fp.String
	}
	if snap.Valid {
		t.LastSnapshot = &snap.String
	}
	return &t, nil
}
