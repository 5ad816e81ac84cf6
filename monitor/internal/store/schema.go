package store

import "database/sql"

// Schema is the complete pricewatch schema. Timestamps are unix ms.
const Schema = `
-- Monitored targets. (recipient, url) is deliberately not unique.
CREATE TABLE IF NOT EXISTS targets (
    id               TEXT PRIMARY KEY,
    recipient        TEXT NOT NULL,
    url              TEXT NOT NULL,
    last_fingerprint TEXT,
    last_snapshot    TEXT,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_targets_created ON targets(created_at);

-- Run log: one row per orchestrator invocation.
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    triggered_by TEXT NOT NULL DEFAULT 'api',
    started_at  INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    total       INTEGER NOT NULL DEFAULT 0,
    changed     INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

-- One row per target outcome of a run. target_id is not a foreign key:
-- history outlives targets.
CREATE TABLE IF NOT EXISTS run_results (
    run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq       INTEGER NOT NULL,
    target_id TEXT NOT NULL,
    url       TEXT NOT NULL,
    changed   INTEGER NOT NULL DEFAULT 0,
    error     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_run_results_target ON run_results(target_id);
`

// ApplySchema creates all tables if they don't exist.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
