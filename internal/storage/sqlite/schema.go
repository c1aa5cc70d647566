package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    root TEXT NOT NULL,
    source TEXT NOT NULL,
    gap_threshold REAL NOT NULL,
    min_size INTEGER NOT NULL,
    close_final_block INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at);

CREATE TABLE IF NOT EXISTS runs (
    batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    path TEXT NOT NULL,
    chi REAL,
    outlet REAL,
    events INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    reason TEXT,
    PRIMARY KEY (batch_id, seq)
);

-- sizes, durations, run_ids and summary are msgpack blobs
CREATE TABLE IF NOT EXISTS run_groups (
    batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    group_key TEXT NOT NULL,
    chi REAL,
    outlet REAL,
    run_ids BLOB NOT NULL,
    summary BLOB NOT NULL,
    sizes BLOB NOT NULL,
    durations BLOB,
    PRIMARY KEY (batch_id, group_key)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

// InitSchema creates the tables if needed and records the schema version
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
