package feature

import (
	"context"
	"database/sql"
)

// Table is the name of the feature records table.
const Table = "feature_records"

const recordsSchema = `
CREATE TABLE IF NOT EXISTS feature_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    identity_id TEXT NOT NULL,
    vector BLOB NOT NULL,
    source_label TEXT,
    kind TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_feature_records_identity ON feature_records(identity_id, id);
`

// EnsureSchema creates the feature_records table and its identity index in
// the provided database if they do not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, recordsSchema)
	return err
}
