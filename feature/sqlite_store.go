package feature

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/viant/sqlite-facevec/vector"
)

const selectRecords = `SELECT id, identity_id, vector, source_label, kind, created_at FROM feature_records`

// SQLiteStore is the SQLite-backed Store. Every Append is its own implicit
// transaction; AppendBatch commits a whole group at once.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSQLiteStore creates a new SQLite-backed Store. It ensures the
// feature_records schema exists in the provided database.
func NewSQLiteStore(ctx context.Context, db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("feature: db is nil")
	}
	s := &SQLiteStore{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// EnsureSchema implements Store.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if err := EnsureSchema(ctx, s.db); err != nil {
		return &StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, record Record) (int64, error) {
	blob, err := encodeRecord(record)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO feature_records(identity_id, vector, source_label, kind) VALUES(?, ?, ?, ?)`,
		record.IdentityID, blob, record.SourceLabel, string(record.Kind))
	if err != nil {
		return 0, &StorageError{Op: "append", IdentityID: record.IdentityID, Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &StorageError{Op: "append", IdentityID: record.IdentityID, Err: err}
	}
	return id, nil
}

// AppendBatch implements Store. Records are validated and encoded before the
// transaction starts, so a serialization failure writes nothing.
func (s *SQLiteStore) AppendBatch(ctx context.Context, records []Record) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}
	blobs := make([][]byte, len(records))
	for i, r := range records {
		blob, err := encodeRecord(r)
		if err != nil {
			return nil, err
		}
		blobs[i] = blob
	}
	identity := records[0].IdentityID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "begin batch", IdentityID: identity, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO feature_records(identity_id, vector, source_label, kind) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return nil, &StorageError{Op: "prepare batch", IdentityID: identity, Err: err}
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(records))
	for i, r := range records {
		res, err := stmt.ExecContext(ctx, r.IdentityID, blobs[i], r.SourceLabel, string(r.Kind))
		if err != nil {
			return nil, &StorageError{Op: "append batch", IdentityID: r.IdentityID, Err: err}
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, &StorageError{Op: "append batch", IdentityID: r.IdentityID, Err: err}
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "commit batch", IdentityID: identity, Err: err}
	}
	return ids, nil
}

// RecordsForIdentity implements Store.
func (s *SQLiteStore) RecordsForIdentity(ctx context.Context, identityID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecords+` WHERE identity_id = ? ORDER BY id`, identityID)
	if err != nil {
		return nil, &StorageError{Op: "query records", IdentityID: identityID, Err: err}
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query records", IdentityID: identityID, Err: err}
	}
	return out, nil
}

// LoadIdentityFeatureSet implements Store. Records are read in id order, so
// the last mean and median seen are the most recently inserted ones.
func (s *SQLiteStore) LoadIdentityFeatureSet(ctx context.Context, identityID string) (*IdentityFeatureSet, error) {
	records, err := s.RecordsForIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	set := &IdentityFeatureSet{}
	var hasMean, hasMedian bool
	for _, r := range records {
		switch r.Kind {
		case KindSample:
			set.Samples = append(set.Samples, r)
		case KindMean:
			set.Mean, hasMean = r, true
		case KindMedian:
			set.Median, hasMedian = r, true
		default:
			s.logger.Debug("skipping record with unknown kind", "id", r.ID, "identity", identityID, "kind", r.Kind)
		}
	}
	if !hasMean {
		return nil, &MissingAggregateError{IdentityID: identityID, Kind: KindMean}
	}
	if !hasMedian {
		return nil, &MissingAggregateError{IdentityID: identityID, Kind: KindMedian}
	}
	return set, nil
}

// Identities implements Store.
func (s *SQLiteStore) Identities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT identity_id FROM feature_records ORDER BY identity_id`)
	if err != nil {
		return nil, &StorageError{Op: "list identities", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &StorageError{Op: "list identities", Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list identities", Err: err}
	}
	return ids, nil
}

// Scan implements Store.
func (s *SQLiteStore) Scan(ctx context.Context, fn func(Record) error) error {
	rows, err := s.db.QueryContext(ctx, selectRecords+` ORDER BY id`)
	if err != nil {
		return &StorageError{Op: "scan", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return &StorageError{Op: "scan", Err: err}
	}
	return nil
}

func encodeRecord(r Record) ([]byte, error) {
	if r.IdentityID == "" {
		return nil, fmt.Errorf("%w: identity id is empty", ErrInvalidRecord)
	}
	if !r.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, r.Kind)
	}
	blob, err := vector.EncodeVector(r.Vector)
	if err != nil {
		return nil, &SerializationError{IdentityID: r.IdentityID, SourceLabel: r.SourceLabel, Err: err}
	}
	return blob, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		r         Record
		blob      []byte
		label     sql.NullString
		kind      string
		createdAt any
	)
	if err := rows.Scan(&r.ID, &r.IdentityID, &blob, &label, &kind, &createdAt); err != nil {
		return Record{}, &StorageError{Op: "scan record", Err: err}
	}
	r.SourceLabel = label.String
	r.Kind = Kind(kind)
	vec, err := vector.DecodeVector(blob)
	if err != nil {
		return Record{}, &SerializationError{RecordID: r.ID, IdentityID: r.IdentityID, SourceLabel: r.SourceLabel, Err: err}
	}
	r.Vector = vec
	r.CreatedAt = parseTimestamp(createdAt)
	return r, nil
}

// parseTimestamp accepts the driver's time.Time or SQLite's CURRENT_TIMESTAMP text.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		return parseTimestampText(t)
	case []byte:
		return parseTimestampText(string(t))
	}
	return time.Time{}
}

func parseTimestampText(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Ensure SQLiteStore satisfies the Store interface.
var _ Store = (*SQLiteStore)(nil)
