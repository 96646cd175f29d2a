package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Iron-Ham/foresight/internal/dataset"
	"github.com/Iron-Ham/foresight/internal/errors"
)

// schemaVersion is the record table layout this build writes.
const schemaVersion = 1

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Record is one row of the metadata table. SessionID is the hash key and
// RangeTimestamp the range key.
type Record struct {
	SessionID      string
	RangeTimestamp string
	BlobKey        string
	CreatedAt      time.Time
}

// RecordFromMetadata builds a record for meta stamped with the current time.
func RecordFromMetadata(meta dataset.SessionMetadata) Record {
	return Record{
		SessionID:      meta.SessionID,
		RangeTimestamp: meta.RangeTimestamp,
		CreatedAt:      time.Now().UTC(),
	}
}

// RecordStore is the SQLite-backed metadata table.
type RecordStore struct {
	db    *sql.DB
	table string
}

// OpenRecords opens or creates the database at path and ensures table
// exists. The parent directory is created if needed.
func OpenRecords(path, table string) (*RecordStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, errors.NewValidationError("invalid table name").WithField("table_name").WithValue(table)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create record store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Uploads run concurrently; a single connection serialises writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &RecordStore{db: db, table: table}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RecordStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case v != schemaVersion:
		return fmt.Errorf("unknown schema version %d", v)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		session_id      TEXT NOT NULL,
		range_timestamp TEXT NOT NULL,
		blob_key        TEXT,
		created_at      TEXT NOT NULL,
		PRIMARY KEY (session_id, range_timestamp)
	)`, s.table)
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Put inserts rec, replacing a record with the same keys.
func (s *RecordStore) Put(ctx context.Context, rec Record) error {
	if rec.SessionID == "" || rec.RangeTimestamp == "" {
		return errors.NewValidationError("session_id and range_timestamp are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR REPLACE INTO %s (session_id, range_timestamp, blob_key, created_at)
		 VALUES (?, ?, ?, ?)`, s.table),
		rec.SessionID, rec.RangeTimestamp, nullable(rec.BlobKey), rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// Get returns the record with the given keys. A missing record yields an
// error matching errors.ErrNotFound.
func (s *RecordStore) Get(ctx context.Context, sessionID, rangeTimestamp string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT session_id, range_timestamp, blob_key, created_at
		 FROM %s WHERE session_id = ? AND range_timestamp = ?`, s.table),
		sessionID, rangeTimestamp)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "record %s/%s", sessionID, rangeTimestamp)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List returns the records of a session, oldest first.
func (s *RecordStore) List(ctx context.Context, sessionID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT session_id, range_timestamp, blob_key, created_at
		 FROM %s WHERE session_id = ? ORDER BY created_at, range_timestamp`, s.table),
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var rec Record
	var blobKey sql.NullString
	var created string
	if err := sc.Scan(&rec.SessionID, &rec.RangeTimestamp, &blobKey, &created); err != nil {
		return nil, err
	}
	if blobKey.Valid {
		rec.BlobKey = blobKey.String
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = t
	return &rec, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
