package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/plus3/arena/snapshot"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS snapshots (
	id        TEXT PRIMARY KEY,
	label     TEXT NOT NULL DEFAULT '',
	version   INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	state     TEXT NOT NULL
)`

// SQLiteStore keeps one row per record. The id column holds the canonical
// ULID string, which sorts in creation order.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: ping db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Save inserts or replaces rec.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO snapshots (id, label, version, timestamp, state)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   label = excluded.label,
		   version = excluded.version,
		   timestamp = excluded.timestamp,
		   state = excluded.state`,
		rec.ID.String(),
		rec.Label,
		rec.Snapshot.Version,
		rec.Snapshot.Timestamp,
		rec.Snapshot.State,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save %s: %w", rec.ID, err)
	}
	return nil
}

// Load returns the record with the given id.
func (s *SQLiteStore) Load(ctx context.Context, id ulid.ULID) (Record, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, label, version, timestamp, state FROM snapshots WHERE id = ?`,
		id.String(),
	)
	return scanRecord(row)
}

// Latest returns the most recently created record.
func (s *SQLiteStore) Latest(ctx context.Context) (Record, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, label, version, timestamp, state FROM snapshots ORDER BY id DESC LIMIT 1`,
	)
	return scanRecord(row)
}

// List returns every record, oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, label, version, timestamp, state FROM snapshots ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	return records, nil
}

// Delete removes the record with the given id.
func (s *SQLiteStore) Delete(ctx context.Context, id ulid.ULID) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rawID string
		rec   Record
		snap  snapshot.Snapshot
	)
	if err := row.Scan(&rawID, &rec.Label, &snap.Version, &snap.Timestamp, &snap.State); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("sqlite: scan record: %w", err)
	}

	id, err := ulid.ParseStrict(rawID)
	if err != nil {
		return Record{}, fmt.Errorf("sqlite: parse id %q: %w", rawID, err)
	}
	rec.ID = id
	rec.Snapshot = snap
	return rec, nil
}
