// Package store persists snapshots.
//
// The snapshot package never writes anything anywhere; keeping snapshots
// around is the caller's job. This package gives each stored snapshot a ULID,
// so records sort by creation time, and provides badger and SQLite backends
// behind a single Store interface.
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/plus3/arena/snapshot"
)

// ErrNotFound is returned when no record matches the request.
var ErrNotFound = errors.New("snapshot record not found")

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Record is a stored snapshot.
type Record struct {
	ID       ulid.ULID         `json:"id"`
	Label    string            `json:"label,omitempty"`
	Snapshot snapshot.Snapshot `json:"snapshot"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new monotonic ULID.
func NewID(now time.Time) (ulid.ULID, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.New(ulid.Timestamp(now), entropy)
}

// NewRecord wraps snap in a Record with a fresh ID.
func NewRecord(label string, snap snapshot.Snapshot) (Record, error) {
	id, err := NewID(time.Now())
	if err != nil {
		return Record{}, fmt.Errorf("store: new id: %w", err)
	}
	return Record{ID: id, Label: label, Snapshot: snap}, nil
}

// Store saves and loads snapshot records.
type Store interface {
	// Save inserts or replaces the record with rec.ID.
	Save(ctx context.Context, rec Record) error
	// Load returns the record with the given id or ErrNotFound.
	Load(ctx context.Context, id ulid.ULID) (Record, error)
	// Latest returns the newest record or ErrNotFound when the store is empty.
	Latest(ctx context.Context) (Record, error)
	// List returns all records, oldest first.
	List(ctx context.Context) ([]Record, error)
	// Delete removes the record with the given id or returns ErrNotFound.
	Delete(ctx context.Context, id ulid.ULID) error
	Close() error
}

// Open opens the named backend at path.
func Open(backend, path string, logger *slog.Logger) (Store, error) {
	switch backend {
	case BackendBadger:
		return OpenBadger(path, logger)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}

// Prune deletes the oldest records so that at most keep remain.
// It returns the number of deleted records.
func Prune(ctx context.Context, s Store, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("store: keep must not be negative, got %d", keep)
	}

	records, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for len(records)-deleted > keep {
		if err := s.Delete(ctx, records[deleted].ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
