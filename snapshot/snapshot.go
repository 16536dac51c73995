// Package snapshot takes versioned, timestamped captures of a World and
// restores them.
//
// A Manager asks its World to export itself to a plain value, encodes that
// value as JSON and stamps it with the manager's version and the current
// time. Restoring checks the version first: a Snapshot is only handed back to
// the World when its version equals the manager's current version.
//
// The Manager does no locking. Callers that share a World between
// goroutines must serialize Snapshot and Restore themselves.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// DefaultVersion is the version a Manager starts at unless WithVersion is given.
const DefaultVersion = 1

// World is the state container a Manager captures. *ecs.Storage implements it.
type World interface {
	// ExportState returns a plain, JSON-encodable description of the whole
	// world. It must not mutate the world.
	ExportState() (any, error)
	// ImportState replaces the whole world with the given plain value.
	// Prior contents are superseded, never merged.
	ImportState(state any) error
}

// Snapshot is an encoded capture of a World.
type Snapshot struct {
	Version   int    `json:"version"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds, informational only
	State     string `json:"state"`     // JSON text of the exported plain value
}

// Time returns the snapshot timestamp as a time.Time.
func (s Snapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Mode selects how Snapshot encodes the world.
type Mode int

const (
	// Full encodes the entire exported world.
	Full Mode = iota
	// Differential is meant to encode only what changed since the last full
	// snapshot. It is not implemented yet and currently produces exactly
	// the same result as Full.
	Differential
)

func (m Mode) String() string {
	switch m {
	case Full:
		return "full"
	case Differential:
		return "differential"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ErrVersionMismatch is matched (via errors.Is) by every VersionMismatchError.
var ErrVersionMismatch = errors.New("snapshot version mismatch")

var errTrailingData = errors.New("snapshot: trailing data after encoded state")

// VersionMismatchError is returned by Restore when the snapshot was taken
// under a different version than the manager currently expects.
type VersionMismatchError struct {
	Expected int // the manager's version
	Found    int // the snapshot's version
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("snapshot version %d is incompatible with current version %d", e.Found, e.Expected)
}

func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}

// Manager produces snapshots of one World and restores them.
type Manager struct {
	world   World
	version int
	clock   func() time.Time
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithVersion sets the initial version.
func WithVersion(version int) Option {
	return func(m *Manager) {
		m.version = version
	}
}

// WithClock overrides the time source used for snapshot timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics records snapshot and restore activity on metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// New creates a Manager for world. The Manager does not own the world.
func New(world World, opts ...Option) *Manager {
	m := &Manager{
		world:   world,
		version: DefaultVersion,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Snapshot captures the current world state. The world is only read.
func (m *Manager) Snapshot(mode Mode) (Snapshot, error) {
	state, err := m.encode(mode)
	if err != nil {
		m.metrics.observeSnapshotFailure()
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:   m.version,
		Timestamp: m.clock().UnixMilli(),
		State:     state,
	}
	m.metrics.observeSnapshot(mode, len(state))
	m.logger.Debug("snapshot taken",
		"mode", mode.String(),
		"version", snap.Version,
		"state_bytes", len(state))
	return snap, nil
}

// Restore replaces the world state with the one captured in snap.
//
// When snap.Version differs from the manager's version a
// *VersionMismatchError is returned and the world is not touched. Errors
// from decoding the state or from the world's import are returned as they
// are; in that case the world may be left partially updated unless its
// import is atomic.
func (m *Manager) Restore(snap Snapshot) error {
	if snap.Version != m.version {
		m.metrics.observeMismatch()
		m.logger.Warn("snapshot version mismatch",
			"expected", m.version,
			"found", snap.Version)
		return &VersionMismatchError{Expected: m.version, Found: snap.Version}
	}

	if err := m.decode(snap.State); err != nil {
		m.metrics.observeRestoreFailure()
		return err
	}

	m.metrics.observeRestore()
	m.logger.Debug("snapshot restored",
		"version", snap.Version,
		"taken_at", snap.Time())
	return nil
}

// World returns the world this manager captures. No copy is made.
func (m *Manager) World() World {
	return m.world
}

// Version returns the version new snapshots are tagged with and restores expect.
func (m *Manager) Version() int {
	return m.version
}

// UpgradeVersion sets the manager's version. It does not check that the
// version increases, and it does not migrate snapshots taken before.
// Snapshots tagged with the old version no longer restore.
func (m *Manager) UpgradeVersion(version int) {
	m.logger.Info("snapshot version upgraded",
		"from", m.version,
		"to", version)
	m.version = version
}

func (m *Manager) encode(mode Mode) (string, error) {
	var (
		state any
		err   error
	)
	if mode == Differential {
		state, err = m.encodeDifferences()
	} else {
		state, err = m.world.ExportState()
	}
	if err != nil {
		return "", fmt.Errorf("snapshot: export world: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("snapshot: encode state: %w", err)
	}
	return string(data), nil
}

// encodeDifferences is a placeholder for differential encoding. Until a
// diff format exists it returns the full exported state.
func (m *Manager) encodeDifferences() (any, error) {
	m.logger.Debug("differential snapshots are not implemented, taking a full snapshot")
	return m.world.ExportState()
}

// decode parses state and hands it to the world. Decode and import errors
// are returned without wrapping.
func (m *Manager) decode(state string) error {
	dec := json.NewDecoder(strings.NewReader(state))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errTrailingData
	}
	return m.world.ImportState(value)
}
