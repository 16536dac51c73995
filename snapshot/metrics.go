package snapshot

import "github.com/prometheus/client_golang/prometheus"

// Metrics records Manager activity in Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	snapshots      *prometheus.CounterVec
	snapshotErrors prometheus.Counter
	restores       prometheus.Counter
	restoreErrors  prometheus.Counter
	mismatches     prometheus.Counter
	stateSizeBytes prometheus.Histogram
}

// NewMetrics creates the snapshot metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "snapshot",
			Name:      "taken_total",
			Help:      "Snapshots taken, by requested mode",
		}, []string{"mode"}),
		snapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "snapshot",
			Name:      "errors_total",
			Help:      "Snapshots that failed to export or encode",
		}),
		restores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "snapshot",
			Name:      "restores_total",
			Help:      "Snapshots successfully restored",
		}),
		restoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "snapshot",
			Name:      "restore_errors_total",
			Help:      "Restores that failed while decoding or importing state",
		}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "snapshot",
			Name:      "version_mismatches_total",
			Help:      "Restores rejected because of a version mismatch",
		}),
		stateSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arena",
			Subsystem: "snapshot",
			Name:      "state_size_bytes",
			Help:      "Size of the encoded state of taken snapshots",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		}),
	}

	reg.MustRegister(
		m.snapshots,
		m.snapshotErrors,
		m.restores,
		m.restoreErrors,
		m.mismatches,
		m.stateSizeBytes,
	)
	return m
}

func (m *Metrics) observeSnapshot(mode Mode, size int) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(mode.String()).Inc()
	m.stateSizeBytes.Observe(float64(size))
}

func (m *Metrics) observeSnapshotFailure() {
	if m == nil {
		return
	}
	m.snapshotErrors.Inc()
}

func (m *Metrics) observeRestore() {
	if m == nil {
		return
	}
	m.restores.Inc()
}

func (m *Metrics) observeRestoreFailure() {
	if m == nil {
		return
	}
	m.restoreErrors.Inc()
}

func (m *Metrics) observeMismatch() {
	if m == nil {
		return
	}
	m.mismatches.Inc()
}
