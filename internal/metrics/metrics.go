// Package metrics holds the Prometheus collectors for commits and events.
//
// Collectors live on a private registry so several databases in one process
// (tests, the CLI harness) never collide on registration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "edb"

// Commit results.
const (
	ResultCommitted = "committed"
	ResultFailed    = "failed"
	ResultRejected  = "rejected"
)

// Metrics groups the collectors of one database. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	commits        *prometheus.CounterVec
	commitDuration prometheus.Histogram
	objectsWritten *prometheus.CounterVec
	events         *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Commits attempted, by result.",
		}, []string{"result"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Time spent persisting accepted commits.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		objectsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_written_total",
			Help:      "Object versions written, by operation.",
		}, []string{"op"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Events handled by the event processor, by kind and result.",
		}, []string{"kind", "result"}),
	}
	m.Registry.MustRegister(m.commits, m.commitDuration, m.objectsWritten, m.events)
	return m
}

// CommitFinished records the outcome of one commit attempt.
func (m *Metrics) CommitFinished(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(result).Inc()
	if result == ResultCommitted {
		m.commitDuration.Observe(elapsed.Seconds())
	}
}

// ObjectsWritten adds n written versions for op (insert, update, delete).
func (m *Metrics) ObjectsWritten(op string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.objectsWritten.WithLabelValues(op).Add(float64(n))
}

// EventProcessed records one handled event.
func (m *Metrics) EventProcessed(kind, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, result).Inc()
}

// Commits returns the commit counter, for tests and reports.
func (m *Metrics) Commits() *prometheus.CounterVec { return m.commits }

// Objects returns the written-objects counter.
func (m *Metrics) Objects() *prometheus.CounterVec { return m.objectsWritten }

// Events returns the processed-events counter.
func (m *Metrics) Events() *prometheus.CounterVec { return m.events }
