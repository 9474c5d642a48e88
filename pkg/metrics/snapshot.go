package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initSnapshotMetrics(cfg Config) {
	m.compiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compiles_total",
			Help:      "Snapshot builds by status",
		},
		[]string{"status"},
	)

	m.compileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Time to build and compile a snapshot",
			Buckets:   cfg.CompileDurationBuckets,
		},
	)

	m.snapshotNodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_nodes",
			Help:      "Nodes in the live snapshot by kind",
		},
		[]string{"kind"},
	)

	m.snapshotEdges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_edges",
			Help:      "Edges in the live snapshot by graph layer",
		},
		[]string{"layer"},
	)

	m.snapshotKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_keywords",
			Help:      "Keywords in the live snapshot's automaton",
		},
	)

	m.ingested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_total",
			Help:      "Corpus records written by kind",
		},
		[]string{"kind"},
	)

	m.registry.MustRegister(m.compiles, m.compileDuration, m.snapshotNodes, m.snapshotEdges, m.snapshotKeys, m.ingested)
}

// RecordCompile records a snapshot build.
func (m *Manager) RecordCompile(status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.compiles.WithLabelValues(status).Inc()
	m.compileDuration.Observe(duration.Seconds())
}

// SnapshotSize describes the live snapshot.
type SnapshotSize struct {
	Features      int
	Events        int
	Keywords      int
	MemoryEdges   int
	OntologyEdges int
}

// SetSnapshotSize updates the snapshot gauges.
func (m *Manager) SetSnapshotSize(s SnapshotSize) {
	if !m.enabled {
		return
	}
	m.snapshotNodes.WithLabelValues("feature").Set(float64(s.Features))
	m.snapshotNodes.WithLabelValues("event").Set(float64(s.Events))
	m.snapshotEdges.WithLabelValues("memory").Set(float64(s.MemoryEdges))
	m.snapshotEdges.WithLabelValues("ontology").Set(float64(s.OntologyEdges))
	m.snapshotKeys.Set(float64(s.Keywords))
}

// RecordIngest counts n records of kind (entry, relation, link, forget).
func (m *Manager) RecordIngest(kind string, n int) {
	if !m.enabled || n <= 0 {
		return
	}
	m.ingested.WithLabelValues(kind).Add(float64(n))
}
