package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval modes.
const (
	ModeSingle   = "single"
	ModeEnhanced = "enhanced"
)

func (m *Manager) initRetrievalMetrics(cfg Config) {
	m.retrievals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of retrievals by mode and status",
		},
		[]string{"mode", "status"},
	)

	m.retrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval latency in seconds",
			Buckets:   cfg.RetrievalDurationBuckets,
		},
		[]string{"mode"},
	)

	m.activatedKeywords = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_activated_keywords",
			Help:      "Keywords activated per retrieval",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"mode"},
	)

	m.retrievalHits = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_hits",
			Help:      "Results returned per retrieval",
			Buckets:   []float64{0, 1, 3, 5, 10, 20, 50},
		},
		[]string{"mode"},
	)

	m.cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Result cache lookups by outcome",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(m.retrievals, m.retrievalDuration, m.activatedKeywords, m.retrievalHits, m.cacheRequests)
}

// RecordRetrieval records one retrieval.
func (m *Manager) RecordRetrieval(mode, status string, duration time.Duration, activated, hits int) {
	if !m.enabled {
		return
	}
	m.retrievals.WithLabelValues(mode, status).Inc()
	m.retrievalDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.activatedKeywords.WithLabelValues(mode).Observe(float64(activated))
	m.retrievalHits.WithLabelValues(mode).Observe(float64(hits))
}

// RecordCacheHit records a result cache hit.
func (m *Manager) RecordCacheHit() {
	if !m.enabled {
		return
	}
	m.cacheRequests.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a result cache miss.
func (m *Manager) RecordCacheMiss() {
	if !m.enabled {
		return
	}
	m.cacheRequests.WithLabelValues("miss").Inc()
}
