package memory

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/pedsa/pedsa/pkg/cache"
	"github.com/pedsa/pedsa/pkg/logger"
	"github.com/pedsa/pedsa/pkg/metrics"
)

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithCache sets the result cache.
func WithCache(c cache.Cache) HubOption {
	return func(h *Hub) {
		if c != nil {
			h.cache = c
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) HubOption {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithTracer sets the tracer used for hub spans.
func WithTracer(t trace.Tracer) HubOption {
	return func(h *Hub) {
		if t != nil {
			h.tracer = t
		}
	}
}

// WithClock sets the clock snapshots use for recency decay.
func WithClock(clock func() time.Time) HubOption {
	return func(h *Hub) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithObserver registers an observer for hub events.
func WithObserver(o Observer) HubOption {
	return func(h *Hub) {
		if o != nil {
			h.observers = append(h.observers, o)
		}
	}
}
