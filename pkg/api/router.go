// Package api provides HTTP API server components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pedsa/pedsa/config"
	"github.com/pedsa/pedsa/pkg/api/handlers"
	"github.com/pedsa/pedsa/pkg/api/middleware"
	"github.com/pedsa/pedsa/pkg/api/response"
	"github.com/pedsa/pedsa/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Health handles the probe endpoints
	Health *handlers.HealthHandler

	// Memory handles corpus and retrieval endpoints
	Memory *handlers.MemoryHandler

	// Events streams hub events over websocket
	Events *handlers.EventsHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(chimw.RealIP)
	r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	if cfg.Server.RateLimit.Enabled {
		r.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.Server.RateLimit)))
	}
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound,
			"no route for "+r.URL.Path, middleware.GetRequestID(r.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.ErrCodeMethodNotAllowed,
			r.Method+" not allowed on "+r.URL.Path, middleware.GetRequestID(r.Context()))
	})

	RegisterRoutes(r, h)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, h *Handlers) {
	if h.Memory != nil || h.Events != nil {
		r.Route("/api/v1", func(r chi.Router) {
			if h.Events != nil {
				r.Get("/events", h.Events.ServeHTTP)
			}
			if h.Memory == nil {
				return
			}
			m := h.Memory
			r.Route("/entries", func(r chi.Router) {
				r.Post("/", m.CreateEntry)
				r.Get("/", m.ListEntries)
				r.Post("/batch", m.CreateEntries)
				r.Post("/forget", m.ForgetEntries)
				r.Get("/{id}", m.GetEntry)
				r.Delete("/{id}", m.DeleteEntry)
			})
			r.Post("/relations", m.CreateRelation)
			r.Post("/links", m.CreateLink)
			r.Post("/compile", m.Compile)
			r.Get("/retrieve", m.Retrieve)
			r.Post("/retrieve", m.Retrieve)
			r.Post("/retrieve/enhanced", m.RetrieveEnhanced)
			r.Get("/stats", m.GetStats)
			r.Get("/timeline", m.GetTimeline)
			r.Get("/params", m.GetParams)
			r.Put("/params", m.UpdateParams)
		})
	}

	// Probes are not versioned
	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}
}
