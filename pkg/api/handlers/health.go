package handlers

import (
	"net/http"
	"time"

	"github.com/pedsa/pedsa/pkg/api/response"
	"github.com/pedsa/pedsa/pkg/memory"
	"github.com/pedsa/pedsa/pkg/version"
)

// HealthHandler handles the probe endpoints.
type HealthHandler struct {
	hub     *memory.Hub
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(hub *memory.Hub) *HealthHandler {
	return &HealthHandler{
		hub:     hub,
		started: time.Now(),
	}
}

type readyResponse struct {
	Ready           bool   `json:"ready"`
	SnapshotVersion string `json:"snapshot_version,omitempty"`
}

type statusResponse struct {
	Status        string           `json:"status"`
	Build         version.Build    `json:"build"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Ready         bool             `json:"ready"`
	Hub           *memory.HubStats `json:"hub,omitempty"`
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// Ready handles the /ready endpoint. The server is ready once a snapshot
// has been published.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.hub.Snapshot()
	if !ok {
		response.JSON(w, http.StatusServiceUnavailable, readyResponse{Ready: false})
		return
	}
	response.JSON(w, http.StatusOK, readyResponse{Ready: true, SnapshotVersion: snap.Version})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:        "ok",
		Build:         version.Get(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Ready:         h.hub.Ready(),
	}

	stats, err := h.hub.Stats(r.Context())
	if err != nil {
		resp.Status = "degraded"
		response.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Hub = stats
	response.JSON(w, http.StatusOK, resp)
}
