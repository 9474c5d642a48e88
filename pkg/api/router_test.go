package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pedsa/pedsa/config"
	"github.com/pedsa/pedsa/pkg/api/handlers"
	"github.com/pedsa/pedsa/pkg/api/middleware"
	"github.com/pedsa/pedsa/pkg/api/response"
	"github.com/pedsa/pedsa/pkg/logger"
	"github.com/pedsa/pedsa/pkg/memory"
	"github.com/pedsa/pedsa/pkg/storage"
	memstore "github.com/pedsa/pedsa/pkg/storage/memory"
)

type recordedRequest struct {
	method, path, status string
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeRecorder) RecordHTTPRequestContext(_ context.Context, method, path, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{method, path, status})
}

func (f *fakeRecorder) IncActiveConnections() {}
func (f *fakeRecorder) DecActiveConnections() {}

func (f *fakeRecorder) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

// createTestHandlers wires handlers over a started hub with manual
// compilation.
func createTestHandlers(t *testing.T) (*Handlers, *memory.Hub) {
	t.Helper()

	hubCfg := memory.DefaultHubConfig()
	hubCfg.AutoCompile = false
	store := memstore.NewMemoryStorage()
	hub := memory.NewHub(hubCfg, store, memory.WithLogger(logger.Nop()))
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("failed to start hub: %v", err)
	}
	t.Cleanup(func() {
		hub.Stop(context.Background()) //nolint:errcheck
		store.Close()                  //nolint:errcheck
	})

	return &Handlers{
		Health: handlers.NewHealthHandler(hub),
		Memory: handlers.NewMemoryHandler(hub, logger.Nop()),
	}, hub
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	router := NewRouter(config.DefaultConfig(), logger.Nop(), &Handlers{})
	if router == nil {
		t.Fatal("NewRouter returned nil")
	}
}

func TestRouter_Routes(t *testing.T) {
	h, _ := createTestHandlers(t)
	router := NewRouter(config.DefaultConfig(), logger.Nop(), h)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/ready", "", http.StatusOK},
		{http.MethodGet, "/status", "", http.StatusOK},
		{http.MethodPost, "/api/v1/entries", `{"id":1,"content":"在上海开会","keywords":["上海"]}`, http.StatusCreated},
		{http.MethodGet, "/api/v1/entries", "", http.StatusOK},
		{http.MethodGet, "/api/v1/entries/1", "", http.StatusOK},
		{http.MethodPost, "/api/v1/entries/batch", `{"entries":[{"id":2,"content":"北京"}]}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/relations", `{"source":"上海","target":"沪","weight":1}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/links", `{"source":1,"target":2,"weight":0.5}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/compile", "", http.StatusOK},
		{http.MethodPost, "/api/v1/retrieve", `{"query":"上海"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/retrieve?q=%E4%B8%8A%E6%B5%B7", "", http.StatusOK},
		{http.MethodPost, "/api/v1/retrieve/enhanced", `{"terms":[{"term":"上海"}]}`, http.StatusOK},
		{http.MethodGet, "/api/v1/stats", "", http.StatusOK},
		{http.MethodGet, "/api/v1/timeline", "", http.StatusOK},
		{http.MethodGet, "/api/v1/params", "", http.StatusOK},
		{http.MethodPut, "/api/v1/params", `{"seed_cap":5}`, http.StatusAccepted},
		{http.MethodPost, "/api/v1/entries/forget", `{"ids":[2]}`, http.StatusOK},
		{http.MethodDelete, "/api/v1/entries/1", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(router, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if w.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("expected request id header")
			}
		})
	}
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	h, _ := createTestHandlers(t)
	router := NewRouter(config.DefaultConfig(), logger.Nop(), h)

	tests := []struct {
		method   string
		path     string
		want     int
		wantCode string
	}{
		{http.MethodGet, "/nope", http.StatusNotFound, response.ErrCodeNotFound},
		{http.MethodGet, "/api/v2/retrieve", http.StatusNotFound, response.ErrCodeNotFound},
		{http.MethodDelete, "/api/v1/compile", http.StatusMethodNotAllowed, response.ErrCodeMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := serve(router, tt.method, tt.path, "")
			if w.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, w.Code)
			}
			var resp response.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode error envelope: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, resp.Error.Code)
			}
			if resp.Error.RequestID == "" {
				t.Error("expected request id in envelope")
			}
		})
	}
}

func TestRouter_MetricsUseRoutePattern(t *testing.T) {
	h, _ := createTestHandlers(t)
	rec := &fakeRecorder{}
	h.Metrics = rec
	router := NewRouter(config.DefaultConfig(), logger.Nop(), h)

	serve(router, http.MethodGet, "/api/v1/entries/42", "")
	serve(router, http.MethodGet, "/api/v1/entries/43", "")
	serve(router, http.MethodGet, "/random/path", "")

	got := rec.recorded()
	if len(got) != 3 {
		t.Fatalf("expected 3 recorded requests, got %d", len(got))
	}
	if got[0].path != "/api/v1/entries/{id}" || got[1].path != got[0].path {
		t.Errorf("expected route pattern labels, got %q and %q", got[0].path, got[1].path)
	}
	if got[0].status != "404" {
		t.Errorf("expected status 404 for unknown entry, got %s", got[0].status)
	}
	if got[2].path != "unmatched" {
		t.Errorf("expected unmatched label, got %q", got[2].path)
	}
}

func TestRouter_BodyLimit(t *testing.T) {
	h, _ := createTestHandlers(t)
	cfg := config.DefaultConfig()
	cfg.Server.MaxBodyBytes = 32
	router := NewRouter(cfg, logger.Nop(), h)

	body := `{"id":1,"content":"` + strings.Repeat("a", 64) + `"}`
	w := serve(router, http.MethodPost, "/api/v1/entries", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRouter_RateLimit(t *testing.T) {
	h, _ := createTestHandlers(t)
	cfg := config.DefaultConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 0.001,
		Burst:             2,
		ClientTTL:         time.Minute,
	}
	router := NewRouter(cfg, logger.Nop(), h)

	for i := 0; i < 2; i++ {
		if w := serve(router, http.MethodGet, "/api/v1/stats", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	w := serve(router, http.MethodGet, "/api/v1/stats", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRouter_CORS(t *testing.T) {
	h, _ := createTestHandlers(t)
	cfg := config.DefaultConfig()
	cfg.Server.CORS.Enabled = true
	router := NewRouter(cfg, logger.Nop(), h)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/params", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPut) {
		t.Errorf("expected PUT in allowed methods, got %q", got)
	}
}

func TestRouter_EventStream(t *testing.T) {
	events := handlers.NewEventsHandler(logger.Nop(), handlers.EventsConfig{})
	defer events.Close()

	hubCfg := memory.DefaultHubConfig()
	hubCfg.AutoCompile = false
	store := memstore.NewMemoryStorage()
	hub := memory.NewHub(hubCfg, store, memory.WithLogger(logger.Nop()), memory.WithObserver(events))
	ctx := context.Background()
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("failed to start hub: %v", err)
	}
	t.Cleanup(func() {
		hub.Stop(ctx) //nolint:errcheck
		store.Close() //nolint:errcheck
	})

	cfg := config.DefaultConfig()
	cfg.Server.RequestTimeout = 50 * time.Millisecond
	server := httptest.NewServer(NewRouter(cfg, logger.Nop(), &Handlers{
		Memory: handlers.NewMemoryHandler(hub, logger.Nop()),
		Events: events,
	}))
	defer server.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/v1/events", nil)
	if err != nil {
		t.Fatalf("dial through middleware chain: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("upgrade status = %d, want 101", resp.StatusCode)
	}

	type message struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	read := func() message {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read event: %v", err)
		}
		return m
	}
	if m := read(); m.Type != "connected" {
		t.Fatalf("first message = %q, want connected", m.Type)
	}

	// Outlive the request timeout to show the stream is not bounded by it.
	time.Sleep(2 * cfg.Server.RequestTimeout)

	if err := hub.Ingest(ctx, storage.Entry{ID: 1, Content: "在上海开会", Keywords: []string{"上海"}}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	w := serve(server.Config.Handler, http.MethodPost, "/api/v1/compile", "")
	if w.Code != http.StatusOK {
		t.Fatalf("compile status = %d: %s", w.Code, w.Body.String())
	}

	m := read()
	if m.Type != memory.EventSnapshotCompiled {
		t.Fatalf("event type = %q, want %s", m.Type, memory.EventSnapshotCompiled)
	}
	var snap memory.Snapshot
	if err := json.Unmarshal(m.Payload, &snap); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	current, ok := hub.Snapshot()
	if !ok || snap.Version != current.Version {
		t.Errorf("payload version = %q, want %q", snap.Version, current.Version)
	}
	if !snap.Stats.Compiled || snap.Stats.Events != current.Stats.Events {
		t.Errorf("unexpected stats: %+v", snap.Stats)
	}
}
