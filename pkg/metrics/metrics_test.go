package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordRetrieval(ModeSingle, "ok", 3*time.Millisecond, 2, 5)
	m.RecordRetrieval(ModeEnhanced, "not_ready", time.Millisecond, 0, 0)
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCompile("ok", 20*time.Millisecond)
	m.SetSnapshotSize(SnapshotSize{Features: 4, Events: 2, Keywords: 4, MemoryEdges: 1, OntologyEdges: 2})
	m.RecordIngest("entry", 2)
	m.RecordHTTPRequest("GET", "/api/v1/retrieve", "200", 5*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expectedMetrics := []string{
		"pedsa_retrievals_total",
		"pedsa_retrieval_duration_seconds",
		"pedsa_retrieval_activated_keywords",
		"pedsa_retrieval_hits",
		"pedsa_cache_requests_total",
		"pedsa_compiles_total",
		"pedsa_compile_duration_seconds",
		"pedsa_snapshot_nodes",
		"pedsa_snapshot_edges",
		"pedsa_snapshot_keywords",
		"pedsa_ingested_total",
		"pedsa_http_requests_total",
		"pedsa_http_request_duration_seconds",
		"go_goroutines",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	m := NewManager(Config{Enabled: false})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestRecordRetrieval_Counts(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordRetrieval(ModeSingle, "ok", time.Millisecond, 1, 1)
	m.RecordRetrieval(ModeSingle, "ok", time.Millisecond, 1, 1)
	m.RecordRetrieval(ModeSingle, "not_ready", time.Millisecond, 0, 0)

	if got := testutil.ToFloat64(m.retrievals.WithLabelValues(ModeSingle, "ok")); got != 2 {
		t.Errorf("ok retrievals = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.retrievals.WithLabelValues(ModeSingle, "not_ready")); got != 1 {
		t.Errorf("not_ready retrievals = %v, want 1", got)
	}
}

func TestCacheCounters(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordCacheMiss()
	m.RecordCacheHit()
	m.RecordCacheHit()

	if got := testutil.ToFloat64(m.cacheRequests.WithLabelValues("hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheRequests.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
}

func TestSnapshotGauges(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.SetSnapshotSize(SnapshotSize{Features: 10, Events: 3, Keywords: 9, MemoryEdges: 4, OntologyEdges: 6})
	m.SetSnapshotSize(SnapshotSize{Features: 11, Events: 3, Keywords: 10, MemoryEdges: 4, OntologyEdges: 6})

	if got := testutil.ToFloat64(m.snapshotNodes.WithLabelValues("feature")); got != 11 {
		t.Errorf("features = %v, want 11", got)
	}
	if got := testutil.ToFloat64(m.snapshotEdges.WithLabelValues("ontology")); got != 6 {
		t.Errorf("ontology edges = %v, want 6", got)
	}
	if got := testutil.ToFloat64(m.snapshotKeys); got != 10 {
		t.Errorf("keywords = %v, want 10", got)
	}
}

func TestRecordIngest_IgnoresNonPositive(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordIngest("link", 0)
	m.RecordIngest("link", -3)
	m.RecordIngest("link", 2)

	if got := testutil.ToFloat64(m.ingested.WithLabelValues("link")); got != 2 {
		t.Errorf("ingested links = %v, want 2", got)
	}
}

func TestStartServer(t *testing.T) {
	m := NewManager(DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.StartServer(ctx, 19191, "/metrics")
	}()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://localhost:19191/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("Failed to reach metrics server: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("Expected runtime metrics in server output")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("StartServer returned %v after shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("StartServer did not return after cancel")
	}
}

func TestStartServer_Disabled(t *testing.T) {
	m := NoOpManager()
	if err := m.StartServer(context.Background(), 19192, "/metrics"); err != nil {
		t.Errorf("disabled StartServer returned %v", err)
	}
}

func TestNoOpManager(t *testing.T) {
	m := NoOpManager()

	if m.Enabled() {
		t.Error("NoOpManager should be disabled")
	}

	// Should not panic
	m.RecordRetrieval(ModeEnhanced, "ok", time.Second, 1, 1)
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCompile("error", time.Second)
	m.SetSnapshotSize(SnapshotSize{Features: 1})
	m.RecordIngest("entry", 1)
	m.RecordHTTPRequest("GET", "/", "200", time.Millisecond)
	m.IncActiveConnections()
	m.DecActiveConnections()
}

func BenchmarkRecordRetrieval(b *testing.B) {
	m := NewManager(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordRetrieval(ModeSingle, "ok", time.Millisecond, 3, 5)
	}
}

func BenchmarkRecordHTTPRequest(b *testing.B) {
	m := NewManager(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordHTTPRequest("GET", "/api/v1/retrieve", "200", time.Millisecond)
	}
}

func BenchmarkNoOpRecording(b *testing.B) {
	m := NoOpManager()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordRetrieval(ModeSingle, "ok", time.Millisecond, 3, 5)
	}
}
