package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/database"
	"github.com/vincentbai/browsetrace-vitals/internal/metrics"
	"github.com/vincentbai/browsetrace-vitals/internal/models"
	"github.com/vincentbai/browsetrace-vitals/internal/transport"
)

type capture struct {
	mu      sync.Mutex
	actions []string
}

func (c *capture) Send(hitType string, fields analytics.Fields) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hitType == analytics.HitPageview {
		c.actions = append(c.actions, "pageview")
		return
	}
	action, _ := fields[analytics.FieldEventAction].(string)
	c.actions = append(c.actions, action)
}

func (c *capture) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.actions...)
}

type testServer struct {
	*Server
	hits     *capture
	journal  *transport.Journal
	registry *prometheus.Registry
}

func setupTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()

	// Create temporary database
	tmpDir, err := os.MkdirTemp("", "browsetrace-server-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create test database: %v", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hits := &capture{}
	journal := transport.NewJournal(db, logger, m)

	server := NewServer(db, "127.0.0.1:0", transport.Fanout{hits, journal}, Options{ // Port 0 for testing
		Logger:   logger,
		Metrics:  m,
		Gatherer: registry,
	})

	cleanup := func() {
		journal.Close(context.Background())
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return &testServer{Server: server, hits: hits, journal: journal, registry: registry}, cleanup
}

func postSignals(t *testing.T, s *Server, batch models.Batch) *http.Response {
	t.Helper()
	jsonData, _ := json.Marshal(batch)
	req := httptest.NewRequest(http.MethodPost, "/signals", bytes.NewReader(jsonData))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleSignals(w, req)
	return w.Result()
}

func pageLifecycle() []models.Signal {
	title := "Test Page"
	return []models.Signal{
		{
			Type:       models.SignalInit,
			URL:        "https://example.com/docs?page=2",
			Title:      &title,
			ClientID:   "client-1",
			ReadyState: models.ReadyStateLoading,
		},
		{Type: models.SignalEntries, Entries: []models.Entry{
			{EntryType: models.EntryPaint, Name: "first-contentful-paint", StartTime: 80},
			{EntryType: models.EntryLayoutShift, Value: 0.1},
		}},
		{Type: models.SignalLoad, Navigation: &models.Navigation{
			RequestStart: 3, ResponseStart: 12, ResponseEnd: 30, DomContentLoadedEventStart: 60, LoadEventStart: 90,
		}},
	}
}

func TestNewServer(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	if server == nil {
		t.Fatal("Expected non-nil server")
	}
	if server.db == nil {
		t.Fatal("Expected non-nil database")
	}
	if server.address != "127.0.0.1:0" {
		t.Errorf("Expected address 127.0.0.1:0, got %s", server.address)
	}
	if server.ActivePages() != 0 {
		t.Errorf("Expected no active pages, got %d", server.ActivePages())
	}
}

func TestHandleHealthz(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	server.handleHealthz(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body := w.Body.String()
	if body != "ok" {
		t.Errorf("Expected body 'ok', got %s", body)
	}
}

func TestHandleSignalsPageLifecycle(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := postSignals(t, server.Server, models.Batch{WindowID: "tab-1", Signals: pageLifecycle()})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", resp.StatusCode)
	}
	if server.ActivePages() != 1 {
		t.Errorf("Expected 1 active page, got %d", server.ActivePages())
	}

	resp = postSignals(t, server.Server, models.Batch{WindowID: "tab-1", Signals: []models.Signal{
		{Type: models.SignalUnload},
	}})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", resp.StatusCode)
	}
	if server.ActivePages() != 0 {
		t.Errorf("Expected page retired after unload, got %d active", server.ActivePages())
	}

	got := strings.Join(server.hits.snapshot(), ",")
	if got != "pageview,FCP,track,CLS" {
		t.Errorf("Unexpected hits %s", got)
	}
	if v := testutil.ToFloat64(server.metrics.SignalsReceived.WithLabelValues(models.SignalInit)); v != 1 {
		t.Errorf("init signals = %v, want 1", v)
	}
	if v := testutil.ToFloat64(server.metrics.ActivePages); v != 0 {
		t.Errorf("active pages gauge = %v, want 0", v)
	}
}

func TestHandleSignalsReinitReplacesPage(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	init := models.Batch{WindowID: "tab-1", Signals: pageLifecycle()[:1]}
	postSignals(t, server.Server, init)
	resp := postSignals(t, server.Server, init)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", resp.StatusCode)
	}
	if server.ActivePages() != 1 {
		t.Errorf("Expected 1 active page, got %d", server.ActivePages())
	}
	if got := server.hits.snapshot(); len(got) != 2 {
		t.Errorf("Expected a pageview per init, got %v", got)
	}
}

func TestHandleSignalsErrors(t *testing.T) {
	tests := []struct {
		name       string
		batch      models.Batch
		wantStatus int
	}{
		{"missing window id", models.Batch{Signals: pageLifecycle()}, http.StatusBadRequest},
		{"unknown window", models.Batch{WindowID: "tab-9", Signals: []models.Signal{{Type: models.SignalLoad}}}, http.StatusNotFound},
		{"unknown signal type", models.Batch{WindowID: "tab-1", Signals: []models.Signal{
			pageLifecycle()[0], {Type: "scroll"},
		}}, http.StatusBadRequest},
		{"error signal without error", models.Batch{WindowID: "tab-1", Signals: []models.Signal{
			pageLifecycle()[0], {Type: models.SignalError},
		}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, cleanup := setupTestServer(t)
			defer cleanup()

			resp := postSignals(t, server.Server, tt.batch)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}
}

func TestHandleSignalsMethodNotAllowed(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/signals", nil)
	w := httptest.NewRecorder()

	server.handleSignals(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", resp.StatusCode)
	}
}

func TestHandleSignalsInvalidJSON(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	invalidJSON := []byte(`{"signals": [invalid json]}`)
	req := httptest.NewRequest(http.MethodPost, "/signals", bytes.NewReader(invalidJSON))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.handleSignals(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestHandleHits(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	postSignals(t, server.Server, models.Batch{WindowID: "tab-1", Signals: pageLifecycle()})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.journal.Close(ctx); err != nil {
		t.Fatalf("Journal did not drain: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/hits?limit=2", nil)
	w := httptest.NewRecorder()
	server.handleHits(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var hits []models.Hit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		t.Fatalf("Failed to decode hits: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	for _, hit := range hits {
		if hit.WindowID == "" {
			t.Errorf("Expected journalled hits to carry the hit window id, got %+v", hit)
		}
	}
}

func TestHandleHitsBadLimit(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/hits?limit=-3", nil)
	w := httptest.NewRecorder()
	server.handleHits(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHandleHitsJournalDisabled(t *testing.T) {
	server := NewServer(nil, "127.0.0.1:0", nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/hits", nil)
	w := httptest.NewRecorder()
	server.handleHits(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	postSignals(t, server.Server, models.Batch{WindowID: "tab-1", Signals: pageLifecycle()[:1]})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "browsetrace_agent_signals_received_total") {
		t.Errorf("Expected signal counter in metrics output")
	}
}

func TestStartShutsDownOnCancel(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down")
	}
}

func TestEvictIdlePages(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	clock := time.Unix(1_700_000_000, 0)
	server.now = func() time.Time { return clock }
	server.idle = time.Minute

	init := pageLifecycle()[:1]
	postSignals(t, server.Server, models.Batch{WindowID: "tab-1", Signals: init})
	clock = clock.Add(50 * time.Second)
	postSignals(t, server.Server, models.Batch{WindowID: "tab-2", Signals: init})

	clock = clock.Add(20 * time.Second)
	if n := server.EvictIdle(); n != 1 {
		t.Fatalf("EvictIdle() = %d, want 1", n)
	}
	if server.ActivePages() != 1 {
		t.Errorf("Expected 1 active page, got %d", server.ActivePages())
	}
	if v := testutil.ToFloat64(server.metrics.ActivePages); v != 1 {
		t.Errorf("active pages gauge = %v, want 1", v)
	}

	resp := postSignals(t, server.Server, models.Batch{WindowID: "tab-1", Signals: []models.Signal{{Type: models.SignalLoad}}})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected evicted window to be unknown, got status %d", resp.StatusCode)
	}

	// Any signal refreshes the idle clock.
	clock = clock.Add(50 * time.Second)
	postSignals(t, server.Server, models.Batch{WindowID: "tab-2", Signals: []models.Signal{{Type: models.SignalLoad}}})
	clock = clock.Add(50 * time.Second)
	if n := server.EvictIdle(); n != 0 {
		t.Errorf("EvictIdle() = %d, want 0 for a recently active page", n)
	}
	if got := server.hits.snapshot(); got[len(got)-1] == "CLS" {
		t.Errorf("Eviction must not flush CLS, got %v", got)
	}
}

func TestEvictIdleDisabled(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	postSignals(t, server.Server, models.Batch{WindowID: "tab-1", Signals: pageLifecycle()[:1]})
	server.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	if n := server.EvictIdle(); n != 0 {
		t.Errorf("EvictIdle() = %d, want 0 without an idle timeout", n)
	}
}
