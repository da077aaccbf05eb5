package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/browser"
	"github.com/vincentbai/browsetrace-vitals/internal/database"
	"github.com/vincentbai/browsetrace-vitals/internal/metrics"
	"github.com/vincentbai/browsetrace-vitals/internal/models"
	"github.com/vincentbai/browsetrace-vitals/internal/tracker"
)

// Options carries the optional collaborators of a Server.
type Options struct {
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer
	MaxQueuedErrors int

	// IdleTimeout evicts pages that sent no signal for this long, covering
	// tabs whose unload never arrived. Zero disables eviction.
	IdleTimeout time.Duration
}

// Server receives page signals from the browser and drives one instrumented
// page per window.
type Server struct {
	db        *database.Database // nil when the journal is disabled
	address   string
	server    *http.Server
	transport analytics.Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	maxQueued int
	idle      time.Duration
	now       func() time.Time

	mu    sync.Mutex
	pages map[string]*instrumentedPage
}

type instrumentedPage struct {
	page     *browser.Page
	tracker  *tracker.Tracker
	lastSeen time.Time // guarded by Server.mu
}

func NewServer(db *database.Database, address string, transport analytics.Transport, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		db:        db,
		address:   address,
		transport: transport,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		gatherer:  opts.Gatherer,
		maxQueued: opts.MaxQueuedErrors,
		idle:      opts.IdleTimeout,
		now:       time.Now,
		pages:     map[string]*instrumentedPage{},
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) handleSignals(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var batch models.Batch
	if err := json.NewDecoder(request.Body).Decode(&batch); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if batch.WindowID == "" {
		http.Error(w, "window_id is required", http.StatusBadRequest)
		return
	}
	for i, signal := range batch.Signals {
		s.metrics.Signal(signal.Type)
		if err := s.dispatch(batch.WindowID, signal); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, errUnknownWindow) {
				status = http.StatusNotFound
			}
			s.logger.Warn("signal rejected",
				"window_id", batch.WindowID, "index", i, "type", signal.Type, "error", err)
			http.Error(w, err.Error(), status)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent) // success, no body
}

var errUnknownWindow = errors.New("unknown window, send an init signal first")

// dispatch applies one signal. An init signal (re)creates the page and boots
// its tracker; an unload signal retires it once applied.
func (s *Server) dispatch(windowID string, signal models.Signal) error {
	if signal.Type == models.SignalInit {
		return s.open(windowID, signal)
	}

	s.mu.Lock()
	current, ok := s.pages[windowID]
	if ok {
		current.lastSeen = s.now()
	}
	s.mu.Unlock()
	if !ok {
		return errUnknownWindow
	}
	if err := current.page.Apply(signal); err != nil {
		return err
	}
	if current.page.Closed() {
		s.retire(windowID, current)
	}
	return nil
}

func (s *Server) open(windowID string, init models.Signal) error {
	page, err := browser.NewPage(windowID, init, s.maxQueued)
	if err != nil {
		return err
	}
	current := &instrumentedPage{page: page, lastSeen: s.now()}
	page.Run(func(h browser.Host) {
		current.tracker = tracker.Init(h, tracker.Options{Transport: s.transport})
	})

	s.mu.Lock()
	_, replaced := s.pages[windowID]
	s.pages[windowID] = current
	active := len(s.pages)
	s.mu.Unlock()

	s.setActive(active)
	s.logger.Info("page instrumented",
		"window_id", windowID, "hit_window_id", current.tracker.WindowID, "replaced", replaced)
	return nil
}

func (s *Server) retire(windowID string, current *instrumentedPage) {
	s.mu.Lock()
	if s.pages[windowID] == current {
		delete(s.pages, windowID)
	}
	active := len(s.pages)
	s.mu.Unlock()

	s.setActive(active)
	s.logger.Info("page unloaded", "window_id", windowID, "cls", current.tracker.CLS.Total())
}

// EvictIdle drops pages whose last signal is older than the idle timeout and
// returns how many were dropped. Evicted pages never flush CLS: no hidden
// transition was observed for them.
func (s *Server) EvictIdle() int {
	if s.idle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idle)

	s.mu.Lock()
	var evicted []string
	for windowID, current := range s.pages {
		if current.lastSeen.Before(cutoff) {
			delete(s.pages, windowID)
			evicted = append(evicted, windowID)
		}
	}
	active := len(s.pages)
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.setActive(active)
		s.logger.Info("idle pages evicted", "count", len(evicted), "window_ids", evicted)
	}
	return len(evicted)
}

func (s *Server) evictLoop(ctx context.Context) {
	interval := s.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle()
		}
	}
}

func (s *Server) setActive(n int) {
	if s.metrics != nil {
		s.metrics.ActivePages.Set(float64(n))
	}
}

// ActivePages returns the number of windows currently instrumented.
func (s *Server) ActivePages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

func (s *Server) handleHits(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "Hit journal disabled", http.StatusNotFound)
		return
	}
	limit := 0
	if raw := request.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	hits, err := s.db.RecentHits(limit)
	if err != nil {
		s.logger.Error("database error", "error", err)
		http.Error(w, "Failed to read hits", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(hits); err != nil {
		s.logger.Warn("writing hits response", "error", err)
	}
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/signals", s.handleSignals)
	mux.HandleFunc("/hits", s.handleHits)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      s.setupRoutes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("BrowserTrace vitals agent listening", "address", listener.Addr().String())
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if s.idle > 0 {
		evictContext, stopEvicting := context.WithCancel(ctx)
		defer stopEvicting()
		go s.evictLoop(evictContext)
	}

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("Shutting down server...")

	shutdownContext, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownContext); err != nil {
		return err
	}

	s.logger.Info("Server exited")
	return nil
}
