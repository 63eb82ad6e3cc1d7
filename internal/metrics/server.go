package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randomizedcoder/go-icecast-monitor/internal/logging"
)

// Server exposes /metrics, /healthz and /ws/levels. Every other path
// redirects to /metrics.
type Server struct {
	addr     string
	registry *Registry
	server   *http.Server
	logger   *slog.Logger

	// LevelsInterval is the push interval for /ws/levels.
	levelsInterval time.Duration

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a metrics server bound to addr once started.
func NewServer(addr string, registry *Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		addr:           addr,
		registry:       registry,
		logger:         logger,
		levelsInterval: 250 * time.Millisecond,
		done:           make(chan struct{}),
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		// No WriteTimeout: /ws/levels connections are long-lived.
		IdleTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the route mux. Exposed for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(s.registry.Gatherer(), promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/ws/levels", s.handleLevels)
	mux.HandleFunc("/", redirectHandler)

	return mux
}

// healthHandler reports process liveness, not stream state.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func redirectHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Location", "/metrics")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusFound)
	fmt.Fprintln(w, "see /metrics")
}

// Start binds the listener and serves in a goroutine. Bind errors are
// returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("metrics_server_started", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server and closes open level streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics_server_shutting_down")
	s.stopOnce.Do(func() { close(s.done) })
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
