// Package gateway serves the supervisor's health over HTTP: a probe endpoint
// for container orchestration, the raw status snapshot, a WebSocket stream of
// snapshot changes and Prometheus metrics.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aizenshtat/autonomous-coding-agent/internal/health"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
	"github.com/aizenshtat/autonomous-coding-agent/internal/status"
)

// StatusSource provides the current status snapshot. *status.Store
// implements it.
type StatusSource interface {
	Read() status.Snapshot
}

// Server exposes the status file. Server is safe for concurrent use.
type Server struct {
	config     *Config
	source     StatusSource
	staleAfter time.Duration
	now        func() time.Time
	upgrader   websocket.Upgrader
	registry   *prometheus.Registry
	server     *http.Server
	mu         sync.RWMutex
	running    bool
}

// Config holds gateway server configuration including network binding options.
type Config struct {
	// Host is the network interface to bind to (e.g., "127.0.0.1" or "0.0.0.0").
	Host string `yaml:"host"`
	// Port is the TCP port number to listen on.
	Port int `yaml:"port"`
	// Auth protects /api/v1/* and /ws when set.
	Auth *AuthConfig `yaml:"auth,omitempty"`
	// PushInterval is how often /ws checks the snapshot for changes.
	PushInterval time.Duration `yaml:"push_interval,omitempty"`
}

const defaultPushInterval = 2 * time.Second

// ServerOption is a functional option for configuring Server.
type ServerOption func(*Server)

// WithStaleAfter sets the heartbeat staleness threshold of /health.
func WithStaleAfter(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer creates a new gateway server with the given configuration.
// The server is not started until Start is called.
func NewServer(config *Config, source StatusSource, opts ...ServerOption) *Server {
	s := &Server{
		config:     config,
		source:     source,
		staleAfter: health.DefaultStaleAfter,
		now:        time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Allow requests with no origin (same-origin, CLI tools, etc.)
				if origin == "" {
					return true
				}
				return strings.HasPrefix(origin, "http://localhost") ||
					strings.HasPrefix(origin, "http://127.0.0.1") ||
					strings.HasPrefix(origin, "https://localhost") ||
					strings.HasPrefix(origin, "https://127.0.0.1")
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(newStatusCollector(source, s.staleAfter, s.now))
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, s.registry},
		promhttp.HandlerOpts{},
	))

	protect := func(h http.HandlerFunc) http.Handler { return h }
	if s.config.Auth != nil {
		auth := NewAuthenticator(s.config.Auth)
		protect = func(h http.HandlerFunc) http.Handler { return auth.Middleware(h) }
	}
	mux.Handle("/api/v1/status", protect(s.handleStatus))
	mux.Handle("/ws", protect(s.handleWebSocket))
	return mux
}

// Start starts the gateway server and blocks until the context is cancelled
// or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	logging.WithComponent("gateway").Info("Gateway starting", slog.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the server with a 30-second timeout.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.running = false
	return s.server.Shutdown(ctx)
}

func (s *Server) report() *health.Report {
	return health.Evaluate(s.source.Read(), s.now(), s.staleAfter)
}

// handleHealth answers 200 when the probe is healthy and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.report()

	code := http.StatusOK
	state := "healthy"
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": state,
		"report": report,
	})
}

// handleStatus returns the raw status snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.source.Read())
}
