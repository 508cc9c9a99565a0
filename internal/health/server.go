// Package health serves liveness, readiness and metrics endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ptscripts/ptbot/internal/logger"
)

// Config contains configuration for the health server.
type Config struct {
	// Listen is the host:port to bind, e.g. ":9090".
	Listen string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Ready reports whether the bot is connected and monitors are restored.
	Ready func() bool

	// Status returns extra details for /status. Optional.
	Status func() interface{}

	// Metrics serves /metrics. Optional.
	Metrics http.Handler
}

// Server provides HTTP health check endpoints.
type Server struct {
	config     *Config
	httpServer *http.Server
	listener   net.Listener
	startTime  time.Time

	mu      sync.Mutex
	started bool
}

// HealthResponse represents the JSON response for /healthz.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// ReadinessResponse represents the JSON response for /ready.
type ReadinessResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// StatusResponse represents the JSON response for /status.
type StatusResponse struct {
	Ready   bool        `json:"ready"`
	Uptime  string      `json:"uptime"`
	Details interface{} `json:"details,omitempty"`
}

// NewServer creates a new health server with the given configuration.
func NewServer(config *Config) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Listen == "" {
		return nil, fmt.Errorf("listen address cannot be empty")
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 5 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.Ready == nil {
		config.Ready = func() bool { return true }
	}

	return &Server{
		config:    config,
		startTime: time.Now(),
	}, nil
}

// Handler returns the HTTP handler with every endpoint mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	if s.config.Metrics != nil {
		mux.Handle("/metrics", s.config.Metrics)
	}
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("health server already started")
	}

	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	s.started = true
	logger.WithField("addr", ln.Addr().String()).Info("Health server started")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown health server: %w", err)
	}

	s.started = false
	logger.Infof("Health server stopped")
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{Ready: s.config.Ready(), Timestamp: time.Now()}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
		resp.Message = "not connected or monitors not restored yet"
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Ready:  s.config.Ready(),
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.config.Status != nil {
		resp.Details = s.config.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Debug("Failed to encode health response")
	}
}
