// Package rest exposes a read-only HTTP status surface over the
// supervisor: health, Prometheus metrics, and JSON snapshots of every
// pump's state. No control-plane endpoints are exposed here; commands are
// MQTT-only.
package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wavepump/pumpbridge/internal/api/middleware"
	"github.com/wavepump/pumpbridge/internal/supervisor"
)

// Config holds status-API server configuration.
type Config struct {
	Port        int
	AuthEnabled bool
	JWTSecret   string
	APIKeys     []string
}

// publicPaths lists the routes registerRoutes exposes without auth. It is
// the single source of truth for the exemption list the auth middleware
// enforces, so the two can never drift apart.
var publicPaths = []string{"/healthz", "/metrics"}

// Server is the status HTTP server, fronting one process's Supervisor.
type Server struct {
	source *supervisor.Supervisor
	ws     http.Handler
	config Config
	logger *slog.Logger
	srv    *http.Server
}

// NewServer builds a Server. ws, if non-nil, is mounted at GET /ws.
func NewServer(source *supervisor.Supervisor, config Config, ws http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{source: source, ws: ws, config: config, logger: logger}
}

// Start begins serving in the background. It never blocks.
func (s *Server) Start() error {
	r := mux.NewRouter()
	s.registerRoutes(r)

	if s.config.AuthEnabled {
		auth := middleware.NewAPIKeyAuth(s.config.APIKeys, s.config.JWTSecret, publicPaths)
		r.Use(auth.Handler)
		s.logger.Info("status API authentication enabled")
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	if s.config.Port == 0 {
		addr = ":8080"
	}
	s.srv = &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status API server error", "error", err)
		}
	}()

	s.logger.Info("status API listening", "addr", addr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/pumps/{id}", s.handlePump).Methods(http.MethodGet)

	if s.ws != nil {
		r.Handle("/ws", s.ws).Methods(http.MethodGet)
	}
}
