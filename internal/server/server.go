// Package server provides the HTTP API for the publication discovery service.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/meridianbio/publication-discovery-service/internal/acquire"
	"github.com/meridianbio/publication-discovery-service/internal/database"
	"github.com/meridianbio/publication-discovery-service/internal/domain"
	"github.com/meridianbio/publication-discovery-service/internal/pipeline"
)

// Discoverer is the discovery pipeline surface the server exposes.
type Discoverer interface {
	Discover(ctx context.Context, bundle domain.IdentifierBundle, dataset domain.DatasetContext) (*pipeline.DiscoveryResult, error)
	Invalidate(ctx context.Context, bundle domain.IdentifierBundle) error
}

// Acquirer is the acquisition pipeline surface the server exposes.
type Acquirer interface {
	Acquire(ctx context.Context, record domain.CanonicalRecord) (*acquire.AcquisitionResult, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MetricsPath mounts the metrics handler when both it and
	// MetricsHandler are set.
	MetricsPath string
}

// Server is the HTTP API server.
type Server struct {
	router      chi.Router
	httpServer  *http.Server
	discovery   Discoverer
	acquisition Acquirer
	// db is nil when the cache runs on the memory backend.
	db             *database.DB
	metricsHandler http.Handler
	logger         zerolog.Logger
}

// NewServer creates an HTTP server with all dependencies. db and
// metricsHandler may be nil.
func NewServer(
	cfg Config,
	discovery Discoverer,
	acquisition Acquirer,
	db *database.DB,
	metricsHandler http.Handler,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		discovery:      discovery,
		acquisition:    acquisition,
		db:             db,
		metricsHandler: metricsHandler,
		logger:         logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter(cfg.MetricsPath)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter(metricsPath string) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if metricsPath != "" && s.metricsHandler != nil {
		r.Method(http.MethodGet, metricsPath, s.metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Post("/discoveries", s.runDiscovery)
		r.Post("/discoveries/invalidate", s.invalidateDiscovery)
		r.Post("/acquisitions", s.runAcquisition)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "cache": "memory"})
		return
	}

	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status including cache backend health.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "cache": "memory"})
		return
	}

	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}
