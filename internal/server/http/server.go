// Package httpserver provides the HTTP API for running searches and
// managing the response cache.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/helixir/research-finder/internal/aggregator"
	"github.com/helixir/research-finder/internal/cache"
	"github.com/helixir/research-finder/internal/papersources"
)

// SearchRunner executes aggregation runs. *aggregator.Aggregator satisfies it.
type SearchRunner interface {
	Run(ctx context.Context, req aggregator.Request) (*aggregator.Result, error)
}

// SourceLister lists the registered sources. *papersources.Registry satisfies it.
type SourceLister interface {
	Sources() []papersources.Source
}

// Server is the HTTP API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	runner     SearchRunner
	sources    SourceLister
	cache      cache.Store
	metrics    http.Handler
	config     Config
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MetricsPath is where the metrics handler is mounted. Defaults to /metrics.
	MetricsPath string
}

// NewServer creates a new HTTP server. store and metricsHandler may be nil;
// the cache endpoint then reports the cache as disabled and no metrics
// route is mounted.
func NewServer(
	cfg Config,
	runner SearchRunner,
	sources SourceLister,
	store cache.Store,
	metricsHandler http.Handler,
	logger zerolog.Logger,
) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		runner:  runner,
		sources: sources,
		cache:   store,
		metrics: metricsHandler,
		config:  cfg,
		logger:  logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(s.loggerMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	if s.metrics != nil {
		r.Method(http.MethodGet, s.config.MetricsPath, s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Get("/search", s.search)
		r.Get("/sources", s.listSources)
		r.Get("/cache", s.cacheStats)
		r.Delete("/cache", s.clearCache)
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
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns liveness status. The process is live whether or not
// the cache answers; the cache state is reported for operators.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "cache": "disabled"}
	if s.cache != nil {
		if _, err := s.cache.Stats(r.Context()); err != nil {
			resp["cache"] = "unhealthy"
		} else {
			resp["cache"] = "healthy"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// readinessHandler reports ready once the cache answers and at least one
// source is enabled.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.cache != nil {
		if _, err := s.cache.Stats(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("cache not ready")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"cache":  "unhealthy",
			})
			return
		}
	}

	enabled := 0
	for _, src := range s.sources.Sources() {
		if src.IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"sources": "none enabled",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"enabled_sources": enabled,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
