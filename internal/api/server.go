// Package api exposes the operator HTTP surface: the attempt log,
// passport overrides, scan-run history and dashboard stats.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/minipass/reconciler/internal/api/handlers"
	"github.com/minipass/reconciler/internal/api/middleware"
	"github.com/minipass/reconciler/internal/application/operator"
)

// Config holds API server configuration.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":8080",
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	svc        *operator.Service
}

// NewServer creates a new API server.
func NewServer(cfg Config, svc *operator.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
		svc:    svc,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}
	s.router.Use(middleware.CORS(corsConfig))
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.Get("/health", healthHandler.ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		// Attempt log
		attemptsHandler := handlers.NewAttemptsHandler(s.svc)
		r.Get("/attempts", attemptsHandler.List)
		r.Get("/attempts/{id}", attemptsHandler.Get)
		r.Post("/attempts/{id}/archive", attemptsHandler.Archive)
		r.Post("/attempts/{id}/unarchive", attemptsHandler.Unarchive)
		r.Post("/attempts/{id}/match", attemptsHandler.ManualMatch)

		// Passports
		passportsHandler := handlers.NewPassportsHandler(s.svc)
		r.Get("/passports/{id}", passportsHandler.Get)
		r.Post("/passports/{id}/reopen", passportsHandler.Reopen)

		// Scan runs
		runsHandler := handlers.NewRunsHandler(s.svc)
		r.Get("/runs", runsHandler.List)

		// Stats
		statsHandler := handlers.NewStatsHandler(s.svc)
		r.Get("/stats", statsHandler.Get)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", s.config.ListenAddr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
