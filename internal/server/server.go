// Package server exposes the health, status, and version endpoints for the
// long-running polling service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core/scheduler"
	"github.com/vitalsync/vitalsync/internal/server/handlers"
	servermw "github.com/vitalsync/vitalsync/internal/server/middleware"
)

// Server is the HTTP side-channel of the polling service.
type Server struct {
	router *chi.Mux
	server *http.Server
	host   string
	port   int
	log    *zap.Logger

	health *handlers.Health
	gen    *scheduler.Generator
	runner *scheduler.Runner
}

// New builds the router. gen and runner may be nil; the status endpoint
// then reports an empty document.
func New(host string, port int, health *handlers.Health, gen *scheduler.Generator, runner *scheduler.Runner, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(servermw.RequestID)
	r.Use(chimw.Recoverer)

	s := &Server{
		router: r,
		host:   host,
		port:   port,
		log:    log,
		health: health,
		gen:    gen,
		runner: runner,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health.Handler)
	s.router.Get("/health/live", s.health.LivenessHandler)
	s.router.Get("/health/ready", s.health.ReadinessHandler)
	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/status", s.statusHandler)
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info("starting http server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.log.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
