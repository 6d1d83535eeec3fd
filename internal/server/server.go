// Package server wires the HTTP surface: a chi router over the
// diagnostics service with the shared middleware chain.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/silvermint/diagd/internal/config"
	"github.com/silvermint/diagd/internal/observability"
	"github.com/silvermint/diagd/internal/server/handlers"
	"github.com/silvermint/diagd/internal/server/middleware"
)

// Server is the daemon's HTTP listener.
type Server struct {
	cfg     config.ServerConfig
	router  chi.Router
	httpSrv *http.Server
}

// New builds the server over the given diagnostics service.
func New(cfg config.ServerConfig, svc handlers.RoutineService, info handlers.VersionInfo) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	if cfg.RateLimit > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}

	r.NotFound(middleware.NotFound)
	r.MethodNotAllowed(middleware.MethodNotAllowed)

	hm := handlers.GetHealthManager()
	r.Get("/health", hm.HealthHandler)
	r.Get("/health/live", hm.LiveHandler)
	r.Get("/health/ready", hm.ReadyHandler)
	r.Get("/health/startup", hm.StartupHandler)

	r.Get("/version", handlers.NewVersionHandler(info))

	rh := handlers.NewRoutineHandlers(svc)
	r.Get("/routines", rh.List)
	r.Post("/routines/{ref}", rh.RunOrCommand)

	return &Server{cfg: cfg, router: r}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.cfg.Port
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Start runs the listener until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.Logger.Info("HTTP server listening", zap.String("addr", s.Addr()))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	observability.Logger.Info("Shutting down HTTP server")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
