// Package server provides the ops HTTP server: health, readiness and
// metrics endpoints, with lifecycle management.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/config"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/logutil"
)

// ReadinessFunc reports whether the bot has finished its startup sequence.
type ReadinessFunc func() bool

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        config.OpsConfig
	httpServer *http.Server
	logger     *slog.Logger
	ready      ReadinessFunc
	metrics    http.Handler

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new Server. ready may be nil (always not ready);
// metricsHandler may be nil (no /metrics route).
func New(cfg config.OpsConfig, logger *slog.Logger, ready ReadinessFunc, metricsHandler http.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logutil.NoopIfNil(logger),
		ready:   ready,
		metrics: metricsHandler,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the bound address once Start is listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.ListenAddr
}

// Start listens and serves. It blocks until the server is shut down and
// returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting ops server", "addr", ln.Addr().String())

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down ops server")
	return s.httpServer.Shutdown(ctx)
}
