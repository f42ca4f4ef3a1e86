package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds Stop when no timeout is configured.
const DefaultShutdownTimeout = 5 * time.Second

// Server wraps http.Server and owns the graceful-shutdown deadline, so
// callers stop the service with a plain Stop() during teardown.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

func NewServer(addr string, handler http.Handler, shutdownTimeout time.Duration, logger *zap.Logger) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{httpServer: s, shutdownTimeout: shutdownTimeout, logger: logger}
}

func (s *Server) Start() error {
	s.logger.Info("Starting abacws-api HTTP server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Stop drains in-flight requests, forcing closure once the configured
// shutdown timeout elapses.
func (s *Server) Stop() error {
	s.logger.Info("Stopping abacws-api HTTP server",
		zap.Duration("timeout", s.shutdownTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
