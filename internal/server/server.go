// Package server exposes the read-only HTTP and WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/server/handler"
	"github.com/alanyoungcy/cyclebot/internal/server/middleware"
	"github.com/alanyoungcy/cyclebot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	// RateLimit requests per RateWindow per client IP; 0 disables.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers to register. Metrics may be nil.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Iterations *handler.IterationHandler
	Metrics    http.Handler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wraps them in the middleware chain.
// limiter is only consulted when cfg.RateLimit is set.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	protect := func(h http.HandlerFunc) http.Handler {
		var out http.Handler = middleware.Auth(cfg.APIKey)(h)
		if limiter != nil && cfg.RateLimit > 0 {
			out = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(out)
		}
		return out
	}

	mux := http.NewServeMux()

	// Probes and scrapers skip auth and rate limiting.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	mux.Handle("GET /api/status", protect(handlers.Status.GetStatus))
	mux.Handle("GET /api/iterations/latest", protect(handlers.Iterations.Latest))
	mux.Handle("GET /api/opportunities/recent", protect(handlers.Iterations.RecentOpportunities))
	if hub != nil {
		mux.Handle("GET /ws", protect(hub.HandleWS))
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests within the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
