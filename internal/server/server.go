// Package server exposes the aggregated catalog over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/logging"
	"github.com/Sternrassler/swapi-aggregator/pkg/metrics"
	"github.com/Sternrassler/swapi-aggregator/pkg/pagination"
	"github.com/Sternrassler/swapi-aggregator/pkg/resolve"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Config holds HTTP server settings.
type Config struct {
	// Addr is the listen address, e.g. ":5593". ":0" picks a free port.
	Addr string

	// RequestTimeout bounds all upstream work for one request.
	RequestTimeout time.Duration

	// ReadyTimeout bounds the readiness probe.
	ReadyTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown when the caller's context has no deadline.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":5593",
		RequestTimeout:  60 * time.Second,
		ReadyTimeout:    2 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Dependencies are the collaborators the handlers use.
type Dependencies struct {
	Collector *pagination.Collector
	Resolver  *resolve.Resolver

	// Readiness is probed by /ready; nil means always ready.
	Readiness func(context.Context) error
}

// Server is one HTTP server instance with its own router and listener.
type Server struct {
	collector *pagination.Collector
	resolver  *resolve.Resolver
	readiness func(context.Context) error
	config    Config
	logger    zerolog.Logger
	handler   http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	done       chan error
}

// New creates a server. It does not listen until Start is called.
func New(deps Dependencies, cfg Config) (*Server, error) {
	if deps.Collector == nil {
		return nil, fmt.Errorf("collector is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}

	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaults.ReadyTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	s := &Server{
		collector: deps.Collector,
		resolver:  deps.Resolver,
		readiness: deps.Readiness,
		config:    cfg,
		logger:    logging.NewLogger("http-server"),
	}
	s.handler = s.routes()
	return s, nil
}

// routes builds the chi router with middleware.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.observe)
	r.Use(s.recoverer)

	r.Get("/people", s.handlePeople)
	r.Get("/planets", s.handlePlanets)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// Handler returns the router, for use with httptest or an external server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.done = make(chan error, 1)

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Listening")

	go func(srv *http.Server, done chan<- error) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
		close(done)
	}(s.httpServer, s.done)

	return nil
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// Done is closed after the server stops serving; it yields a serve error if any.
func (s *Server) Done() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.httpServer, s.done
	s.httpServer, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-done
}
