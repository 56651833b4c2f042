// Package api provides the HTTP server for TapFlow.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/tapflow/tapflow/internal/flow"
	"github.com/tapflow/tapflow/internal/ratelimit"
	"github.com/tapflow/tapflow/internal/store"
)

// Server configuration defaults.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	CORSOrigins []string
	Limiter     *ratelimit.Limiter
}

// Option defines a functional option for server configuration.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithCORSOrigins sets the allowed CORS origins. Empty means allow all,
// which suits the default same-box UI deployment.
func WithCORSOrigins(origins []string) Option {
	return func(o *Opts) { o.CORSOrigins = origins }
}

// WithLimiter overrides the default turn rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(o *Opts) { o.Limiter = l }
}

// Server wires the conversation engine, store, and rate limiter behind HTTP.
type Server struct {
	st      store.Store
	flow    *flow.SessionFlow
	limiter *ratelimit.Limiter
	addr    string
	origins []string
}

// NewServer creates an API server around a store and a session flow engine.
func NewServer(st store.Store, sessionFlow *flow.SessionFlow, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewLimiter(ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	}
	return &Server{
		st:      st,
		flow:    sessionFlow,
		limiter: cfg.Limiter,
		addr:    cfg.Addr,
		origins: cfg.CORSOrigins,
	}
}

// Handler builds the full middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("GET /sessions", s.listSessionsHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/turns", s.turnHandler)
	mux.HandleFunc("GET /crisis/resources", s.crisisResourcesHandler)
	mux.HandleFunc("GET /health", s.healthHandler)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Forwarded-For", "X-Real-IP"},
	})
	return c.Handler(s.loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("Server.Run: shut down cleanly")
	return nil
}
