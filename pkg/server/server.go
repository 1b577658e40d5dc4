// Package server exposes the question answering pipeline over HTTP.
package server

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/barekit/relnotes/pkg/rag"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed openapi.yaml
var openAPISpec []byte

// Answerer answers one question.
type Answerer interface {
	Answer(ctx context.Context, question string) (rag.Answer, error)
}

// Counter reports the number of entries currently served.
type Counter interface {
	Name() string
	Count(ctx context.Context) (int, error)
}

// Server is the HTTP server for the question answering API.
type Server struct {
	answerer Answerer
	index    Counter
	logger   *slog.Logger
	addr     string
	server   *http.Server
}

// New creates a Server listening on addr.
func New(answerer Answerer, index Counter, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		answerer: answerer,
		index:    index,
		logger:   logger,
		addr:     addr,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs", http.StatusTemporaryRedirect)
	})
	r.Get("/docs", s.handleDocs)
	r.Get("/openapi.yaml", s.handleOpenAPI)
	r.Post("/rag/invoke", s.handleInvoke)
	r.Post("/answer", s.handleAnswer)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
