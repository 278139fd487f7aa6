// Package server exposes clustering runs as asynchronous HTTP jobs.
package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sanonone/gmc/pkg/config"
)

// Server holds the HTTP interface and the running clustering tasks.
type Server struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer  *http.Server
	handler     http.Handler
	taskManager *TaskManager

	// slots bounds the runs executing at once.
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewServer builds the server described by cfg. Runs use cfg.Clustering as
// their defaults.
func NewServer(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		taskManager: NewTaskManager(),
		slots:       make(chan struct{}, cfg.Server.MaxConcurrentRuns),
	}

	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Chain middlewares: Recovery -> Logging -> Auth -> Mux
	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = s.LoggingMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)

	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /healthz", s.handleHealthz)
	rootMux.Handle("GET /metrics", promhttp.Handler())
	rootMux.Handle("/", handler)

	s.handler = rootMux
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           rootMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, cancels the running tasks and waits for
// them to record their partial results.
func (s *Server) Shutdown() {
	log.Println("Starting graceful shutdown of HTTP Server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	s.taskManager.CancelAll()
	s.wg.Wait()
}
