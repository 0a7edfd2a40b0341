package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/waterapi"
)

// Server represents the dashboard HTTP server.
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	config     *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.FrontendMetrics

	// HTTP server configuration
	HTTPPort int

	// UpstreamURL is the data API base URL
	UpstreamURL string

	// HistoryLimit caps the readings shown per area. Defaults to DefaultHistoryLimit.
	HistoryLimit int
}

// NewServer creates a new dashboard Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.UpstreamURL == "" {
		return nil, errors.New("upstream URL cannot be empty")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the dashboard server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting dashboard server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	upstream, err := waterapi.New(&waterapi.Config{
		Logger:   s.logger,
		BaseURL:  s.config.UpstreamURL,
		Observer: s.observeUpstream,
	})
	if err != nil {
		return fmt.Errorf("failed to create data API client: %w", err)
	}

	s.logger.Info("using data API", "url", upstream.BaseURL())

	mux, err := NewRouter(&RouterConfig{
		Logger:       s.logger,
		Upstream:     upstream,
		Metrics:      s.config.Metrics,
		HistoryLimit: s.config.HistoryLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to build routes: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("dashboard server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown()
}

func (s *Server) observeUpstream(endpoint, status string, elapsed time.Duration) {
	if s.config.Metrics == nil {
		return
	}
	s.config.Metrics.UpstreamCalls.WithLabelValues(endpoint, status).Inc()
	s.config.Metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down dashboard server")

	if s.httpServer == nil {
		s.logger.Info("dashboard server shutdown completed successfully")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown HTTP server", "error", err)
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("dashboard server shutdown completed successfully")
	return nil
}
