package backend

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

	"procodus.dev/hardwater/internal/store"
	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/mq"
)

// Server represents the data API server: reading store, optional event
// publisher and the HTTP surface.
type Server struct {
	logger     *slog.Logger
	store      store.Store
	mqClient   *mq.Client
	httpServer *http.Server
	config     *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Store selects the reading store backend.
	Store *store.Config

	// Optional metrics.
	Metrics   *metrics.APIMetrics
	MQMetrics *metrics.MQMetrics

	// IngestSecret is the pre-shared device secret for POST /ingest.
	IngestSecret string

	// RabbitMQ configuration. An empty URL disables event publishing.
	RabbitMQURL string
	QueueName   string

	// HTTP server configuration
	HTTPPort int
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store config cannot be nil")
	}

	if cfg.IngestSecret == "" {
		return nil, errors.New("ingest secret cannot be empty")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.RabbitMQURL != "" && cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty when rabbitmq is enabled")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the data API and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting data API server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	s.config.Store.Logger = s.logger
	st, err := store.New(s.config.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize reading store: %w", err)
	}
	s.store = st

	s.logger.Info("reading store initialized", "driver", s.config.Store.Driver)

	var publisher mq.Publisher
	if s.config.RabbitMQURL != "" {
		s.mqClient = mq.New(s.config.QueueName, s.config.RabbitMQURL, s.logger)
		if s.config.MQMetrics != nil {
			s.mqClient.SetMetrics(s.config.MQMetrics)
		}
		publisher = s.mqClient
		s.logger.Info("publishing reading events", "queue", s.config.QueueName)
	}

	gateway, err := NewGateway(&GatewayConfig{
		Logger:    s.logger,
		Store:     s.store,
		Publisher: publisher,
		Metrics:   s.config.Metrics,
		Secret:    s.config.IngestSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	query, err := NewQuery(&QueryConfig{
		Logger:  s.logger,
		Store:   s.store,
		Metrics: s.config.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize query service: %w", err)
	}

	mux, err := NewRouter(&RouterConfig{
		Logger:  s.logger,
		Gateway: gateway,
		Query:   query,
		Store:   s.store,
		Metrics: s.config.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize routes: %w", err)
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

	s.logger.Info("data API server started successfully")

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
			_ = s.Shutdown()
			return err
		}
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down data API server")

	var shutdownErr error
	appendErr := func(what string, err error) {
		s.logger.Error("shutdown step failed", "step", what, "error", err)
		if shutdownErr != nil {
			shutdownErr = fmt.Errorf("%w; %s error: %w", shutdownErr, what, err)
		} else {
			shutdownErr = fmt.Errorf("%s error: %w", what, err)
		}
	}

	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			appendErr("HTTP server shutdown", err)
		}
		s.logger.Info("HTTP server stopped")
	}

	if s.mqClient != nil {
		s.logger.Info("closing message queue client")
		// Never connected is not a shutdown failure.
		_ = s.mqClient.Close()
	}

	if s.store != nil {
		s.logger.Info("closing reading store")
		if err := s.store.Close(); err != nil {
			appendErr("store close", err)
		}
	}

	if shutdownErr != nil {
		s.logger.Error("data API server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("data API server shutdown completed successfully")
	return nil
}
