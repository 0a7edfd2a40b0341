// Package analytics is the analytics service: trend forecasts, contamination
// alerts, sample analysis and simulated treatment jobs on top of the data API.
package analytics

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
	"procodus.dev/hardwater/pkg/mq"
	"procodus.dev/hardwater/pkg/waterapi"
)

// Server represents the analytics server.
type Server struct {
	logger     *slog.Logger
	consumer   *AlertConsumer
	httpServer *http.Server
	config     *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Optional metrics.
	Metrics   *metrics.AnalyticsMetrics
	MQMetrics *metrics.MQMetrics

	// UpstreamURL is the data API base URL.
	UpstreamURL string

	// TimeScale compresses treatment job duration.
	TimeScale float64

	// RabbitMQ configuration. An empty URL disables the alert consumer.
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

	if cfg.UpstreamURL == "" {
		return nil, errors.New("upstream URL cannot be empty")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.TimeScale < 0 {
		return nil, errors.New("time scale cannot be negative")
	}

	if cfg.RabbitMQURL != "" && cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty when rabbitmq is enabled")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the analytics service and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting analytics server")

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

	catalog := NewCatalog(s.logger, upstream)
	areas := catalog.Refresh(ctx)
	s.logger.Info("monitored areas", "areas", areas, "upstream", upstream.BaseURL())

	engine, err := NewEngine(&EngineConfig{
		Logger: s.logger,
		Sources: []HistorySource{
			NewRemoteHistorySource(s.logger, upstream),
			NewSyntheticHistorySource(catalog, nil),
		},
		Metrics: s.config.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize forecast engine: %w", err)
	}

	tracker, err := NewTracker(&TrackerConfig{
		Logger:    s.logger,
		Hardness:  LatestHardness{Upstream: upstream},
		Metrics:   s.config.Metrics,
		TimeScale: s.config.TimeScale,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize job tracker: %w", err)
	}

	monitor, err := NewMonitor(&MonitorConfig{
		Logger:   s.logger,
		Upstream: upstream,
		Metrics:  s.config.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}

	if s.config.RabbitMQURL != "" {
		client := mq.New(s.config.QueueName, s.config.RabbitMQURL, s.logger)
		if s.config.MQMetrics != nil {
			client.SetMetrics(s.config.MQMetrics)
		}

		s.consumer, err = NewConsumer(&ConsumerConfig{
			Logger:  s.logger,
			Client:  client,
			Monitor: monitor,
			Queue:   s.config.QueueName,
			Metrics: s.config.MQMetrics,
		})
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to create consumer: %w", err)
		}
		s.consumer.Start(ctx)
	}

	mux, err := NewRouter(&RouterConfig{
		Logger:  s.logger,
		Catalog: catalog,
		Engine:  engine,
		Tracker: tracker,
		Monitor: monitor,
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
		// Forecasts may wait on upstream retries.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("analytics server started successfully")

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

func (s *Server) observeUpstream(endpoint, status string, _ time.Duration) {
	if s.config.Metrics != nil {
		s.config.Metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, status).Inc()
	}
}

// Shutdown gracefully shuts down the server. Running treatment jobs are not
// waited for.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down analytics server")

	var shutdownErr error

	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		s.logger.Info("HTTP server stopped")
	}

	if s.consumer != nil {
		// Never connected is not a shutdown failure.
		if err := s.consumer.Stop(); err != nil {
			s.logger.Warn("alert consumer stop", "error", err)
		}
	}

	if shutdownErr != nil {
		s.logger.Error("analytics server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("analytics server shutdown completed successfully")
	return nil
}
