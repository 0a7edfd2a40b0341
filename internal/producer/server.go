package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"procodus.dev/hardwater/pkg/generator"
	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/waterapi"
)

// ServerConfig holds the configuration for the producer server.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// APIURL is the data API base URL
	APIURL string
	// Secret is the device secret sent as bearer token
	Secret string
	// Profiles are assigned to producers round-robin. Defaults to
	// generator.DefaultProfiles.
	Profiles []generator.Profile
	// Interval is the time between readings of one producer
	Interval time.Duration
	// ProducerCount is the number of concurrent producers
	ProducerCount int
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.ProducerMetrics
	// Ingester overrides the data API client. Optional.
	Ingester Ingester
}

// Server manages multiple producer instances.
type Server struct {
	logger    *slog.Logger
	config    *ServerConfig
	producers []*Producer
	wg        sync.WaitGroup
	metrics   *metrics.ProducerMetrics
}

var (
	errInvalidProducerCount = errors.New("producer count must be greater than 0")
	errInvalidInterval      = errors.New("interval must be greater than 0")
	errLoggerRequired       = errors.New("logger is required")
	errSecretRequired       = errors.New("device secret is required")
)

// NewServer creates a new producer server with the given configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.ProducerCount <= 0 {
		return nil, errInvalidProducerCount
	}

	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	ingester := cfg.Ingester
	if ingester == nil {
		if cfg.Secret == "" {
			return nil, errSecretRequired
		}

		client, err := waterapi.New(&waterapi.Config{
			Logger:  cfg.Logger,
			BaseURL: cfg.APIURL,
			Secret:  cfg.Secret,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create data API client: %w", err)
		}
		ingester = client
	}

	profiles := cfg.Profiles
	if len(profiles) == 0 {
		profiles = generator.DefaultProfiles
	}

	s := &Server{
		config:    cfg,
		producers: make([]*Producer, 0, cfg.ProducerCount),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}

	for i := range cfg.ProducerCount {
		profile := profiles[i%len(profiles)]
		producer := NewProducer(cfg.Logger.With(slog.Int("producer_id", i)), ingester, profile)

		if cfg.Metrics != nil {
			producer.SetMetrics(cfg.Metrics)
		}

		s.producers = append(s.producers, producer)

		s.logger.Info("created producer instance",
			"producer_id", i,
			"area", profile.Area,
			"device_id", producer.Device.DeviceID,
		)
	}

	return s, nil
}

// Producers returns the simulated devices.
func (s *Server) Producers() []*Producer {
	return s.producers
}

// Run starts all producers and blocks until shutdown signal is received.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	for i, producer := range s.producers {
		s.wg.Add(1)
		go s.runProducer(ctx, i, producer)
	}

	s.logger.Info("producer server started",
		"producer_count", len(s.producers),
		"interval", s.config.Interval,
	)

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down")
	}

	s.logger.Info("waiting for producers to shut down...")
	s.wg.Wait()

	s.logger.Info("producer server stopped")
	return nil
}

// runProducer posts a reading on every tick until ctx ends.
func (s *Server) runProducer(ctx context.Context, id int, producer *Producer) {
	defer s.wg.Done()

	if s.metrics != nil {
		s.metrics.ActiveProducers.Inc()
		defer s.metrics.ActiveProducers.Dec()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	producerLogger := s.logger.With(slog.Int("producer_id", id), slog.String("area", producer.Device.Area))
	producerLogger.Info("producer started")

	for {
		select {
		case <-ctx.Done():
			producerLogger.Info("producer shutting down")
			return

		case <-ticker.C:
			result, err := producer.SendReading(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				producerLogger.Error("failed to send reading", "error", err)
				continue
			}

			producerLogger.Debug("reading sent", "key", result.Key)
		}
	}
}
