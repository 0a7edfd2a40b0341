package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/hardwater/internal/producer"
	"procodus.dev/hardwater/internal/store"
	"procodus.dev/hardwater/pkg/generator"
	"procodus.dev/hardwater/pkg/metrics"
)

var generatorCmd = &cobra.Command{
	Use:   "generator",
	Short: "Run the data generator",
	Long: `Run the data generator that:
- Simulates one sensor device per producer, cycling through area profiles
- Posts authenticated readings to the data API on an interval
- With --seed, clears the reading store and writes simulated history directly`,
	RunE: runGenerator,
}

func init() {
	rootCmd.AddCommand(generatorCmd)

	flags := generatorCmd.Flags()
	flags.String("api-url", "http://127.0.0.1:5000", "data API base URL")
	flags.String("api-secret", "", "device secret sent on POST /ingest")
	flags.Int("producer-count", 6, "Number of concurrent producers")
	flags.Duration("interval", 5*time.Second, "Interval between readings of one producer")
	flags.String("profiles-file", "", "YAML area profiles (default built-in profiles)")
	flags.Bool("seed", false, "clear the store and seed simulated history, then exit")
	flags.Int("records-per-area", producer.DefaultRecordsPerArea, "readings written per area when seeding")
	flags.Uint64("random-seed", 0, "fixes seeded values (0 picks a random seed)")
	flags.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	addStoreFlags(generatorCmd, "generator")

	_ = viper.BindPFlag("generator.api.url", flags.Lookup("api-url"))
	_ = viper.BindPFlag("generator.api.secret", flags.Lookup("api-secret"))
	_ = viper.BindPFlag("generator.producer_count", flags.Lookup("producer-count"))
	_ = viper.BindPFlag("generator.interval", flags.Lookup("interval"))
	_ = viper.BindPFlag("generator.profiles_file", flags.Lookup("profiles-file"))
	_ = viper.BindPFlag("generator.seed", flags.Lookup("seed"))
	_ = viper.BindPFlag("generator.records_per_area", flags.Lookup("records-per-area"))
	_ = viper.BindPFlag("generator.random_seed", flags.Lookup("random-seed"))
	_ = viper.BindPFlag("generator.metrics.port", flags.Lookup("metrics-port"))
}

func runGenerator(cmd *cobra.Command, _ []string) error {
	logger := GetLogger("generator")
	logger.Info("starting generator service")

	profiles, err := generator.LoadProfiles(viper.GetString("generator.profiles_file"))
	if err != nil {
		logger.Error("failed to load area profiles", "error", err)
		return err
	}

	m := metrics.NewProducerMetrics("hardwater")
	if port := viper.GetInt("generator.metrics.port"); port > 0 {
		stop := serveMetrics(logger, port)
		defer stop()
	}

	if viper.GetBool("generator.seed") {
		return runSeed(cmd.Context(), logger, profiles, m)
	}

	config := &producer.ServerConfig{
		Logger:        logger,
		APIURL:        viper.GetString("generator.api.url"),
		Secret:        viper.GetString("generator.api.secret"),
		Profiles:      profiles,
		Interval:      viper.GetDuration("generator.interval"),
		ProducerCount: viper.GetInt("generator.producer_count"),
		Metrics:       m,
	}

	server, err := producer.NewServer(config)
	if err != nil {
		logger.Error("failed to create generator server", "error", err)
		return err
	}

	logger.Info("generator server configuration",
		"api_url", config.APIURL,
		"areas", len(profiles),
		"producer_count", config.ProducerCount,
		"interval", config.Interval,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("generator server error", "error", err)
		return err
	}

	logger.Info("generator server stopped")
	return nil
}

func runSeed(ctx context.Context, logger *slog.Logger, profiles []generator.Profile, m *metrics.ProducerMetrics) error {
	if ctx == nil {
		ctx = context.Background()
	}

	storeConfig := storeConfigFromViper("generator")
	storeConfig.Logger = logger

	s, err := store.New(storeConfig)
	if err != nil {
		logger.Error("failed to open reading store", "error", err, "driver", storeConfig.Driver)
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("failed to close reading store", "error", err)
		}
	}()

	seeder, err := producer.NewSeeder(&producer.SeederConfig{
		Logger:         logger,
		Store:          s,
		Profiles:       profiles,
		Metrics:        m,
		RecordsPerArea: viper.GetInt("generator.records_per_area"),
		Seed:           viper.GetUint64("generator.random_seed"),
	})
	if err != nil {
		return err
	}

	written, err := seeder.Seed(ctx)
	if err != nil {
		logger.Error("seeding failed", "error", err, "written", written)
		return fmt.Errorf("failed to seed store: %w", err)
	}

	logger.Info("store seeded", "driver", storeConfig.Driver, "records", written)
	return nil
}

// serveMetrics exposes the metrics registry until the returned func is called.
func serveMetrics(logger *slog.Logger, port int) func() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", srv.Addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
