package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/hardwater/internal/backend"
	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/mq"
)

var apiCmd = &cobra.Command{
	Use:     "api",
	Aliases: []string{"backend"},
	Short:   "Run the data API server",
	Long: `Run the data API server that:
- Accepts authenticated sensor readings on POST /ingest
- Persists readings to memory, PostgreSQL or Redis
- Serves areas, latest readings and history
- Optionally publishes reading events to RabbitMQ`,
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)

	// API-specific flags
	apiCmd.Flags().Int("http-port", 5000, "HTTP server port")
	apiCmd.Flags().String("ingest-secret", "", "pre-shared device secret for POST /ingest")
	apiCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL (empty disables reading events)")
	apiCmd.Flags().String("queue-name", mq.DefaultReadingsQueue, "RabbitMQ queue name for reading events")
	addStoreFlags(apiCmd, "api")

	// Bind flags to viper
	_ = viper.BindPFlag("api.http.port", apiCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("api.ingest.secret", apiCmd.Flags().Lookup("ingest-secret"))
	_ = viper.BindPFlag("api.rabbitmq.url", apiCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("api.rabbitmq.queue_name", apiCmd.Flags().Lookup("queue-name"))
}

func runAPI(_ *cobra.Command, _ []string) error {
	logger := GetLogger("api")
	logger.Info("starting data API service")

	config := &backend.ServerConfig{
		Logger:       logger,
		Store:        storeConfigFromViper("api"),
		Metrics:      metrics.NewAPIMetrics("hardwater"),
		MQMetrics:    metrics.NewMQMetrics("hardwater"),
		IngestSecret: viper.GetString("api.ingest.secret"),
		RabbitMQURL:  viper.GetString("api.rabbitmq.url"),
		QueueName:    viper.GetString("api.rabbitmq.queue_name"),
		HTTPPort:     viper.GetInt("api.http.port"),
	}

	server, err := backend.NewServer(config)
	if err != nil {
		logger.Error("failed to create data API server", "error", err)
		return err
	}

	logger.Info("data API server configuration",
		"store_driver", config.Store.Driver,
		"http_port", config.HTTPPort,
		"events_enabled", config.RabbitMQURL != "",
		"queue", config.QueueName,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("data API server error", "error", err)
		return err
	}

	logger.Info("data API server stopped")
	return nil
}
