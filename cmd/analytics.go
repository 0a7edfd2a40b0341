package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/hardwater/internal/analytics"
	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/mq"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Run the analytics server",
	Long: `Run the analytics server that:
- Forecasts TDS per area from the data API history
- Reports contamination alerts and analyzes ad-hoc samples
- Tracks simulated softener treatment jobs
- Optionally consumes reading events from RabbitMQ`,
	RunE: runAnalytics,
}

func init() {
	rootCmd.AddCommand(analyticsCmd)

	analyticsCmd.Flags().Int("http-port", 5001, "HTTP server port")
	analyticsCmd.Flags().String("upstream-url", "http://127.0.0.1:5000", "data API base URL")
	analyticsCmd.Flags().Float64("time-scale", 1, "treatment job speed-up factor")
	analyticsCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL (empty disables the alert consumer)")
	analyticsCmd.Flags().String("queue-name", mq.DefaultReadingsQueue, "RabbitMQ queue name for reading events")

	_ = viper.BindPFlag("analytics.http.port", analyticsCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("analytics.upstream.url", analyticsCmd.Flags().Lookup("upstream-url"))
	_ = viper.BindPFlag("analytics.treatment.time_scale", analyticsCmd.Flags().Lookup("time-scale"))
	_ = viper.BindPFlag("analytics.rabbitmq.url", analyticsCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("analytics.rabbitmq.queue_name", analyticsCmd.Flags().Lookup("queue-name"))
}

func runAnalytics(_ *cobra.Command, _ []string) error {
	logger := GetLogger("analytics")
	logger.Info("starting analytics service")

	config := &analytics.ServerConfig{
		Logger:      logger,
		Metrics:     metrics.NewAnalyticsMetrics("hardwater"),
		MQMetrics:   metrics.NewMQMetrics("hardwater"),
		UpstreamURL: viper.GetString("analytics.upstream.url"),
		TimeScale:   viper.GetFloat64("analytics.treatment.time_scale"),
		RabbitMQURL: viper.GetString("analytics.rabbitmq.url"),
		QueueName:   viper.GetString("analytics.rabbitmq.queue_name"),
		HTTPPort:    viper.GetInt("analytics.http.port"),
	}

	server, err := analytics.NewServer(config)
	if err != nil {
		logger.Error("failed to create analytics server", "error", err)
		return err
	}

	logger.Info("analytics server configuration",
		"upstream_url", config.UpstreamURL,
		"http_port", config.HTTPPort,
		"time_scale", config.TimeScale,
		"consumer_enabled", config.RabbitMQURL != "",
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("analytics server error", "error", err)
		return err
	}

	logger.Info("analytics server stopped")
	return nil
}
