package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/hardwater/internal/frontend"
	"procodus.dev/hardwater/pkg/metrics"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"frontend"},
	Short:   "Run the dashboard server",
	Long: `Run the dashboard server that:
- Shows the latest reading of every area
- Shows per-area history with contamination alerts
- Reads everything from the data API`,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)

	dashboardCmd.Flags().Int("http-port", 8080, "HTTP server port")
	dashboardCmd.Flags().String("upstream-url", "http://127.0.0.1:5000", "data API base URL")
	dashboardCmd.Flags().Int("history-limit", frontend.DefaultHistoryLimit, "readings shown per area")

	_ = viper.BindPFlag("dashboard.http.port", dashboardCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("dashboard.upstream.url", dashboardCmd.Flags().Lookup("upstream-url"))
	_ = viper.BindPFlag("dashboard.history_limit", dashboardCmd.Flags().Lookup("history-limit"))
}

func runDashboard(_ *cobra.Command, _ []string) error {
	logger := GetLogger("dashboard")
	logger.Info("starting dashboard service")

	config := &frontend.ServerConfig{
		Logger:       logger,
		Metrics:      metrics.NewFrontendMetrics("hardwater"),
		HTTPPort:     viper.GetInt("dashboard.http.port"),
		UpstreamURL:  viper.GetString("dashboard.upstream.url"),
		HistoryLimit: viper.GetInt("dashboard.history_limit"),
	}

	server, err := frontend.NewServer(config)
	if err != nil {
		logger.Error("failed to create dashboard server", "error", err)
		return err
	}

	logger.Info("dashboard server configuration",
		"http_port", config.HTTPPort,
		"upstream_url", config.UpstreamURL,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("dashboard server error", "error", err)
		return err
	}

	logger.Info("dashboard server stopped")
	return nil
}
