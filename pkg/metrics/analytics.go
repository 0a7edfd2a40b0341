package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AnalyticsMetrics contains Prometheus metrics for the analytics service.
type AnalyticsMetrics struct {
	HTTP                  *HTTPMetrics
	ForecastsTotal        *prometheus.CounterVec
	ForecastDuration      prometheus.Histogram
	UpstreamRequestsTotal *prometheus.CounterVec
	JobsStartedTotal      prometheus.Counter
	JobsByStatus          *prometheus.GaugeVec
	AlertsTotal           *prometheus.CounterVec
}

// NewAnalyticsMetrics creates and registers analytics service metrics.
func NewAnalyticsMetrics(namespace string) *AnalyticsMetrics {
	m := &AnalyticsMetrics{
		HTTP: NewHTTPMetrics(namespace),
		ForecastsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "forecast",
				Name:      "forecasts_total",
				Help:      "Total number of forecasts by history source",
			},
			[]string{"source"}, // source: real, synthetic, none
		),
		ForecastDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "forecast",
				Name:      "duration_seconds",
				Help:      "Duration of forecast computation including history fetch",
				Buckets:   prometheus.DefBuckets,
			},
		),
		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of data API requests",
			},
			[]string{"endpoint", "status"}, // status: success, empty, error
		),
		JobsStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "started_total",
				Help:      "Total number of treatment jobs started",
			},
		),
		JobsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "by_status",
				Help:      "Number of treatment jobs in each status",
			},
			[]string{"status"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "contamination_total",
				Help:      "Total number of readings that raised a contamination alert",
			},
			[]string{"area"},
		),
	}

	MustRegister(
		m.ForecastsTotal,
		m.ForecastDuration,
		m.UpstreamRequestsTotal,
		m.JobsStartedTotal,
		m.JobsByStatus,
		m.AlertsTotal,
	)

	return m
}
