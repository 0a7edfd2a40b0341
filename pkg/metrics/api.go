package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics contains Prometheus metrics for the data API service.
type APIMetrics struct {
	HTTP                   *HTTPMetrics
	IngestTotal            *prometheus.CounterVec
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	EventsPublishedTotal   *prometheus.CounterVec
	AreasKnown             prometheus.Gauge
}

// NewAPIMetrics creates and registers data API metrics.
func NewAPIMetrics(namespace string) *APIMetrics {
	m := &APIMetrics{
		HTTP: NewHTTPMetrics(namespace),
		IngestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "readings_total",
				Help:      "Total number of ingest attempts",
			},
			[]string{"status"}, // status: accepted, unauthorized, invalid, error
		),
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of reading store operations",
			},
			[]string{"operation", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Duration of reading store operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of reading events published",
			},
			[]string{"status"},
		),
		AreasKnown: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "areas_known",
				Help:      "Number of areas returned by the last area listing",
			},
		),
	}

	MustRegister(
		m.IngestTotal,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.EventsPublishedTotal,
		m.AreasKnown,
	)

	return m
}
