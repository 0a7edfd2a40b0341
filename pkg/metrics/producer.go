package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ProducerMetrics contains Prometheus metrics for the reading generator.
type ProducerMetrics struct {
	ReadingsSent      *prometheus.CounterVec
	SendFailures      *prometheus.CounterVec
	SendDuration      prometheus.Histogram
	ActiveProducers   prometheus.Gauge
	ReadingsSeeded    *prometheus.CounterVec
	ReadingsGenerated prometheus.Counter
}

// NewProducerMetrics creates and registers generator metrics.
func NewProducerMetrics(namespace string) *ProducerMetrics {
	m := &ProducerMetrics{
		ReadingsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "readings_sent_total",
				Help:      "Total number of readings accepted by the ingest endpoint",
			},
			[]string{"area"},
		),
		SendFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "send_failures_total",
				Help:      "Total number of failed ingest calls",
			},
			[]string{"area", "reason"},
		),
		SendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "send_duration_seconds",
				Help:      "Duration of ingest calls",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ActiveProducers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "active_producers",
				Help:      "Number of active device producers",
			},
		),
		ReadingsSeeded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "seeder",
				Name:      "readings_written_total",
				Help:      "Total number of historical readings written directly to the store",
			},
			[]string{"area"},
		),
		ReadingsGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "readings_generated_total",
				Help:      "Total number of readings generated",
			},
		),
	}

	MustRegister(
		m.ReadingsSent,
		m.SendFailures,
		m.SendDuration,
		m.ActiveProducers,
		m.ReadingsSeeded,
		m.ReadingsGenerated,
	)

	return m
}
