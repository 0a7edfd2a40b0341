// Package producer simulates sensor devices posting readings to the data API
// and seeds historical readings directly into the reading store.
package producer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/hardwater/pkg/generator"
	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/water"
	"procodus.dev/hardwater/pkg/waterapi"
)

// Ingester posts one reading to the data API.
type Ingester interface {
	Ingest(ctx context.Context, r water.Reading) (waterapi.IngestResult, error)
}

// Producer is one simulated device bound to an area profile.
type Producer struct {
	Device *generator.Device

	logger    *slog.Logger
	ingester  Ingester
	generator *generator.ReadingGenerator
	metrics   *metrics.ProducerMetrics
}

// NewProducer creates a device with a random identity in the profile's area.
func NewProducer(logger *slog.Logger, ingester Ingester, profile generator.Profile) *Producer {
	device := generator.NewDevice(profile.Area)
	return &Producer{
		Device:    device,
		logger:    logger.With("device_id", device.DeviceID, "area", profile.Area),
		ingester:  ingester,
		generator: generator.NewReadingGenerator(profile, 0),
	}
}

// SetMetrics sets the metrics collector for this producer.
func (p *Producer) SetMetrics(m *metrics.ProducerMetrics) {
	p.metrics = m
}

// SendReading generates a reading and posts it.
func (p *Producer) SendReading(ctx context.Context) (waterapi.IngestResult, error) {
	area := p.Device.Area

	reading := p.generator.Generate(time.Now())
	reading.Extra = map[string]any{
		"device_id": p.Device.DeviceID,
		"firmware":  p.Device.Firmware,
	}

	if p.metrics != nil {
		p.metrics.ReadingsGenerated.Inc()
		timer := prometheus.NewTimer(p.metrics.SendDuration)
		defer timer.ObserveDuration()
	}

	result, err := p.ingester.Ingest(ctx, reading)
	if err != nil {
		if p.metrics != nil {
			p.metrics.SendFailures.WithLabelValues(area, failureReason(err)).Inc()
		}
		return waterapi.IngestResult{}, err
	}

	if p.metrics != nil {
		p.metrics.ReadingsSent.WithLabelValues(area).Inc()
	}

	p.logger.Debug("reading ingested", "key", result.Key, "tds", reading.TDS)
	return result, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, water.ErrAuthentication):
		return "unauthorized"
	case errors.Is(err, water.ErrValidation):
		return "rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unavailable"
	}
}
