// Package backend implements the data API: authenticated reading ingestion and
// the latest/history views over the reading store.
package backend

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/hardwater/internal/store"
	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/mq"
	"procodus.dev/hardwater/pkg/water"
)

const publishTimeout = 10 * time.Second

var errIncompletePayload = water.Errorf(water.ErrValidation,
	"Invalid or incomplete data payload. Requires all fields: %s", strings.Join(water.RequiredFields, ", "))

// GatewayConfig holds the configuration for the Gateway.
type GatewayConfig struct {
	Logger *slog.Logger
	Store  store.Store

	// Publisher receives a ReadingEvent per accepted reading. Optional.
	Publisher mq.Publisher
	Metrics   *metrics.APIMetrics

	// Now overrides the gateway clock. Optional.
	Now func() time.Time

	// Secret is the pre-shared device secret. Empty rejects every request.
	Secret string
}

// Gateway authenticates, validates and stores sensor payloads.
type Gateway struct {
	logger    *slog.Logger
	store     store.Store
	publisher mq.Publisher
	metrics   *metrics.APIMetrics
	now       func() time.Time
	expected  []byte
	secretSet bool

	seqMu sync.Mutex
	seq   map[water.AreaID]sequence
}

type sequence struct {
	second int64
	next   uint32
}

// IngestResult is returned for an accepted reading.
type IngestResult struct {
	Message   string          `json:"message"`
	Timestamp water.Timestamp `json:"timestamp"`
	Area      string          `json:"area"`
	Key       string          `json:"key"`
}

// NewGateway creates a new Gateway instance.
func NewGateway(cfg *GatewayConfig) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("gateway config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	if cfg.Secret == "" {
		cfg.Logger.Warn("ingest secret is empty, every ingest request will be rejected")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Gateway{
		logger:    cfg.Logger,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		now:       now,
		expected:  []byte("Bearer " + cfg.Secret),
		secretSet: cfg.Secret != "",
		seq:       make(map[water.AreaID]sequence),
	}, nil
}

func (g *Gateway) count(status string) {
	if g.metrics != nil {
		g.metrics.IngestTotal.WithLabelValues(status).Inc()
	}
}

// Authenticate checks an Authorization header value against the device secret.
// Rejections are logged and counted.
func (g *Gateway) Authenticate(authorization string) error {
	if !g.secretSet || subtle.ConstantTimeCompare([]byte(authorization), g.expected) != 1 {
		g.count("unauthorized")
		g.logger.Warn("rejected ingest with invalid credentials")
		return water.Errorf(water.ErrAuthentication, "Authentication Failed. Invalid device secret.")
	}
	return nil
}

// Ingest authenticates the request, validates body, stamps it with the
// gateway clock and writes it to the store. Authentication always runs first;
// an unauthenticated body is never parsed.
func (g *Gateway) Ingest(ctx context.Context, authorization string, body []byte) (IngestResult, error) {
	if err := g.Authenticate(authorization); err != nil {
		return IngestResult{}, err
	}

	reading, err := parsePayload(body)
	if err != nil {
		g.count("invalid")
		g.logger.Info("rejected invalid ingest payload", "error", err)
		return IngestResult{}, err
	}

	area, err := water.NewAreaID(reading.Area)
	if err != nil {
		g.count("invalid")
		return IngestResult{}, err
	}

	now := g.now().UTC()
	reading.Timestamp = water.NewTimestamp(now)
	reading.Area = area.Display()
	key := water.StorageKey(now, g.nextSequence(area, now.Unix()))

	if err := g.put(ctx, area, key, reading); err != nil {
		g.count("error")
		g.logger.Error("failed to store reading", "area", area, "key", key, "error", err)
		// A failed write is an internal error even when the store reports it as unreachable.
		return IngestResult{}, fmt.Errorf("failed to store reading: %v", err)
	}

	g.count("accepted")
	g.logger.Info("reading ingested", "area", area, "key", key, "tds", reading.TDS)

	if g.publisher != nil {
		go g.publish(context.WithoutCancel(ctx), mq.ReadingEvent{
			AcceptedAt: now,
			Area:       area,
			Key:        key,
			Reading:    reading,
		})
	}

	return IngestResult{
		Message:   "Data ingested successfully",
		Timestamp: reading.Timestamp,
		Area:      area.Display(),
		Key:       key,
	}, nil
}

func (g *Gateway) put(ctx context.Context, area water.AreaID, key string, r water.Reading) error {
	if g.metrics != nil {
		timer := prometheus.NewTimer(g.metrics.StoreOperationDuration.WithLabelValues("put"))
		defer timer.ObserveDuration()
	}

	err := g.store.Put(ctx, area, key, r)
	if g.metrics != nil {
		g.metrics.StoreOperationsTotal.WithLabelValues("put", statusLabel(err)).Inc()
	}
	return err
}

// nextSequence numbers readings of one area within the same second so that
// same-second writes get distinct keys.
func (g *Gateway) nextSequence(area water.AreaID, second int64) uint32 {
	g.seqMu.Lock()
	defer g.seqMu.Unlock()

	s, ok := g.seq[area]
	if ok && s.second == second {
		s.next++
	} else {
		s = sequence{second: second}
	}
	g.seq[area] = s
	return s.next
}

func (g *Gateway) publish(ctx context.Context, ev mq.ReadingEvent) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := mq.PublishJSON(ctx, g.publisher, ev)
	if g.metrics != nil {
		g.metrics.EventsPublishedTotal.WithLabelValues(statusLabel(err)).Inc()
	}
	if err != nil {
		g.logger.Warn("failed to publish reading event", "area", ev.Area, "key", ev.Key, "error", err)
	}
}

// parsePayload decodes the sensor JSON. Every required field must be present
// and non-null, area must be a string and measurements must be numbers.
// Unknown fields are kept in Extra; a client-sent timestamp is ignored.
func parsePayload(body []byte) (water.Reading, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return water.Reading{}, errIncompletePayload
	}

	for _, name := range water.RequiredFields {
		raw, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return water.Reading{}, errIncompletePayload
		}
	}

	var r water.Reading
	if err := json.Unmarshal(fields["area"], &r.Area); err != nil {
		return water.Reading{}, errIncompletePayload
	}

	measurements := map[string]*float64{
		"TDS":       &r.TDS,
		"Ca":        &r.Ca,
		"Mg":        &r.Mg,
		"pH":        &r.PH,
		"turbidity": &r.Turbidity,
		"chlorine":  &r.Chlorine,
	}
	for name, dst := range measurements {
		if err := json.Unmarshal(fields[name], dst); err != nil {
			return water.Reading{}, water.Errorf(water.ErrValidation, "field %q must be a number", name)
		}
	}

	for name, raw := range fields {
		if _, known := measurements[name]; known || name == "area" || name == "timestamp" {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[name] = v
	}

	return r, nil
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
