package backend

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/hardwater/internal/store"
	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/water"
)

// History limits.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 100
)

// History is the bounded, time-ascending history of one area.
type History struct {
	Area        string                  `json:"area"`
	Data        []water.EnrichedReading `json:"data"`
	RecordCount int                     `json:"record_count"`
}

// QueryConfig holds the configuration for the Query service.
type QueryConfig struct {
	Logger  *slog.Logger
	Store   store.Store
	Metrics *metrics.APIMetrics
}

// Query serves enriched read views over the store.
type Query struct {
	logger  *slog.Logger
	store   store.Store
	metrics *metrics.APIMetrics
}

// NewQuery creates a new Query instance.
func NewQuery(cfg *QueryConfig) (*Query, error) {
	if cfg == nil {
		return nil, errors.New("query config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	return &Query{
		logger:  cfg.Logger,
		store:   cfg.Store,
		metrics: cfg.Metrics,
	}, nil
}

func (q *Query) observe(op string) func(error) {
	if q.metrics == nil {
		return func(error) {}
	}
	timer := prometheus.NewTimer(q.metrics.StoreOperationDuration.WithLabelValues(op))
	return func(err error) {
		timer.ObserveDuration()
		q.metrics.StoreOperationsTotal.WithLabelValues(op, statusLabel(err)).Inc()
	}
}

func (q *Query) listAreas(ctx context.Context) ([]water.AreaID, error) {
	done := q.observe("list_areas")
	areas, err := q.store.ListAreas(ctx)
	done(err)
	if err == nil && q.metrics != nil {
		q.metrics.AreasKnown.Set(float64(len(areas)))
	}
	return areas, err
}

func (q *Query) getRange(ctx context.Context, area water.AreaID, limit int) ([]store.StoredReading, error) {
	done := q.observe("get_range")
	readings, err := q.store.GetRange(ctx, area, limit)
	done(err)
	return readings, err
}

// Areas lists the display names of every area holding data. An empty store
// yields an empty slice.
func (q *Query) Areas(ctx context.Context) ([]string, error) {
	areas, err := q.listAreas(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(areas))
	for _, a := range areas {
		names = append(names, a.Display())
	}
	return names, nil
}

// Latest returns the most recent enriched reading of every area, keyed by
// display name. Areas whose read fails are logged and skipped.
func (q *Query) Latest(ctx context.Context) (map[string]water.EnrichedReading, error) {
	areas, err := q.listAreas(ctx)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]water.EnrichedReading, len(areas))
	for _, area := range areas {
		readings, err := q.getRange(ctx, area, 1)
		if err != nil {
			q.logger.Warn("skipping area in latest view", "area", area, "error", err)
			continue
		}
		if len(readings) == 0 {
			continue
		}
		latest[area.Display()] = water.Enrich(readings[0].Reading)
	}
	return latest, nil
}

// History returns up to limit readings of area in ascending time order.
// limit <= 0 selects DefaultHistoryLimit; larger values are capped at
// MaxHistoryLimit.
func (q *Query) History(ctx context.Context, area string, limit int) (History, error) {
	if area == "" {
		return History{}, water.Errorf(water.ErrValidation, "Missing 'area' query parameter.")
	}

	id, err := water.ParseAreaID(area)
	if err != nil {
		return History{}, err
	}

	readings, err := q.getRange(ctx, id, clampLimit(limit))
	if err != nil {
		return History{}, err
	}
	if len(readings) == 0 {
		return History{}, water.Errorf(water.ErrNotFound, "No data found for %s.", id.Display())
	}

	// Keys encode reverse time, but the store order is not trusted: re-sort
	// by timestamp, newest-key-last among equal timestamps.
	sort.SliceStable(readings, func(i, j int) bool {
		ti, tj := readings[i].Reading.Timestamp.Time, readings[j].Reading.Timestamp.Time
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return readings[i].Key > readings[j].Key
	})

	data := make([]water.EnrichedReading, 0, len(readings))
	for _, r := range readings {
		data = append(data, water.Enrich(r.Reading))
	}

	return History{
		Area:        id.Display(),
		RecordCount: len(data),
		Data:        data,
	}, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
