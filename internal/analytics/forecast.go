package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/stat"

	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/water"
)

// DefaultFutureSteps is the forecast horizon in days.
const DefaultFutureSteps = 7

const (
	defaultHistoryLimit = 30
	stableThreshold     = 5.0
	modelLinear         = "LinearRegression"
	modelNone           = "None"
	insufficientMessage = "Insufficient historical data to generate a reliable forecast."
)

// Trend directions.
const (
	TrendStable     = "stable"
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
)

// Prediction is one projected day.
type Prediction struct {
	Date         string  `json:"date"`
	PredictedTDS float64 `json:"predicted_tds"`
}

// Trend is the change between the last observation and the final prediction.
type Trend struct {
	Direction string  `json:"direction"`
	Delta     float64 `json:"delta"`
}

// Forecast is the result of PredictTrend.
type Forecast struct {
	Area         string       `json:"area"`
	Predictions  []Prediction `json:"predictions"`
	ModelUsed    string       `json:"model_used"`
	TrendMessage string       `json:"trend_message"`
	Trend        *Trend       `json:"trend,omitempty"`
	Source       string       `json:"source"`
}

// EngineConfig holds the configuration for the Engine.
type EngineConfig struct {
	Logger *slog.Logger

	// Sources are tried in order; the first one returning data wins.
	Sources []HistorySource

	// Optional metrics.
	Metrics *metrics.AnalyticsMetrics

	// HistoryLimit is the number of samples requested. Defaults to 30.
	HistoryLimit int
}

// Engine fits a linear TDS trend per area and projects it forward.
type Engine struct {
	logger       *slog.Logger
	sources      []HistorySource
	metrics      *metrics.AnalyticsMetrics
	historyLimit int
}

// NewEngine creates a new Engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if len(cfg.Sources) == 0 {
		return nil, errors.New("at least one history source is required")
	}

	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	return &Engine{
		logger:       cfg.Logger,
		sources:      slices.Clone(cfg.Sources),
		metrics:      cfg.Metrics,
		historyLimit: limit,
	}, nil
}

// PredictTrend forecasts TDS for area over futureSteps days (DefaultFutureSteps
// when futureSteps <= 0). Upstream failures are absorbed by falling through
// the sources. When the history is degenerate the returned Forecast carries
// no predictions and the error wraps water.ErrInsufficientData.
func (e *Engine) PredictTrend(ctx context.Context, area string, futureSteps int) (Forecast, error) {
	if futureSteps <= 0 {
		futureSteps = DefaultFutureSteps
	}

	if e.metrics != nil {
		timer := prometheus.NewTimer(e.metrics.ForecastDuration)
		defer timer.ObserveDuration()
	}

	samples, source := e.history(ctx, area)
	forecast, err := Fit(area, samples, futureSteps)
	forecast.Source = source

	if e.metrics != nil {
		label := source
		if err != nil {
			label = "none"
		}
		e.metrics.ForecastsTotal.WithLabelValues(label).Inc()
	}

	if err != nil {
		e.logger.Warn("forecast not possible", "area", area, "source", source, "samples", len(samples))
		return forecast, err
	}

	e.logger.Info("forecast generated", "area", area, "source", source, "direction", forecast.Trend.Direction)
	return forecast, nil
}

func (e *Engine) history(ctx context.Context, area string) ([]Sample, string) {
	source := ""
	for _, src := range e.sources {
		source = src.Name()
		samples, err := src.Fetch(ctx, area, e.historyLimit)
		if err != nil {
			e.logger.Info("history source failed, trying next", "area", area, "source", source, "error", err)
			continue
		}
		if len(samples) > 0 {
			return samples, source
		}
	}
	return nil, source
}

// Fit runs an ordinary least-squares fit of TDS against whole days since the
// earliest sample and projects futureSteps further days.
func Fit(area string, samples []Sample, futureSteps int) (Forecast, error) {
	insufficient := Forecast{
		Area:         area,
		Predictions:  []Prediction{},
		ModelUsed:    modelNone,
		TrendMessage: insufficientMessage,
	}

	if len(samples) < 2 {
		return insufficient, water.Errorf(water.ErrInsufficientData, insufficientMessage)
	}

	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b Sample) int { return a.Time.Compare(b.Time) })

	first := sorted[0].Time
	xs := make([]float64, len(sorted))
	ys := make([]float64, len(sorted))
	distinct := make(map[int]struct{})
	for i, s := range sorted {
		offset := int(s.Time.Sub(first) / (24 * time.Hour))
		xs[i] = float64(offset)
		ys[i] = s.TDS
		distinct[offset] = struct{}{}
	}

	if len(distinct) < 2 {
		return insufficient, water.Errorf(water.ErrInsufficientData, insufficientMessage)
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return insufficient, water.Errorf(water.ErrInsufficientData, insufficientMessage)
	}

	last := xs[len(xs)-1]
	latest := sorted[len(sorted)-1].Time
	predictions := make([]Prediction, futureSteps)
	for i := range futureSteps {
		x := last + float64(i+1)
		predictions[i] = Prediction{
			Date:         latest.AddDate(0, 0, i+1).Format(time.RFC3339),
			PredictedTDS: water.Round2(alpha + beta*x),
		}
	}

	delta := water.Round2(predictions[futureSteps-1].PredictedTDS - ys[len(ys)-1])
	trend := &Trend{Direction: TrendStable, Delta: delta}
	switch {
	case math.Abs(delta) < stableThreshold:
	case delta > 0:
		trend.Direction = TrendIncreasing
	default:
		trend.Direction = TrendDecreasing
	}

	return Forecast{
		Area:         area,
		Predictions:  predictions,
		ModelUsed:    modelLinear,
		TrendMessage: trendMessage(trend, futureSteps),
		Trend:        trend,
	}, nil
}

func trendMessage(t *Trend, days int) string {
	switch t.Direction {
	case TrendIncreasing:
		return fmt.Sprintf("TDS levels show an increasing trend (rising by %+.1f mg/L). Monitor closely.", t.Delta)
	case TrendDecreasing:
		return fmt.Sprintf("TDS levels show a decreasing trend (dropping by %+.1f mg/L). Overall quality is improving.", t.Delta)
	default:
		return fmt.Sprintf("TDS levels are predicted to remain stable over the next %d days (change: %+.1f mg/L).", days, t.Delta)
	}
}
