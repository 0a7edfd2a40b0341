package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/water"
)

const upstreamCheckTimeout = 3 * time.Second

var sampleFields = []string{"area", "TDS", "pH", "Ca", "Mg", "turbidity", "chlorine"}

// AreaAlert is the current status of one area.
type AreaAlert struct {
	Area          string          `json:"area"`
	Timestamp     water.Timestamp `json:"timestamp"`
	TDS           float64         `json:"TDS"`
	PH            float64         `json:"pH"`
	Ca            float64         `json:"Ca"`
	Mg            float64         `json:"Mg"`
	Turbidity     float64         `json:"turbidity"`
	Chlorine      float64         `json:"chlorine"`
	Hardness      float64         `json:"hardness"`
	Status        string          `json:"status"`
	AlertMessage  string          `json:"alert_message"`
	HistorySource string          `json:"history_source"`
}

// SampleAnalysis is the answer to a manually submitted sample.
type SampleAnalysis struct {
	Area                 string  `json:"area"`
	TDS                  float64 `json:"TDS"`
	PH                   float64 `json:"pH"`
	Ca                   float64 `json:"Ca"`
	Mg                   float64 `json:"Mg"`
	Turbidity            float64 `json:"turbidity"`
	Chlorine             float64 `json:"chlorine"`
	CalculatedHardness   float64 `json:"calculated_hardness"`
	Status               string  `json:"status"`
	AlertMessage         string  `json:"alert_message"`
	RecommendedAction    string  `json:"recommended_action"`
	TargetChore          string  `json:"target_chore"`
	HouseholdSuitability string  `json:"household_suitability"`
}

// UpstreamCheck reports whether the data API answers and has history.
type UpstreamCheck struct {
	UpstreamAvailable bool    `json:"upstream_available"`
	HistoryPresent    bool    `json:"history_present"`
	Error             *string `json:"error"`
}

// MonitorConfig holds the configuration for the Monitor.
type MonitorConfig struct {
	Logger   *slog.Logger
	Upstream Upstream

	// Optional metrics.
	Metrics *metrics.AnalyticsMetrics
}

// Monitor derives contamination alerts from data API readings.
type Monitor struct {
	logger   *slog.Logger
	upstream Upstream
	metrics  *metrics.AnalyticsMetrics
}

// NewMonitor creates a new Monitor.
func NewMonitor(cfg *MonitorConfig) (*Monitor, error) {
	if cfg == nil {
		return nil, errors.New("monitor config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Upstream == nil {
		return nil, errors.New("upstream cannot be nil")
	}

	return &Monitor{
		logger:   cfg.Logger,
		upstream: cfg.Upstream,
		metrics:  cfg.Metrics,
	}, nil
}

// Alerts returns the latest status of every area, sorted by area name. No
// data at all, or an unreachable data API, is water.ErrUpstreamUnavailable.
func (m *Monitor) Alerts(ctx context.Context) ([]AreaAlert, error) {
	latest, err := m.upstream.Latest(ctx)
	if err != nil {
		m.logger.Warn("latest readings unavailable", "error", err)
		latest = nil
	}

	if len(latest) == 0 {
		return nil, water.Errorf(water.ErrUpstreamUnavailable, "No data available from core API to generate alerts.")
	}

	alerts := make([]AreaAlert, 0, len(latest))
	for area, r := range latest {
		hardness := water.TotalHardness(r.Ca, r.Mg)
		alert := AreaAlert{
			Area:          area,
			Timestamp:     r.Timestamp,
			TDS:           r.TDS,
			PH:            r.PH,
			Ca:            r.Ca,
			Mg:            r.Mg,
			Turbidity:     r.Turbidity,
			Chlorine:      r.Chlorine,
			Hardness:      hardness,
			Status:        water.ClassifyHardness(hardness),
			AlertMessage:  water.AlertMessage(r.TDS, r.PH, r.Turbidity, r.Chlorine),
			HistorySource: m.historySource(ctx, area),
		}
		alerts = append(alerts, alert)
	}

	slices.SortFunc(alerts, func(a, b AreaAlert) int { return strings.Compare(a.Area, b.Area) })

	m.logger.Info("alerts generated", "areas", len(alerts))
	return alerts, nil
}

func (m *Monitor) historySource(ctx context.Context, area string) string {
	history, err := m.upstream.History(ctx, area, 1)
	if err != nil || len(history.Data) == 0 {
		return "unavailable"
	}
	return SourceReal
}

// AnalyzeSample classifies a manually submitted sample. Numeric fields may be
// JSON numbers or numeric strings.
func (m *Monitor) AnalyzeSample(payload map[string]any) (SampleAnalysis, error) {
	for _, f := range sampleFields {
		if v, ok := payload[f]; !ok || v == nil {
			return SampleAnalysis{}, water.Errorf(water.ErrValidation,
				"Invalid payload. Missing fields: %s", strings.Join(sampleFields, ", "))
		}
	}

	area, ok := payload["area"].(string)
	if !ok || strings.TrimSpace(area) == "" {
		return SampleAnalysis{}, water.Errorf(water.ErrValidation, "field \"area\" must be a non-empty string")
	}

	values := make(map[string]float64, len(sampleFields)-1)
	for _, f := range sampleFields[1:] {
		v, err := toFloat(payload[f])
		if err != nil {
			return SampleAnalysis{}, water.Errorf(water.ErrValidation, "field %q must be a number", f)
		}
		values[f] = v
	}

	tds, ph, turbidity, chlorine := values["TDS"], values["pH"], values["turbidity"], values["chlorine"]
	hardness := water.TotalHardness(values["Ca"], values["Mg"])
	class := water.ClassifyHardness(hardness)

	chore := "General Analysis"
	if c, ok := payload["target_chore"].(string); ok && c != "" {
		chore = c
	}

	m.logger.Info("sample analyzed", "area", area, "status", class)

	return SampleAnalysis{
		Area:                 area,
		TDS:                  tds,
		PH:                   ph,
		Ca:                   values["Ca"],
		Mg:                   values["Mg"],
		Turbidity:            turbidity,
		Chlorine:             chlorine,
		CalculatedHardness:   hardness,
		Status:               class,
		AlertMessage:         water.AlertMessage(tds, ph, turbidity, chlorine),
		RecommendedAction:    water.RecommendedAction(class, tds, turbidity),
		TargetChore:          chore,
		HouseholdSuitability: water.Suitability(tds, hardness),
	}, nil
}

// CheckUpstream probes the data API and, when area is set, whether it holds
// history for area. Each probe is bounded by three seconds.
func (m *Monitor) CheckUpstream(ctx context.Context, area string) UpstreamCheck {
	var check UpstreamCheck

	areasCtx, cancel := context.WithTimeout(ctx, upstreamCheckTimeout)
	defer cancel()

	if _, err := m.upstream.Areas(areasCtx); err != nil {
		m.logger.Info("data API area check failed", "error", err)
		msg := err.Error()
		check.Error = &msg
		return check
	}
	check.UpstreamAvailable = true

	if area == "" {
		return check
	}

	historyCtx, cancelHistory := context.WithTimeout(ctx, upstreamCheckTimeout)
	defer cancelHistory()

	history, err := m.upstream.History(historyCtx, area, 1)
	if err != nil {
		if !errors.Is(err, water.ErrNotFound) {
			m.logger.Info("data API history check failed", "area", area, "error", err)
		}
		return check
	}
	check.HistoryPresent = len(history.Data) > 0
	return check
}

// Observe records a reading event in the alert metrics and returns its
// alerts.
func (m *Monitor) Observe(area string, r water.Reading) []string {
	alerts := water.Alerts(r.TDS, r.PH, r.Turbidity, r.Chlorine)
	if len(alerts) > 0 && m.metrics != nil {
		m.metrics.AlertsTotal.WithLabelValues(area).Inc()
	}
	return alerts
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
