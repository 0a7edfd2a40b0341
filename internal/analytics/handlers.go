package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/water"
)

const maxRequestBody = 1 << 20

// RouterConfig holds the dependencies of the analytics routes.
type RouterConfig struct {
	Logger  *slog.Logger
	Catalog *Catalog
	Engine  *Engine
	Tracker *Tracker
	Monitor *Monitor
	Metrics *metrics.AnalyticsMetrics
}

type api struct {
	logger  *slog.Logger
	catalog *Catalog
	engine  *Engine
	tracker *Tracker
	monitor *Monitor
}

// NewRouter builds the analytics routes.
func NewRouter(cfg *RouterConfig) (*http.ServeMux, error) {
	if cfg == nil {
		return nil, errors.New("router config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Catalog == nil || cfg.Engine == nil || cfg.Tracker == nil || cfg.Monitor == nil {
		return nil, errors.New("catalog, engine, tracker and monitor are required")
	}

	a := &api{
		logger:  cfg.Logger,
		catalog: cfg.Catalog,
		engine:  cfg.Engine,
		tracker: cfg.Tracker,
		monitor: cfg.Monitor,
	}

	var m *metrics.HTTPMetrics
	if cfg.Metrics != nil {
		m = cfg.Metrics.HTTP
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", m.Instrument("GET /health", a.handleHealth))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /alerts", m.Instrument("GET /alerts", a.handleAlerts))
	mux.HandleFunc("POST /analyze_sample", m.Instrument("POST /analyze_sample", a.handleAnalyzeSample))
	mux.HandleFunc("GET /predict", m.Instrument("GET /predict", a.handlePredict))
	mux.HandleFunc("GET /check_upstream", m.Instrument("GET /check_upstream", a.handleCheckUpstream))
	mux.HandleFunc("POST /start_treatment", m.Instrument("POST /start_treatment", a.handleStartTreatment))
	mux.HandleFunc("GET /job_status/{id}", m.Instrument("GET /job_status/{id}", a.handleJobStatus))
	mux.HandleFunc("GET /{$}", m.Instrument("GET /", a.handleIndex))

	return mux, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	status := water.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *api) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		return water.Errorf(water.ErrValidation, "request body too large or unreadable")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return water.Errorf(water.ErrValidation, "request body must be a JSON object")
	}
	return nil
}

func (a *api) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Hard Water Monitoring API (Analytics Layer)",
		"status":  "active",
		"endpoints": []string{
			"/alerts (GET) - Current status and contamination alerts for all areas.",
			"/predict?area=... (GET) - 7-day TDS trend prediction for a specific area.",
			"/analyze_sample (POST) - Analyze a manual water sample.",
			"/check_upstream?area=... (GET) - Data API reachability and history presence.",
			"/start_treatment (POST) - Start a simulated treatment job.",
			"/job_status/{id} (GET) - Treatment job progress.",
		},
		"monitored_areas": a.catalog.Refresh(r.Context()),
	})
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.monitor.Alerts(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (a *api) handleAnalyzeSample(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := a.decodeBody(w, r, &payload); err != nil {
		a.writeError(w, err)
		return
	}

	analysis, err := a.monitor.AnalyzeSample(payload)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (a *api) handlePredict(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("area")
	if raw == "" {
		a.writeError(w, water.Errorf(water.ErrValidation, "Missing 'area' query parameter. Example: /predict?area=Whitefield"))
		return
	}

	area, ok := a.catalog.Resolve(r.Context(), raw)
	if !ok {
		a.writeError(w, water.Errorf(water.ErrValidation, "Area '%s' not monitored. Available areas: %s",
			raw, strings.Join(a.catalog.Known(), ", ")))
		return
	}

	forecast, err := a.engine.PredictTrend(r.Context(), area, DefaultFutureSteps)
	if err != nil && !errors.Is(err, water.ErrInsufficientData) {
		a.writeError(w, fmt.Errorf("prediction for %s failed: %w", area, err))
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

func (a *api) handleCheckUpstream(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.monitor.CheckUpstream(r.Context(), r.URL.Query().Get("area")))
}

func (a *api) handleStartTreatment(w http.ResponseWriter, r *http.Request) {
	var req TreatmentRequest
	if err := a.decodeBody(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}

	result, err := a.tracker.Start(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.tracker.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
