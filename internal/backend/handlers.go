package backend

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"procodus.dev/hardwater/internal/store"
	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/water"
)

const maxIngestBody = 1 << 20

// RouterConfig holds the dependencies of the data API routes.
type RouterConfig struct {
	Logger  *slog.Logger
	Gateway *Gateway
	Query   *Query
	Store   store.Store
	Metrics *metrics.APIMetrics
}

type api struct {
	logger  *slog.Logger
	gateway *Gateway
	query   *Query
	store   store.Store
}

// NewRouter builds the data API routes.
func NewRouter(cfg *RouterConfig) (*http.ServeMux, error) {
	if cfg == nil {
		return nil, errors.New("router config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Gateway == nil || cfg.Query == nil || cfg.Store == nil {
		return nil, errors.New("gateway, query and store are required")
	}

	a := &api{
		logger:  cfg.Logger,
		gateway: cfg.Gateway,
		query:   cfg.Query,
		store:   cfg.Store,
	}

	var m *metrics.HTTPMetrics
	if cfg.Metrics != nil {
		m = cfg.Metrics.HTTP
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", m.Instrument("GET /health", a.handleHealth))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /ingest", m.Instrument("POST /ingest", a.handleIngest))
	mux.HandleFunc("GET /get_areas", m.Instrument("GET /get_areas", a.handleAreas))
	mux.HandleFunc("GET /get_latest", m.Instrument("GET /get_latest", a.handleLatest))
	mux.HandleFunc("GET /get_history", m.Instrument("GET /get_history", a.handleHistory))
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
	} else if status == http.StatusServiceUnavailable {
		msg = "Service unavailable"
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *api) handleIndex(w http.ResponseWriter, r *http.Request) {
	areas, err := a.query.Areas(r.Context())
	switch {
	case err != nil:
		areas = []string{"Connection Failed: Data Not Available"}
	case len(areas) == 0:
		areas = []string{"No data ingested yet"}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"project":   "Hard Water Monitoring API (Data Layer)",
		"status":    "Operational",
		"timestamp": time.Now().UTC().Format(water.TimestampLayout),
		"documentation": map[string]any{
			"available_areas": areas,
			"read_endpoints": map[string]string{
				"latest_readings": "/get_latest",
				"historical_data": "/get_history?area=[e.g., Whitefield]&limit=[1-100]",
				"area_list":       "/get_areas",
			},
			"write_endpoint": map[string]string{
				"route":          "/ingest",
				"method":         http.MethodPost,
				"authentication": "Bearer token required (device secret)",
			},
		},
	})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		a.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleIngest(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if err := a.gateway.Authenticate(auth); err != nil {
		a.writeError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		a.writeError(w, water.Errorf(water.ErrValidation, "request body too large or unreadable"))
		return
	}

	result, err := a.gateway.Ingest(r.Context(), auth, body)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *api) handleAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := a.query.Areas(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"areas": areas})
}

func (a *api) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := a.query.Latest(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	if len(latest) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No data available."})
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (a *api) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			a.writeError(w, water.Errorf(water.ErrValidation, "'limit' must be an integer."))
			return
		}
		limit = n
	}

	history, err := a.query.History(r.Context(), r.URL.Query().Get("area"), limit)
	if err != nil {
		if errors.Is(err, water.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": err.Error()})
			return
		}
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
