// Package frontend serves the HTML dashboard over the data API.
package frontend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/water"
	"procodus.dev/hardwater/pkg/waterapi"
)

// DefaultHistoryLimit is the number of readings shown on an area page.
const DefaultHistoryLimit = 50

const upstreamTimeout = 5 * time.Second

// Upstream is the part of the data API the dashboard reads.
type Upstream interface {
	Latest(ctx context.Context) (map[string]water.EnrichedReading, error)
	History(ctx context.Context, area string, limit int) (waterapi.History, error)
}

// RouterConfig holds the dependencies of the dashboard routes.
type RouterConfig struct {
	Logger       *slog.Logger
	Upstream     Upstream
	Metrics      *metrics.FrontendMetrics
	HistoryLimit int
}

type pages struct {
	logger       *slog.Logger
	upstream     Upstream
	metrics      *metrics.FrontendMetrics
	historyLimit int
}

// NewRouter builds the dashboard routes.
func NewRouter(cfg *RouterConfig) (*http.ServeMux, error) {
	if cfg == nil {
		return nil, errors.New("router config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Upstream == nil {
		return nil, errors.New("upstream cannot be nil")
	}

	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	p := &pages{
		logger:       cfg.Logger,
		upstream:     cfg.Upstream,
		metrics:      cfg.Metrics,
		historyLimit: limit,
	}

	var m *metrics.HTTPMetrics
	if cfg.Metrics != nil {
		m = cfg.Metrics.HTTP
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", m.Instrument("GET /health", p.handleHealth))
	mux.Handle("GET /metrics", metrics.Handler())

	// Fragments for htmx
	mux.HandleFunc("GET /api/latest", m.Instrument("GET /api/latest", p.handleAPILatest))
	mux.HandleFunc("GET /api/area/{area}/readings", m.Instrument("GET /api/area/{area}/readings", p.handleAPIAreaReadings))

	mux.HandleFunc("GET /area/{area}", m.Instrument("GET /area/{area}", p.handleArea))
	mux.HandleFunc("GET /static/", p.handleStatic)
	mux.HandleFunc("GET /{$}", m.Instrument("GET /", p.handleIndex))

	return mux, nil
}

// handleIndex serves the main index page.
func (p *pages) handleIndex(w http.ResponseWriter, r *http.Request) {
	p.logger.Debug("handling index request")

	latest, ok := p.fetchLatest(w, r)
	if !ok {
		return
	}

	if err := renderIndex(r.Context(), w, latest, p.metrics); err != nil {
		p.logger.Error("failed to render index", "error", err)
	}
}

// handleAPILatest serves the latest readings as HTML fragment for htmx.
func (p *pages) handleAPILatest(w http.ResponseWriter, r *http.Request) {
	latest, ok := p.fetchLatest(w, r)
	if !ok {
		return
	}

	if err := renderLatest(r.Context(), w, latest, p.metrics); err != nil {
		p.logger.Error("failed to render latest readings", "error", err)
	}
}

// handleArea serves the history page of one area.
func (p *pages) handleArea(w http.ResponseWriter, r *http.Request) {
	area := r.PathValue("area")
	p.logger.Debug("handling area request", "area", area)

	readings, ok := p.fetchHistory(w, r, area)
	if !ok {
		return
	}

	if err := renderArea(r.Context(), w, area, readings, p.metrics); err != nil {
		p.logger.Error("failed to render area", "error", err, "area", area)
	}
}

// handleAPIAreaReadings serves the history table as HTML fragment for htmx.
func (p *pages) handleAPIAreaReadings(w http.ResponseWriter, r *http.Request) {
	area := r.PathValue("area")

	readings, ok := p.fetchHistory(w, r, area)
	if !ok {
		return
	}

	if err := renderHistory(r.Context(), w, readings, p.metrics); err != nil {
		p.logger.Error("failed to render history", "error", err, "area", area)
	}
}

func (p *pages) fetchLatest(w http.ResponseWriter, r *http.Request) (map[string]water.EnrichedReading, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	latest, err := p.upstream.Latest(ctx)
	if err != nil {
		p.logger.Error("failed to fetch latest readings", "error", err)
		p.renderError(w, r, http.StatusBadGateway, "Failed to fetch latest readings")
		return nil, false
	}
	return latest, true
}

// fetchHistory treats an area without readings as an empty history.
func (p *pages) fetchHistory(w http.ResponseWriter, r *http.Request, area string) ([]water.EnrichedReading, bool) {
	if _, err := water.NewAreaID(area); err != nil {
		p.renderError(w, r, http.StatusBadRequest, err.Error())
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	history, err := p.upstream.History(ctx, area, p.historyLimit)
	switch {
	case errors.Is(err, water.ErrNotFound):
		return nil, true
	case err != nil:
		p.logger.Error("failed to fetch history", "error", err, "area", area)
		p.renderError(w, r, http.StatusBadGateway, "Failed to fetch history")
		return nil, false
	}
	return history.Data, true
}

func (p *pages) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := errorPage(status, message).Render(r.Context(), w); err != nil {
		p.logger.Error("failed to render error page", "error", err)
	}
}

// handleStatic serves static files.
func (p *pages) handleStatic(w http.ResponseWriter, r *http.Request) {
	p.logger.Debug("handling static file request", "path", r.URL.Path)
	http.Error(w, "Not Found", http.StatusNotFound)
}

// handleHealth serves health check endpoint.
func (p *pages) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		p.logger.Error("failed to write health response", "error", err)
	}
}
