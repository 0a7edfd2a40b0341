package frontend

import (
	"context"
	"net/http"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/water"
)

// renderIndex renders the index page.
func renderIndex(ctx context.Context, w http.ResponseWriter, latest map[string]water.EnrichedReading, m *metrics.FrontendMetrics) error {
	return trackTemplateRender(ctx, w, m, "index", index(latest))
}

// renderLatest renders the latest readings fragment.
func renderLatest(ctx context.Context, w http.ResponseWriter, latest map[string]water.EnrichedReading, m *metrics.FrontendMetrics) error {
	return trackTemplateRender(ctx, w, m, "latest_table", latestTable(latest))
}

// renderArea renders the history page of one area.
func renderArea(ctx context.Context, w http.ResponseWriter, area string, readings []water.EnrichedReading, m *metrics.FrontendMetrics) error {
	return trackTemplateRender(ctx, w, m, "area", areaPage(area, readings))
}

// renderHistory renders the history table fragment.
func renderHistory(ctx context.Context, w http.ResponseWriter, readings []water.EnrichedReading, m *metrics.FrontendMetrics) error {
	return trackTemplateRender(ctx, w, m, "history_table", historyTable(readings))
}

// trackTemplateRender wraps template rendering with metrics tracking.
func trackTemplateRender(ctx context.Context, w http.ResponseWriter, m *metrics.FrontendMetrics, templateName string, c templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if m == nil {
		return c.Render(ctx, w)
	}

	timer := prometheus.NewTimer(m.TemplateRenderTime.WithLabelValues(templateName))
	defer timer.ObserveDuration()

	if err := c.Render(ctx, w); err != nil {
		m.TemplateRenderErrors.WithLabelValues(templateName, "render_error").Inc()
		return err
	}

	return nil
}
