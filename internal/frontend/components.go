package frontend

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"

	"github.com/a-h/templ"

	"procodus.dev/hardwater/pkg/water"
)

// writer collects the first write error so components can emit markup
// without checking every call.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(s string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, s)
}

func (w *writer) text(s string) {
	w.raw(templ.EscapeString(s))
}

func (w *writer) component(ctx context.Context, c templ.Component) {
	if w.err != nil {
		return
	}
	w.err = c.Render(ctx, w.w)
}

func areaHref(area string) string {
	return "/area/" + url.PathEscape(area)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		w.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		w.raw(`<title>`)
		w.text(title)
		w.raw(` | hardwater</title>`)
		w.raw(`<script src="https://unpkg.com/htmx.org@1.9.12"></script>`)
		w.raw(`</head><body><header><a href="/">hardwater</a></header><main>`)
		w.component(ctx, body)
		w.raw(`</main></body></html>`)
		return w.err
	})
}

// index is the dashboard landing page. The table refreshes itself through
// the latest fragment.
func index(latest map[string]water.EnrichedReading) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<h1>Latest readings</h1>`)
		w.raw(`<div id="latest" hx-get="/api/latest" hx-trigger="every 30s" hx-swap="innerHTML">`)
		w.component(ctx, latestTable(latest))
		w.raw(`</div>`)
		return w.err
	})
	return layout("Latest readings", body)
}

func latestTable(latest map[string]water.EnrichedReading) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		if len(latest) == 0 {
			w.raw(`<p class="empty">No readings yet.</p>`)
			return w.err
		}

		areas := make([]string, 0, len(latest))
		for area := range latest {
			areas = append(areas, area)
		}
		slices.Sort(areas)

		w.raw(`<table><thead><tr><th>Area</th><th>Time (UTC)</th><th>TDS</th>`)
		w.raw(`<th>Hardness</th><th>Class</th><th>TDS status</th><th>Drinkable</th></tr></thead><tbody>`)
		for _, area := range areas {
			r := latest[area]
			w.raw(`<tr><td><a href="`)
			w.text(areaHref(area))
			w.raw(`">`)
			w.text(area)
			w.raw(`</a></td>`)
			readingCells(w, r)
			w.raw(`</tr>`)
		}
		w.raw(`</tbody></table>`)
		return w.err
	})
}

func readingCells(w *writer, r water.EnrichedReading) {
	cells := []string{
		r.Timestamp.String(),
		formatFloat(r.TDS),
		formatFloat(r.TotalHardness),
		r.Classification.HardnessClass,
		r.Classification.TDSStatus,
		yesNo(r.Classification.IsSafeForDrinking),
	}
	for _, c := range cells {
		w.raw(`<td>`)
		w.text(c)
		w.raw(`</td>`)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// areaPage shows the history of one area, newest first.
func areaPage(area string, readings []water.EnrichedReading) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<h1>`)
		w.text(area)
		w.raw(`</h1>`)
		w.raw(fmt.Sprintf(`<div id="history" hx-get="%s" hx-trigger="every 60s" hx-swap="innerHTML">`,
			templ.EscapeString("/api"+areaHref(area)+"/readings")))
		w.component(ctx, historyTable(readings))
		w.raw(`</div>`)
		return w.err
	})
	return layout(area, body)
}

func historyTable(readings []water.EnrichedReading) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		if len(readings) == 0 {
			w.raw(`<p class="empty">No history for this area.</p>`)
			return w.err
		}

		w.raw(`<table><thead><tr><th>Time (UTC)</th><th>TDS</th><th>Hardness</th><th>Class</th>`)
		w.raw(`<th>TDS status</th><th>Drinkable</th><th>pH</th><th>Turbidity</th><th>Chlorine</th><th>Alerts</th></tr></thead><tbody>`)
		for i := len(readings) - 1; i >= 0; i-- {
			r := readings[i]
			w.raw(`<tr>`)
			readingCells(w, r)
			for _, v := range []float64{r.PH, r.Turbidity, r.Chlorine} {
				w.raw(`<td>`)
				w.text(formatFloat(v))
				w.raw(`</td>`)
			}
			w.raw(`<td>`)
			w.text(water.AlertMessage(r.TDS, r.PH, r.Turbidity, r.Chlorine))
			w.raw(`</td></tr>`)
		}
		w.raw(`</tbody></table>`)
		return w.err
	})
}

func errorPage(status int, message string) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<h1>`)
		w.text(strconv.Itoa(status))
		w.raw(`</h1><p class="error">`)
		w.text(message)
		w.raw(`</p>`)
		return w.err
	})
	return layout("Error", body)
}
