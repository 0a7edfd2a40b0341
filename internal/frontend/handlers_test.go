package frontend_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/hardwater/internal/frontend"
	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/water"
)

var frontendMetrics = metrics.NewFrontendMetrics("frontend_test")

func enriched(area string, ts time.Time, tds, ph float64) water.EnrichedReading {
	return water.Enrich(water.Reading{
		Timestamp: water.NewTimestamp(ts),
		Area:      area,
		TDS:       tds,
		Ca:        85.5,
		Mg:        16.7,
		PH:        ph,
		Turbidity: 1.1,
		Chlorine:  0.5,
	})
}

var _ = Describe("Dashboard routes", func() {
	var (
		upstream *fakeUpstream
		server   *httptest.Server
		t0       time.Time
	)

	get := func(path string) (int, string) {
		resp, err := http.Get(server.URL + path)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, string(body)
	}

	BeforeEach(func() {
		t0 = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
		upstream = &fakeUpstream{
			latest: map[string]water.EnrichedReading{
				"Whitefield": enriched("Whitefield", t0, 520, 7.2),
				"HSR Layout": enriched("HSR Layout", t0, 410, 7.0),
			},
			history: map[string][]water.EnrichedReading{
				"HSR Layout": {
					enriched("HSR Layout", t0.Add(-2*time.Hour), 400, 7.0),
					enriched("HSR Layout", t0.Add(-time.Hour), 405, 9.1),
					enriched("HSR Layout", t0, 410, 7.0),
				},
			},
		}

		router, err := frontend.NewRouter(&frontend.RouterConfig{
			Logger:   testLogger(),
			Upstream: upstream,
			Metrics:  frontendMetrics,
		})
		Expect(err).NotTo(HaveOccurred())
		server = httptest.NewServer(router)
		DeferCleanup(server.Close)
	})

	It("should reject incomplete router configuration", func() {
		_, err := frontend.NewRouter(nil)
		Expect(err).To(HaveOccurred())

		_, err = frontend.NewRouter(&frontend.RouterConfig{Logger: testLogger()})
		Expect(err).To(MatchError(ContainSubstring("upstream")))
	})

	It("should answer health checks", func() {
		status, body := get("/health")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"status":"ok"}`))
	})

	Describe("index", func() {
		It("should list the latest reading of every area in name order", func() {
			status, body := get("/")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("<!DOCTYPE html>"))
			Expect(body).To(ContainSubstring(`href="/area/HSR%20Layout"`))
			Expect(body).To(ContainSubstring("2025-01-10 08:00:00"))
			Expect(strings.Index(body, "HSR Layout")).To(BeNumerically("<", strings.Index(body, "Whitefield")))
		})

		It("should count the render", func() {
			status, _ := get("/")
			Expect(status).To(Equal(http.StatusOK))
			Expect(testutil.CollectAndCount(frontendMetrics.TemplateRenderTime)).To(BeNumerically(">=", 1))
			Expect(testutil.ToFloat64(frontendMetrics.TemplateRenderErrors.WithLabelValues("index", "render_error"))).
				To(BeZero())
		})

		It("should show an empty state without readings", func() {
			upstream.latest = map[string]water.EnrichedReading{}
			status, body := get("/")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("No readings yet."))
		})

		It("should report upstream failures", func() {
			upstream.latestErr = errors.New("connection refused")
			status, body := get("/")
			Expect(status).To(Equal(http.StatusBadGateway))
			Expect(body).To(ContainSubstring("Failed to fetch latest readings"))
		})

		It("should serve the table fragment without the layout", func() {
			status, body := get("/api/latest")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(HavePrefix("<table>"))
			Expect(body).NotTo(ContainSubstring("<html"))
		})
	})

	Describe("area page", func() {
		It("should list history newest first with alerts", func() {
			status, body := get("/area/HSR%20Layout")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("<h1>HSR Layout</h1>"))

			newest := strings.Index(body, "2025-01-10 08:00:00")
			oldest := strings.Index(body, "2025-01-10 06:00:00")
			Expect(newest).To(BeNumerically(">", 0))
			Expect(newest).To(BeNumerically("<", oldest))
			Expect(body).To(ContainSubstring("High pH (9.1)"))
			Expect(upstream.lastLimit).To(Equal(frontend.DefaultHistoryLimit))
		})

		It("should show an empty history for an unknown area", func() {
			status, body := get("/area/Nowhere")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("No history for this area."))
		})

		It("should reject invalid area names", func() {
			status, _ := get("/area/HSR_Layout")
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("should escape area names", func() {
			status, body := get("/area/%3Cscript%3E")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).NotTo(ContainSubstring("<script>"))
			Expect(body).To(ContainSubstring("&lt;script&gt;"))
		})

		It("should serve the readings fragment", func() {
			status, body := get("/api/area/HSR%20Layout/readings")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(HavePrefix("<table>"))
		})

		It("should report upstream failures", func() {
			upstream.historyErr = water.Errorf(water.ErrUpstreamUnavailable, "down")
			status, _ := get("/area/HSR%20Layout")
			Expect(status).To(Equal(http.StatusBadGateway))
		})
	})
})
