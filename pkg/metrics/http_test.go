package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/hardwater/pkg/metrics"
)

var _ = Describe("HTTPMetrics", func() {
	It("passes requests through when metrics are disabled", func() {
		var m *metrics.HTTPMetrics
		handler := m.Instrument("GET /x", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})

		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		Expect(rec.Code).To(Equal(http.StatusTeapot))
	})

	It("counts requests by route pattern and status", func() {
		m := metrics.NewHTTPMetrics("metrics_http_test")
		handler := m.Instrument("GET /items/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		for range 2 {
			handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
		}

		Expect(testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "GET /items/{id}", "404"))).To(Equal(2.0))
		Expect(testutil.ToFloat64(m.RequestsInFlight.WithLabelValues("GET", "GET /items/{id}"))).To(Equal(0.0))
	})

	It("exposes registered metrics through the handler", func() {
		rec := httptest.NewRecorder()
		metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(strings.Contains(rec.Body.String(), "go_goroutines")).To(BeTrue())
	})
})
