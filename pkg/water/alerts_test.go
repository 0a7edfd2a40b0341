package water_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/hardwater/pkg/water"
)

var _ = Describe("Alerts", func() {
	It("returns nothing for a clean sample", func() {
		Expect(water.Alerts(300, 7.2, 1.0, 0.5)).To(BeEmpty())
		Expect(water.AlertMessage(300, 7.2, 1.0, 0.5)).To(Equal("All contamination metrics are within acceptable limits."))
	})

	It("lists every breach in order", func() {
		alerts := water.Alerts(650, 9.1, 7.5, 0.1)
		Expect(alerts).To(HaveLen(3))
		Expect(alerts[0]).To(ContainSubstring("High TDS (650 mg/L)"))
		Expect(alerts[1]).To(ContainSubstring("High pH (9.1)"))
		Expect(alerts[2]).To(ContainSubstring("Critical Turbidity (7.5 NTU)"))
	})

	It("flags low chlorine only when TDS is below the limit", func() {
		Expect(water.Alerts(300, 7, 1, 0.1)).To(ConsistOf(ContainSubstring("Low Chlorine")))
		Expect(water.Alerts(500, 7, 1, 0.1)).To(BeEmpty())
	})

	It("flags acidic water", func() {
		Expect(water.Alerts(300, 6.0, 1, 0.5)).To(ConsistOf(ContainSubstring("Low pH (6.0)")))
	})

	It("joins alerts into one message", func() {
		msg := water.AlertMessage(650, 6.0, 1, 0.5)
		Expect(msg).To(HavePrefix("ALERT: "))
		Expect(msg).To(ContainSubstring(" | "))
	})
})

var _ = Describe("Sample analysis", func() {
	DescribeTable("recommended action",
		func(class string, tds, turbidity float64, expected string) {
			Expect(water.RecommendedAction(class, tds, turbidity)).To(ContainSubstring(expected))
		},
		Entry("hard water", "Hard", 300.0, 1.0, "water softener"),
		Entry("high tds", "Soft", 700.0, 1.0, "High TDS level"),
		Entry("turbid", "Soft", 300.0, 8.0, "sediment filter"),
		Entry("fine", "Moderately Hard", 300.0, 1.0, "acceptable"),
	)

	It("describes household suitability", func() {
		Expect(water.Suitability(300, 100)).To(ContainSubstring("Drinking/Cooking: Good"))
		Expect(water.Suitability(800, 300)).To(ContainSubstring("Washing/Laundry: Poor"))
	})
})

var _ = Describe("HTTPStatus", func() {
	DescribeTable("maps error kinds to status codes",
		func(err error, status int) {
			Expect(water.HTTPStatus(err)).To(Equal(status))
		},
		Entry("nil", nil, 200),
		Entry("auth", water.Errorf(water.ErrAuthentication, "bad token"), 401),
		Entry("validation", water.Errorf(water.ErrValidation, "missing"), 400),
		Entry("not found", fmt.Errorf("wrapped: %w", water.ErrNotFound), 404),
		Entry("insufficient", water.ErrInsufficientData, 422),
		Entry("upstream", water.ErrUpstreamUnavailable, 503),
		Entry("other", errors.New("boom"), 500),
	)

	It("keeps the client-facing message", func() {
		err := water.Errorf(water.ErrValidation, "limit must be an integer")
		Expect(err.Error()).To(Equal("limit must be an integer"))
		Expect(errors.Is(err, water.ErrValidation)).To(BeTrue())
	})
})
