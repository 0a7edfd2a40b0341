package water_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/hardwater/pkg/water"
)

var _ = Describe("AreaID", func() {
	It("maps display labels to storage keys and back", func() {
		id, err := water.NewAreaID("  HSR   Layout ")
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(water.AreaID("HSR_Layout")))
		Expect(id.Display()).To(Equal("HSR Layout"))
	})

	It("rejects empty labels", func() {
		_, err := water.NewAreaID("   ")
		Expect(err).To(MatchError(water.ErrValidation))
	})

	It("rejects underscores in display labels", func() {
		_, err := water.NewAreaID("HSR_Layout")
		Expect(err).To(MatchError(water.ErrValidation))
	})

	It("rejects key separators", func() {
		_, err := water.NewAreaID("a/b")
		Expect(err).To(MatchError(water.ErrValidation))
		_, err = water.NewAreaID("a:b")
		Expect(err).To(MatchError(water.ErrValidation))
	})

	DescribeTable("parses either form",
		func(input string) {
			id, err := water.ParseAreaID(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(water.AreaID("Electronics_City")))
		},
		Entry("display form", "Electronics City"),
		Entry("storage form", "Electronics_City"),
	)
})
