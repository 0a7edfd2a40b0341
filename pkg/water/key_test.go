package water_test

import (
	"sort"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/hardwater/pkg/water"
)

var _ = Describe("StorageKey", func() {
	base := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

	It("produces fixed-width digit strings", func() {
		key := water.StorageKey(base, 0)
		Expect(key).To(HaveLen(water.StorageKeyLength))
		Expect(key).To(MatchRegexp(`^\d+$`))
		Expect(key).To(Equal("79759698876954999"))
	})

	It("sorts newer readings first", func() {
		older := water.StorageKey(base, 0)
		newer := water.StorageKey(base.Add(time.Second), 0)
		Expect(newer < older).To(BeTrue())
	})

	It("sorts later same-second writes first", func() {
		first := water.StorageKey(base, 0)
		second := water.StorageKey(base, 1)
		Expect(second < first).To(BeTrue())
	})

	It("keeps lexical order equal to reverse chronological order across a range", func() {
		var keys []string
		for i := range 50 {
			keys = append(keys, water.StorageKey(base.Add(time.Duration(i)*17*time.Hour), 0))
		}
		sorted := append([]string(nil), keys...)
		sort.Strings(sorted)
		for i := range sorted {
			Expect(sorted[i]).To(Equal(keys[len(keys)-1-i]))
		}
	})

	It("decodes the timestamp back", func() {
		t, err := water.ParseStorageKey(water.StorageKey(base, 7))
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(Equal(base))
	})

	It("rejects malformed keys", func() {
		_, err := water.ParseStorageKey("123")
		Expect(err).To(HaveOccurred())
		_, err = water.ParseStorageKey("abcdefghijklmnopq")
		Expect(err).To(HaveOccurred())
	})
})
