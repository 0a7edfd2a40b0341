package backend_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/hardwater/internal/backend"
	"procodus.dev/hardwater/internal/store"
	"procodus.dev/hardwater/pkg/water"
)

type flakyRangeStore struct {
	*store.Memory
	failing water.AreaID
}

func (f *flakyRangeStore) GetRange(ctx context.Context, area water.AreaID, limit int) ([]store.StoredReading, error) {
	if area == f.failing {
		return nil, water.ErrUpstreamUnavailable
	}
	return f.Memory.GetRange(ctx, area, limit)
}

var _ = Describe("Query", func() {
	var (
		ctx  context.Context
		mem  *store.Memory
		q    *backend.Query
		base time.Time
	)

	put := func(area string, t time.Time, seq uint32, ca float64) {
		id := water.MustAreaID(area)
		Expect(mem.Put(ctx, id, water.StorageKey(t, seq), water.Reading{
			Area:      id.Display(),
			Timestamp: water.NewTimestamp(t),
			TDS:       300,
			Ca:        ca,
			Mg:        10,
		})).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		mem = store.NewMemory()
		base = time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC)

		var err error
		q, err = backend.NewQuery(&backend.QueryConfig{Logger: testLogger(), Store: mem})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewQuery", func() {
		It("should return error when store is nil", func() {
			_, err := backend.NewQuery(&backend.QueryConfig{Logger: testLogger()})
			Expect(err).To(MatchError(ContainSubstring("store cannot be nil")))
		})
	})

	Describe("Areas", func() {
		It("returns an empty list for an empty store", func() {
			areas, err := q.Areas(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(areas).NotTo(BeNil())
			Expect(areas).To(BeEmpty())
		})

		It("returns display names", func() {
			put("HSR Layout", base, 0, 10)
			put("MG Road", base, 0, 10)

			areas, err := q.Areas(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(areas).To(Equal([]string{"HSR Layout", "MG Road"}))
		})

		It("reports an unavailable store as an error, not as empty", func() {
			broken, err := backend.NewQuery(&backend.QueryConfig{
				Logger: testLogger(),
				Store:  &failingStore{Store: mem, err: water.ErrUpstreamUnavailable},
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = broken.Areas(ctx)
			Expect(err).To(MatchError(water.ErrUpstreamUnavailable))
		})
	})

	Describe("Latest", func() {
		It("returns the newest enriched reading per area", func() {
			put("Whitefield", base, 0, 10)
			put("Whitefield", base.Add(time.Hour), 0, 50)

			latest, err := q.Latest(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest).To(HaveKey("Whitefield"))
			Expect(latest["Whitefield"].Ca).To(Equal(50.0))
			Expect(latest["Whitefield"].TotalHardness).To(Equal(water.TotalHardness(50, 10)))
		})

		It("skips areas whose read fails", func() {
			put("Whitefield", base, 0, 10)
			put("Sarjapur", base, 0, 10)

			flaky, err := backend.NewQuery(&backend.QueryConfig{
				Logger: testLogger(),
				Store:  &flakyRangeStore{Memory: mem, failing: "Sarjapur"},
			})
			Expect(err).NotTo(HaveOccurred())

			latest, err := flaky.Latest(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest).To(HaveLen(1))
			Expect(latest).To(HaveKey("Whitefield"))
		})

		It("fails when areas cannot be listed", func() {
			broken, _ := backend.NewQuery(&backend.QueryConfig{
				Logger: testLogger(),
				Store:  &failingStore{Store: mem, err: errors.New("down")},
			})
			_, err := broken.Latest(ctx)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("History", func() {
		It("requires an area", func() {
			_, err := q.History(ctx, "", 10)
			Expect(err).To(MatchError(water.ErrValidation))
		})

		It("reports not found for an area without readings", func() {
			_, err := q.History(ctx, "Nowhere", 10)
			Expect(err).To(MatchError(water.ErrNotFound))
		})

		It("returns readings in ascending time order", func() {
			for i := range 5 {
				put("MG Road", base.Add(time.Duration(i)*time.Hour), 0, float64(i))
			}

			history, err := q.History(ctx, "MG_Road", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(history.Area).To(Equal("MG Road"))
			Expect(history.RecordCount).To(Equal(5))
			for i, r := range history.Data {
				Expect(r.Ca).To(Equal(float64(i)))
			}
		})

		It("keeps insertion order among same-second readings", func() {
			put("MG Road", base, 0, 1)
			put("MG Road", base, 1, 2)
			put("MG Road", base, 2, 3)

			history, err := q.History(ctx, "MG Road", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(history.Data).To(HaveLen(3))
			Expect(history.Data[0].Ca).To(Equal(1.0))
			Expect(history.Data[2].Ca).To(Equal(3.0))
		})

		It("returns the newest readings when limited", func() {
			for i := range 10 {
				put("MG Road", base.Add(time.Duration(i)*time.Minute), 0, float64(i))
			}

			history, err := q.History(ctx, "MG Road", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(history.RecordCount).To(Equal(3))
			Expect(history.Data[0].Ca).To(Equal(7.0))
			Expect(history.Data[2].Ca).To(Equal(9.0))
		})

		It("caps the limit at 100", func() {
			for i := range 120 {
				put("MG Road", base.Add(time.Duration(i)*time.Minute), 0, 1)
			}

			history, err := q.History(ctx, "MG Road", 500)
			Expect(err).NotTo(HaveOccurred())
			Expect(history.RecordCount).To(Equal(backend.MaxHistoryLimit))
		})
	})
})
