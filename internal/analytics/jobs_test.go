package analytics_test

import (
	"context"
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/hardwater/internal/analytics"
	"procodus.dev/hardwater/pkg/water"
)

type fixedHardness struct {
	value float64
	err   error
}

func (f fixedHardness) CurrentHardness(context.Context, string) (float64, error) {
	return f.value, f.err
}

type zeroHardness struct{}

func (zeroHardness) CurrentHardness(context.Context, string) (float64, error) {
	return 0, nil
}

var _ = Describe("Job Tracker", func() {
	var (
		registry *analytics.Registry
		tracker  *analytics.Tracker
	)

	newTracker := func(lookup analytics.HardnessLookup) *analytics.Tracker {
		t, err := analytics.NewTracker(&analytics.TrackerConfig{
			Logger:    testLogger(),
			Registry:  registry,
			Hardness:  lookup,
			TimeScale: 6000,
		})
		Expect(err).NotTo(HaveOccurred())
		return t
	}

	BeforeEach(func() {
		registry = analytics.NewRegistry()
		tracker = newTracker(fixedHardness{value: 282.12})
	})

	AfterEach(func() {
		tracker.Wait()
	})

	Describe("Registry", func() {
		It("should hand out copies", func() {
			Expect(registry.Create(analytics.Job{ID: "a", Status: analytics.JobQueued})).To(Succeed())

			job, ok := registry.Get("a")
			Expect(ok).To(BeTrue())
			job.Status = analytics.JobFailed

			again, _ := registry.Get("a")
			Expect(again.Status).To(Equal(analytics.JobQueued))
		})

		It("should reject duplicate ids", func() {
			Expect(registry.Create(analytics.Job{ID: "a"})).To(Succeed())
			Expect(registry.Create(analytics.Job{ID: "a"})).NotTo(Succeed())
		})

		It("should report updates of unknown jobs", func() {
			Expect(registry.Update("missing", func(*analytics.Job) {})).To(BeFalse())
		})
	})

	Describe("Start", func() {
		It("should estimate minutes from volume and the default flow", func() {
			result, err := tracker.Start(context.Background(), analytics.TreatmentRequest{
				Area:         "Whitefield",
				Device:       "softener",
				VolumeLiters: 10,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal("started"))
			Expect(result.JobID).NotTo(BeEmpty())
			Expect(result.EstimatedMinutes).To(BeNumerically("~", 10/0.166, 1e-9))
		})

		DescribeTable("should reject invalid requests",
			func(req analytics.TreatmentRequest) {
				_, err := tracker.Start(context.Background(), req)
				Expect(errors.Is(err, water.ErrValidation)).To(BeTrue())
				Expect(registry.Len()).To(BeZero())
			},
			Entry("missing area", analytics.TreatmentRequest{Device: "ro", VolumeLiters: 5}),
			Entry("missing device", analytics.TreatmentRequest{Area: "Whitefield", VolumeLiters: 5}),
			Entry("zero volume", analytics.TreatmentRequest{Area: "Whitefield", Device: "ro"}),
			Entry("negative volume", analytics.TreatmentRequest{Area: "Whitefield", Device: "ro", VolumeLiters: -1}),
			Entry("efficiency above one", analytics.TreatmentRequest{
				Area: "Whitefield", Device: "ro", VolumeLiters: 5, RemovalEfficiency: ptr(1.5),
			}),
			Entry("zero flow", analytics.TreatmentRequest{
				Area: "Whitefield", Device: "ro", VolumeLiters: 5, FlowLPerMin: ptr(0.0),
			}),
			Entry("volume whose duration overflows", analytics.TreatmentRequest{
				Area: "Whitefield", Device: "ro", VolumeLiters: 1e20,
			}),
			Entry("infinite volume", analytics.TreatmentRequest{
				Area: "Whitefield", Device: "ro", VolumeLiters: math.Inf(1),
			}),
		)

		It("should run a job to completion with monotonic progress", func() {
			result, err := tracker.Start(context.Background(), analytics.TreatmentRequest{
				Area:         "Whitefield",
				Device:       "softener",
				VolumeLiters: 10,
			})
			Expect(err).NotTo(HaveOccurred())

			last := -1
			seen := map[analytics.JobStatus]bool{}
			Eventually(func(g Gomega) analytics.JobStatus {
				job, err := tracker.Get(result.JobID)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(job.Progress).To(BeNumerically(">=", last))
				last = job.Progress
				seen[job.Status] = true
				return job.Status
			}).WithTimeout(5 * time.Second).WithPolling(5 * time.Millisecond).Should(Equal(analytics.JobCompleted))

			Expect(seen).NotTo(HaveKey(analytics.JobFailed))

			job, err := tracker.Get(result.JobID)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Progress).To(Equal(100))
			Expect(job.Result).NotTo(BeNil())
			Expect(job.Result.FinalHardness).To(BeNumerically("~", 14.11, 0.001))
			Expect(job.Result.Device).To(Equal("softener"))
			Expect(job.Result.Area).To(Equal("Whitefield"))
			Expect(job.Result.VolumeLiters).To(Equal(10.0))
		})

		It("should honor a custom removal efficiency", func() {
			result, err := tracker.Start(context.Background(), analytics.TreatmentRequest{
				Area:              "Whitefield",
				Device:            "ro",
				VolumeLiters:      1,
				RemovalEfficiency: ptr(0.5),
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() analytics.JobStatus {
				job, _ := tracker.Get(result.JobID)
				return job.Status
			}).WithTimeout(5 * time.Second).Should(Equal(analytics.JobCompleted))

			job, _ := tracker.Get(result.JobID)
			Expect(job.Result.FinalHardness).To(BeNumerically("~", 141.06, 0.001))
		})

		It("should fail a job whose treatment step errors", func() {
			t, err := analytics.NewTracker(&analytics.TrackerConfig{
				Logger:    testLogger(),
				Registry:  registry,
				Hardness:  fixedHardness{value: 282.12},
				TimeScale: 6000,
				Treat: func(float64, float64) (float64, error) {
					return 0, errors.New("membrane rupture")
				},
			})
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(t.Wait)

			result, err := t.Start(context.Background(), analytics.TreatmentRequest{
				Area:         "Whitefield",
				Device:       "ro",
				VolumeLiters: 10,
			})
			Expect(err).NotTo(HaveOccurred())

			last := -1
			Eventually(func(g Gomega) analytics.JobStatus {
				job, err := t.Get(result.JobID)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(job.Progress).To(BeNumerically(">=", last))
				last = job.Progress
				return job.Status
			}).WithTimeout(5 * time.Second).WithPolling(5 * time.Millisecond).Should(Equal(analytics.JobFailed))

			job, err := t.Get(result.JobID)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Error).To(Equal("membrane rupture"))
			Expect(job.Result).To(BeNil())
			Expect(job.Progress).To(Equal(100))
		})

		It("should assume zero hardness when the lookup fails", func() {
			tracker = newTracker(fixedHardness{err: errors.New("data API down")})

			result, err := tracker.Start(context.Background(), analytics.TreatmentRequest{
				Area:         "Whitefield",
				Device:       "ro",
				VolumeLiters: 1,
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() analytics.JobStatus {
				job, _ := tracker.Get(result.JobID)
				return job.Status
			}).WithTimeout(5 * time.Second).Should(Equal(analytics.JobCompleted))

			job, _ := tracker.Get(result.JobID)
			Expect(job.Result.FinalHardness).To(BeZero())
		})
	})

	Describe("Get", func() {
		It("should return not found for unknown ids", func() {
			_, err := tracker.Get("does-not-exist")
			Expect(errors.Is(err, water.ErrNotFound)).To(BeTrue())
			Expect(err).To(MatchError("Job not found"))
		})
	})

	Describe("NewTracker", func() {
		It("should require a hardness lookup", func() {
			_, err := analytics.NewTracker(&analytics.TrackerConfig{Logger: testLogger()})
			Expect(err).To(MatchError(ContainSubstring("hardness lookup")))
		})

		It("should reject a negative time scale", func() {
			_, err := analytics.NewTracker(&analytics.TrackerConfig{
				Logger:    testLogger(),
				Hardness:  zeroHardness{},
				TimeScale: -1,
			})
			Expect(err).To(MatchError(ContainSubstring("time scale")))
		})
	})

	Describe("LatestHardness", func() {
		It("should read the newest reading of the area", func() {
			upstream := newFakeUpstream()
			upstream.history["Whitefield"] = []water.EnrichedReading{
				reading("Whitefield", time.Now(), 300, 40, 10),
			}

			h, err := analytics.LatestHardness{Upstream: upstream}.CurrentHardness(context.Background(), "Whitefield")
			Expect(err).NotTo(HaveOccurred())
			Expect(h).To(Equal(141.06))
		})

		It("should return not found without history", func() {
			_, err := analytics.LatestHardness{Upstream: newFakeUpstream()}.CurrentHardness(context.Background(), "Nowhere")
			Expect(errors.Is(err, water.ErrNotFound)).To(BeTrue())
		})
	})
})

func ptr[T any](v T) *T { return &v }
