package generator_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/hardwater/pkg/generator"
)

var _ = Describe("Profiles", func() {
	It("should ship six valid default areas", func() {
		Expect(generator.DefaultProfiles).To(HaveLen(6))
		for _, p := range generator.DefaultProfiles {
			Expect(p.Validate()).To(Succeed(), p.Area)
		}
	})

	It("should round-trip through YAML", func() {
		data, err := generator.MarshalProfiles(generator.DefaultProfiles)
		Expect(err).NotTo(HaveOccurred())

		profiles, err := generator.ParseProfiles(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(profiles).To(Equal(generator.DefaultProfiles))
	})

	It("should load a profile file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "profiles.yaml")
		Expect(os.WriteFile(path, []byte(`
profiles:
  - area: Koramangala
    tds: [150, 300]
    ca: [20, 40]
    mg: [5, 15]
    ph: [6.8, 7.4]
    turbidity: [0.2, 1.0]
    chlorine: [0.2, 0.4]
    hardness: [60, 120]
`), 0o600)).To(Succeed())

		profiles, err := generator.LoadProfiles(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(profiles).To(HaveLen(1))
		Expect(profiles[0].Area).To(Equal("Koramangala"))
		Expect(profiles[0].TDS).To(Equal(generator.Range{Min: 150, Max: 300}))
	})

	It("should use the defaults without a path", func() {
		profiles, err := generator.LoadProfiles("")
		Expect(err).NotTo(HaveOccurred())
		Expect(profiles).To(Equal(generator.DefaultProfiles))
	})

	DescribeTable("should reject bad documents",
		func(doc, message string) {
			_, err := generator.ParseProfiles([]byte(doc))
			Expect(err).To(MatchError(ContainSubstring(message)))
		},
		Entry("no profiles", "profiles: []", "no profiles"),
		Entry("three value range", "profiles:\n  - area: X\n    tds: [1, 2, 3]\n", "exactly two values"),
		Entry("inverted range", "profiles:\n  - area: X\n    tds: [5, 1]\n", "invalid tds range"),
		Entry("underscore area", "profiles:\n  - area: MG_Road\n", "MG_Road"),
		Entry("duplicate area",
			"profiles:\n  - area: X\n  - area: X\n", "duplicate profile"),
	)
})

var _ = Describe("ReadingGenerator", func() {
	profile := generator.DefaultProfiles[0]

	It("should keep every value inside the profile ranges", func() {
		g := generator.NewReadingGenerator(profile, 42)
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		for range 200 {
			r := g.Generate(now)
			Expect(r.Area).To(Equal("Whitefield"))
			Expect(r.TDS).To(BeNumerically(">=", profile.TDS.Min))
			Expect(r.TDS).To(BeNumerically("<=", profile.TDS.Max))
			Expect(r.Ca).To(BeNumerically(">=", profile.Ca.Min))
			Expect(r.Ca).To(BeNumerically("<=", profile.Ca.Max))
			Expect(r.Mg).To(BeNumerically(">=", profile.Mg.Min))
			Expect(r.Mg).To(BeNumerically("<=", profile.Mg.Max))
			Expect(r.PH).To(BeNumerically(">=", profile.PH.Min))
			Expect(r.PH).To(BeNumerically("<=", profile.PH.Max))
			Expect(r.Chlorine).To(BeNumerically("<=", profile.Chlorine.Max))
			Expect(r.Timestamp.Time).To(BeTemporally("==", now))
		}
	})

	It("should be reproducible for a fixed seed", func() {
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		a := generator.NewReadingGenerator(profile, 7).History(now, 20)
		b := generator.NewReadingGenerator(profile, 7).History(now, 20)
		Expect(a).To(Equal(b))
	})

	It("should space history 80 to 100 minutes apart, oldest first", func() {
		end := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		history := generator.NewReadingGenerator(profile, 1).History(end, 50)
		Expect(history).To(HaveLen(50))

		for i := 1; i < len(history); i++ {
			gap := history[i].Timestamp.Sub(history[i-1].Timestamp.Time)
			Expect(gap).To(BeNumerically(">=", 80*time.Minute))
			Expect(gap).To(BeNumerically("<=", 100*time.Minute))
		}
		Expect(history[0].Timestamp.Time).To(BeTemporally("==", end.Add(-75*time.Hour)))
	})

	It("should return nothing for a non-positive count", func() {
		Expect(generator.NewReadingGenerator(profile, 1).History(time.Now(), 0)).To(BeEmpty())
	})
})

var _ = Describe("Device", func() {
	It("should get a fake identity in its area", func() {
		d := generator.NewDevice("Sarjapur")
		Expect(d).NotTo(BeNil())
		Expect(d.Area).To(Equal("Sarjapur"))
		Expect(d.DeviceID).To(HaveLen(36))
		Expect(d.MacAddress).NotTo(BeEmpty())
	})
})
