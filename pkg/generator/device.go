// Package generator simulates water-quality sensors.
package generator

import (
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"procodus.dev/hardwater/pkg/water"
)

// Device is the identity of a simulated sensor.
type Device struct {
	Timestamp  time.Time
	Area       string
	DeviceID   string `fake:"{uuid}"`
	MacAddress string `fake:"{macaddress}"`
	Firmware   string `fake:"{appversion}"`
}

// NewDevice creates a sensor with a random identity installed in area.
func NewDevice(area string) *Device {
	var device Device
	if err := gofakeit.Struct(&device); err != nil {
		return nil
	}
	device.Area = area
	device.Timestamp = time.Now().UTC()
	return &device
}

// ReadingGenerator draws readings from one area profile. It is not safe for
// concurrent use.
type ReadingGenerator struct {
	profile Profile
	faker   *gofakeit.Faker
}

// NewReadingGenerator creates a generator for profile. A zero seed picks a
// random one.
func NewReadingGenerator(profile Profile, seed uint64) *ReadingGenerator {
	return &ReadingGenerator{
		profile: profile,
		faker:   gofakeit.New(seed),
	}
}

// Profile returns the profile readings are drawn from.
func (g *ReadingGenerator) Profile() Profile {
	return g.profile
}

// Generate draws one reading stamped t. Calcium and magnesium are derived
// from a drawn hardness so the two stay correlated, then clamped to the
// profile ranges.
func (g *ReadingGenerator) Generate(t time.Time) water.Reading {
	p := g.profile

	tds := water.Round2(g.uniform(p.TDS))
	hardness := water.Round2(g.uniform(p.Hardness))

	// Calcium carries 60 to 80 percent of the hardness.
	caShare := g.faker.Float64Range(0.6, 0.8)
	ca := p.Ca.clamp(water.Round2(hardness * caShare / 2.5))
	mg := p.Mg.clamp(water.Round2(hardness * (1 - caShare) / 4.1))

	return water.Reading{
		Timestamp: water.NewTimestamp(t),
		Area:      p.Area,
		TDS:       tds,
		Ca:        ca,
		Mg:        mg,
		PH:        water.Round2(g.uniform(p.PH)),
		Turbidity: water.Round2(g.uniform(p.Turbidity)),
		Chlorine:  math.Round(g.uniform(p.Chlorine)*1000) / 1000,
	}
}

// History draws n readings ending near end, 80 to 100 minutes apart and
// oldest first.
func (g *ReadingGenerator) History(end time.Time, n int) []water.Reading {
	if n <= 0 {
		return nil
	}

	current := end.Add(-time.Duration(float64(n) * 1.5 * float64(time.Hour)))
	readings := make([]water.Reading, 0, n)
	for range n {
		readings = append(readings, g.Generate(current))
		current = current.Add(time.Duration(g.faker.IntRange(80, 100)) * time.Minute)
	}
	return readings
}

func (g *ReadingGenerator) uniform(r Range) float64 {
	if r.Min == r.Max {
		return r.Min
	}
	return g.faker.Float64Range(r.Min, r.Max)
}
