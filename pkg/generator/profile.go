package generator

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"procodus.dev/hardwater/pkg/water"
)

// Range is a closed interval, written as [min, max] in profile files.
type Range struct {
	Min float64
	Max float64
}

// UnmarshalYAML accepts a two element sequence.
func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	var pair []float64
	if err := node.Decode(&pair); err != nil {
		return fmt.Errorf("line %d: range must be [min, max]: %w", node.Line, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("line %d: range must have exactly two values, got %d", node.Line, len(pair))
	}
	r.Min, r.Max = pair[0], pair[1]
	return nil
}

// MarshalYAML writes the range as [min, max].
func (r Range) MarshalYAML() (any, error) {
	return []float64{r.Min, r.Max}, nil
}

func (r Range) valid() bool {
	return r.Min >= 0 && r.Min <= r.Max
}

func (r Range) clamp(v float64) float64 {
	return max(r.Min, min(r.Max, v))
}

// Profile holds the value ranges observed in one area.
type Profile struct {
	Area      string `yaml:"area"`
	TDS       Range  `yaml:"tds"`
	Ca        Range  `yaml:"ca"`
	Mg        Range  `yaml:"mg"`
	PH        Range  `yaml:"ph"`
	Turbidity Range  `yaml:"turbidity"`
	Chlorine  Range  `yaml:"chlorine"`
	Hardness  Range  `yaml:"hardness"`
}

// Validate checks the area name and every range.
func (p Profile) Validate() error {
	if _, err := water.NewAreaID(p.Area); err != nil {
		return err
	}

	ranges := map[string]Range{
		"tds": p.TDS, "ca": p.Ca, "mg": p.Mg, "ph": p.PH,
		"turbidity": p.Turbidity, "chlorine": p.Chlorine, "hardness": p.Hardness,
	}
	for name, r := range ranges {
		if !r.valid() {
			return fmt.Errorf("profile %s: invalid %s range [%g, %g]", p.Area, name, r.Min, r.Max)
		}
	}
	return nil
}

// DefaultProfiles are Bengaluru areas: three borewell-fed hard water areas
// and three on treated municipal supply.
var DefaultProfiles = []Profile{
	{
		Area: "Whitefield", TDS: Range{192, 1002}, Ca: Range{80, 200}, Mg: Range{40, 120},
		PH: Range{7.0, 8.4}, Turbidity: Range{1.0, 4.5}, Chlorine: Range{0.0, 0.05}, Hardness: Range{96, 492},
	},
	{
		Area: "Electronics City", TDS: Range{68, 1236}, Ca: Range{100, 250}, Mg: Range{50, 140},
		PH: Range{7.2, 8.5}, Turbidity: Range{1.5, 5.0}, Chlorine: Range{0.0, 0.03}, Hardness: Range{8, 580},
	},
	{
		Area: "Sarjapur", TDS: Range{200, 1100}, Ca: Range{90, 220}, Mg: Range{45, 110},
		PH: Range{7.1, 8.3}, Turbidity: Range{1.2, 4.2}, Chlorine: Range{0.0, 0.04}, Hardness: Range{85, 450},
	},
	{
		Area: "Jayanagar", TDS: Range{150, 400}, Ca: Range{20, 60}, Mg: Range{8, 25},
		PH: Range{6.5, 7.8}, Turbidity: Range{0.2, 2.0}, Chlorine: Range{0.2, 0.5}, Hardness: Range{60, 180},
	},
	{
		Area: "HSR Layout", TDS: Range{142, 646}, Ca: Range{30, 80}, Mg: Range{15, 40},
		PH: Range{6.8, 7.9}, Turbidity: Range{0.5, 3.0}, Chlorine: Range{0.1, 0.4}, Hardness: Range{68, 276},
	},
	{
		Area: "MG Road", TDS: Range{120, 350}, Ca: Range{15, 50}, Mg: Range{5, 20},
		PH: Range{6.6, 7.6}, Turbidity: Range{0.3, 1.8}, Chlorine: Range{0.3, 0.6}, Hardness: Range{40, 150},
	},
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// ParseProfiles decodes a profile document.
func ParseProfiles(data []byte) ([]Profile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}

	if len(f.Profiles) == 0 {
		return nil, errors.New("profile file defines no profiles")
	}

	seen := make(map[string]struct{}, len(f.Profiles))
	for _, p := range f.Profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[p.Area]; dup {
			return nil, fmt.Errorf("duplicate profile for %s", p.Area)
		}
		seen[p.Area] = struct{}{}
	}
	return f.Profiles, nil
}

// LoadProfiles reads profiles from path. An empty path yields DefaultProfiles.
func LoadProfiles(path string) ([]Profile, error) {
	if path == "" {
		return DefaultProfiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}
	return ParseProfiles(data)
}

// MarshalProfiles encodes profiles in the format read by ParseProfiles.
func MarshalProfiles(profiles []Profile) ([]byte, error) {
	return yaml.Marshal(profileFile{Profiles: profiles})
}
