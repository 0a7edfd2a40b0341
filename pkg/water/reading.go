// Package water holds the water-quality domain model shared by the data layer,
// the analytics layer and the simulators.
package water

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// TimestampLayout is the wire and display format of reading timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Conversion factors from mg/L of Ca and Mg to mg/L as CaCO3.
const (
	CalciumFactor   = 2.497
	MagnesiumFactor = 4.118
)

// Drinking-water limits used by the classification.
const (
	MaxSafeTDS      = 500.0
	MaxSafeHardness = 200.0
)

// RequiredFields lists the payload fields a sensor must send.
var RequiredFields = []string{"area", "TDS", "Ca", "Mg", "pH", "turbidity", "chlorine"}

// Timestamp is a UTC wall-clock time with second precision that marshals as
// TimestampLayout.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to the second and converts it to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

// String formats the timestamp with TimestampLayout.
func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts TimestampLayout and RFC 3339.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimestamp parses TimestampLayout, falling back to RFC 3339.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if parsed, err := time.ParseInLocation(TimestampLayout, s, time.UTC); err == nil {
		return NewTimestamp(parsed), nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return NewTimestamp(parsed), nil
}

// Reading is one raw sensor sample as stored. Derived values are never part of it.
type Reading struct {
	Timestamp Timestamp      `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
	Area      string         `json:"area"`
	TDS       float64        `json:"TDS"`
	Ca        float64        `json:"Ca"`
	Mg        float64        `json:"Mg"`
	PH        float64        `json:"pH"`
	Turbidity float64        `json:"turbidity"`
	Chlorine  float64        `json:"chlorine"`
}

// Classification is the quick drinking-water verdict attached to every reading
// served by the query layer.
type Classification struct {
	HardnessClass     string `json:"hardness_class"`
	TDSStatus         string `json:"tds_status"`
	IsSafeForDrinking bool   `json:"is_safe_for_drinking"`
}

// EnrichedReading is a reading with its derived fields recomputed.
type EnrichedReading struct {
	Reading
	Classification Classification `json:"classification"`
	TotalHardness  float64        `json:"total_hardness"`
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// TotalHardness converts calcium and magnesium (mg/L) to total hardness in mg/L
// as CaCO3, rounded to two decimals.
func TotalHardness(ca, mg float64) float64 {
	return Round2(ca*CalciumFactor + mg*MagnesiumFactor)
}

// ClassifyHardness buckets a hardness value. Boundaries are closed-open.
func ClassifyHardness(hardness float64) string {
	switch {
	case hardness < 60:
		return "Soft"
	case hardness < 120:
		return "Moderately Hard"
	case hardness < 180:
		return "Hard"
	default:
		return "Very Hard"
	}
}

// TDSStatus reports whether total dissolved solids are within the recommended limit.
func TDSStatus(tds float64) string {
	if tds <= MaxSafeTDS {
		return "Safe"
	}
	return "Above Recommended Limit"
}

// SafeForDrinking is the combined TDS and hardness check.
func SafeForDrinking(tds, hardness float64) bool {
	return tds <= MaxSafeTDS && hardness <= MaxSafeHardness
}

// Classify builds the Classification for a TDS and hardness pair.
func Classify(tds, hardness float64) Classification {
	return Classification{
		HardnessClass:     ClassifyHardness(hardness),
		TDSStatus:         TDSStatus(tds),
		IsSafeForDrinking: SafeForDrinking(tds, hardness),
	}
}

// Enrich recomputes the derived fields of r from its raw values.
func Enrich(r Reading) EnrichedReading {
	hardness := TotalHardness(r.Ca, r.Mg)
	return EnrichedReading{
		Reading:        r,
		TotalHardness:  hardness,
		Classification: Classify(r.TDS, hardness),
	}
}
