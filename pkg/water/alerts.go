package water

import (
	"fmt"
	"strings"
)

// Contamination thresholds.
const (
	MinPH              = 6.5
	MaxPH              = 8.5
	MaxTurbidity       = 5.0
	MinChlorineResidue = 0.2
)

// Alerts lists the contamination problems of one sample, in a fixed order.
func Alerts(tds, ph, turbidity, chlorine float64) []string {
	var alerts []string
	if tds > MaxSafeTDS {
		alerts = append(alerts, fmt.Sprintf("High TDS (%.0f mg/L) detected.", tds))
	}
	if ph < MinPH {
		alerts = append(alerts, fmt.Sprintf("Low pH (%.1f). Water is acidic.", ph))
	} else if ph > MaxPH {
		alerts = append(alerts, fmt.Sprintf("High pH (%.1f). Water is too alkaline.", ph))
	}
	if turbidity > MaxTurbidity {
		alerts = append(alerts, fmt.Sprintf("Critical Turbidity (%.1f NTU) detected.", turbidity))
	}
	if chlorine < MinChlorineResidue && tds < MaxSafeTDS {
		alerts = append(alerts, fmt.Sprintf("Low Chlorine residual (%.2f mg/L).", chlorine))
	}
	return alerts
}

// AlertMessage renders Alerts as one line for dashboards.
func AlertMessage(tds, ph, turbidity, chlorine float64) string {
	alerts := Alerts(tds, ph, turbidity, chlorine)
	if len(alerts) == 0 {
		return "All contamination metrics are within acceptable limits."
	}
	return "ALERT: " + strings.Join(alerts, " | ")
}

// Suitability is the general household verdict for a sample.
func Suitability(tds, hardness float64) string {
	lines := []string{"GENERAL HOUSEHOLD SUITABILITY"}
	if tds <= MaxSafeTDS {
		lines = append(lines, "Drinking/Cooking: Good (within WHO limit).")
	} else {
		lines = append(lines, "Drinking/Cooking: Not recommended (high TDS). Requires RO/filtration.")
	}
	if hardness <= 150 {
		lines = append(lines, "Washing/Laundry: Acceptable (moderately hard or softer).")
	} else {
		lines = append(lines, "Washing/Laundry: Poor (hard water causes scale build-up and needs extra detergent).")
	}
	return strings.Join(lines, "\n")
}

// RecommendedAction picks the single top-level treatment suggestion.
func RecommendedAction(hardnessClass string, tds, turbidity float64) string {
	switch {
	case hardnessClass == "Very Hard" || hardnessClass == "Hard":
		return "High hardness detected. Recommend a water softener or reverse osmosis (RO) system to prevent scaling."
	case tds > MaxSafeTDS:
		return "High TDS level. Recommend a reverse osmosis (RO) system."
	case turbidity > MaxTurbidity:
		return "High turbidity indicates suspended solids. Recommend a sediment filter."
	default:
		return "Water quality is acceptable, but regular monitoring is advised. No immediate treatment needed."
	}
}
