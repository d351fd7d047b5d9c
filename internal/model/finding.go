package model

import "fmt"

// ReasonKind tags why a rollup was flagged.
type ReasonKind string

// Reason kinds.
const (
	ReasonVolume       ReasonKind = "volume"
	ReasonMediaCount   ReasonKind = "media_count"
	ReasonProgramCount ReasonKind = "program_count"
	ReasonBurst        ReasonKind = "burst"
	ReasonGapTooFast   ReasonKind = "gap_too_fast"
	ReasonGapTooSlow   ReasonKind = "gap_too_slow"
)

// EventUnit names what a reason counts.
type EventUnit string

// Event units.
const (
	UnitClicks      EventUnit = "clicks"
	UnitConversions EventUnit = "conversions"
)

// Reason is one fired rule with the values it was evaluated against.
type Reason struct {
	Kind      ReasonKind `json:"kind"`
	Unit      EventUnit  `json:"unit"`
	Threshold int64      `json:"threshold"`
	Observed  float64    `json:"observed"`

	// Burst only.
	DurationSeconds int64 `json:"duration_seconds,omitempty"`
	WindowSeconds   int64 `json:"window_seconds,omitempty"`
}

// String renders the audit form of the reason, e.g. "total_clicks >= 50".
func (r Reason) String() string {
	switch r.Kind {
	case ReasonVolume:
		if r.Unit == UnitConversions {
			return fmt.Sprintf("conversion_count >= %d", r.Threshold)
		}
		return fmt.Sprintf("total_clicks >= %d", r.Threshold)
	case ReasonMediaCount:
		return fmt.Sprintf("media_count >= %d", r.Threshold)
	case ReasonProgramCount:
		return fmt.Sprintf("program_count >= %d", r.Threshold)
	case ReasonBurst:
		return fmt.Sprintf("burst: %d %s in %ds (<= %ds)",
			int64(r.Observed), r.Unit, r.DurationSeconds, r.WindowSeconds)
	case ReasonGapTooFast:
		return fmt.Sprintf("click_to_conversion_seconds <= %ds", r.Threshold)
	case ReasonGapTooSlow:
		return fmt.Sprintf("click_to_conversion_seconds >= %ds", r.Threshold)
	default:
		return string(r.Kind)
	}
}

// Describe renders a human readable explanation for dashboards.
func (r Reason) Describe() string {
	switch r.Kind {
	case ReasonVolume:
		if r.Unit == UnitConversions {
			return fmt.Sprintf("Too many conversions (%d or more)", r.Threshold)
		}
		return fmt.Sprintf("Too many clicks (%d or more)", r.Threshold)
	case ReasonMediaCount:
		return fmt.Sprintf("Spread across media (%d or more)", r.Threshold)
	case ReasonProgramCount:
		return fmt.Sprintf("Spread across programs (%d or more)", r.Threshold)
	case ReasonBurst:
		if r.Unit == UnitConversions {
			return "Conversion burst in a short window"
		}
		return "Click burst in a short window"
	case ReasonGapTooFast:
		return fmt.Sprintf("Click to conversion too fast (threshold %ds)", r.Threshold)
	case ReasonGapTooSlow:
		return fmt.Sprintf("Click to conversion too slow (threshold %ds)", r.Threshold)
	default:
		return r.String()
	}
}

// IsDiversity reports whether the reason is a media or program spread rule.
func (r Reason) IsDiversity() bool {
	return r.Kind == ReasonMediaCount || r.Kind == ReasonProgramCount
}

// Finding is a flagged IP/UA rollup together with the reasons that fired.
type Finding struct {
	IPUARollup
	Reasons []Reason `json:"reasons"`
}

// ReasonStrings returns the audit strings of all reasons in order.
func (f *Finding) ReasonStrings() []string {
	out := make([]string, len(f.Reasons))
	for i, r := range f.Reasons {
		out[i] = r.String()
	}
	return out
}

// HasReason reports whether a reason of kind fired.
func (f *Finding) HasReason(kind ReasonKind) bool {
	for _, r := range f.Reasons {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

// ConversionFinding extends Finding with click-to-conversion latency bounds.
type ConversionFinding struct {
	Finding
	MinClickToConvSeconds *float64 `json:"min_click_to_conv_seconds"`
	MaxClickToConvSeconds *float64 `json:"max_click_to_conv_seconds"`
}

// CombinedResult is the output of running both detectors for one date.
type CombinedResult struct {
	ClickFindings      []Finding           `json:"click_findings"`
	ConversionFindings []ConversionFinding `json:"conversion_findings"`
	// HighRisk holds "<ip> | <ua>" entries flagged by both detectors, sorted.
	HighRisk []string `json:"high_risk"`
}

