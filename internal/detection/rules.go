// Package detection evaluates daily IP/UA rollups against threshold rules
// and produces findings with tagged reasons.
package detection

import (
	"errors"
	"fmt"

	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/trafficfilter"
)

// ErrInvalidRuleSet is returned when a rule set holds an unusable value.
var ErrInvalidRuleSet = errors.New("invalid rule set")

// RuleSet configures the click detector. A threshold of zero disables its
// rule. Rule sets are plain values, copied into each detector.
type RuleSet struct {
	ClickThreshold      int64 `json:"click_threshold"`
	MediaThreshold      int64 `json:"media_threshold"`
	ProgramThreshold    int64 `json:"program_threshold"`
	BurstClickThreshold int64 `json:"burst_click_threshold"`
	BurstWindowSeconds  int64 `json:"burst_window_seconds"`
	BrowserOnly         bool  `json:"browser_only"`
	ExcludeDatacenterIP bool  `json:"exclude_datacenter_ip"`
}

// DefaultRuleSet returns the stock click rules.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		ClickThreshold:      50,
		MediaThreshold:      3,
		ProgramThreshold:    3,
		BurstClickThreshold: 20,
		BurstWindowSeconds:  600,
	}
}

// Validate rejects negative thresholds.
func (r RuleSet) Validate() error {
	return validateThresholds([]namedValue{
		{"click_threshold", r.ClickThreshold},
		{"media_threshold", r.MediaThreshold},
		{"program_threshold", r.ProgramThreshold},
		{"burst_click_threshold", r.BurstClickThreshold},
		{"burst_window_seconds", r.BurstWindowSeconds},
	})
}

// Query returns the store pre-filter for these rules.
func (r RuleSet) Query() model.RollupQuery {
	return model.RollupQuery{
		MinTotal:            r.ClickThreshold,
		MinMedia:            r.MediaThreshold,
		MinProgram:          r.ProgramThreshold,
		MinBurst:            r.BurstClickThreshold,
		BrowserOnly:         r.BrowserOnly,
		ExcludeDatacenterIP: r.ExcludeDatacenterIP,
	}
}

// Reasons returns every click rule the rollup trips, in rule order.
func (r RuleSet) Reasons(rollup *model.IPUARollup) []model.Reason {
	return thresholdReasons(model.UnitClicks, rollup, limits{
		total:   r.ClickThreshold,
		media:   r.MediaThreshold,
		program: r.ProgramThreshold,
		burst:   r.BurstClickThreshold,
		window:  r.BurstWindowSeconds,
	})
}

// ConversionRuleSet configures the conversion detector. The gap rules
// compare click-to-conversion latency in seconds; zero disables them.
type ConversionRuleSet struct {
	ConversionThreshold      int64 `json:"conversion_threshold"`
	MediaThreshold           int64 `json:"conv_media_threshold"`
	ProgramThreshold         int64 `json:"conv_program_threshold"`
	BurstConversionThreshold int64 `json:"burst_conversion_threshold"`
	BurstWindowSeconds       int64 `json:"burst_conversion_window_seconds"`
	MinClickToConvSeconds    int64 `json:"min_click_to_conv_seconds"`
	MaxClickToConvSeconds    int64 `json:"max_click_to_conv_seconds"`
	BrowserOnly              bool  `json:"browser_only"`
	ExcludeDatacenterIP      bool  `json:"exclude_datacenter_ip"`
}

// DefaultConversionRuleSet returns the stock conversion rules.
func DefaultConversionRuleSet() ConversionRuleSet {
	return ConversionRuleSet{
		ConversionThreshold:      5,
		MediaThreshold:           2,
		ProgramThreshold:         2,
		BurstConversionThreshold: 3,
		BurstWindowSeconds:       1800,
		MinClickToConvSeconds:    5,
		MaxClickToConvSeconds:    2592000,
	}
}

// Validate rejects negative values and a gap floor above the ceiling.
func (r ConversionRuleSet) Validate() error {
	err := validateThresholds([]namedValue{
		{"conversion_threshold", r.ConversionThreshold},
		{"conv_media_threshold", r.MediaThreshold},
		{"conv_program_threshold", r.ProgramThreshold},
		{"burst_conversion_threshold", r.BurstConversionThreshold},
		{"burst_conversion_window_seconds", r.BurstWindowSeconds},
		{"min_click_to_conv_seconds", r.MinClickToConvSeconds},
		{"max_click_to_conv_seconds", r.MaxClickToConvSeconds},
	})
	if err != nil {
		return err
	}
	if r.MinClickToConvSeconds > 0 && r.MaxClickToConvSeconds > 0 && r.MinClickToConvSeconds > r.MaxClickToConvSeconds {
		return fmt.Errorf("%w: min_click_to_conv_seconds %d exceeds max_click_to_conv_seconds %d",
			ErrInvalidRuleSet, r.MinClickToConvSeconds, r.MaxClickToConvSeconds)
	}
	return nil
}

// Query returns the store pre-filter for these rules.
func (r ConversionRuleSet) Query() model.RollupQuery {
	return model.RollupQuery{
		MinTotal:            r.ConversionThreshold,
		MinMedia:            r.MediaThreshold,
		MinProgram:          r.ProgramThreshold,
		MinBurst:            r.BurstConversionThreshold,
		BrowserOnly:         r.BrowserOnly,
		ExcludeDatacenterIP: r.ExcludeDatacenterIP,
	}
}

// Filter returns the traffic filter the rules select.
func (r ConversionRuleSet) Filter() trafficfilter.Options {
	return trafficfilter.Options{BrowserOnly: r.BrowserOnly, ExcludeDatacenterIP: r.ExcludeDatacenterIP}
}

// GapRulesEnabled reports whether either latency rule is set.
func (r ConversionRuleSet) GapRulesEnabled() bool {
	return r.MinClickToConvSeconds > 0 || r.MaxClickToConvSeconds > 0
}

// Reasons returns every conversion rule the rollup trips. gap may be nil
// when no click time is known for the pair.
func (r ConversionRuleSet) Reasons(rollup *model.IPUARollup, gap *model.GapStats) []model.Reason {
	reasons := thresholdReasons(model.UnitConversions, rollup, limits{
		total:   r.ConversionThreshold,
		media:   r.MediaThreshold,
		program: r.ProgramThreshold,
		burst:   r.BurstConversionThreshold,
		window:  r.BurstWindowSeconds,
	})
	if gap == nil || gap.Count == 0 {
		return reasons
	}
	if r.MinClickToConvSeconds > 0 && gap.MinSeconds <= float64(r.MinClickToConvSeconds) {
		reasons = append(reasons, model.Reason{
			Kind:      model.ReasonGapTooFast,
			Unit:      model.UnitConversions,
			Threshold: r.MinClickToConvSeconds,
			Observed:  gap.MinSeconds,
		})
	}
	if r.MaxClickToConvSeconds > 0 && gap.MaxSeconds >= float64(r.MaxClickToConvSeconds) {
		reasons = append(reasons, model.Reason{
			Kind:      model.ReasonGapTooSlow,
			Unit:      model.UnitConversions,
			Threshold: r.MaxClickToConvSeconds,
			Observed:  gap.MaxSeconds,
		})
	}
	return reasons
}

type limits struct {
	total, media, program, burst, window int64
}

func thresholdReasons(unit model.EventUnit, rollup *model.IPUARollup, l limits) []model.Reason {
	var reasons []model.Reason
	if l.total > 0 && rollup.Total >= l.total {
		reasons = append(reasons, model.Reason{Kind: model.ReasonVolume, Unit: unit, Threshold: l.total, Observed: float64(rollup.Total)})
	}
	if l.media > 0 && rollup.MediaCount >= l.media {
		reasons = append(reasons, model.Reason{Kind: model.ReasonMediaCount, Unit: unit, Threshold: l.media, Observed: float64(rollup.MediaCount)})
	}
	if l.program > 0 && rollup.ProgramCount >= l.program {
		reasons = append(reasons, model.Reason{Kind: model.ReasonProgramCount, Unit: unit, Threshold: l.program, Observed: float64(rollup.ProgramCount)})
	}
	// Synthesized rollups carry no times and cannot be judged for bursts.
	if l.burst > 0 && rollup.Total >= l.burst && !rollup.FirstTime.IsZero() {
		duration := int64(rollup.Span().Seconds())
		if duration <= l.window {
			reasons = append(reasons, model.Reason{
				Kind:            model.ReasonBurst,
				Unit:            unit,
				Threshold:       l.burst,
				Observed:        float64(rollup.Total),
				DurationSeconds: duration,
				WindowSeconds:   l.window,
			})
		}
	}
	return reasons
}

type namedValue struct {
	name  string
	value int64
}

func validateThresholds(values []namedValue) error {
	for _, v := range values {
		if v.value < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidRuleSet, v.name, v.value)
		}
	}
	return nil
}
