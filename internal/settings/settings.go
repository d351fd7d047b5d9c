// Package settings holds the detection thresholds an operator can tune at
// runtime, their environment defaults and their persistence.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/caarlos0/env/v10"

	"github.com/jassnet/Fraudhunter/internal/detection"
)

// ErrInvalidSetting is returned for unknown keys and unusable values.
var ErrInvalidSetting = errors.New("invalid setting")

// Settings is the full set of tunable detection values. Env tags are read
// with the FRAUD_ prefix.
type Settings struct {
	ClickThreshold        int64 `json:"click_threshold" env:"CLICK_THRESHOLD" envDefault:"50"`
	MediaThreshold        int64 `json:"media_threshold" env:"MEDIA_THRESHOLD" envDefault:"3"`
	ProgramThreshold      int64 `json:"program_threshold" env:"PROGRAM_THRESHOLD" envDefault:"3"`
	BurstClickThreshold   int64 `json:"burst_click_threshold" env:"BURST_CLICK_THRESHOLD" envDefault:"20"`
	BurstWindowSeconds    int64 `json:"burst_window_seconds" env:"BURST_WINDOW_SECONDS" envDefault:"600"`
	ConversionThreshold   int64 `json:"conversion_threshold" env:"CONVERSION_THRESHOLD" envDefault:"5"`
	ConvMediaThreshold    int64 `json:"conv_media_threshold" env:"CONV_MEDIA_THRESHOLD" envDefault:"2"`
	ConvProgramThreshold  int64 `json:"conv_program_threshold" env:"CONV_PROGRAM_THRESHOLD" envDefault:"2"`
	BurstConvThreshold    int64 `json:"burst_conversion_threshold" env:"BURST_CONVERSION_THRESHOLD" envDefault:"3"`
	BurstConvWindowSecs   int64 `json:"burst_conversion_window_seconds" env:"BURST_CONVERSION_WINDOW_SECONDS" envDefault:"1800"`
	MinClickToConvSeconds int64 `json:"min_click_to_conv_seconds" env:"MIN_CLICK_TO_CONV_SECONDS" envDefault:"5"`
	MaxClickToConvSeconds int64 `json:"max_click_to_conv_seconds" env:"MAX_CLICK_TO_CONV_SECONDS" envDefault:"2592000"`
	BrowserOnly           bool  `json:"browser_only" env:"BROWSER_ONLY" envDefault:"false"`
	ExcludeDatacenterIP   bool  `json:"exclude_datacenter_ip" env:"EXCLUDE_DATACENTER_IP" envDefault:"false"`
}

// Keys lists every setting key in display order.
var Keys = []string{
	"click_threshold",
	"media_threshold",
	"program_threshold",
	"burst_click_threshold",
	"burst_window_seconds",
	"conversion_threshold",
	"conv_media_threshold",
	"conv_program_threshold",
	"burst_conversion_threshold",
	"burst_conversion_window_seconds",
	"min_click_to_conv_seconds",
	"max_click_to_conv_seconds",
	"browser_only",
	"exclude_datacenter_ip",
}

// Defaults returns the built-in values.
func Defaults() Settings {
	click := detection.DefaultRuleSet()
	conv := detection.DefaultConversionRuleSet()
	return Settings{
		ClickThreshold:        click.ClickThreshold,
		MediaThreshold:        click.MediaThreshold,
		ProgramThreshold:      click.ProgramThreshold,
		BurstClickThreshold:   click.BurstClickThreshold,
		BurstWindowSeconds:    click.BurstWindowSeconds,
		ConversionThreshold:   conv.ConversionThreshold,
		ConvMediaThreshold:    conv.MediaThreshold,
		ConvProgramThreshold:  conv.ProgramThreshold,
		BurstConvThreshold:    conv.BurstConversionThreshold,
		BurstConvWindowSecs:   conv.BurstWindowSeconds,
		MinClickToConvSeconds: conv.MinClickToConvSeconds,
		MaxClickToConvSeconds: conv.MaxClickToConvSeconds,
	}
}

// FromEnv reads FRAUD_* overrides on top of the defaults.
func FromEnv() (Settings, error) {
	s := Defaults()
	if err := env.ParseWithOptions(&s, env.Options{Prefix: "FRAUD_"}); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ClickRules returns the click detector rule set.
func (s Settings) ClickRules() detection.RuleSet {
	return detection.RuleSet{
		ClickThreshold:      s.ClickThreshold,
		MediaThreshold:      s.MediaThreshold,
		ProgramThreshold:    s.ProgramThreshold,
		BurstClickThreshold: s.BurstClickThreshold,
		BurstWindowSeconds:  s.BurstWindowSeconds,
		BrowserOnly:         s.BrowserOnly,
		ExcludeDatacenterIP: s.ExcludeDatacenterIP,
	}
}

// ConversionRules returns the conversion detector rule set.
func (s Settings) ConversionRules() detection.ConversionRuleSet {
	return detection.ConversionRuleSet{
		ConversionThreshold:      s.ConversionThreshold,
		MediaThreshold:           s.ConvMediaThreshold,
		ProgramThreshold:         s.ConvProgramThreshold,
		BurstConversionThreshold: s.BurstConvThreshold,
		BurstWindowSeconds:       s.BurstConvWindowSecs,
		MinClickToConvSeconds:    s.MinClickToConvSeconds,
		MaxClickToConvSeconds:    s.MaxClickToConvSeconds,
		BrowserOnly:              s.BrowserOnly,
		ExcludeDatacenterIP:      s.ExcludeDatacenterIP,
	}
}

// Validate checks both derived rule sets.
func (s Settings) Validate() error {
	if err := s.ClickRules().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	if err := s.ConversionRules().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	return nil
}

// ToMap encodes every setting as a JSON value keyed by setting name.
func (s Settings) ToMap() map[string]json.RawMessage {
	data, _ := json.Marshal(s)
	var out map[string]json.RawMessage
	_ = json.Unmarshal(data, &out)
	return out
}

// Merge returns s with values applied. Unknown keys, wrongly typed values
// and combinations that fail validation are rejected.
func (s Settings) Merge(values map[string]json.RawMessage) (Settings, error) {
	for key := range values {
		if !slices.Contains(Keys, key) {
			return Settings{}, fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
		}
	}

	merged := s.ToMap()
	for key, value := range values {
		merged[key] = value
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}

	var out Settings
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	if err := out.Validate(); err != nil {
		return Settings{}, err
	}
	return out, nil
}
