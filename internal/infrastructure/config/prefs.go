package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Preferences are the user-facing options. Unset fields leave the
// environment value in place.
type Preferences struct {
	EnableForegroundTrim   *bool `toml:"enable_foreground_trim"`
	EnableBackgroundTrim   *bool `toml:"enable_background_trim"`
	EnableBackgroundGC     *bool `toml:"enable_background_gc"`
	AuxiliaryBaselineScore *int  `toml:"auxiliary_baseline_score"`
	MainBaselineScore      *int  `toml:"main_baseline_score"`
}

// LoadPreferences reads a TOML preferences file
func LoadPreferences(path string) (*Preferences, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	return ParsePreferences(data)
}

// ParsePreferences decodes TOML preferences, rejecting unknown keys
func ParsePreferences(data []byte) (*Preferences, error) {
	var prefs Preferences
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&prefs); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}
	return &prefs, nil
}

// Apply overlays the set preferences onto engine
func (p *Preferences) Apply(engine *EngineConfig) {
	if p.EnableForegroundTrim != nil {
		engine.EnableForegroundTrim = *p.EnableForegroundTrim
	}
	if p.EnableBackgroundTrim != nil {
		engine.EnableBackgroundTrim = *p.EnableBackgroundTrim
	}
	if p.EnableBackgroundGC != nil {
		engine.EnableBackgroundGC = *p.EnableBackgroundGC
	}
	if p.AuxiliaryBaselineScore != nil {
		engine.AuxBaselineScore = *p.AuxiliaryBaselineScore
	}
	if p.MainBaselineScore != nil {
		engine.MainBaselineScore = *p.MainBaselineScore
	}
}
