package vitals

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Range is the plausible physiological bound for one vital sign. Values
// outside the range are rejected at ingest, not clamped.
type Range struct {
	Field string  `yaml:"field" json:"field"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
}

type RulesConfig struct {
	Ranges  []Range  `yaml:"ranges" json:"ranges"`
	Sources []string `yaml:"sources" json:"sources"`
}

// LoadRules reads range rules from a YAML file, falling back to the built-in
// defaults when no path is configured. On any failure it returns the defaults
// alongside the error so callers never end up validating with an empty rule
// set.
func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), err
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return DefaultRules(), err
	}

	if len(cfg.Ranges) == 0 {
		return DefaultRules(), errors.New("no vital sign ranges configured")
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultRules().Sources
	}

	return cfg, nil
}

func DefaultRules() RulesConfig {
	return RulesConfig{
		Ranges: []Range{
			{Field: "heart_rate", Min: 0, Max: 300},
			{Field: "bp_systolic", Min: 50, Max: 300},
			{Field: "bp_diastolic", Min: 20, Max: 200},
			{Field: "respiratory_rate", Min: 0, Max: 60},
			{Field: "temperature", Min: 30, Max: 45},
			{Field: "oxygen_saturation", Min: 0, Max: 100},
		},
		Sources: []string{SourceICU, SourceAE, SourceWard, SourceOther},
	}
}

func (c RulesConfig) rangeFor(field string) (Range, bool) {
	for _, r := range c.Ranges {
		if r.Field == field {
			return r, true
		}
	}
	return Range{}, false
}

func (c RulesConfig) sourceAllowed(source string) bool {
	for _, s := range c.Sources {
		if strings.EqualFold(s, source) {
			return true
		}
	}
	return false
}
