package config

import (
	"fmt"
	"os"
	"time"

	"warden/internal/commands"

	"gopkg.in/yaml.v3"
)

// EstimatesFile overrides the built-in estimate table, e.g.
//
//	safety_margin: 90s
//	actions:
//	  capture-photo: {estimate: 20s}
//	  capture-video: {default_duration: 45s}
type EstimatesFile struct {
	SafetyMargin string                    `yaml:"safety_margin"`
	MaxDuration  string                    `yaml:"max_duration"`
	Fallback     string                    `yaml:"fallback"`
	Actions      map[string]ActionEstimate `yaml:"actions"`
}

type ActionEstimate struct {
	// Estimate is a fixed run time for actions without a declared duration.
	Estimate string `yaml:"estimate"`
	// DefaultDuration marks the action as duration-bearing.
	DefaultDuration string `yaml:"default_duration"`
}

// Estimator builds the estimate table: defaults, then SAFETY_MARGIN, then
// the optional YAML file.
func (c Config) Estimator() (commands.Estimator, error) {
	e := commands.DefaultEstimator()
	e.SafetyMargin = c.SafetyMargin
	if c.EstimatesFile == "" {
		return e, nil
	}
	raw, err := os.ReadFile(c.EstimatesFile)
	if err != nil {
		return e, fmt.Errorf("read estimates file: %w", err)
	}
	var f EstimatesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return e, fmt.Errorf("parse estimates file: %w", err)
	}
	if err := f.Apply(&e); err != nil {
		return e, fmt.Errorf("estimates file %s: %w", c.EstimatesFile, err)
	}
	return e, nil
}

func (f EstimatesFile) Apply(e *commands.Estimator) error {
	if err := setDuration(&e.SafetyMargin, f.SafetyMargin, "safety_margin"); err != nil {
		return err
	}
	if err := setDuration(&e.MaxDuration, f.MaxDuration, "max_duration"); err != nil {
		return err
	}
	if err := setDuration(&e.Fallback, f.Fallback, "fallback"); err != nil {
		return err
	}
	for action, a := range f.Actions {
		if a.DefaultDuration != "" {
			d, err := time.ParseDuration(a.DefaultDuration)
			if err != nil {
				return fmt.Errorf("%s.default_duration: %w", action, err)
			}
			e.DefaultDuration[action] = d
			delete(e.Fixed, action)
			continue
		}
		if a.Estimate != "" {
			d, err := time.ParseDuration(a.Estimate)
			if err != nil {
				return fmt.Errorf("%s.estimate: %w", action, err)
			}
			e.Fixed[action] = d
			delete(e.DefaultDuration, action)
		}
	}
	return nil
}

func setDuration(dst *time.Duration, v, name string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
