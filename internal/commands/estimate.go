package commands

import (
	"fmt"
	"time"
)

// Estimator computes when a running command is expected to be finished.
// Estimates should err long; an early reclaim re-runs a live action.
type Estimator struct {
	// Fixed is used for actions without a declared duration.
	Fixed map[string]time.Duration
	// DefaultDuration is used for duration-bearing actions whose
	// parameters omit "duration".
	DefaultDuration map[string]time.Duration
	// MaxDuration is the longest declared duration Validate accepts. It is
	// never used to shorten an estimate.
	MaxDuration  time.Duration
	Fallback     time.Duration
	SafetyMargin time.Duration
}

func DefaultEstimator() Estimator {
	return Estimator{
		Fixed: map[string]time.Duration{
			ActionCapturePhoto: 20 * time.Second,
			ActionReadPosition: 30 * time.Second,
			ActionVibrate:      5 * time.Second,
		},
		DefaultDuration: map[string]time.Duration{
			ActionCaptureVideo: 30 * time.Second,
			ActionCaptureAudio: 30 * time.Second,
			ActionRing:         15 * time.Second,
		},
		MaxDuration:  30 * time.Minute,
		Fallback:     30 * time.Second,
		SafetyMargin: time.Minute,
	}
}

// Estimate returns the expected run time of cmd, without the safety margin.
// A declared duration is used as is, even past MaxDuration.
func (e Estimator) Estimate(cmd Command) time.Duration {
	if def, ok := e.DefaultDuration[cmd.ActionType]; ok {
		d, declared, err := cmd.DeclaredDuration()
		switch {
		case err != nil:
			// unusable value; assume the longest run we would have accepted
			return max(def, e.MaxDuration)
		case declared:
			return d
		default:
			return def
		}
	}
	if d, ok := e.Fixed[cmd.ActionType]; ok {
		return d
	}
	return e.Fallback
}

// Validate rejects a duration-bearing command whose declared duration is
// malformed or longer than MaxDuration.
func (e Estimator) Validate(cmd Command) error {
	if _, ok := e.DefaultDuration[cmd.ActionType]; !ok {
		return nil
	}
	d, declared, err := cmd.DeclaredDuration()
	if err != nil {
		return err
	}
	if declared && e.MaxDuration > 0 && d > e.MaxDuration {
		return fmt.Errorf("%w: %s exceeds the %s limit for %s", ErrInvalidDuration, d, e.MaxDuration, cmd.ActionType)
	}
	return nil
}

func (e Estimator) ExpectedFinish(cmd Command, now time.Time) time.Time {
	return now.Add(e.Estimate(cmd) + e.SafetyMargin)
}
