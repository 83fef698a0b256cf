package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidOptions is returned when run options fail validation.
var ErrInvalidOptions = errors.New("invalid simulation options")

// Options configure one run. They are validated once, when the Simulation is
// constructed.
type Options struct {
	Days int

	// StopUseTick makes supply unavailable from that tick on. With
	// ResumeUseTick set, supply returns at the resume tick.
	StopUseTick   *int
	ResumeUseTick *int

	// Availability is the daily probability that a dealer can supply.
	Availability float64

	// Counterfeit pills vary in strength by ±DoseVariability. A counterfeit
	// dose is part of a fentanyl-contaminated bad batch with
	// FentanylProbability, scaling it by 1 + Exp(mean FentanylVariability).
	CounterfeitProbability float64
	DoseVariability        float64
	FentanylProbability    float64
	FentanylVariability    float64

	// SourceVariability is the amplitude of day-to-day potency drift of
	// dealer supply. Zero disables drift.
	SourceVariability float64

	// ForcedDailyDose takes a dose on the first tick of every day whenever
	// supply allows, in addition to craving-driven doses.
	ForcedDailyDose bool
}

// DefaultOptions returns two simulated years with the reference supply settings.
func DefaultOptions() Options {
	return Options{
		Days:                   730,
		Availability:           0.9,
		CounterfeitProbability: 0.1,
		DoseVariability:        0.1,
		FentanylProbability:    0.0001,
		FentanylVariability:    0.25,
	}
}

// Ticks returns the run length in ticks.
func (o Options) Ticks() int {
	return o.Days * TicksPerDay
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.Days <= 0 {
		return fmt.Errorf("%w: days must be positive, got %d", ErrInvalidOptions, o.Days)
	}
	probs := []struct {
		name string
		v    float64
	}{
		{"availability", o.Availability},
		{"counterfeit probability", o.CounterfeitProbability},
		{"fentanyl probability", o.FentanylProbability},
		{"dose variability", o.DoseVariability},
	}
	for _, p := range probs {
		if p.v < 0 || p.v > 1 {
			return fmt.Errorf("%w: %s must be in [0, 1], got %v", ErrInvalidOptions, p.name, p.v)
		}
	}
	if o.FentanylVariability < 0 {
		return fmt.Errorf("%w: fentanyl variability must be non-negative, got %v", ErrInvalidOptions, o.FentanylVariability)
	}
	if o.SourceVariability < 0 {
		return fmt.Errorf("%w: source variability must be non-negative, got %v", ErrInvalidOptions, o.SourceVariability)
	}
	if o.StopUseTick != nil && *o.StopUseTick < 0 {
		return fmt.Errorf("%w: stop-use tick must be non-negative, got %d", ErrInvalidOptions, *o.StopUseTick)
	}
	if o.ResumeUseTick != nil {
		if o.StopUseTick == nil {
			return fmt.Errorf("%w: resume-use tick requires a stop-use tick", ErrInvalidOptions)
		}
		if *o.ResumeUseTick <= *o.StopUseTick {
			return fmt.Errorf("%w: resume-use tick %d must follow stop-use tick %d",
				ErrInvalidOptions, *o.ResumeUseTick, *o.StopUseTick)
		}
	}
	return nil
}
