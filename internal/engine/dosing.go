// Pharmacokinetics, supply availability, and dose taking.
package engine

import (
	"fmt"
	"math"

	"github.com/talgya/vou/internal/agents"
	"github.com/talgya/vou/internal/curves"
	"github.com/talgya/vou/internal/drugs"
	"github.com/talgya/vou/internal/entropy"
)

// startingAmount is the amount the current absorption curve started from:
// what was on board when the last dose was taken plus the dose itself.
func (s *Simulation) startingAmount() float64 {
	return s.concWhenDoseTaken + s.lastAmountTaken
}

// concentration evaluates the one-compartment curve at timeSinceDose.
func (s *Simulation) concentration() float64 {
	return curves.Bateman(s.startingAmount(), s.ka, s.ke, float64(s.timeSinceDose))
}

// effect is the same curve with habit subtracted from the starting amount.
func (s *Simulation) effect(habit float64) float64 {
	return curves.Bateman(math.Max(0, s.startingAmount()-habit), s.ka, s.ke, float64(s.timeSinceDose))
}

// updateAvailability redraws supply once a day and applies the stop-use window.
func (s *Simulation) updateAvailability(t int) {
	stop, resume := s.Opts.StopUseTick, s.Opts.ResumeUseTick
	resuming := resume != nil && t == *resume
	if IsDayStart(t) || resuming {
		s.available = s.drawAvailability()
	}
	if stop == nil {
		return
	}

	switch {
	case resume == nil:
		if t >= *stop {
			s.available = false
		}
	case t >= *stop && t < *resume:
		s.available = false
	case resuming:
		s.event(t, "supply", "use resumes")
		if s.Person.Traits.ResumeBehavior == agents.ResumeLowerDose {
			s.Person.LowerDoseAfterPause()
			s.logger.Debug("dose lowered on resuming use", "tick", t, "dose", s.Person.Dose)
		}
	}
}

// drawAvailability decides whether supply can be had today. Prescribers
// always supply. A desperate person searches harder for a dealer, which
// shrinks the draw.
func (s *Simulation) drawAvailability() bool {
	p := s.Person
	if p.SupplySource.Clinical() {
		return true
	}
	u := s.rng.Float64()
	if n := len(p.Desperation); n > 0 && p.Desperation[n-1] > 1 {
		u /= p.Desperation[n-1]
	}
	return u < s.Opts.Availability
}

// recordDoseTaken draws what is taken from the current supply source and
// restarts the absorption curve from the current tick.
func (s *Simulation) recordDoseTaken(t int) error {
	p := s.Person
	src := p.SupplySource

	drug, err := entropy.WeightedChoice(s.table.DrugsBySource[src], s.rng)
	if err != nil {
		return fmt.Errorf("choosing drug from %s: %w", src, err)
	}
	mode, err := entropy.WeightedChoice(s.table.ModesByDrug[drug], s.rng)
	if err != nil {
		return fmt.Errorf("choosing mode for %s: %w", drug, err)
	}
	ka, ok := s.table.Absorption[mode]
	if !ok {
		return fmt.Errorf("%w: mode %q has no absorption rate", agents.ErrInvariant, mode)
	}

	amount := s.amountTaken(t, src, drug)

	s.concWhenDoseTaken = p.Concentration[t]
	s.lastAmountTaken = amount
	s.ka = ka
	// The new curve starts at zero elapsed time, so the dose tick records zero
	// and the next tick is the first one after the dose.
	s.timeSinceDose = 0
	p.ReplaceConcentration(s.concentration())
	p.RecordDoseTaken(src)
	s.peakPending = true

	s.Doses = append(s.Doses, DoseEvent{
		Tick:      t,
		Source:    src,
		Drug:      drug,
		Mode:      mode,
		Amount:    amount,
		PeakAfter: curves.PeakTime(ka, s.ke),
	})
	return nil
}

// amountTaken returns the MME actually consumed. Illicit supply drifts in
// potency, and counterfeit pills vary further; a counterfeit may come from a
// fentanyl-contaminated batch.
func (s *Simulation) amountTaken(t int, src drugs.Source, drug string) float64 {
	p := s.Person
	bv := p.Traits.BehavioralVariability
	amount := p.Dose * entropy.Uniform(s.rng, 1-bv, 1+bv) * s.table.Equivalence[drug]
	if src != drugs.Dealer {
		return amount
	}

	amount *= s.drift.Multiplier(DayOf(t))
	if s.rng.Float64() < s.Opts.CounterfeitProbability {
		dv := s.Opts.DoseVariability
		amount *= entropy.Uniform(s.rng, 1-dv, 1+dv)
		if s.rng.Float64() < s.Opts.FentanylProbability {
			amount *= 1 + entropy.Exponential(s.rng, s.Opts.FentanylVariability)
		}
	}
	return amount
}
