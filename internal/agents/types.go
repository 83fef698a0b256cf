// Package agents provides the simulated person: slowly varying traits, the
// current preferred dose, per-tick history, event records, and the decision
// rules that read and update them.
package agents

import (
	"errors"
	"fmt"
	"slices"

	"github.com/talgya/vou/internal/calibration"
	"github.com/talgya/vou/internal/drugs"
)

var (
	// ErrInvalidTraits is returned when a person is constructed from bad traits.
	ErrInvalidTraits = errors.New("invalid person traits")
	// ErrInvariant marks an unexpected state reached in a closed dispatch.
	// It is a model-definition error; the run that hits it must stop.
	ErrInvariant = errors.New("model invariant violated")
)

// ResumeBehavior is what a person does to their preferred dose when they resume
// use after a forced stop.
type ResumeBehavior uint8

const (
	ResumeUnspecified ResumeBehavior = iota
	ResumeSameDose
	ResumeLowerDose
)

func (b ResumeBehavior) String() string {
	switch b {
	case ResumeUnspecified:
		return ""
	case ResumeSameDose:
		return "same_dose"
	case ResumeLowerDose:
		return "lower_dose"
	default:
		return fmt.Sprintf("resume(%d)", uint8(b))
	}
}

// ParseResumeBehavior parses a config value. Empty and "none" mean unspecified.
func ParseResumeBehavior(s string) (ResumeBehavior, error) {
	switch s {
	case "", "none":
		return ResumeUnspecified, nil
	case "same_dose":
		return ResumeSameDose, nil
	case "lower_dose":
		return ResumeLowerDose, nil
	default:
		return 0, fmt.Errorf("%w: unknown resume behavior %q", ErrInvalidTraits, s)
	}
}

// Traits are set once when the person is created.
type Traits struct {
	StartingDose          float64 // MME; also the floor for the preferred dose
	DoseIncrement         float64 // MME added per successful escalation
	BaseThreshold         float64 // threshold before the integrators take over
	ToleranceWindow       int     // ticks of concentration feeding habit
	ExternalRisk          float64 // 0 = protective environment, 1 = harmful
	InternalRisk          float64 // 0 = low individual risk, 1 = high
	BehavioralVariability float64 // relative jitter of the amount actually taken
	ResumeBehavior        ResumeBehavior
}

// DefaultTraits returns the reference person.
func DefaultTraits() Traits {
	return Traits{
		StartingDose:          50,
		DoseIncrement:         25,
		BaseThreshold:         0.001,
		ToleranceWindow:       3000,
		ExternalRisk:          0.5,
		InternalRisk:          0.5,
		BehavioralVariability: 0.1,
	}
}

// Validate checks trait ranges.
func (t Traits) Validate() error {
	if t.StartingDose <= 0 {
		return fmt.Errorf("%w: starting dose must be positive, got %v", ErrInvalidTraits, t.StartingDose)
	}
	if t.DoseIncrement <= 0 {
		return fmt.Errorf("%w: dose increment must be positive, got %v", ErrInvalidTraits, t.DoseIncrement)
	}
	if t.BaseThreshold < 0 {
		return fmt.Errorf("%w: base threshold must be non-negative, got %v", ErrInvalidTraits, t.BaseThreshold)
	}
	if t.ToleranceWindow <= 0 {
		return fmt.Errorf("%w: tolerance window must be positive, got %d", ErrInvalidTraits, t.ToleranceWindow)
	}
	if t.ExternalRisk < 0 || t.ExternalRisk > 1 {
		return fmt.Errorf("%w: external risk must be in [0, 1], got %v", ErrInvalidTraits, t.ExternalRisk)
	}
	if t.InternalRisk < 0 || t.InternalRisk > 1 {
		return fmt.Errorf("%w: internal risk must be in [0, 1], got %v", ErrInvalidTraits, t.InternalRisk)
	}
	if t.BehavioralVariability < 0 || t.BehavioralVariability > 1 {
		return fmt.Errorf("%w: behavioral variability must be in [0, 1], got %v", ErrInvalidTraits, t.BehavioralVariability)
	}
	if t.ResumeBehavior > ResumeLowerDose {
		return fmt.Errorf("%w: unknown resume behavior %d", ErrInvalidTraits, t.ResumeBehavior)
	}
	return nil
}

// CombinedRisk is the sum of both risk traits, in [0, 2].
func (t Traits) CombinedRisk() float64 {
	return t.ExternalRisk + t.InternalRisk
}

// DoseIncreaseAttempt records one evaluation of the escalation rule.
type DoseIncreaseAttempt struct {
	Tick      int
	Source    drugs.Source
	Attempted bool // false when the person did not seek an increase at all
	Success   bool
	DoseType  string
}

// Person is the durable record of one simulated individual. The engine is the
// only writer; it holds the Person for the duration of a single run.
type Person struct {
	Traits Traits
	cal    calibration.Calibration

	Dose                 float64
	Threshold            float64
	DownwardPressure     float64
	RiskLogit            float64
	LastDoseIncreaseTick int
	PostOverdosePause    float64 // ticks; meaningful once Overdoses is non-empty

	// SupplySource is the channel that produced the most recent successful
	// escalation. Doses are drawn from it.
	SupplySource      drugs.Source
	Channel           Channel
	dealerEstablished bool

	// Per-tick history, one entry per executed tick.
	Concentration []float64
	Habit         []float64
	Effect        []float64
	Desperation   []float64

	Tolerance *ToleranceWindow

	Overdoses          []int
	DosePeaks          []int
	EffectRecord       map[int]float64
	DoseIncreaseRecord []DoseIncreaseAttempt
	DoseSources        []drugs.Source
}

// NewPerson creates a person with empty history. expectedTicks pre-sizes the
// per-tick series.
func NewPerson(traits Traits, cal calibration.Calibration, expectedTicks int) (*Person, error) {
	if err := traits.Validate(); err != nil {
		return nil, err
	}
	if expectedTicks < 0 {
		expectedTicks = 0
	}

	p := &Person{
		Traits:        traits,
		cal:           cal,
		Dose:          traits.StartingDose,
		Threshold:     traits.BaseThreshold,
		SupplySource:  drugs.PrimaryDoctor,
		Channel:       ChannelPrimary,
		Concentration: make([]float64, 0, expectedTicks),
		Habit:         make([]float64, 0, expectedTicks),
		Effect:        make([]float64, 0, expectedTicks),
		Desperation:   make([]float64, 0, expectedTicks),
		Tolerance:     NewToleranceWindow(traits.ToleranceWindow),
		EffectRecord:  make(map[int]float64),
	}
	p.UpdateDownwardPressure()
	p.updateRiskLogit()
	return p, nil
}

// Calibration returns the calibration the person was built with.
func (p *Person) Calibration() calibration.Calibration {
	return p.cal
}

// Ticks returns the number of ticks recorded so far.
func (p *Person) Ticks() int {
	return len(p.Concentration)
}

// RecordConcentration appends the concentration for a new tick and pushes it
// into the tolerance window.
func (p *Person) RecordConcentration(c float64) {
	p.Concentration = append(p.Concentration, c)
	p.Tolerance.Push(c)
}

// ReplaceConcentration overwrites the current tick's concentration, used when a
// dose taken mid-tick changes it.
func (p *Person) ReplaceConcentration(c float64) {
	p.Concentration[len(p.Concentration)-1] = c
	p.Tolerance.ReplaceNewest(c)
}

// RecordDoseTaken notes the source of a dose.
func (p *Person) RecordDoseTaken(src drugs.Source) {
	p.DoseSources = append(p.DoseSources, src)
}

// MaxHabit returns the highest habit reached so far.
func (p *Person) MaxHabit() float64 {
	if len(p.Habit) == 0 {
		return 0
	}
	return slices.Max(p.Habit)
}
