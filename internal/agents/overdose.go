// Overdose risk and aftermath, evaluated once per detected dose peak.
package agents

import (
	"fmt"
	"math"

	"github.com/talgya/vou/internal/calibration"
	"github.com/talgya/vou/internal/curves"
	"github.com/talgya/vou/internal/entropy"
)

// Peak carries the state at the tick where concentration topped out after a
// dose. Peaks are detected one tick late, so Tick is the detecting tick minus one.
type Peak struct {
	Tick          int
	Concentration float64
	Habit         float64
	Effect        float64
}

// OverdoseOutcome describes what followed an overdose.
type OverdoseOutcome struct {
	Tick          int
	Fatal         bool
	Pause         float64 // ticks of abstinence before use can resume
	DoseReduction float64 // multiplier applied to the preferred dose
}

// RecordDosePeak stores the effect at a peak for the escalation rule.
func (p *Person) RecordDosePeak(detectedAt int, peak Peak) {
	p.DosePeaks = append(p.DosePeaks, detectedAt)
	p.EffectRecord[detectedAt] = peak.Effect
}

// OverdoseProbability returns the probability that the given peak causes an
// overdose under the calibrated model.
func (p *Person) OverdoseProbability(peak Peak) (float64, error) {
	od := p.cal.Overdose
	switch od.Model {
	case calibration.OverdoseLogisticExcess:
		// Baseline fitted to prescription data, which assumes a tolerant
		// patient; the squared excess over tolerance corrects for that.
		baseline := curves.Logistic(peak.Concentration, 1, od.K, od.X0)
		tolerance := math.Max(od.ToleranceFloor, peak.Habit)
		excess := math.Pow(peak.Concentration/tolerance-1, 2)
		return math.Min(1, baseline*excess), nil
	case calibration.OverdoseEffectThreshold:
		if peak.Effect >= od.EffectThreshold {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: overdose model %q", ErrInvariant, od.Model)
	}
}

// DidOverdose draws against OverdoseProbability.
func (p *Person) DidOverdose(peak Peak, r entropy.Source) (bool, error) {
	prob, err := p.OverdoseProbability(peak)
	if err != nil {
		return false, err
	}
	return r.Float64() < prob, nil
}

// Overdose records an overdose at tick t, sets the abstinence pause, cuts the
// preferred dose, and decides whether the overdose was fatal.
func (p *Person) Overdose(t int, r entropy.Source) OverdoseOutcome {
	od := p.cal.Overdose
	combined := p.Traits.CombinedRisk()
	p.Overdoses = append(p.Overdoses, t)

	// Low-risk people stop for up to two months; high-risk people barely pause.
	p.PostOverdosePause = od.PauseMaxTicks * math.Pow(1+od.PauseRate, combined) *
		entropy.Uniform(r, od.JitterLow, od.JitterHigh)

	reduction := math.Min(1, (combined*od.ReductionSlope+od.ReductionIntercept)*
		entropy.Uniform(r, od.JitterLow, od.JitterHigh))
	p.Dose = math.Max(p.Dose*reduction, p.Traits.StartingDose)
	p.UpdateDownwardPressure()

	return OverdoseOutcome{
		Tick:          t,
		Fatal:         r.Float64() < od.FatalProbability,
		Pause:         p.PostOverdosePause,
		DoseReduction: reduction,
	}
}
