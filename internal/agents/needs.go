// Craving and restraint: the quantities that push a person toward or away from
// using. Habit rises with sustained exposure, the threshold follows the
// integrators, and downward pressure holds the person back.
package agents

import (
	"math"

	"github.com/talgya/vou/internal/curves"
)

// HabitLevel maps the tolerance window onto the logistic habit curve for tick t.
// Every shape parameter scales with the current preferred dose, so raising the
// dose raises the ceiling habit can reach. There is no habit at tick 0.
func (p *Person) HabitLevel(t int) float64 {
	if t == 0 {
		return 0
	}
	h := p.cal.Habit
	x := p.Tolerance.Mean() * h.ConcMultiplier
	L := math.Pow(p.Dose, h.L1) * h.L2
	k := math.Max(h.K1-p.Dose*h.K2, h.MinRate)
	x0 := p.Dose * h.X1
	return curves.Logistic(x, L, k, x0)
}

// UpdateDownwardPressure recomputes the probability of refraining from a dose.
// It must be called whenever Dose changes.
//
// External risk lowers the floor; internal risk pushes the midpoint of the
// dose response out, so a high-risk person stays disinhibited at higher doses.
func (p *Person) UpdateDownwardPressure() {
	r := p.cal.Risk
	midpoint := p.Traits.InternalRisk*(r.MidpointMax-r.MidpointMin) + r.MidpointMin
	baseline := 1 - p.Traits.ExternalRisk
	p.DownwardPressure = baseline + (1-baseline)/(1+math.Exp(-r.Rate*(p.Dose-midpoint)))
}

// updateRiskLogit derives the threshold-scaling logit from the mean risk trait.
func (p *Person) updateRiskLogit() {
	r := p.cal.Risk
	avg := p.Traits.CombinedRisk() / 2
	avg = math.Min(math.Max(avg, r.Epsilon), 1-r.Epsilon)
	p.RiskLogit = math.Log(avg/(1-avg)) / r.LogitScale
}

// AdjustThreshold scales a raw integrator threshold by the risk logit. Inside
// the pass band the threshold is left alone; a strongly protective logit
// shrinks it and a strongly risky one inflates it.
func (p *Person) AdjustThreshold(raw float64) float64 {
	band := p.cal.Threshold.LogitPassBand
	switch {
	case math.Abs(p.RiskLogit) < band:
		return raw
	case p.RiskLogit < 0:
		return raw / math.Abs(p.RiskLogit)
	default:
		return raw * p.RiskLogit
	}
}
