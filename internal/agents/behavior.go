// Dose-taking decisions. Each tick the engine asks the person whether they will
// take a dose; the answer depends on the overdose pause, craving relative to the
// threshold, and a draw against downward pressure.
package agents

import (
	"math"

	"github.com/talgya/vou/internal/entropy"
)

// InOverdosePause reports whether tick t still falls inside the pause that
// follows the most recent overdose.
func (p *Person) InOverdosePause(t int) bool {
	if len(p.Overdoses) == 0 {
		return false
	}
	return float64(t) <= float64(p.Overdoses[len(p.Overdoses)-1])+p.PostOverdosePause
}

// WillTakeDose decides whether the person takes a dose at tick t. The current
// tick's concentration must already be recorded. A draw is consumed only when
// the person is neither paused nor above threshold.
func (p *Person) WillTakeDose(t int, r entropy.Source) bool {
	if p.InOverdosePause(t) {
		return false
	}
	if len(p.Concentration) > 0 && p.Concentration[len(p.Concentration)-1] > p.Threshold {
		// Not craving.
		return false
	}
	return r.Float64() >= p.DownwardPressure
}

// LowerDoseAfterPause resets the preferred dose on resuming use after a forced
// stop: the largest increment multiple not above the highest habit reached,
// never below the starting dose.
func (p *Person) LowerDoseAfterPause() {
	inc := p.Traits.DoseIncrement
	p.Dose = math.Max(inc*math.Floor(p.MaxHabit()/inc), p.Traits.StartingDose)
	p.UpdateDownwardPressure()
}
