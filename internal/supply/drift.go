// Package supply models the slowly varying potency of illicit supply.
// Street supply is neither constant nor independent from day to day: a batch
// circulates for a while, then is replaced. Drift samples a one-dimensional
// simplex noise field along the day axis to capture that.
package supply

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Frequency is the noise frequency per simulated day; features last about a week.
const Frequency = 1.0 / 7.0

// Drift yields a potency multiplier for illicit doses on a given day.
type Drift struct {
	noise       opensimplex.Noise
	variability float64
}

// NewDrift creates a drift field. A variability of 0 disables drift entirely.
func NewDrift(seed int64, variability float64) *Drift {
	return &Drift{
		noise:       opensimplex.New(seed),
		variability: variability,
	}
}

// Multiplier returns 1 + variability·noise(day), floored at zero.
func (d *Drift) Multiplier(day int) float64 {
	if d == nil || d.variability == 0 {
		return 1
	}
	n := d.noise.Eval2(float64(day)*Frequency, 0)
	return math.Max(0, 1+d.variability*n)
}
