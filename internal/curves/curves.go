// Package curves provides the closed-form curves shared by the person model and
// the tick engine: a plain logistic and the one-compartment absorption/elimination
// (Bateman) curve.
package curves

import "math"

// Logistic evaluates L / (1 + e^(-k(x-x0))).
// L is the curve's maximum, k the growth rate, x0 the midpoint.
func Logistic(x, L, k, x0 float64) float64 {
	return L / (1 + math.Exp(-k*(x-x0)))
}

// Bateman returns the level at time t of an amount absorbed at rate ka and
// eliminated at rate ke:
//
//	amount * ka/(ka-ke) * (e^(-ke·t) - e^(-ka·t))
//
// When ka == ke the expression is replaced by its limit, amount·ke·t·e^(-ke·t).
func Bateman(amount, ka, ke, t float64) float64 {
	if amount == 0 {
		return 0
	}
	if math.Abs(ka-ke) < 1e-12 {
		return amount * ke * t * math.Exp(-ke*t)
	}
	return amount * ka / (ka - ke) * (math.Exp(-ke*t) - math.Exp(-ka*t))
}

// PeakTime returns the time at which a Bateman curve with the given rates peaks.
func PeakTime(ka, ke float64) float64 {
	if math.Abs(ka-ke) < 1e-12 {
		return 1 / ke
	}
	return math.Log(ka/ke) / (ka - ke)
}
