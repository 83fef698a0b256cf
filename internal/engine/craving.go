// Craving integrators, the dose-seeking threshold, and desperation.
package engine

import "math"

// Integrators is a snapshot of the four craving integrators.
type Integrators struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
}

// Integrators returns the current integrator values.
func (s *Simulation) Integrators() Integrators {
	return Integrators{A: s.intA, B: s.intB, C: s.intC, D: s.intD}
}

// updateIntegrators feeds concentration into the cascade. A follows raw
// concentration within hours; D keeps a memory on the order of a year.
func (s *Simulation) updateIntegrators(conc float64) {
	c := s.cal.Integrators
	s.intA = c.AlphaA*s.intA + conc/c.BetaA
	s.intB = c.AlphaB*s.intB + s.intA/c.BetaB
	s.intC = c.AlphaC*s.intC + s.intB/c.BetaC
	s.intD = c.AlphaD*s.intD + s.intC/c.BetaD
}

// rawThreshold combines the integrators before risk adjustment. Recent heavy
// exposure (A) lowers the threshold; long-term exposure (B, C) raises it.
func (s *Simulation) rawThreshold() float64 {
	c := s.cal.Threshold
	return (c.B1*s.intB + c.B2*s.intC) / (1 + c.B3*s.intA)
}

// desperation measures withdrawal-driven craving at the current threshold.
func (s *Simulation) desperation(conc float64) float64 {
	return math.Max(0, s.intD*(s.Person.Threshold-conc)/(conc+1))
}
