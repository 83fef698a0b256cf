// Package calibration holds every calibrated constant of the opioid-use model in
// one versioned structure. Mechanism code reads its parameters from here, so a
// new calibration is a data change, not a code change.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Version identifies the default calibration.
const Version = "vou-2021.1"

// ErrInvalid is returned when a calibration fails validation.
var ErrInvalid = errors.New("invalid calibration")

// OverdoseModel selects the overdose-risk formula.
type OverdoseModel string

const (
	// OverdoseLogisticExcess is a logistic curve on peak concentration scaled by
	// the squared excess of peak concentration over tolerance.
	OverdoseLogisticExcess OverdoseModel = "logistic_excess"
	// OverdoseEffectThreshold triggers an overdose whenever the perceived effect
	// at a dose peak reaches a fixed threshold.
	OverdoseEffectThreshold OverdoseModel = "effect_threshold"
)

// Calibration groups the model's calibrated constants.
type Calibration struct {
	Version     string           `yaml:"version"`
	PK          PKParams         `yaml:"pk"`
	Habit       HabitParams      `yaml:"habit"`
	Integrators IntegratorParams `yaml:"integrators"`
	Threshold   ThresholdParams  `yaml:"threshold"`
	Risk        RiskParams       `yaml:"risk"`
	Overdose    OverdoseParams   `yaml:"overdose"`
	Escalation  EscalationParams `yaml:"escalation"`
}

// PKParams calibrates elimination. Absorption rates live in the drug table
// because they depend on the administration mode.
type PKParams struct {
	// HalfLifeTicks is the morphine half-life (2.8 h) in 14.4-minute ticks.
	HalfLifeTicks float64 `yaml:"half_life_ticks"`
}

// HabitParams shapes the logistic tolerance curve. Every shape parameter is a
// function of the preferred dose.
type HabitParams struct {
	ConcMultiplier float64 `yaml:"conc_multiplier"` // scales the rolling mean before the curve
	L1             float64 `yaml:"l1"`              // max = dose^L1 * L2
	L2             float64 `yaml:"l2"`
	K1             float64 `yaml:"k1"` // rate = K1 - dose*K2
	K2             float64 `yaml:"k2"`
	X1             float64 `yaml:"x1"`       // midpoint = dose*X1
	MinRate        float64 `yaml:"min_rate"` // rate floor
}

// IntegratorParams configures the four cascaded craving integrators.
// A integrates raw concentration; each later stage integrates the previous one.
type IntegratorParams struct {
	AlphaA float64 `yaml:"alpha_a"`
	BetaA  float64 `yaml:"beta_a"`
	AlphaB float64 `yaml:"alpha_b"`
	BetaB  float64 `yaml:"beta_b"`
	AlphaC float64 `yaml:"alpha_c"`
	BetaC  float64 `yaml:"beta_c"`
	AlphaD float64 `yaml:"alpha_d"`
	BetaD  float64 `yaml:"beta_d"`
}

// ThresholdParams combines the integrators into the dose-seeking threshold.
type ThresholdParams struct {
	B1            float64 `yaml:"b1"`
	B2            float64 `yaml:"b2"`
	B3            float64 `yaml:"b3"`
	LogitPassBand float64 `yaml:"logit_pass_band"` // |logit| below this leaves the threshold untouched
}

// RiskParams converts risk traits into downward pressure and the risk logit.
type RiskParams struct {
	MidpointMin float64 `yaml:"midpoint_min"`
	MidpointMax float64 `yaml:"midpoint_max"`
	Rate        float64 `yaml:"rate"`
	LogitScale  float64 `yaml:"logit_scale"`
	Epsilon     float64 `yaml:"epsilon"` // keeps mean risk inside (0, 1)
}

// OverdoseParams calibrates overdose risk and its aftermath.
type OverdoseParams struct {
	Model              OverdoseModel `yaml:"model"`
	X0                 float64       `yaml:"x0"`
	K                  float64       `yaml:"k"`
	ToleranceFloor     float64       `yaml:"tolerance_floor"`
	EffectThreshold    float64       `yaml:"effect_threshold"`
	FatalProbability   float64       `yaml:"fatal_probability"`
	PauseMaxTicks      float64       `yaml:"pause_max_ticks"`
	PauseRate          float64       `yaml:"pause_rate"`
	ReductionIntercept float64       `yaml:"reduction_intercept"`
	ReductionSlope     float64       `yaml:"reduction_slope"`
	JitterLow          float64       `yaml:"jitter_low"`
	JitterHigh         float64       `yaml:"jitter_high"`
}

// EscalationParams calibrates the dose-increase decision.
type EscalationParams struct {
	EffectWindow      int     `yaml:"effect_window"`
	IncreaseThreshold float64 `yaml:"increase_threshold"`
	DoseCeiling       float64 `yaml:"dose_ceiling"`
}

// Default returns the published calibration.
func Default() Calibration {
	return Calibration{
		Version: Version,
		PK: PKParams{
			HalfLifeTicks: 2.8 * 60 / 14.4,
		},
		Habit: HabitParams{
			ConcMultiplier: 3,
			L1:             1.02,
			L2:             0.58,
			K1:             0.2,
			K2:             0.0002,
			X1:             0.175,
			MinRate:        1e-4,
		},
		Integrators: IntegratorParams{
			AlphaA: 0.99, BetaA: 1,
			AlphaB: 0.999, BetaB: 2000,
			AlphaC: 0.9998, BetaC: 15000,
			AlphaD: 0.99995, BetaD: 10000,
		},
		Threshold: ThresholdParams{
			B1:            0.05,
			B2:            0.1,
			B3:            0.5,
			LogitPassBand: 5,
		},
		Risk: RiskParams{
			MidpointMin: 100,
			MidpointMax: 1000,
			Rate:        0.005,
			LogitScale:  0.25,
			Epsilon:     1e-6,
		},
		Overdose: OverdoseParams{
			Model: OverdoseLogisticExcess,
			// Logistic fit to Dasgupta et al. 2016 with 2 g as a certain overdose.
			X0:              1243.6936832876,
			K:               0.0143710866,
			ToleranceFloor:  1,
			EffectThreshold: 400,
			// Dunn et al. 2010: about one in 8.5 overdoses is fatal.
			FatalProbability:   1 / 8.5,
			PauseMaxTicks:      60 * 100,
			PauseRate:          -0.999,
			ReductionIntercept: 0.5,
			ReductionSlope:     0.25,
			JitterLow:          0.5,
			JitterHigh:         1.5,
		},
		Escalation: EscalationParams{
			EffectWindow:      20,
			IncreaseThreshold: 0.4,
			DoseCeiling:       2000,
		},
	}
}

// Ke returns the first-order elimination rate per tick.
func (c Calibration) Ke() float64 {
	return math.Ln2 / c.PK.HalfLifeTicks
}

// LoadFile reads a YAML calibration file. Keys absent from the file keep their
// default values.
func LoadFile(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("reading calibration file: %w", err)
	}
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Calibration{}, fmt.Errorf("parsing calibration file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Calibration{}, err
	}
	return c, nil
}

// Validate checks ranges that the mechanism code relies on.
func (c Calibration) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalid)
	}
	if c.PK.HalfLifeTicks <= 0 {
		return fmt.Errorf("%w: half_life_ticks must be positive, got %v", ErrInvalid, c.PK.HalfLifeTicks)
	}
	if c.Habit.ConcMultiplier <= 0 || c.Habit.L2 <= 0 || c.Habit.X1 <= 0 {
		return fmt.Errorf("%w: habit conc_multiplier, l2 and x1 must be positive", ErrInvalid)
	}
	alphas := map[string]float64{
		"alpha_a": c.Integrators.AlphaA,
		"alpha_b": c.Integrators.AlphaB,
		"alpha_c": c.Integrators.AlphaC,
		"alpha_d": c.Integrators.AlphaD,
	}
	for name, a := range alphas {
		if a <= 0 || a >= 1 {
			return fmt.Errorf("%w: %s must be in (0, 1), got %v", ErrInvalid, name, a)
		}
	}
	if c.Integrators.BetaA <= 0 || c.Integrators.BetaB <= 0 || c.Integrators.BetaC <= 0 || c.Integrators.BetaD <= 0 {
		return fmt.Errorf("%w: integrator betas must be positive", ErrInvalid)
	}
	if c.Risk.MidpointMax < c.Risk.MidpointMin {
		return fmt.Errorf("%w: midpoint_max %v below midpoint_min %v", ErrInvalid, c.Risk.MidpointMax, c.Risk.MidpointMin)
	}
	if c.Risk.LogitScale <= 0 {
		return fmt.Errorf("%w: logit_scale must be positive", ErrInvalid)
	}
	if c.Risk.Epsilon <= 0 || c.Risk.Epsilon >= 0.5 {
		return fmt.Errorf("%w: epsilon must be in (0, 0.5), got %v", ErrInvalid, c.Risk.Epsilon)
	}
	switch c.Overdose.Model {
	case OverdoseLogisticExcess, OverdoseEffectThreshold:
	default:
		return fmt.Errorf("%w: unknown overdose model %q", ErrInvalid, c.Overdose.Model)
	}
	if c.Overdose.FatalProbability < 0 || c.Overdose.FatalProbability > 1 {
		return fmt.Errorf("%w: fatal_probability must be in [0, 1], got %v", ErrInvalid, c.Overdose.FatalProbability)
	}
	if c.Overdose.ToleranceFloor <= 0 {
		return fmt.Errorf("%w: tolerance_floor must be positive", ErrInvalid)
	}
	if c.Overdose.JitterLow < 0 || c.Overdose.JitterHigh < c.Overdose.JitterLow {
		return fmt.Errorf("%w: jitter range [%v, %v] is invalid", ErrInvalid, c.Overdose.JitterLow, c.Overdose.JitterHigh)
	}
	if c.Escalation.EffectWindow <= 0 {
		return fmt.Errorf("%w: effect_window must be positive", ErrInvalid)
	}
	if c.Escalation.DoseCeiling <= 0 {
		return fmt.Errorf("%w: dose_ceiling must be positive", ErrInvalid)
	}
	return nil
}
