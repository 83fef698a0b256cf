// Person spawning for cohorts: every person starts from the same base traits,
// optionally with risk traits scattered around the base.
package agents

import (
	"fmt"
	"math"

	"github.com/talgya/vou/internal/calibration"
	"github.com/talgya/vou/internal/entropy"
)

// SpawnConfig controls how cohort members are created.
type SpawnConfig struct {
	Traits      Traits
	Calibration calibration.Calibration
	Ticks       int // expected run length, used to pre-size history
	// RiskSpread is the half-width of a uniform scatter applied to each risk
	// trait. Zero spawns identical people and consumes no draws.
	RiskSpread float64
}

// Spawner creates people for a batch.
type Spawner struct {
	cfg SpawnConfig
}

// NewSpawner validates the base traits and returns a spawner.
func NewSpawner(cfg SpawnConfig) (*Spawner, error) {
	if err := cfg.Traits.Validate(); err != nil {
		return nil, err
	}
	if cfg.RiskSpread < 0 || cfg.RiskSpread > 1 {
		return nil, fmt.Errorf("%w: risk spread must be in [0, 1], got %v", ErrInvalidTraits, cfg.RiskSpread)
	}
	return &Spawner{cfg: cfg}, nil
}

// Spawn creates one person, drawing any trait scatter from r.
func (s *Spawner) Spawn(r entropy.Source) (*Person, error) {
	traits := s.cfg.Traits
	if s.cfg.RiskSpread > 0 {
		traits.ExternalRisk = s.scatter(traits.ExternalRisk, r)
		traits.InternalRisk = s.scatter(traits.InternalRisk, r)
	}
	return NewPerson(traits, s.cfg.Calibration, s.cfg.Ticks)
}

func (s *Spawner) scatter(base float64, r entropy.Source) float64 {
	v := base + entropy.Uniform(r, -s.cfg.RiskSpread, s.cfg.RiskSpread)
	return math.Min(math.Max(v, 0), 1)
}
