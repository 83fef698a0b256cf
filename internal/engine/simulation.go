// Simulation advances one person through a run, tick by tick, applying
// pharmacokinetics, decisions, and stochastic events in a fixed order.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/talgya/vou/internal/agents"
	"github.com/talgya/vou/internal/calibration"
	"github.com/talgya/vou/internal/drugs"
	"github.com/talgya/vou/internal/supply"
)

// Status is how a run ended.
type Status uint8

const (
	StatusCompleted Status = iota
	StatusFatalOverdose
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFatalOverdose:
		return "fatal_overdose"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Outcome summarizes a finished run.
type Outcome struct {
	Status        Status
	TicksExecuted int
	TerminalTick  int // last tick executed
}

// Event is a notable occurrence during a run.
type Event struct {
	Tick        int    `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "overdose", "escalation", "supply"
}

// DoseEvent records one dose actually taken.
type DoseEvent struct {
	Tick   int
	Source drugs.Source
	Drug   string
	Mode   string
	Amount float64 // MME after every multiplier
	// PeakAfter is the ticks from the dose to the peak of its curve.
	PeakAfter float64
}

// Simulation holds the transient state of one run. The Person is borrowed for
// the run and owns all history.
type Simulation struct {
	Person *agents.Person
	Opts   Options
	Doses  []DoseEvent
	Events []Event

	cal    calibration.Calibration
	table  *drugs.Table
	rng    *rand.Rand
	drift  *supply.Drift
	logger *slog.Logger

	ke                float64
	ka                float64
	timeSinceDose     int
	lastAmountTaken   float64
	concWhenDoseTaken float64
	available         bool
	peakPending       bool

	// Craving integrators.
	intA, intB, intC, intD float64
}

// NewSimulation validates opts and prepares a run for p. A nil logger uses
// slog.Default().
func NewSimulation(p *agents.Person, table *drugs.Table, opts Options, rng *rand.Rand, logger *slog.Logger) (*Simulation, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: person is required", ErrInvalidOptions)
	}
	if table == nil {
		return nil, fmt.Errorf("%w: drug table is required", ErrInvalidOptions)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random stream is required", ErrInvalidOptions)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cal := p.Calibration()
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Simulation{
		Person:    p,
		Opts:      opts,
		cal:       cal,
		table:     table,
		rng:       rng,
		logger:    logger,
		ke:        cal.Ke(),
		ka:        table.Absorption[table.DefaultMode],
		available: true,
	}
	if opts.SourceVariability > 0 {
		s.drift = supply.NewDrift(rng.Int63(), opts.SourceVariability)
	}
	return s, nil
}

// Run executes the whole run. It stops early, without error, on a fatal
// overdose. An error means a model invariant was violated and the run's
// history is incomplete.
func (s *Simulation) Run() (Outcome, error) {
	ticks := s.Opts.Ticks()
	for t := 0; t < ticks; t++ {
		fatal, err := s.step(t)
		if err != nil {
			return Outcome{TicksExecuted: t + 1, TerminalTick: t}, fmt.Errorf("tick %d: %w", t, err)
		}
		if fatal {
			s.logger.Debug("run ended by fatal overdose", "tick", t, "time", SimTime(t))
			return Outcome{Status: StatusFatalOverdose, TicksExecuted: t + 1, TerminalTick: t}, nil
		}
	}
	s.logger.Debug("run completed", "ticks", ticks, "dose", s.Person.Dose, "overdoses", len(s.Person.Overdoses))
	return Outcome{Status: StatusCompleted, TicksExecuted: ticks, TerminalTick: ticks - 1}, nil
}

// step advances the run by one tick and reports whether the person died.
// A fatal overdose still completes the tick so every series gains one entry.
func (s *Simulation) step(t int) (bool, error) {
	p := s.Person

	s.timeSinceDose++
	p.RecordConcentration(s.concentration())

	s.updateAvailability(t)

	taken := false
	if s.available && s.wantsDose(t) {
		if err := s.recordDoseTaken(t); err != nil {
			return false, err
		}
		taken = true
	}

	habit := p.HabitLevel(t)
	p.Habit = append(p.Habit, habit)
	p.Effect = append(p.Effect, s.effect(habit))

	// Peaks are detected on the first falling tick after a dose.
	fatal := false
	if s.peakPending && !taken && t > 0 && p.Concentration[t] < p.Concentration[t-1] {
		s.peakPending = false
		var err error
		if fatal, err = s.handlePeak(t); err != nil {
			return false, err
		}
	}

	conc := p.Concentration[t]
	s.updateIntegrators(conc)
	p.Desperation = append(p.Desperation, s.desperation(conc))
	p.Threshold = p.AdjustThreshold(s.rawThreshold())
	return fatal, nil
}

func (s *Simulation) wantsDose(t int) bool {
	if s.Opts.ForcedDailyDose && IsDayStart(t) && !s.Person.InOverdosePause(t) {
		return true
	}
	return s.Person.WillTakeDose(t, s.rng)
}

// handlePeak runs the overdose model and then the escalation model.
func (s *Simulation) handlePeak(t int) (bool, error) {
	p := s.Person
	peak := agents.Peak{
		Tick:          t - 1,
		Concentration: p.Concentration[t-1],
		Habit:         p.Habit[t-1],
		Effect:        p.Effect[t-1],
	}
	p.RecordDosePeak(t, peak)

	od, err := p.DidOverdose(peak, s.rng)
	if err != nil {
		return false, err
	}
	if od {
		out := p.Overdose(t, s.rng)
		s.logger.Debug("overdose", "tick", t, "fatal", out.Fatal, "peak", peak.Concentration,
			"pause", out.Pause, "dose", p.Dose)
		s.event(t, "overdose", fmt.Sprintf("overdose at peak %.1f MME (fatal=%v)", peak.Concentration, out.Fatal))
		if out.Fatal {
			return true, nil
		}
	}

	attempt, err := p.EvaluateEscalation(t, s.table, s.rng)
	if err != nil {
		return false, err
	}
	if attempt.Attempted {
		s.logger.Debug("dose increase attempt", "tick", t, "source", attempt.Source,
			"success", attempt.Success, "dose", p.Dose)
		if attempt.Success {
			s.event(t, "escalation", fmt.Sprintf("dose raised to %.0f via %s", p.Dose, attempt.Source))
		}
	}
	return false, nil
}

func (s *Simulation) event(t int, category, desc string) {
	s.Events = append(s.Events, Event{Tick: t, Description: desc, Category: category})
}
