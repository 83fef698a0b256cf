package engine

import (
	"errors"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/talgya/vou/internal/agents"
	"github.com/talgya/vou/internal/calibration"
	"github.com/talgya/vou/internal/curves"
	"github.com/talgya/vou/internal/drugs"
)

func newTestSim(t *testing.T, traits agents.Traits, opts Options, cal calibration.Calibration, seed int64) *Simulation {
	t.Helper()
	p, err := agents.NewPerson(traits, cal, opts.Ticks())
	if err != nil {
		t.Fatalf("NewPerson: %v", err)
	}
	sim, err := NewSimulation(p, drugs.Default(), opts, rand.New(rand.NewSource(seed)), nil)
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	return sim
}

func twoDays() Options {
	opts := DefaultOptions()
	opts.Days = 2
	return opts
}

func assertEqualLengths(t *testing.T, p *agents.Person, want int) {
	t.Helper()
	for name, n := range map[string]int{
		"concentration": len(p.Concentration),
		"habit":         len(p.Habit),
		"effect":        len(p.Effect),
		"desperation":   len(p.Desperation),
	} {
		if n != want {
			t.Errorf("%s has %d entries, want %d", name, n, want)
		}
	}
}

func TestTwoDayReferenceRun(t *testing.T) {
	sim := newTestSim(t, agents.DefaultTraits(), twoDays(), calibration.Default(), 42)
	out, err := sim.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusCompleted || out.TicksExecuted != 200 || out.TerminalTick != 199 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	p := sim.Person
	assertEqualLengths(t, p, 200)

	// A dose restarts the curve at zero elapsed time.
	if p.Concentration[0] != 0 {
		t.Errorf("expected concentration[0] = 0, got %v", p.Concentration[0])
	}
	if len(sim.Doses) == 0 {
		t.Fatal("expected at least one dose in two days")
	}
	first := sim.Doses[0]
	next := first.Tick + 1
	if next < 200 && (len(sim.Doses) == 1 || sim.Doses[1].Tick != next) {
		ka := drugs.Default().Absorption[first.Mode]
		want := curves.Bateman(first.Amount, ka, calibration.Default().Ke(), 1)
		if math.Abs(p.Concentration[next]-want) > 1e-9 {
			t.Errorf("concentration one tick after the first dose = %v, want %v", p.Concentration[next], want)
		}
	}
	if len(p.DoseSources) != len(sim.Doses) {
		t.Errorf("dose sources %d out of step with doses %d", len(p.DoseSources), len(sim.Doses))
	}
	ke := calibration.Default().Ke()
	for _, d := range sim.Doses {
		want := curves.PeakTime(drugs.Default().Absorption[d.Mode], ke)
		if d.PeakAfter <= 0 || math.Abs(d.PeakAfter-want) > 1e-12 {
			t.Errorf("dose at tick %d: peak after %v, want %v", d.Tick, d.PeakAfter, want)
		}
	}
	if in := sim.Integrators(); in.A <= 0 || in.B <= 0 {
		t.Errorf("expected exposure in the fast integrators after two days, got %+v", in)
	}
	for _, v := range p.Effect {
		if v < 0 {
			t.Fatalf("negative effect %v", v)
		}
	}
	for _, v := range p.Desperation {
		if v < 0 {
			t.Fatalf("negative desperation %v", v)
		}
	}
}

func TestRunIsDeterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.Days = 60
	opts.SourceVariability = 0.2
	traits := agents.DefaultTraits()
	traits.ExternalRisk, traits.InternalRisk = 0.8, 0.8

	a := newTestSim(t, traits, opts, calibration.Default(), 1234)
	b := newTestSim(t, traits, opts, calibration.Default(), 1234)
	outA, errA := a.Run()
	outB, errB := b.Run()
	if errA != nil || errB != nil {
		t.Fatalf("Run errors: %v, %v", errA, errB)
	}
	if outA != outB {
		t.Fatalf("outcomes differ: %+v vs %+v", outA, outB)
	}
	pa, pb := a.Person, b.Person
	for name, pair := range map[string][2][]float64{
		"concentration": {pa.Concentration, pb.Concentration},
		"habit":         {pa.Habit, pb.Habit},
		"effect":        {pa.Effect, pb.Effect},
		"desperation":   {pa.Desperation, pb.Desperation},
	} {
		if !slices.Equal(pair[0], pair[1]) {
			t.Errorf("%s differs between identical runs", name)
		}
	}
	if !slices.Equal(pa.Overdoses, pb.Overdoses) || !slices.Equal(pa.DoseIncreaseRecord, pb.DoseIncreaseRecord) {
		t.Error("event records differ between identical runs")
	}
}

func TestToleranceSumTracksWindow(t *testing.T) {
	traits := agents.DefaultTraits()
	traits.ToleranceWindow = 50
	opts := DefaultOptions()
	opts.Days = 5
	sim := newTestSim(t, traits, opts, calibration.Default(), 7)
	p := sim.Person

	for tick := 0; tick < opts.Ticks(); tick++ {
		if _, err := sim.step(tick); err != nil {
			t.Fatal(err)
		}
		want := 0.0
		for _, c := range p.Concentration[max(0, tick-49):] {
			want += c
		}
		if math.Abs(p.Tolerance.Sum()-want) > 1e-9*math.Max(1, want) {
			t.Fatalf("tick %d: tolerance sum %v, window sum %v", tick, p.Tolerance.Sum(), want)
		}
	}
}

func TestStopUseForcesUnavailability(t *testing.T) {
	opts := DefaultOptions()
	opts.Days = 6
	opts.Availability = 1
	stop := 100
	opts.StopUseTick = &stop
	sim := newTestSim(t, agents.DefaultTraits(), opts, calibration.Default(), 11)

	for tick := 0; tick < opts.Ticks(); tick++ {
		if _, err := sim.step(tick); err != nil {
			t.Fatal(err)
		}
		if tick >= stop && sim.available {
			t.Fatalf("tick %d: supply available after stop", tick)
		}
	}
	for _, d := range sim.Doses {
		if d.Tick >= stop {
			t.Fatalf("dose taken at %d after stopping at %d", d.Tick, stop)
		}
	}
}

func TestResumeWithLowerDose(t *testing.T) {
	opts := DefaultOptions()
	opts.Days = 5
	stop, resume := 100, 300
	opts.StopUseTick, opts.ResumeUseTick = &stop, &resume
	traits := agents.DefaultTraits()
	traits.ResumeBehavior = agents.ResumeLowerDose
	sim := newTestSim(t, traits, opts, calibration.Default(), 5)
	p := sim.Person
	p.Dose = 300
	p.UpdateDownwardPressure()

	for tick := 0; tick < resume; tick++ {
		if _, err := sim.step(tick); err != nil {
			t.Fatal(err)
		}
	}
	want := math.Max(traits.DoseIncrement*math.Floor(p.MaxHabit()/traits.DoseIncrement), traits.StartingDose)
	if _, err := sim.step(resume); err != nil {
		t.Fatal(err)
	}
	if p.Dose != want {
		t.Errorf("expected dose %v after resuming, got %v", want, p.Dose)
	}
	for _, d := range sim.Doses {
		if d.Tick >= stop && d.Tick < resume {
			t.Fatalf("dose taken at %d inside the stop window", d.Tick)
		}
	}
	resumed := slices.ContainsFunc(sim.Events, func(e Event) bool {
		return e.Category == "supply" && e.Tick == resume
	})
	if !resumed {
		t.Error("expected a supply event at the resume tick")
	}
}

func TestFatalOverdoseEndsRun(t *testing.T) {
	cal := calibration.Default()
	cal.Overdose.Model = calibration.OverdoseEffectThreshold
	cal.Overdose.EffectThreshold = 1e-9
	cal.Overdose.FatalProbability = 1

	sim := newTestSim(t, agents.DefaultTraits(), twoDays(), cal, 3)
	out, err := sim.Run()
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusFatalOverdose {
		t.Fatalf("expected fatal overdose, got %+v", out)
	}
	if out.TerminalTick != out.TicksExecuted-1 || out.TicksExecuted >= 200 {
		t.Errorf("unexpected outcome %+v", out)
	}
	p := sim.Person
	assertEqualLengths(t, p, out.TicksExecuted)
	if len(p.Overdoses) != 1 || p.Overdoses[0] != out.TerminalTick {
		t.Errorf("expected one overdose at the terminal tick, got %v", p.Overdoses)
	}
	if len(p.DoseIncreaseRecord) != 0 {
		t.Error("a fatal overdose should not be followed by escalation")
	}
}

func TestForcedDailyDose(t *testing.T) {
	traits := agents.DefaultTraits()
	traits.ExternalRisk, traits.InternalRisk = 0, 0 // never craves enough to use

	opts := DefaultOptions()
	opts.Days = 10
	sim := newTestSim(t, traits, opts, calibration.Default(), 8)
	if _, err := sim.Run(); err != nil {
		t.Fatal(err)
	}
	if len(sim.Doses) != 0 {
		t.Fatalf("expected no craving-driven doses, got %d", len(sim.Doses))
	}

	opts.ForcedDailyDose = true
	sim = newTestSim(t, traits, opts, calibration.Default(), 8)
	if _, err := sim.Run(); err != nil {
		t.Fatal(err)
	}
	if len(sim.Doses) == 0 || len(sim.Doses) > opts.Days {
		t.Fatalf("expected up to one forced dose a day, got %d", len(sim.Doses))
	}
	for _, d := range sim.Doses {
		if !IsDayStart(d.Tick) {
			t.Errorf("forced dose at %d is not a day start", d.Tick)
		}
	}
}

func TestAvailability(t *testing.T) {
	opts := DefaultOptions()
	sim := newTestSim(t, agents.DefaultTraits(), opts, calibration.Default(), 1)
	p := sim.Person

	for i := 0; i < 50; i++ {
		if !sim.drawAvailability() {
			t.Fatal("prescribed supply should always be available")
		}
	}

	p.SupplySource = drugs.Dealer
	sim.Opts.Availability = 0
	for i := 0; i < 50; i++ {
		if sim.drawAvailability() {
			t.Fatal("dealer supply available with zero availability")
		}
	}

	// Desperation shrinks the draw.
	sim.Opts.Availability = 0.01
	p.Desperation = append(p.Desperation, 1e9)
	for i := 0; i < 50; i++ {
		if !sim.drawAvailability() {
			t.Fatal("a desperate person should find supply")
		}
	}
}

func TestAmountTaken(t *testing.T) {
	traits := agents.DefaultTraits()
	traits.BehavioralVariability = 0
	opts := DefaultOptions()
	opts.CounterfeitProbability = 1
	opts.FentanylProbability = 1
	opts.DoseVariability = 0
	sim := newTestSim(t, traits, opts, calibration.Default(), 2)
	sim.Person.Dose = 100

	if got := sim.amountTaken(0, drugs.PrimaryDoctor, "oxycodone"); got != 100 {
		t.Errorf("prescribed dose should be exact, got %v", got)
	}
	for i := 0; i < 20; i++ {
		got := sim.amountTaken(0, drugs.Dealer, "fentanyl")
		if got < 125 {
			t.Fatalf("contaminated fentanyl dose %v below its equivalent strength", got)
		}
	}

	sim.Opts.FentanylProbability = 0
	if got := sim.amountTaken(0, drugs.Dealer, "heroin"); got != 100 {
		t.Errorf("expected 100 with no variability, got %v", got)
	}
}

func TestOptionsValidate(t *testing.T) {
	five, three := 500, 300
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero days", func(o *Options) { o.Days = 0 }},
		{"availability above one", func(o *Options) { o.Availability = 1.5 }},
		{"negative counterfeit probability", func(o *Options) { o.CounterfeitProbability = -0.1 }},
		{"fentanyl probability above one", func(o *Options) { o.FentanylProbability = 2 }},
		{"negative fentanyl variability", func(o *Options) { o.FentanylVariability = -1 }},
		{"negative source variability", func(o *Options) { o.SourceVariability = -0.5 }},
		{"resume without stop", func(o *Options) { o.ResumeUseTick = &five }},
		{"resume before stop", func(o *Options) { o.StopUseTick, o.ResumeUseTick = &five, &three }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			if err := opts.Validate(); !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("expected ErrInvalidOptions, got %v", err)
			}
		})
	}
	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("default options should validate: %v", err)
	}
}

func TestNewSimulationRequiresInputs(t *testing.T) {
	p, err := agents.NewPerson(agents.DefaultTraits(), calibration.Default(), 0)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))
	if _, err := NewSimulation(nil, drugs.Default(), DefaultOptions(), rng, nil); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected error for missing person, got %v", err)
	}
	if _, err := NewSimulation(p, nil, DefaultOptions(), rng, nil); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected error for missing table, got %v", err)
	}
	if _, err := NewSimulation(p, drugs.Default(), DefaultOptions(), nil, nil); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected error for missing stream, got %v", err)
	}
}
