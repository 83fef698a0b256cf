// Package batch runs many independent people through the same scenario on a
// worker pool. Each run has its own random stream derived from the batch seed
// and the run index, so results do not depend on worker count or scheduling.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/talgya/vou/internal/agents"
	"github.com/talgya/vou/internal/drugs"
	"github.com/talgya/vou/internal/engine"
	"github.com/talgya/vou/internal/entropy"
)

// ErrInvalidPlan is returned when a plan cannot be run.
var ErrInvalidPlan = errors.New("invalid batch plan")

// progressEvery controls how often progress is logged.
const progressEvery = 1000

// Plan describes a batch: who to simulate, under what conditions, how often.
type Plan struct {
	Seed       int64
	Iterations int
	Spawn      agents.SpawnConfig
	Options    engine.Options
	Table      *drugs.Table
}

// Summary is the per-person result row.
type Summary struct {
	DoseIncrease float64 // final dose minus starting dose
	FinalDose    float64
	Overdoses    int
	AnyOverdose  bool
	Fatal        bool
	DosesTaken   int
	DealerDoses  int
	FinalSource  drugs.Source
	Ticks        int
}

// RunResult is the outcome of one person's run. Err is set when the run
// failed; the other runs of the batch are unaffected.
type RunResult struct {
	Index   int
	Seed    int64
	Person  *agents.Person
	Outcome engine.Outcome
	Summary Summary
	Events  []engine.Event
	Err     error
}

// Runner executes plans on a fixed-size worker pool.
type Runner struct {
	Workers int // defaults to runtime.NumCPU()
	Logger  *slog.Logger

	// run executes a single person; replaced in tests.
	run func(spawner *agents.Spawner, plan Plan, index int, logger *slog.Logger) RunResult
}

// NewRunner creates a runner. workers <= 0 uses every CPU.
func NewRunner(workers int, logger *slog.Logger) *Runner {
	return &Runner{Workers: workers, Logger: logger}
}

// Run executes every iteration of the plan and returns results ordered by run
// index. Cancelling ctx stops new runs from starting; runs never started carry
// the context error.
func (r *Runner) Run(ctx context.Context, plan Plan) ([]RunResult, error) {
	if plan.Iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidPlan, plan.Iterations)
	}
	if plan.Table == nil {
		return nil, fmt.Errorf("%w: drug table is required", ErrInvalidPlan)
	}
	if err := plan.Options.Validate(); err != nil {
		return nil, err
	}
	if plan.Spawn.Ticks == 0 {
		plan.Spawn.Ticks = plan.Options.Ticks()
	}
	spawner, err := agents.NewSpawner(plan.Spawn)
	if err != nil {
		return nil, err
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	run := r.run
	if run == nil {
		run = runOne
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, plan.Iterations)

	logger.Info("batch started", "iterations", plan.Iterations, "workers", workers, "seed", plan.Seed)

	results := make([]RunResult, plan.Iterations)
	jobs := make(chan int, workers)
	var processed atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = safeRun(run, spawner, plan, idx, logger)
				if n := processed.Add(1); n%progressEvery == 0 {
					logger.Info("batch progress", "done", n, "total", plan.Iterations)
				}
			}
		}()
	}

	sent := 0
dispatch:
	for ; sent < plan.Iterations; sent++ {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- sent:
		}
	}
	close(jobs)
	wg.Wait()

	for i := sent; i < plan.Iterations; i++ {
		results[i] = RunResult{Index: i, Seed: entropy.DeriveSeed(plan.Seed, i), Err: ctx.Err()}
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	logger.Info("batch finished", "runs", plan.Iterations, "failed", failed)
	return results, nil
}

// safeRun isolates a panicking run from its siblings.
func safeRun(run func(*agents.Spawner, Plan, int, *slog.Logger) RunResult, spawner *agents.Spawner, plan Plan, idx int, logger *slog.Logger) (res RunResult) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("run panicked", "index", idx, "panic", v)
			res = RunResult{Index: idx, Seed: entropy.DeriveSeed(plan.Seed, idx), Err: fmt.Errorf("run %d panicked: %v", idx, v)}
		}
	}()
	return run(spawner, plan, idx, logger)
}

// runOne simulates person idx of the plan.
func runOne(spawner *agents.Spawner, plan Plan, idx int, logger *slog.Logger) RunResult {
	res := RunResult{Index: idx, Seed: entropy.DeriveSeed(plan.Seed, idx)}
	rng := entropy.NewStream(plan.Seed, idx)

	p, err := spawner.Spawn(rng)
	if err != nil {
		res.Err = err
		return res
	}
	res.Person = p

	sim, err := engine.NewSimulation(p, plan.Table, plan.Options, rng, logger.With("run", idx))
	if err != nil {
		res.Err = err
		return res
	}
	out, err := sim.Run()
	res.Outcome = out
	res.Events = sim.Events
	if err != nil {
		logger.Error("run failed", "index", idx, "error", err)
		res.Err = err
		return res
	}
	res.Summary = Summarize(p, out)
	return res
}

// Summarize reduces a finished run to its result row.
func Summarize(p *agents.Person, out engine.Outcome) Summary {
	s := Summary{
		DoseIncrease: p.Dose - p.Traits.StartingDose,
		FinalDose:    p.Dose,
		Overdoses:    len(p.Overdoses),
		AnyOverdose:  len(p.Overdoses) > 0,
		Fatal:        out.Status == engine.StatusFatalOverdose,
		DosesTaken:   len(p.DoseSources),
		FinalSource:  p.SupplySource,
		Ticks:        out.TicksExecuted,
	}
	for _, src := range p.DoseSources {
		if src == drugs.Dealer {
			s.DealerDoses++
		}
	}
	return s
}

// Totals aggregates summaries across a batch.
type Totals struct {
	Runs          int
	Failed        int
	WithOverdose  int
	Overdoses     int
	Fatal         int
	ReachedDealer int
	MeanIncrease  float64
}

// Tally computes batch totals over successful runs.
func Tally(results []RunResult) Totals {
	var t Totals
	sumIncrease := 0.0
	for _, r := range results {
		t.Runs++
		if r.Err != nil {
			t.Failed++
			continue
		}
		s := r.Summary
		t.Overdoses += s.Overdoses
		if s.AnyOverdose {
			t.WithOverdose++
		}
		if s.Fatal {
			t.Fatal++
		}
		if s.FinalSource == drugs.Dealer {
			t.ReachedDealer++
		}
		sumIncrease += s.DoseIncrease
	}
	if ok := t.Runs - t.Failed; ok > 0 {
		t.MeanIncrease = sumIncrease / float64(ok)
	}
	return t
}

// FatalRatio is fatal overdoses over all overdoses, or 0 with none.
func (t Totals) FatalRatio() float64 {
	if t.Overdoses == 0 {
		return 0
	}
	return float64(t.Fatal) / float64(t.Overdoses)
}
