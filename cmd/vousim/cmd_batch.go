package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/talgya/vou/internal/agents"
	"github.com/talgya/vou/internal/batch"
	"github.com/talgya/vou/internal/calibration"
	"github.com/talgya/vou/internal/config"
	"github.com/talgya/vou/internal/persistence"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Simulate many people and store the results",
		Long: `Simulate a batch of people under the configured scenario on a worker pool.

Each person gets an independent random stream derived from the batch seed,
so results do not depend on the number of workers. Results are saved to a
SQLite database unless --db is empty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("iterations") {
				cfg.Batch.Iterations, _ = cmd.Flags().GetInt("iterations")
			}
			if cmd.Flags().Changed("workers") {
				cfg.Batch.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if cmd.Flags().Changed("db") {
				cfg.Batch.Database, _ = cmd.Flags().GetString("db")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			seed := resolveSeed(cmd, cfg)
			jsonOut, _ := cmd.Flags().GetBool("json")

			plan, err := buildPlan(cfg, seed)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			results, err := batch.NewRunner(cfg.Batch.Workers, slog.Default()).Run(ctx, plan)
			if err != nil {
				return err
			}
			totals := batch.Tally(results)

			batchID := ""
			if cfg.Batch.Database != "" {
				batchID, err = saveResults(cfg, seed, results)
				if err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(w).Encode(map[string]any{
					"batch_id":       batchID,
					"seed":           seed,
					"runs":           totals.Runs,
					"failed":         totals.Failed,
					"with_overdose":  totals.WithOverdose,
					"overdoses":      totals.Overdoses,
					"fatal":          totals.Fatal,
					"fatal_ratio":    totals.FatalRatio(),
					"reached_dealer": totals.ReachedDealer,
					"mean_increase":  totals.MeanIncrease,
				})
			}
			printTotals(cmd, seed, batchID, totals)
			return nil
		},
	}

	cmd.Flags().Int64("seed", 0, "Batch seed (0 uses the config seed, or a random one)")
	cmd.Flags().Int("iterations", 0, "Number of people to simulate")
	cmd.Flags().Int("workers", 0, "Worker goroutines (0 uses every CPU)")
	cmd.Flags().String("db", "", "SQLite database for results (empty disables saving)")
	return cmd
}

func buildPlan(cfg *config.Config, seed int64) (batch.Plan, error) {
	traits, err := cfg.Traits()
	if err != nil {
		return batch.Plan{}, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return batch.Plan{}, err
	}
	cal, err := cfg.Calibration()
	if err != nil {
		return batch.Plan{}, err
	}
	table, err := cfg.DrugTable()
	if err != nil {
		return batch.Plan{}, err
	}
	return batch.Plan{
		Seed:       seed,
		Iterations: cfg.Batch.Iterations,
		Spawn: agents.SpawnConfig{
			Traits:      traits,
			Calibration: cal,
			Ticks:       opts.Ticks(),
			RiskSpread:  cfg.Batch.RiskSpread,
		},
		Options: opts,
		Table:   table,
	}, nil
}

func saveResults(cfg *config.Config, seed int64, results []batch.RunResult) (string, error) {
	db, err := persistence.Open(cfg.Batch.Database)
	if err != nil {
		return "", err
	}
	defer db.Close()

	cfgYAML, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	id, err := db.SaveBatch(persistence.BatchInfo{
		Seed:               seed,
		Iterations:         cfg.Batch.Iterations,
		Days:               cfg.Simulation.Days,
		CalibrationVersion: calibration.Version,
		Config:             string(cfgYAML),
	}, results)
	if err != nil {
		return "", err
	}
	if err := db.SaveMeta("last_batch", id); err != nil {
		return "", err
	}
	return id, nil
}

func printTotals(cmd *cobra.Command, seed int64, batchID string, t batch.Totals) {
	w := cmd.OutOrStdout()
	if batchID != "" {
		fmt.Fprintf(w, "Batch:          %s\n", batchID)
	}
	fmt.Fprintf(w, "Seed:           %d\n", seed)
	fmt.Fprintf(w, "Runs:           %s (%s failed)\n", humanize.Comma(int64(t.Runs)), humanize.Comma(int64(t.Failed)))
	fmt.Fprintf(w, "With overdose:  %s\n", humanize.Comma(int64(t.WithOverdose)))
	fmt.Fprintf(w, "Overdoses:      %s\n", humanize.Comma(int64(t.Overdoses)))
	fmt.Fprintf(w, "Fatal:          %s\n", humanize.Comma(int64(t.Fatal)))
	fmt.Fprintf(w, "Fatal ratio:    %s\n", humanize.FtoaWithDigits(t.FatalRatio(), 4))
	fmt.Fprintf(w, "Reached dealer: %s\n", humanize.Comma(int64(t.ReachedDealer)))
	fmt.Fprintf(w, "Mean increase:  %s MME\n", humanize.FtoaWithDigits(t.MeanIncrease, 1))
}
