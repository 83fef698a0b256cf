package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/vou/internal/agents"
	"github.com/talgya/vou/internal/batch"
	"github.com/talgya/vou/internal/engine"
	"github.com/talgya/vou/internal/entropy"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a single person",
		Long: `Simulate one person with the configured traits and print a summary.

The per-tick series (concentration, habit, effect, desperation) can be
written to a CSV file with --series.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			seed := resolveSeed(cmd, cfg)
			seriesPath, _ := cmd.Flags().GetString("series")
			showEvents, _ := cmd.Flags().GetBool("events")
			jsonOut, _ := cmd.Flags().GetBool("json")

			traits, err := cfg.Traits()
			if err != nil {
				return err
			}
			opts, err := cfg.Options()
			if err != nil {
				return err
			}
			cal, err := cfg.Calibration()
			if err != nil {
				return err
			}
			table, err := cfg.DrugTable()
			if err != nil {
				return err
			}

			p, err := agents.NewPerson(traits, cal, opts.Ticks())
			if err != nil {
				return err
			}
			sim, err := engine.NewSimulation(p, table, opts, entropy.NewStream(seed, 0), slog.Default())
			if err != nil {
				return err
			}
			out, err := sim.Run()
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}
			summary := batch.Summarize(p, out)
			years := float64(out.TicksExecuted) / engine.TicksPerYear
			integrators := sim.Integrators()

			if seriesPath != "" {
				if err := writeSeriesFile(seriesPath, p); err != nil {
					return err
				}
				slog.Info("series written", "path", seriesPath, "ticks", p.Ticks())
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				result := map[string]any{
					"seed":          seed,
					"status":        out.Status.String(),
					"ticks":         out.TicksExecuted,
					"years":         years,
					"final_dose":    summary.FinalDose,
					"dose_increase": summary.DoseIncrease,
					"overdoses":     p.Overdoses,
					"doses_taken":   summary.DosesTaken,
					"dealer_doses":  summary.DealerDoses,
					"final_source":  summary.FinalSource.String(),
					"integrators":   integrators,
				}
				if showEvents {
					result["events"] = sim.Events
				}
				return json.NewEncoder(w).Encode(result)
			}

			fmt.Fprintf(w, "Seed:          %d\n", seed)
			fmt.Fprintf(w, "Status:        %s at %s\n", out.Status, engine.SimTime(out.TerminalTick))
			fmt.Fprintf(w, "Ticks:         %s (%s years)\n",
				humanize.Comma(int64(out.TicksExecuted)), humanize.FtoaWithDigits(years, 2))
			fmt.Fprintf(w, "Final dose:    %s MME (+%s)\n",
				humanize.FtoaWithDigits(summary.FinalDose, 1), humanize.FtoaWithDigits(summary.DoseIncrease, 1))
			fmt.Fprintf(w, "Doses taken:   %s (%s from dealer)\n",
				humanize.Comma(int64(summary.DosesTaken)), humanize.Comma(int64(summary.DealerDoses)))
			fmt.Fprintf(w, "Overdoses:     %d\n", summary.Overdoses)
			fmt.Fprintf(w, "Supply source: %s\n", summary.FinalSource)
			fmt.Fprintf(w, "Integrators:   A=%.4g B=%.4g C=%.4g D=%.4g\n",
				integrators.A, integrators.B, integrators.C, integrators.D)
			if showEvents {
				fmt.Fprintln(w)
				for _, e := range sim.Events {
					fmt.Fprintf(w, "  [%s] %-10s %s\n", engine.SimTime(e.Tick), e.Category, e.Description)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64("seed", 0, "Random seed (0 uses the config seed, or a random one)")
	cmd.Flags().String("series", "", "Write per-tick series to this CSV file")
	cmd.Flags().Bool("events", false, "Print the run's events")
	return cmd
}

func writeSeriesFile(path string, p *agents.Person) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating series file: %w", err)
	}
	if err := writeSeries(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
