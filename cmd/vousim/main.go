// Command vousim simulates opioid use, dose escalation, and overdose risk for
// individual people and for large batches.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/vou/internal/config"
	"github.com/talgya/vou/internal/entropy"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vousim",
		Short: "Opioid use and overdose simulation",
		Long: `vousim simulates a person's opioid use tick by tick: drug concentration,
habit, craving, dose escalation through doctors and dealers, and overdose.

Use 'vousim run' to follow one person and 'vousim batch' to simulate many
people and store the results in SQLite.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newBatchCmd(),
	)
	return rootCmd
}

// loadConfig reads the --config flag, loads the configuration, and installs
// the default logger at the configured level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return cfg, nil
}

// resolveSeed picks the seed: the --seed flag when set, then the config, then
// a random one.
func resolveSeed(cmd *cobra.Command, cfg *config.Config) int64 {
	seed := cfg.Batch.Seed
	if cmd.Flags().Changed("seed") {
		seed, _ = cmd.Flags().GetInt64("seed")
	}
	if seed == 0 {
		seed = entropy.RandomSeed()
		slog.Info("using random seed", "seed", seed)
	}
	return seed
}
