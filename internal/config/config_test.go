package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/talgya/vou/internal/agents"
	"github.com/talgya/vou/internal/engine"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	traits, err := cfg.Traits()
	if err != nil {
		t.Fatal(err)
	}
	if traits != agents.DefaultTraits() {
		t.Errorf("default traits differ: %+v", traits)
	}
	opts, err := cfg.Options()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Days != engine.DefaultOptions().Days || opts.StopUseTick != nil {
		t.Errorf("unexpected default options %+v", opts)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("expected info level, got %v", cfg.SlogLevel())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, "vou.yaml", `
person:
  starting_dose: 80
  profile: high_risk
  resume_behavior: lower_dose
simulation:
  days: 30
  stop_use_day: 10
  resume_use_day: 20
  forced_daily_dose: true
batch:
  seed: 17
  iterations: 50
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	traits, err := cfg.Traits()
	if err != nil {
		t.Fatal(err)
	}
	if traits.StartingDose != 80 || traits.DoseIncrement != 25 {
		t.Errorf("expected file values layered on defaults, got %+v", traits)
	}
	if traits.ExternalRisk != 0.9 || traits.ResumeBehavior != agents.ResumeLowerDose {
		t.Errorf("expected high-risk profile and lower-dose resume, got %+v", traits)
	}
	opts, err := cfg.Options()
	if err != nil {
		t.Fatal(err)
	}
	if *opts.StopUseTick != 1000 || *opts.ResumeUseTick != 2000 || !opts.ForcedDailyDose {
		t.Errorf("unexpected options %+v", opts)
	}
	if cfg.Batch.Seed != 17 || cfg.Batch.Iterations != 50 {
		t.Errorf("unexpected batch section %+v", cfg.Batch)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.SlogLevel())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOU_SEED", "4242")
	t.Setenv("VOU_ITERATIONS", "7")
	t.Setenv("VOU_WORKERS", "3")
	t.Setenv("VOU_DAYS", "12")
	t.Setenv("VOU_DB", "/tmp/other.db")
	t.Setenv("VOU_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Batch.Seed != 4242 || cfg.Batch.Iterations != 7 || cfg.Batch.Workers != 3 {
		t.Errorf("batch overrides not applied: %+v", cfg.Batch)
	}
	if cfg.Simulation.Days != 12 || cfg.Batch.Database != "/tmp/other.db" {
		t.Errorf("simulation overrides not applied: days=%d db=%s", cfg.Simulation.Days, cfg.Batch.Database)
	}
	if cfg.SlogLevel() != slog.LevelWarn {
		t.Errorf("expected warn level, got %v", cfg.SlogLevel())
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"risk above one", func(c *Config) { c.Person.ExternalRisk = 1.5 }},
		{"unknown profile", func(c *Config) { c.Person.Profile = "daredevil" }},
		{"unknown resume behavior", func(c *Config) { c.Person.ResumeBehavior = "taper" }},
		{"zero days", func(c *Config) { c.Simulation.Days = 0 }},
		{"availability above one", func(c *Config) { c.Simulation.Availability = 3 }},
		{"resume before stop", func(c *Config) {
			stop, resume := 10, 5
			c.Simulation.StopUseDay, c.Simulation.ResumeUseDay = &stop, &resume
		}},
		{"zero iterations", func(c *Config) { c.Batch.Iterations = 0 }},
		{"negative workers", func(c *Config) { c.Batch.Workers = -1 }},
		{"risk spread above one", func(c *Config) { c.Batch.RiskSpread = 1.1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestCalibrationAndTableFiles(t *testing.T) {
	cfg := Default()
	cal, err := cfg.Calibration()
	if err != nil {
		t.Fatal(err)
	}
	if cal.Escalation.DoseCeiling != 2000 {
		t.Errorf("expected default ceiling, got %v", cal.Escalation.DoseCeiling)
	}

	cfg.CalibrationFile = writeFile(t, "cal.yaml", "escalation:\n  dose_ceiling: 1500\n")
	cal, err = cfg.Calibration()
	if err != nil {
		t.Fatal(err)
	}
	if cal.Escalation.DoseCeiling != 1500 || cal.Escalation.EffectWindow != 20 {
		t.Errorf("expected override layered on defaults, got %+v", cal.Escalation)
	}

	if _, err := cfg.DrugTable(); err != nil {
		t.Errorf("default drug table: %v", err)
	}
	cfg.DrugTableFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := cfg.DrugTable(); err == nil {
		t.Error("expected error for a missing drug table file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for a missing config file")
	}
}
