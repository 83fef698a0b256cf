// Package config provides run configuration for vousim.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/talgya/vou/internal/agents"
	"github.com/talgya/vou/internal/calibration"
	"github.com/talgya/vou/internal/drugs"
	"github.com/talgya/vou/internal/engine"
)

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config contains every vousim setting.
type Config struct {
	// Person sets the traits of each simulated person.
	Person PersonConfig `json:"person" yaml:"person"`

	// Simulation sets run length and supply conditions.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Batch sets how many people are simulated and how.
	Batch BatchConfig `json:"batch" yaml:"batch"`

	// CalibrationFile optionally overrides calibrated model constants.
	CalibrationFile string `json:"calibration_file,omitempty" yaml:"calibration_file,omitempty"`

	// DrugTableFile optionally replaces the built-in drug-parameter table.
	DrugTableFile string `json:"drug_table_file,omitempty" yaml:"drug_table_file,omitempty"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// PersonConfig mirrors agents.Traits with file-friendly types.
type PersonConfig struct {
	// Profile, when set, replaces external_risk and internal_risk with a
	// named preset: low_risk, moderate, or high_risk.
	Profile               string  `json:"profile,omitempty" yaml:"profile,omitempty"`
	StartingDose          float64 `json:"starting_dose" yaml:"starting_dose"`
	DoseIncrement         float64 `json:"dose_increment" yaml:"dose_increment"`
	BaseThreshold         float64 `json:"base_threshold" yaml:"base_threshold"`
	ToleranceWindow       int     `json:"tolerance_window" yaml:"tolerance_window"`
	ExternalRisk          float64 `json:"external_risk" yaml:"external_risk"`
	InternalRisk          float64 `json:"internal_risk" yaml:"internal_risk"`
	BehavioralVariability float64 `json:"behavioral_variability" yaml:"behavioral_variability"`
	// ResumeBehavior is "same_dose", "lower_dose", or empty.
	ResumeBehavior string `json:"resume_behavior,omitempty" yaml:"resume_behavior,omitempty"`
}

// SimulationConfig mirrors engine.Options. Stop and resume are given in days.
type SimulationConfig struct {
	Days                   int     `json:"days" yaml:"days"`
	StopUseDay             *int    `json:"stop_use_day,omitempty" yaml:"stop_use_day,omitempty"`
	ResumeUseDay           *int    `json:"resume_use_day,omitempty" yaml:"resume_use_day,omitempty"`
	Availability           float64 `json:"availability" yaml:"availability"`
	CounterfeitProbability float64 `json:"counterfeit_prob" yaml:"counterfeit_prob"`
	DoseVariability        float64 `json:"dose_variability" yaml:"dose_variability"`
	FentanylProbability    float64 `json:"fentanyl_prob" yaml:"fentanyl_prob"`
	FentanylVariability    float64 `json:"fentanyl_variability" yaml:"fentanyl_variability"`
	SourceVariability      float64 `json:"source_variability" yaml:"source_variability"`
	ForcedDailyDose        bool    `json:"forced_daily_dose" yaml:"forced_daily_dose"`
}

// BatchConfig configures batch runs.
type BatchConfig struct {
	// Seed 0 picks a random seed at startup.
	Seed       int64   `json:"seed" yaml:"seed"`
	Iterations int     `json:"iterations" yaml:"iterations"`
	Workers    int     `json:"workers" yaml:"workers"` // 0 uses every CPU
	RiskSpread float64 `json:"risk_spread" yaml:"risk_spread"`
	Database   string  `json:"database" yaml:"database"`
}

// LoggingConfig configures log verbosity.
type LoggingConfig struct {
	// Level is "debug", "info" (default), "warn", or "error".
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config describing the reference person and scenario.
func Default() *Config {
	traits := agents.DefaultTraits()
	opts := engine.DefaultOptions()
	return &Config{
		Person: PersonConfig{
			StartingDose:          traits.StartingDose,
			DoseIncrement:         traits.DoseIncrement,
			BaseThreshold:         traits.BaseThreshold,
			ToleranceWindow:       traits.ToleranceWindow,
			ExternalRisk:          traits.ExternalRisk,
			InternalRisk:          traits.InternalRisk,
			BehavioralVariability: traits.BehavioralVariability,
		},
		Simulation: SimulationConfig{
			Days:                   opts.Days,
			Availability:           opts.Availability,
			CounterfeitProbability: opts.CounterfeitProbability,
			DoseVariability:        opts.DoseVariability,
			FentanylProbability:    opts.FentanylProbability,
			FentanylVariability:    opts.FentanylVariability,
			SourceVariability:      opts.SourceVariability,
		},
		Batch: BatchConfig{
			Iterations: 1000,
			Database:   "vou.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the file at path if given,
// then environment variables. The result is validated.
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a YAML (or JSON) file. Keys absent from
// the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// Validate checks that the configuration converts into valid traits and options.
func (c *Config) Validate() error {
	if _, err := c.Traits(); err != nil {
		return fmt.Errorf("%w: person: %w", ErrInvalid, err)
	}
	if _, err := c.Options(); err != nil {
		return fmt.Errorf("%w: simulation: %w", ErrInvalid, err)
	}
	if c.Batch.Iterations <= 0 {
		return fmt.Errorf("%w: batch iterations must be positive, got %d", ErrInvalid, c.Batch.Iterations)
	}
	if c.Batch.Workers < 0 {
		return fmt.Errorf("%w: batch workers must be non-negative, got %d", ErrInvalid, c.Batch.Workers)
	}
	if c.Batch.RiskSpread < 0 || c.Batch.RiskSpread > 1 {
		return fmt.Errorf("%w: risk_spread must be between 0 and 1, got %v", ErrInvalid, c.Batch.RiskSpread)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: invalid log level: %s (valid: debug, info, warn, error, or empty for default)", ErrInvalid, c.Logging.Level)
	}
	return nil
}

// Traits converts the person section.
func (c *Config) Traits() (agents.Traits, error) {
	resume, err := agents.ParseResumeBehavior(c.Person.ResumeBehavior)
	if err != nil {
		return agents.Traits{}, err
	}
	t := agents.Traits{
		StartingDose:          c.Person.StartingDose,
		DoseIncrement:         c.Person.DoseIncrement,
		BaseThreshold:         c.Person.BaseThreshold,
		ToleranceWindow:       c.Person.ToleranceWindow,
		ExternalRisk:          c.Person.ExternalRisk,
		InternalRisk:          c.Person.InternalRisk,
		BehavioralVariability: c.Person.BehavioralVariability,
		ResumeBehavior:        resume,
	}
	if t, err = agents.ApplyProfile(t, c.Person.Profile); err != nil {
		return agents.Traits{}, err
	}
	if err := t.Validate(); err != nil {
		return agents.Traits{}, err
	}
	return t, nil
}

// Options converts the simulation section. Stop and resume days become ticks.
func (c *Config) Options() (engine.Options, error) {
	s := c.Simulation
	opts := engine.Options{
		Days:                   s.Days,
		Availability:           s.Availability,
		CounterfeitProbability: s.CounterfeitProbability,
		DoseVariability:        s.DoseVariability,
		FentanylProbability:    s.FentanylProbability,
		FentanylVariability:    s.FentanylVariability,
		SourceVariability:      s.SourceVariability,
		ForcedDailyDose:        s.ForcedDailyDose,
	}
	if s.StopUseDay != nil {
		tick := *s.StopUseDay * engine.TicksPerDay
		opts.StopUseTick = &tick
	}
	if s.ResumeUseDay != nil {
		tick := *s.ResumeUseDay * engine.TicksPerDay
		opts.ResumeUseTick = &tick
	}
	if err := opts.Validate(); err != nil {
		return engine.Options{}, err
	}
	return opts, nil
}

// Calibration returns the default calibration, or the one in CalibrationFile.
func (c *Config) Calibration() (calibration.Calibration, error) {
	if c.CalibrationFile == "" {
		return calibration.Default(), nil
	}
	return calibration.LoadFile(c.CalibrationFile)
}

// DrugTable returns the built-in drug table, or the one in DrugTableFile.
func (c *Config) DrugTable() (*drugs.Table, error) {
	if c.DrugTableFile == "" {
		return drugs.Default(), nil
	}
	return drugs.LoadFile(c.DrugTableFile)
}

// SlogLevel maps the configured level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("VOU_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Batch.Seed = n
		}
	}
	if v := os.Getenv("VOU_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Batch.Iterations = n
		}
	}
	if v := os.Getenv("VOU_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Batch.Workers = n
		}
	}
	if v := os.Getenv("VOU_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Days = n
		}
	}
	if v := os.Getenv("VOU_DB"); v != "" {
		config.Batch.Database = v
	}
	if v := os.Getenv("VOU_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
