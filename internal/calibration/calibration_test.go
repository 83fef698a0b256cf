package calibration

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default calibration should validate: %v", err)
	}
	if c.Version != Version {
		t.Errorf("expected version %q, got %q", Version, c.Version)
	}
	if c.Overdose.Model != OverdoseLogisticExcess {
		t.Errorf("expected default overdose model %q, got %q", OverdoseLogisticExcess, c.Overdose.Model)
	}
}

func TestKeMatchesMorphineHalfLife(t *testing.T) {
	c := Default()
	// ln2 / 11.667 ticks
	if got := c.Ke(); math.Abs(got-0.0594) > 1e-3 {
		t.Errorf("Ke() = %v, expected about 0.0594", got)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Calibration)
	}{
		{"zero half-life", func(c *Calibration) { c.PK.HalfLifeTicks = 0 }},
		{"alpha at one", func(c *Calibration) { c.Integrators.AlphaD = 1 }},
		{"negative beta", func(c *Calibration) { c.Integrators.BetaB = -1 }},
		{"unknown overdose model", func(c *Calibration) { c.Overdose.Model = "coin_flip" }},
		{"fatal probability above one", func(c *Calibration) { c.Overdose.FatalProbability = 1.2 }},
		{"inverted jitter", func(c *Calibration) { c.Overdose.JitterHigh = 0.1 }},
		{"empty effect window", func(c *Calibration) { c.Escalation.EffectWindow = 0 }},
		{"missing version", func(c *Calibration) { c.Version = "" }},
		{"midpoints inverted", func(c *Calibration) { c.Risk.MidpointMax = 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.yaml")
	content := `
version: test-1
overdose:
  model: effect_threshold
  effect_threshold: 250
escalation:
  dose_ceiling: 1500
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write calibration: %v", err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if c.Version != "test-1" {
		t.Errorf("expected version test-1, got %q", c.Version)
	}
	if c.Overdose.Model != OverdoseEffectThreshold || c.Overdose.EffectThreshold != 250 {
		t.Errorf("overdose overrides not applied: %+v", c.Overdose)
	}
	if c.Escalation.DoseCeiling != 1500 {
		t.Errorf("expected ceiling 1500, got %v", c.Escalation.DoseCeiling)
	}
	// Untouched sections keep defaults.
	if c.Integrators.AlphaA != 0.99 {
		t.Errorf("expected default alpha_a 0.99, got %v", c.Integrators.AlphaA)
	}
	if c.Overdose.K != Default().Overdose.K {
		t.Errorf("expected default overdose k, got %v", c.Overdose.K)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("overdose:\n  model: nope\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
