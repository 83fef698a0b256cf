package supply

import (
	"math"
	"testing"
)

func TestZeroVariabilityIsIdentity(t *testing.T) {
	d := NewDrift(1, 0)
	for day := 0; day < 50; day++ {
		if got := d.Multiplier(day); got != 1 {
			t.Fatalf("day %d: expected multiplier 1, got %v", day, got)
		}
	}
	var nilDrift *Drift
	if nilDrift.Multiplier(3) != 1 {
		t.Error("nil drift should be the identity")
	}
}

func TestMultiplierBoundedAndDeterministic(t *testing.T) {
	a := NewDrift(11, 0.3)
	b := NewDrift(11, 0.3)
	varied := false
	for day := 0; day < 365; day++ {
		m := a.Multiplier(day)
		if m != b.Multiplier(day) {
			t.Fatalf("day %d: same seed produced different multipliers", day)
		}
		if m < 0.7-1e-9 || m > 1.3+1e-9 {
			t.Fatalf("day %d: multiplier %v outside [0.7, 1.3]", day, m)
		}
		if math.Abs(m-1) > 1e-6 {
			varied = true
		}
	}
	if !varied {
		t.Error("expected potency to vary across a year")
	}
}

func TestMultiplierIsSmoothDayToDay(t *testing.T) {
	d := NewDrift(5, 0.5)
	for day := 1; day < 200; day++ {
		if diff := math.Abs(d.Multiplier(day) - d.Multiplier(day-1)); diff > 0.5 {
			t.Fatalf("day %d: jump of %v between consecutive days", day, diff)
		}
	}
}

func TestMultiplierNeverNegative(t *testing.T) {
	d := NewDrift(3, 2.0)
	for day := 0; day < 500; day++ {
		if d.Multiplier(day) < 0 {
			t.Fatalf("day %d: negative multiplier", day)
		}
	}
}
