// Risk profiles: named trait templates for common kinds of person.
package agents

import (
	"fmt"
	"slices"
)

// Profile names.
const (
	ProfileLowRisk  = "low_risk"
	ProfileModerate = "moderate"
	ProfileHighRisk = "high_risk"
)

// profiles maps a profile name to the risk traits it sets. Dose traits are
// left to the caller.
var profiles = map[string]struct{ External, Internal float64 }{
	ProfileLowRisk:  {External: 0.1, Internal: 0.1},
	ProfileModerate: {External: 0.5, Internal: 0.5},
	ProfileHighRisk: {External: 0.9, Internal: 0.9},
}

// ProfileNames returns every known profile, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ApplyProfile returns t with its risk traits replaced by the named profile.
// An empty name leaves t unchanged.
func ApplyProfile(t Traits, name string) (Traits, error) {
	if name == "" {
		return t, nil
	}
	p, ok := profiles[name]
	if !ok {
		return t, fmt.Errorf("%w: unknown profile %q (known: %v)", ErrInvalidTraits, name, ProfileNames())
	}
	t.ExternalRisk = p.External
	t.InternalRisk = p.Internal
	return t, nil
}
