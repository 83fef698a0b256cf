// Package drugs provides the read-only drug-parameter table: which drugs each
// supply source provides, how each drug is taken, how strong it is relative to
// morphine, and how each supply channel responds to a request for more.
package drugs

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed drug_params.yaml
var defaultTable []byte

// ErrInvalidTable is returned when a drug table fails validation.
var ErrInvalidTable = errors.New("invalid drug table")

// Source is a supply channel through which a person obtains doses.
type Source uint8

const (
	PrimaryDoctor Source = iota
	SecondaryDoctor
	Dealer
)

// Sources lists every supply channel in escalation order.
var Sources = []Source{PrimaryDoctor, SecondaryDoctor, Dealer}

// String returns the table key for the source.
func (s Source) String() string {
	switch s {
	case PrimaryDoctor:
		return "primary_doctor"
	case SecondaryDoctor:
		return "secondary_doctor"
	case Dealer:
		return "dealer"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// Clinical reports whether the source is a prescriber.
func (s Source) Clinical() bool {
	return s == PrimaryDoctor || s == SecondaryDoctor
}

// ParseSource maps a table key back to a Source.
func ParseSource(name string) (Source, error) {
	for _, s := range Sources {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown source %q", ErrInvalidTable, name)
}

// Channels holds the success probabilities of escalation attempts per channel.
type Channels struct {
	PrimarySuccess   float64 `yaml:"primary_success"`
	SecondarySuccess float64 `yaml:"secondary_success"`
	DealerSuccess    float64 `yaml:"dealer_success"`
	// SecondaryShare is the probability that a person who cannot escalate
	// through their primary doctor tries a secondary doctor rather than a dealer.
	SecondaryShare float64 `yaml:"secondary_share"`
}

// Table is the parsed drug-parameter table.
type Table struct {
	DrugsBySource map[Source]map[string]float64
	ModesByDrug   map[string]map[string]float64
	Equivalence   map[string]float64
	Absorption    map[string]float64
	DefaultMode   string
	Channels      Channels
}

// tableFile mirrors the on-disk layout, keyed by strings.
type tableFile struct {
	DrugsBySource map[string]map[string]float64 `yaml:"drugs_by_source"`
	ModesByDrug   map[string]map[string]float64 `yaml:"modes_by_drug"`
	Equivalence   map[string]float64            `yaml:"equivalence"`
	Absorption    map[string]float64            `yaml:"absorption"`
	DefaultMode   string                        `yaml:"default_mode"`
	Channels      Channels                      `yaml:"channels"`
}

// Default returns the embedded default table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded drug table: %v", err))
	}
	return t
}

// LoadFile reads and validates a drug table from a YAML or JSON file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading drug table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a drug table document.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing drug table: %w", err)
	}

	t := &Table{
		DrugsBySource: make(map[Source]map[string]float64, len(f.DrugsBySource)),
		ModesByDrug:   f.ModesByDrug,
		Equivalence:   f.Equivalence,
		Absorption:    f.Absorption,
		DefaultMode:   f.DefaultMode,
		Channels:      f.Channels,
	}
	for name, dist := range f.DrugsBySource {
		src, err := ParseSource(name)
		if err != nil {
			return nil, err
		}
		t.DrugsBySource[src] = dist
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that every draw the simulation can make resolves to a
// defined entry.
func (t *Table) Validate() error {
	for _, src := range Sources {
		dist, ok := t.DrugsBySource[src]
		if !ok {
			return fmt.Errorf("%w: no drug distribution for %s", ErrInvalidTable, src)
		}
		if err := checkWeights(src.String(), dist); err != nil {
			return err
		}
		for _, drug := range sortedKeys(dist) {
			if err := t.checkDrug(drug); err != nil {
				return err
			}
		}
	}

	for _, mode := range sortedKeys(t.Absorption) {
		if ka := t.Absorption[mode]; ka <= 0 {
			return fmt.Errorf("%w: absorption rate for %s must be positive, got %v", ErrInvalidTable, mode, ka)
		}
	}
	if _, ok := t.Absorption[t.DefaultMode]; !ok {
		return fmt.Errorf("%w: default mode %q has no absorption rate", ErrInvalidTable, t.DefaultMode)
	}

	probs := map[string]float64{
		"primary_success":   t.Channels.PrimarySuccess,
		"secondary_success": t.Channels.SecondarySuccess,
		"dealer_success":    t.Channels.DealerSuccess,
		"secondary_share":   t.Channels.SecondaryShare,
	}
	for _, name := range sortedKeys(probs) {
		if p := probs[name]; p < 0 || p > 1 {
			return fmt.Errorf("%w: %s must be in [0, 1], got %v", ErrInvalidTable, name, p)
		}
	}
	return nil
}

func (t *Table) checkDrug(drug string) error {
	modes, ok := t.ModesByDrug[drug]
	if !ok {
		return fmt.Errorf("%w: no administration modes for %s", ErrInvalidTable, drug)
	}
	if err := checkWeights(drug, modes); err != nil {
		return err
	}
	for _, mode := range sortedKeys(modes) {
		if _, ok := t.Absorption[mode]; !ok {
			return fmt.Errorf("%w: mode %s of %s has no absorption rate", ErrInvalidTable, mode, drug)
		}
	}
	eq, ok := t.Equivalence[drug]
	if !ok {
		return fmt.Errorf("%w: no dose equivalence for %s", ErrInvalidTable, drug)
	}
	if eq <= 0 {
		return fmt.Errorf("%w: dose equivalence for %s must be positive, got %v", ErrInvalidTable, drug, eq)
	}
	return nil
}

func checkWeights(name string, dist map[string]float64) error {
	total := 0.0
	for _, k := range sortedKeys(dist) {
		w := dist[k]
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: weight %v for %s in %s outside [0, 1]", ErrInvalidTable, w, k, name)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("%w: distribution %s has no positive weight", ErrInvalidTable, name)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
