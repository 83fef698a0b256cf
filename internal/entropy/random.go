// Package entropy provides the random-number plumbing for the simulation:
// deterministic per-person streams derived from a run-level seed, the uniform and
// exponential draws the model uses, and weighted categorical choice.
// No function here touches process-global random state.
package entropy

import (
	"cmp"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mathrand "math/rand"
	"slices"
)

// Source is the random handle threaded through every stochastic operation.
// *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	ExpFloat64() float64
}

// ErrEmptyDistribution is returned when a weighted choice has nothing to choose from.
var ErrEmptyDistribution = errors.New("empty distribution")

// DeriveSeed mixes a run-level seed and a person index into an independent
// per-person seed. The result depends only on its arguments, so the stream a
// person receives does not change with worker count or scheduling order.
func DeriveSeed(runSeed int64, index int) int64 {
	x := uint64(runSeed) + uint64(index+1)*0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	x ^= x >> 31
	return int64(x >> 1)
}

// NewStream returns the random stream for person index within a run.
func NewStream(runSeed int64, index int) *mathrand.Rand {
	return mathrand.New(mathrand.NewSource(DeriveSeed(runSeed, index)))
}

// Uniform returns a draw in [lo, hi).
func Uniform(r Source, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// Exponential returns an exponentially distributed draw with the given mean.
func Exponential(r Source, mean float64) float64 {
	return r.ExpFloat64() * mean
}

// WeightedChoice draws one key from a mapping of key to probability weight
// using a single uniform draw. Weights need not sum to one. Keys are visited in
// sorted order so the same draw always selects the same key.
func WeightedChoice[K cmp.Ordered](weights map[K]float64, r Source) (K, error) {
	var zero K
	keys := make([]K, 0, len(weights))
	for k, w := range weights {
		if w < 0 {
			return zero, fmt.Errorf("negative weight %v for %v", w, k)
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	// Summed in key order; map order would make the total differ in the last bit.
	total := 0.0
	for _, k := range keys {
		total += weights[k]
	}
	if len(keys) == 0 || total <= 0 {
		return zero, ErrEmptyDistribution
	}

	target := r.Float64() * total
	cumulative := 0.0
	for _, k := range keys {
		cumulative += weights[k]
		if target < cumulative {
			return k, nil
		}
	}
	// Rounding can leave target == total; fall back to the last weighted key.
	for i := len(keys) - 1; i >= 0; i-- {
		if weights[keys[i]] > 0 {
			return keys[i], nil
		}
	}
	return zero, ErrEmptyDistribution
}

// RandomSeed returns a non-deterministic seed from crypto/rand, used when the
// caller asks for seed 0.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen; any fixed value still yields a valid stream.
		return 1
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed
}
