// Package sensor turns ground-truth positions into noisy range-sensor
// readings.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrNegativeStd is returned when a measurement-noise standard deviation
// is negative, infinite or not a number.
var ErrNegativeStd = errors.New("measurement noise std must be finite and non-negative")

// ErrNilSource is returned by Observe when noise is requested without a
// random source.
var ErrNilSource = errors.New("random source must not be nil")

// NewSource returns a seeded PCG source. Two sources built from the same
// seed yield identical sample streams.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// Observe returns truth[i] + N(0, measStd²) for every sample, drawing
// from src in index order. A measStd of 0 returns an exact copy of truth.
// The input slice is never modified.
func Observe(truth []float64, measStd float64, src rand.Source) ([]float64, error) {
	if math.IsNaN(measStd) || measStd < 0 || math.IsInf(measStd, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrNegativeStd, measStd)
	}

	out := make([]float64, len(truth))
	if measStd == 0 {
		copy(out, truth)
		return out, nil
	}
	if src == nil {
		return nil, ErrNilSource
	}

	noise := distuv.Normal{Mu: 0, Sigma: measStd, Src: src}
	for i, x := range truth {
		out[i] = x + noise.Rand()
	}
	return out, nil
}
