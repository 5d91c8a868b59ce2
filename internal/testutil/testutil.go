// Package testutil provides shared test helpers for the simulation
// packages.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertSymmetric2x2 fails the test if the off-diagonal entries of m
// differ by more than tol.
func AssertSymmetric2x2(t *testing.T, m [2][2]float64, tol float64) {
	t.Helper()
	if d := math.Abs(m[0][1] - m[1][0]); d > tol || math.IsNaN(d) {
		t.Errorf("matrix not symmetric: m[0][1]=%v m[1][0]=%v", m[0][1], m[1][0])
	}
}

// LinearSequence returns n samples start, start+step, start+2*step, ...
// computed by multiplication so there is no accumulated drift.
func LinearSequence(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
