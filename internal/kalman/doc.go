// Package kalman implements a one-dimensional constant-velocity Kalman
// filter over a (position, velocity) state observed through position-only
// measurements.
//
// Responsibilities: the predict/update recursion, parameter and prior
// validation, and numerical guards that keep the covariance symmetric
// with non-negative diagonal.
// Key types: Filter, Params, Belief.
//
// The 2×2 algebra is written out on fixed-size arrays. The state
// dimension is fixed, so no general matrix library is involved in the
// hot path.
package kalman
