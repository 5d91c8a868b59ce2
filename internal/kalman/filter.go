package kalman

import (
	"errors"
	"fmt"
	"math"
)

// Default prior variances used by InitialBelief callers that have no
// better information about the starting state.
const (
	DefaultPosVar = 10.0 // m²
	DefaultVelVar = 10.0 // (m/s)²
)

var (
	// ErrInvalidParams is returned by NewFilter for a non-positive dt or
	// negative/non-finite noise variances.
	ErrInvalidParams = errors.New("invalid filter parameters")
	// ErrInvalidBelief is returned by NewFilter for a prior whose
	// covariance is asymmetric, has a negative diagonal or is not finite.
	ErrInvalidBelief = errors.New("invalid prior belief")
	// ErrDegenerateInnovation is returned by Update when the innovation
	// variance S is not strictly positive, e.g. MeasVar == 0 combined with
	// a collapsed position variance.
	ErrDegenerateInnovation = errors.New("innovation variance is not positive")
	// ErrInvalidMeasurement is returned by Update for a NaN or infinite
	// measurement.
	ErrInvalidMeasurement = errors.New("measurement is not finite")
)

// Params are the fixed construction parameters of a Filter.
type Params struct {
	Dt         float64 // Time step between measurements (seconds, > 0)
	ProcessVar float64 // Process-noise (white acceleration) intensity (≥ 0)
	MeasVar    float64 // Measurement-noise variance (m², ≥ 0)
}

// Validate checks that the parameters describe a usable filter.
func (p Params) Validate() error {
	if !isFinite(p.Dt) || p.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive and finite, got %v", ErrInvalidParams, p.Dt)
	}
	if !isFinite(p.ProcessVar) || p.ProcessVar < 0 {
		return fmt.Errorf("%w: process_var must be non-negative and finite, got %v", ErrInvalidParams, p.ProcessVar)
	}
	if !isFinite(p.MeasVar) || p.MeasVar < 0 {
		return fmt.Errorf("%w: meas_var must be non-negative and finite, got %v", ErrInvalidParams, p.MeasVar)
	}
	return nil
}

// Belief is a Gaussian estimate of the (position, velocity) state.
type Belief struct {
	Mean [2]float64    // [position, velocity]
	Cov  [2][2]float64 // Estimate-error covariance
}

// InitialBelief returns a prior centred on (pos, vel) with a diagonal
// covariance diag(posVar, velVar).
func InitialBelief(pos, vel, posVar, velVar float64) Belief {
	return Belief{
		Mean: [2]float64{pos, vel},
		Cov:  [2][2]float64{{posVar, 0}, {0, velVar}},
	}
}

// Validate checks that the belief is finite, symmetric and has a
// non-negative diagonal.
func (b Belief) Validate() error {
	for i := 0; i < 2; i++ {
		if !isFinite(b.Mean[i]) {
			return fmt.Errorf("%w: mean[%d] is not finite", ErrInvalidBelief, i)
		}
		for j := 0; j < 2; j++ {
			if !isFinite(b.Cov[i][j]) {
				return fmt.Errorf("%w: cov[%d][%d] is not finite", ErrInvalidBelief, i, j)
			}
		}
		if b.Cov[i][i] < 0 {
			return fmt.Errorf("%w: cov[%d][%d] is negative (%v)", ErrInvalidBelief, i, i, b.Cov[i][i])
		}
	}
	if b.Cov[0][1] != b.Cov[1][0] {
		return fmt.Errorf("%w: covariance is not symmetric", ErrInvalidBelief)
	}
	return nil
}

// Filter is a constant-velocity Kalman filter. A Filter is not safe for
// concurrent use; each run should own its own instance.
type Filter struct {
	params Params

	// Derived once in NewFilter.
	f [2][2]float64 // State transition
	q [2][2]float64 // Process-noise covariance
	r float64       // Measurement-noise variance (H = [1, 0])

	belief Belief

	lastInnovation    float64
	lastInnovationVar float64
	steps             int
}

// NewFilter builds a filter from its parameters and an initial belief.
// There is no uninitialised state: the prior must be supplied up front.
func NewFilter(p Params, init Belief) (*Filter, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := init.Validate(); err != nil {
		return nil, err
	}

	dt := p.Dt
	dt2 := dt * dt
	dt3 := dt2 * dt
	dt4 := dt3 * dt

	return &Filter{
		params: p,
		f:      [2][2]float64{{1, dt}, {0, 1}},
		// Discretised white-acceleration noise.
		q: [2][2]float64{
			{p.ProcessVar * dt4 / 4, p.ProcessVar * dt3 / 2},
			{p.ProcessVar * dt3 / 2, p.ProcessVar * dt2},
		},
		r:      p.MeasVar,
		belief: init,
	}, nil
}

// Params returns the construction parameters.
func (kf *Filter) Params() Params { return kf.params }

// Belief returns a copy of the current belief.
func (kf *Filter) Belief() Belief { return kf.belief }

// Estimate returns the current position and velocity estimate.
func (kf *Filter) Estimate() (pos, vel float64) {
	return kf.belief.Mean[0], kf.belief.Mean[1]
}

// PositionStd returns the standard deviation of the position estimate.
func (kf *Filter) PositionStd() float64 {
	v := kf.belief.Cov[0][0]
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

// Innovation returns the innovation and its variance from the most recent
// successful Update. Both are zero before the first update.
func (kf *Filter) Innovation() (y, s float64) {
	return kf.lastInnovation, kf.lastInnovationVar
}

// Steps returns the number of successful updates applied.
func (kf *Filter) Steps() int { return kf.steps }

// Step advances the belief by one dt and folds in the position
// measurement z. If the update is rejected the belief keeps its
// predicted value.
func (kf *Filter) Step(z float64) error {
	if !isFinite(z) {
		return fmt.Errorf("%w: %v", ErrInvalidMeasurement, z)
	}
	kf.Predict()
	return kf.Update(z)
}

// Predict projects the belief forward one dt under the constant-velocity
// model.
func (kf *Filter) Predict() {
	dt := kf.params.Dt
	m := &kf.belief.Mean
	P := &kf.belief.Cov

	// Predict state: x' = F * x
	m[0] += dt * m[1]

	// Predict covariance: P' = F * P * F^T + Q
	// F*P rows: [P00 + dt*P10, P01 + dt*P11], [P10, P11]
	fp00 := P[0][0] + dt*P[1][0]
	fp01 := P[0][1] + dt*P[1][1]
	fp10 := P[1][0]
	fp11 := P[1][1]
	// (F*P)*F^T columns: [fp00 + dt*fp01, fp01], [fp10 + dt*fp11, fp11]
	P[0][0] = fp00 + dt*fp01 + kf.q[0][0]
	P[0][1] = fp01 + kf.q[0][1]
	P[1][0] = fp10 + dt*fp11 + kf.q[1][0]
	P[1][1] = fp11 + kf.q[1][1]

	symmetrize(P)
}

// Update folds in a position measurement z. On error the belief is left
// unchanged.
func (kf *Filter) Update(z float64) error {
	if !isFinite(z) {
		return fmt.Errorf("%w: %v", ErrInvalidMeasurement, z)
	}
	m := &kf.belief.Mean
	P := &kf.belief.Cov

	// Innovation: y = z - H*x, S = H*P*H^T + R
	y := z - m[0]
	S := P[0][0] + kf.r
	if !(S > 0) || math.IsInf(S, 0) {
		return fmt.Errorf("%w: S=%v", ErrDegenerateInnovation, S)
	}

	// Gain: K = P*H^T / S
	k0 := P[0][0] / S
	k1 := P[1][0] / S

	// Update state: x' = x + K*y
	m[0] += k0 * y
	m[1] += k1 * y

	// Update covariance: P' = (I - K*H) * P
	// (I - K*H) = [[1-k0, 0], [-k1, 1]]
	p00, p01 := P[0][0], P[0][1]
	p10, p11 := P[1][0], P[1][1]
	P[0][0] = (1 - k0) * p00
	P[0][1] = (1 - k0) * p01
	P[1][0] = p10 - k1*p00
	P[1][1] = p11 - k1*p01

	symmetrize(P)
	enforcePSD(P)

	kf.lastInnovation = y
	kf.lastInnovationVar = S
	kf.steps++
	return nil
}

// symmetrize sets both off-diagonal entries to their mean.
func symmetrize(P *[2][2]float64) {
	off := 0.5 * (P[0][1] + P[1][0])
	P[0][1] = off
	P[1][0] = off
}

// enforcePSD repairs round-off on a symmetric P: a negative variance is
// clamped to zero along with its covariances, and the remaining
// covariance is capped at sqrt(P00*P11).
func enforcePSD(P *[2][2]float64) {
	if P[0][0] <= 0 || P[1][1] <= 0 {
		P[0][0] = math.Max(P[0][0], 0)
		P[1][1] = math.Max(P[1][1], 0)
		P[0][1], P[1][0] = 0, 0
		return
	}
	limit := math.Sqrt(P[0][0] * P[1][1])
	if math.Abs(P[0][1]) > limit {
		off := math.Copysign(limit, P[0][1])
		P[0][1], P[1][0] = off, off
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
