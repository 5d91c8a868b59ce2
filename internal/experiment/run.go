package experiment

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/brakesim/internal/config"
	"github.com/banshee-data/brakesim/internal/kalman"
	"github.com/banshee-data/brakesim/internal/kinematics"
	"github.com/banshee-data/brakesim/internal/monitoring"
	"github.com/banshee-data/brakesim/internal/policy"
	"github.com/banshee-data/brakesim/internal/sensor"
)

// ErrInvalidRunConfig is returned by Run for a config that cannot be
// simulated.
var ErrInvalidRunConfig = errors.New("invalid run config")

// MinSteps is the shortest run Run accepts.
const MinSteps = config.MinSteps

// RunConfig holds everything needed for one run at one noise level.
type RunConfig struct {
	// Ground truth
	Dt              float64                 // seconds per step
	Steps           int                     // number of samples
	InitialPosition float64                 // metres
	InitialSpeed    float64                 // m/s
	Accel           kinematics.AccelProfile // nil means constant velocity
	BrakeDecel      float64                 // m/s² available when braking

	// Sensor
	MeasStd float64 // measurement-noise standard deviation (metres)
	Seed    uint64

	// Filter
	ProcessVar         float64
	InitialPosVar      float64
	InitialVelVar      float64
	InitialVelocityEst float64 // prior velocity; the prior position is the first reading

	Policy    policy.Config // filtered-estimate policy
	RawPolicy policy.Config // raw-reading policy; fixed margin unless UseUncertainty

	// Braking while the true distance is below this counts as a late brake.
	TooLateThreshold float64
}

// DefaultRunConfig mirrors the reference scenario: 200 steps of 0.1s at
// 10 m/s towards a stop line at 120m, read with 0.5m sensor noise, seed 0.
func DefaultRunConfig() RunConfig {
	return FromConfig(config.DefaultExperimentConfig(), 0.5)
}

// FromConfig builds a RunConfig for one measurement-noise level from a
// loaded ExperimentConfig.
func FromConfig(cfg *config.ExperimentConfig, measStd float64) RunConfig {
	filtered := policy.Config{
		StopPosition:   cfg.GetStopPosition(),
		BrakeMargin:    cfg.GetBrakeMargin(),
		UseUncertainty: cfg.GetUseUncertainty(),
		KSigma:         cfg.GetKSigma(),
	}
	raw := filtered
	raw.UseUncertainty = cfg.GetRawUseUncertainty()

	return RunConfig{
		Dt:                 cfg.GetDt(),
		Steps:              cfg.GetSteps(),
		InitialPosition:    cfg.GetInitialPosition(),
		InitialSpeed:       cfg.GetInitialSpeed(),
		Accel:              kinematics.ConstantAccel(cfg.GetAcceleration()),
		BrakeDecel:         cfg.GetBrakeDecel(),
		MeasStd:            measStd,
		Seed:               cfg.GetSeed(),
		ProcessVar:         cfg.GetProcessVar(),
		InitialPosVar:      cfg.GetInitialPosVar(),
		InitialVelVar:      cfg.GetInitialVelVar(),
		InitialVelocityEst: cfg.GetInitialVelocityEst(),
		Policy:             filtered,
		RawPolicy:          raw,
		TooLateThreshold:   cfg.GetTooLateThreshold(),
	}
}

// Validate checks the parts of the config that are not validated by the
// filter itself.
func (c RunConfig) Validate() error {
	if c.Steps < MinSteps {
		return fmt.Errorf("%w: steps must be at least %d, got %d", ErrInvalidRunConfig, MinSteps, c.Steps)
	}
	if !(c.Dt > 0) || math.IsInf(c.Dt, 0) {
		return fmt.Errorf("%w: dt must be positive and finite, got %v", ErrInvalidRunConfig, c.Dt)
	}
	if !(c.BrakeDecel > 0) {
		return fmt.Errorf("%w: brake_decel must be positive, got %v", ErrInvalidRunConfig, c.BrakeDecel)
	}
	return nil
}

// DecisionSummary condenses one stream of per-step actions.
type DecisionSummary struct {
	FirstBrakeStep  int     // -1 if the stream never braked
	FirstBrakeTime  float64 // seconds; 0 if never braked
	DistanceAtBrake float64 // true distance to the stop position at FirstBrakeStep
	SpeedAtBrake    float64 // true speed at FirstBrakeStep
	StopsInTime     bool    // the vehicle could stop before the line from FirstBrakeStep
	BrakeCount      int     // steps with Brake
	SpuriousBrakes  int     // Brake where the oracle maintains
	MissedBrakes    int     // Maintain where the oracle brakes
	LateBrakes      int     // Brake while the true distance is below TooLateThreshold
}

// Result is the full record of one run.
type Result struct {
	RunID   string
	MeasStd float64
	Seed    uint64

	Truth        kinematics.Trajectory
	Observations []float64
	Estimates    []float64 // filtered position
	Velocities   []float64 // filtered velocity
	PositionStd  []float64 // filtered position std

	TruthActions    []policy.Action // policy on true position (oracle)
	RawActions      []policy.Action // RawPolicy on raw readings
	FilteredActions []policy.Action // policy on filtered estimate and its std

	Truthful DecisionSummary
	Raw      DecisionSummary
	Filtered DecisionSummary

	ObservationRMSE float64
	EstimateRMSE    float64
	VelocityRMSE    float64
	MeanPositionStd float64
}

// NoiseReduction returns 1 - EstimateRMSE/ObservationRMSE. It is positive
// when the filter reduces position error and 0 for noiseless runs.
func (r *Result) NoiseReduction() float64 {
	if r.ObservationRMSE == 0 {
		return 0
	}
	return 1 - r.EstimateRMSE/r.ObservationRMSE
}

// Run executes a single experiment.
//
// The first reading seeds the filter prior (position = reading, velocity
// = InitialVelocityEst); every reading, the first included, is then
// folded in with one filter Step. All per-step slices in the Result have
// length Steps.
func Run(cfg RunConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	monitoring.Logf("run %s: start meas_std=%.3f seed=%d steps=%d dt=%.3f",
		runID, cfg.MeasStd, cfg.Seed, cfg.Steps, cfg.Dt)

	truth := kinematics.Simulate(cfg.Steps, cfg.Dt, cfg.InitialPosition, cfg.InitialSpeed, cfg.Accel)

	obs, err := sensor.Observe(truth.Position, cfg.MeasStd, sensor.NewSource(cfg.Seed))
	if err != nil {
		return nil, fmt.Errorf("failed to generate observations: %w", err)
	}

	params := kalman.Params{
		Dt:         cfg.Dt,
		ProcessVar: cfg.ProcessVar,
		MeasVar:    cfg.MeasStd * cfg.MeasStd,
	}
	prior := kalman.InitialBelief(obs[0], cfg.InitialVelocityEst, cfg.InitialPosVar, cfg.InitialVelVar)
	kf, err := kalman.NewFilter(params, prior)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter: %w", err)
	}

	n := cfg.Steps
	res := &Result{
		RunID:           runID,
		MeasStd:         cfg.MeasStd,
		Seed:            cfg.Seed,
		Truth:           truth,
		Observations:    obs,
		Estimates:       make([]float64, n),
		Velocities:      make([]float64, n),
		PositionStd:     make([]float64, n),
		TruthActions:    make([]policy.Action, n),
		RawActions:      make([]policy.Action, n),
		FilteredActions: make([]policy.Action, n),
	}

	for t := 0; t < n; t++ {
		if err := kf.Step(obs[t]); err != nil {
			return nil, fmt.Errorf("filter step %d: %w", t, err)
		}
		pos, vel := kf.Estimate()
		std := kf.PositionStd()
		res.Estimates[t] = pos
		res.Velocities[t] = vel
		res.PositionStd[t] = std

		res.TruthActions[t] = policy.Decide(truth.Position[t], 0, cfg.Policy)
		// The sensor std only widens the raw buffer if RawPolicy opts in.
		res.RawActions[t] = policy.Decide(obs[t], cfg.MeasStd, cfg.RawPolicy)
		res.FilteredActions[t] = policy.Decide(pos, std, cfg.Policy)

		monitoring.Debugf("run %s: t=%d x=%.3f z=%.3f est=%.3f v=%.3f sd=%.3f action=%s",
			runID, t, truth.Position[t], obs[t], pos, vel, std, res.FilteredActions[t])
	}

	res.Truthful = summarize(res.TruthActions, res.TruthActions, truth, cfg)
	res.Raw = summarize(res.RawActions, res.TruthActions, truth, cfg)
	res.Filtered = summarize(res.FilteredActions, res.TruthActions, truth, cfg)

	res.ObservationRMSE = rmse(obs, truth.Position)
	res.EstimateRMSE = rmse(res.Estimates, truth.Position)
	res.VelocityRMSE = rmse(res.Velocities, truth.Velocity)
	res.MeanPositionStd = stat.Mean(res.PositionStd, nil)

	monitoring.Logf("run %s: done obs_rmse=%.4f est_rmse=%.4f first_brake oracle=%d raw=%d filtered=%d",
		runID, res.ObservationRMSE, res.EstimateRMSE,
		res.Truthful.FirstBrakeStep, res.Raw.FirstBrakeStep, res.Filtered.FirstBrakeStep)

	return res, nil
}

func summarize(actions, oracle []policy.Action, truth kinematics.Trajectory, cfg RunConfig) DecisionSummary {
	s := DecisionSummary{FirstBrakeStep: -1}
	for t, a := range actions {
		if a == policy.Brake {
			s.BrakeCount++
			if s.FirstBrakeStep < 0 {
				s.FirstBrakeStep = t
			}
		}
		switch {
		case a == policy.Brake && oracle[t] == policy.Maintain:
			s.SpuriousBrakes++
		case a == policy.Maintain && oracle[t] == policy.Brake:
			s.MissedBrakes++
		}
		if a == policy.Brake && cfg.Policy.StopPosition-truth.Position[t] < cfg.TooLateThreshold {
			s.LateBrakes++
		}
	}
	if s.FirstBrakeStep >= 0 {
		t := s.FirstBrakeStep
		s.FirstBrakeTime = float64(t) * cfg.Dt
		s.DistanceAtBrake = cfg.Policy.StopPosition - truth.Position[t]
		s.SpeedAtBrake = truth.Velocity[t]
		s.StopsInTime = kinematics.StoppingDistance(s.SpeedAtBrake, cfg.BrakeDecel) <= s.DistanceAtBrake
	}
	return s
}

// rmse returns the root-mean-square difference of two equal-length slices.
func rmse(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, 2) / math.Sqrt(float64(len(a)))
}
