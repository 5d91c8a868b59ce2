package experiment

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/brakesim/internal/config"
	"github.com/banshee-data/brakesim/internal/kinematics"
	"github.com/banshee-data/brakesim/internal/monitoring"
	"github.com/banshee-data/brakesim/internal/policy"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// referenceScenario is dt=0.1, T=200, x0=0, v0=10, x_stop=120.
func referenceScenario(measStd float64) RunConfig {
	cfg := DefaultRunConfig()
	cfg.MeasStd = measStd
	return cfg
}

func TestDefaultRunConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultRunConfig()
	assert.Equal(t, 0.1, cfg.Dt)
	assert.Equal(t, 200, cfg.Steps)
	assert.Equal(t, 0.0, cfg.InitialPosition)
	assert.Equal(t, 10.0, cfg.InitialSpeed)
	assert.Equal(t, 120.0, cfg.Policy.StopPosition)
	assert.Equal(t, 0.5, cfg.MeasStd)
	assert.Equal(t, uint64(0), cfg.Seed)
	assert.Equal(t, 1.0, cfg.ProcessVar)
	assert.Equal(t, 25.0, cfg.InitialPosVar)
	assert.Equal(t, 25.0, cfg.InitialVelVar)
	assert.Equal(t, 20.0, cfg.Policy.BrakeMargin)
	assert.True(t, cfg.Policy.UseUncertainty)
	assert.False(t, cfg.RawPolicy.UseUncertainty)
	assert.Equal(t, cfg.Policy.BrakeMargin, cfg.RawPolicy.BrakeMargin)
	assert.Equal(t, 8.0, cfg.TooLateThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestRun_FilterReducesNoise(t *testing.T) {
	t.Parallel()

	for _, std := range []float64{0.5, 2.0, 5.0} {
		t.Run(fmt.Sprintf("meas_std=%v", std), func(t *testing.T) {
			t.Parallel()

			res, err := Run(referenceScenario(std))
			require.NoError(t, err)

			assert.Greater(t, res.ObservationRMSE, 0.0)
			assert.Less(t, res.EstimateRMSE, res.ObservationRMSE,
				"filtered RMSE %.4f must beat raw RMSE %.4f", res.EstimateRMSE, res.ObservationRMSE)
			assert.Greater(t, res.NoiseReduction(), 0.0)
			assert.Less(t, res.MeanPositionStd, std)
		})
	}
}

func TestRun_ShapesAndActions(t *testing.T) {
	t.Parallel()

	cfg := referenceScenario(2.0)
	res, err := Run(cfg)
	require.NoError(t, err)

	n := cfg.Steps
	assert.Equal(t, n, res.Truth.Len())
	assert.Len(t, res.Observations, n)
	assert.Len(t, res.Estimates, n)
	assert.Len(t, res.Velocities, n)
	assert.Len(t, res.PositionStd, n)
	require.Len(t, res.TruthActions, n)
	require.Len(t, res.RawActions, n)
	require.Len(t, res.FilteredActions, n)

	for i := 0; i < n; i++ {
		assert.True(t, res.FilteredActions[i].Valid())
		assert.GreaterOrEqual(t, res.PositionStd[i], 0.0)
	}

	// The prior is seeded from the first reading and that reading is then
	// folded in, so the t=0 estimate sits between the reading and the
	// prior's one-step prediction, with less spread than the prior.
	z0 := res.Observations[0]
	assert.GreaterOrEqual(t, res.Estimates[0], z0)
	assert.LessOrEqual(t, res.Estimates[0], z0+cfg.InitialVelocityEst*cfg.Dt)
	assert.Less(t, res.PositionStd[0], math.Sqrt(cfg.InitialPosVar))
	assert.Less(t, res.PositionStd[0], cfg.MeasStd)

	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 2.0, res.MeasStd)
}

func TestRun_OracleSummary(t *testing.T) {
	t.Parallel()

	cfg := referenceScenario(0.5)
	res, err := Run(cfg)
	require.NoError(t, err)

	s := res.Truthful
	// Truth reaches 120 - margin at roughly step 100.
	assert.InDelta(t, 100, s.FirstBrakeStep, 1)
	assert.InDelta(t, cfg.Policy.BrakeMargin, s.DistanceAtBrake, 1.0)
	assert.Equal(t, 10.0, s.SpeedAtBrake)
	assert.True(t, s.StopsInTime)
	assert.Equal(t, 0, s.SpuriousBrakes)
	assert.Equal(t, 0, s.MissedBrakes)
	// The run keeps going past the line; every brake from x > 112 on is late.
	assert.InDelta(t, 87, s.LateBrakes, 1)
	assert.Equal(t, cfg.Steps-s.FirstBrakeStep, s.BrakeCount)
	assert.InDelta(t, float64(s.FirstBrakeStep)*cfg.Dt, s.FirstBrakeTime, 1e-12)

	// At 0.5m noise the filtered stream brakes within a few steps of the
	// oracle.
	require.GreaterOrEqual(t, res.Filtered.FirstBrakeStep, 0)
	assert.InDelta(t, s.FirstBrakeStep, res.Filtered.FirstBrakeStep, 3)
}

func TestRun_NoiselessRunTracksTruth(t *testing.T) {
	t.Parallel()

	res, err := Run(referenceScenario(0))
	require.NoError(t, err)

	if diff := cmp.Diff(res.Truth.Position, res.Observations); diff != "" {
		t.Errorf("noiseless observations differ from truth (-truth +obs):\n%s", diff)
	}
	assert.Equal(t, 0.0, res.ObservationRMSE)
	assert.InDelta(t, 0, res.EstimateRMSE, 1e-9)
	assert.Equal(t, 0.0, res.NoiseReduction())
	assert.Equal(t, res.TruthActions, res.RawActions)
	assert.Equal(t, res.Truthful, res.Raw)
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()

	a, err := Run(referenceScenario(5.0))
	require.NoError(t, err)
	b, err := Run(referenceScenario(5.0))
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	if diff := cmp.Diff(a, b, cmpopts.IgnoreFields(Result{}, "RunID")); diff != "" {
		t.Errorf("runs with the same seed differ (-a +b):\n%s", diff)
	}

	cfg := referenceScenario(5.0)
	cfg.Seed = 43
	c, err := Run(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Observations, c.Observations)
}

func TestRun_UncertaintyDisabledMatchesFixedMargin(t *testing.T) {
	t.Parallel()

	cfg := referenceScenario(2.0)
	cfg.Policy.UseUncertainty = false
	res, err := Run(cfg)
	require.NoError(t, err)

	for i, est := range res.Estimates {
		want := policy.Decide(est, 0, cfg.Policy)
		require.Equal(t, want, res.FilteredActions[i], "step %d", i)
	}
}

func TestRun_RawPolicyIgnoresUncertainty(t *testing.T) {
	t.Parallel()

	cfg := referenceScenario(2.0)
	require.True(t, cfg.Policy.UseUncertainty)
	res, err := Run(cfg)
	require.NoError(t, err)

	fixed := cfg.Policy
	fixed.UseUncertainty = false
	widened := make([]policy.Action, len(res.Observations))
	for i, z := range res.Observations {
		require.Equal(t, policy.Decide(z, 0, fixed), res.RawActions[i], "step %d", i)
		widened[i] = policy.Decide(z, cfg.MeasStd, cfg.Policy)
	}
	// A 2-sigma buffer on the sensor noise would move the raw brake point.
	assert.NotEqual(t, widened, res.RawActions)

	// Opting in makes the raw stream use the k-sigma buffer as well.
	cfg.RawPolicy.UseUncertainty = true
	res, err = Run(cfg)
	require.NoError(t, err)
	assert.Equal(t, widened, res.RawActions)
}

func TestRun_Braking(t *testing.T) {
	t.Parallel()

	cfg := referenceScenario(0.5)
	cfg.Accel = kinematics.StepAccel(50, -1)
	// Enough process noise for the constant-velocity model to follow a
	// sustained deceleration.
	cfg.ProcessVar = 5
	res, err := Run(cfg)
	require.NoError(t, err)

	assert.Equal(t, -1.0, res.Truth.Acceleration[60])
	assert.Less(t, res.Truth.Velocity[60], cfg.InitialSpeed)
	assert.InDelta(t, -5.0, res.Truth.Velocity[cfg.Steps-1], 0.2)
	assert.Less(t, res.Velocities[cfg.Steps-1], 0.0)
	assert.Less(t, res.EstimateRMSE, res.ObservationRMSE)
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*RunConfig)
		want   error
	}{
		{"no steps", func(c *RunConfig) { c.Steps = 0 }, ErrInvalidRunConfig},
		{"single step", func(c *RunConfig) { c.Steps = 1 }, ErrInvalidRunConfig},
		{"zero dt", func(c *RunConfig) { c.Dt = 0 }, ErrInvalidRunConfig},
		{"no brakes", func(c *RunConfig) { c.BrakeDecel = 0 }, ErrInvalidRunConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultRunConfig()
			tt.mutate(&cfg)
			res, err := Run(cfg)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	cfg := DefaultRunConfig()
	cfg.MeasStd = -1
	_, err := Run(cfg)
	assert.Error(t, err)

	cfg = DefaultRunConfig()
	cfg.ProcessVar = -1
	_, err = Run(cfg)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	c := config.DefaultExperimentConfig()
	off, on := false, true
	late := 4.0
	c.UseUncertainty = &off
	c.RawUseUncertainty = &on
	c.TooLateThreshold = &late
	rc := FromConfig(c, 3)

	assert.Equal(t, 3.0, rc.MeasStd)
	assert.False(t, rc.Policy.UseUncertainty)
	assert.True(t, rc.RawPolicy.UseUncertainty)
	assert.Equal(t, rc.Policy.BrakeMargin, rc.RawPolicy.BrakeMargin)
	assert.Equal(t, rc.Policy.StopPosition, rc.RawPolicy.StopPosition)
	assert.Equal(t, 4.0, rc.TooLateThreshold)
	assert.Equal(t, c.GetKSigma(), rc.Policy.KSigma)
	assert.Equal(t, c.GetProcessVar(), rc.ProcessVar)
	require.NotNil(t, rc.Accel)
	assert.Equal(t, 0.0, rc.Accel(17))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	cfg := RunConfig{Dt: 0.5, BrakeDecel: 5, Policy: policy.Config{StopPosition: 20}, TooLateThreshold: 8}
	truth := kinematics.Simulate(5, 0.5, 0, 10, nil) // 0, 5, 10, 15, 20; distance 20, 15, 10, 5, 0
	M, B := policy.Maintain, policy.Brake
	oracle := []policy.Action{M, M, M, B, B}

	got := summarize([]policy.Action{M, B, M, M, B}, oracle, truth, cfg)
	want := DecisionSummary{
		FirstBrakeStep:  1,
		FirstBrakeTime:  0.5,
		DistanceAtBrake: 15,
		SpeedAtBrake:    10,
		StopsInTime:     true, // 10²/(2·5) = 10 ≤ 15
		BrakeCount:      2,
		SpuriousBrakes:  1,
		MissedBrakes:    1, // step 3
		LateBrakes:      1, // step 4, 0m < 8m
	}
	assert.Equal(t, want, got)

	never := summarize([]policy.Action{M, M, M, M, M}, oracle, truth, cfg)
	assert.Equal(t, -1, never.FirstBrakeStep)
	assert.Equal(t, 2, never.MissedBrakes)
	assert.Equal(t, 0, never.LateBrakes)
	assert.False(t, never.StopsInTime)

	always := summarize([]policy.Action{B, B, B, B, B}, oracle, truth, cfg)
	assert.Equal(t, 3, always.SpuriousBrakes)
	assert.Equal(t, 0, always.MissedBrakes)
	assert.Equal(t, 2, always.LateBrakes) // 5m and 0m

	cfg.TooLateThreshold = 0
	assert.Equal(t, 0, summarize([]policy.Action{B, B, B, B, B}, oracle, truth, cfg).LateBrakes)
}
