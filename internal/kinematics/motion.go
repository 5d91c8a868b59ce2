package kinematics

import "math"

// AccelProfile returns the commanded acceleration (m/s²) at a step index.
// It must return a finite value for every index in [0, steps).
type AccelProfile func(step int) float64

// ZeroAccel is the constant-velocity profile.
func ZeroAccel(int) float64 { return 0 }

// ConstantAccel returns a profile that applies a for every step.
func ConstantAccel(a float64) AccelProfile {
	return func(int) float64 { return a }
}

// StepAccel returns a profile that is zero before fromStep and a from
// fromStep onwards. Useful for modelling a vehicle that starts braking
// (negative a) part way through a run.
func StepAccel(fromStep int, a float64) AccelProfile {
	return func(step int) float64 {
		if step < fromStep {
			return 0
		}
		return a
	}
}

// Trajectory holds the time-indexed ground truth of a simulated run.
// All three slices have the same length.
type Trajectory struct {
	Position     []float64 // metres
	Velocity     []float64 // m/s
	Acceleration []float64 // m/s²
}

// Len returns the number of samples in the trajectory.
func (t Trajectory) Len() int { return len(t.Position) }

// Simulate integrates a trajectory of the given number of steps starting
// from x0, v0. A nil accel is treated as ZeroAccel.
//
// The update is
//
//	x[t+1] = x[t] + v[t]*dt + 0.5*a[t]*dt²
//	v[t+1] = v[t] + a[t]*dt
//
// a[t] is evaluated for every index including the last, so Acceleration
// has the same length as Position even though its final entry does not
// feed a further sample.
func Simulate(steps int, dt, x0, v0 float64, accel AccelProfile) Trajectory {
	if steps <= 0 {
		return Trajectory{
			Position:     []float64{},
			Velocity:     []float64{},
			Acceleration: []float64{},
		}
	}
	if accel == nil {
		accel = ZeroAccel
	}

	traj := Trajectory{
		Position:     make([]float64, steps),
		Velocity:     make([]float64, steps),
		Acceleration: make([]float64, steps),
	}
	traj.Position[0] = x0
	traj.Velocity[0] = v0

	for t := 0; t < steps; t++ {
		a := accel(t)
		traj.Acceleration[t] = a
		if t+1 == steps {
			break
		}
		x, v := traj.Position[t], traj.Velocity[t]
		traj.Position[t+1] = x + v*dt + 0.5*a*dt*dt
		traj.Velocity[t+1] = v + a*dt
	}
	return traj
}

// StoppingDistance returns the distance needed to stop from speed v with a
// constant deceleration decel (positive, m/s²). A non-positive decel can
// never stop the vehicle and yields +Inf.
func StoppingDistance(v, decel float64) float64 {
	if decel <= 0 {
		return math.Inf(1)
	}
	if v <= 0 {
		return 0
	}
	return (v * v) / (2 * decel)
}
