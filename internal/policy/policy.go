// Package policy maps a position estimate to a braking decision.
package policy

// Action is the command issued by the decision policy.
type Action uint8

const (
	Maintain Action = iota // Keep current speed
	Brake                  // Apply brakes
)

// String returns the upper-case action name.
func (a Action) String() string {
	switch a {
	case Maintain:
		return "MAINTAIN"
	case Brake:
		return "BRAKE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	return a == Maintain || a == Brake
}

// Config holds the braking policy parameters.
type Config struct {
	StopPosition   float64 // Position of the stop line / obstacle (metres)
	BrakeMargin    float64 // Fixed safety distance (metres)
	UseUncertainty bool    // Inflate the margin by KSigma·σ when true
	KSigma         float64 // Multiplier on the position std
}

// Buffer returns the distance at or below which the policy brakes.
// posStd is ignored when UseUncertainty is false.
func (c Config) Buffer(posStd float64) float64 {
	if !c.UseUncertainty {
		return c.BrakeMargin
	}
	return c.BrakeMargin + c.KSigma*posStd
}

// Decide returns Brake when the remaining distance to the stop position is
// at or below the buffer, and Maintain otherwise. Vehicles already past
// the stop position have a negative distance and therefore brake.
func Decide(posEstimate, posStd float64, cfg Config) Action {
	distance := cfg.StopPosition - posEstimate
	if distance <= cfg.Buffer(posStd) {
		return Brake
	}
	return Maintain
}
