package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"

	"github.com/banshee-data/brakesim/internal/fsutil"
	"github.com/banshee-data/brakesim/internal/units"
)

// DefaultConfigPath is the path to the canonical experiment defaults file.
const DefaultConfigPath = "config/experiment.defaults.json"

// maxConfigSize caps config files at 1MB.
const maxConfigSize = 1 * 1024 * 1024

// MinSteps is the shortest run the experiment accepts.
const MinSteps = 2

// ExperimentConfig is the root configuration for a braking experiment.
// Every field is optional; the Get* methods supply defaults for fields the
// JSON omits, so partial configs are safe.
type ExperimentConfig struct {
	// Simulation
	Dt              *float64 `json:"dt,omitempty"`               // seconds
	Steps           *int     `json:"steps,omitempty"`            // samples per run
	InitialPosition *float64 `json:"initial_position,omitempty"` // metres
	InitialSpeed    *float64 `json:"initial_speed,omitempty"`    // m/s
	Acceleration    *float64 `json:"acceleration,omitempty"`     // m/s², constant
	BrakeDecel      *float64 `json:"brake_decel,omitempty"`      // m/s², positive

	// Sensor
	MeasurementStds []float64 `json:"measurement_stds,omitempty"` // metres, one run each
	Seed            *uint64   `json:"seed,omitempty"`

	// Filter
	ProcessVar         *float64 `json:"process_var,omitempty"`
	InitialPosVar      *float64 `json:"initial_pos_var,omitempty"`
	InitialVelVar      *float64 `json:"initial_vel_var,omitempty"`
	InitialVelocityEst *float64 `json:"initial_velocity_estimate,omitempty"` // defaults to initial_speed

	// Policy
	StopPosition   *float64 `json:"stop_position,omitempty"`
	BrakeMargin    *float64 `json:"brake_margin,omitempty"`
	UseUncertainty *bool    `json:"use_uncertainty,omitempty"`
	KSigma         *float64 `json:"k_sigma,omitempty"`

	// RawUseUncertainty applies the k-sigma buffer to raw readings too.
	// Off by default: raw readings get the fixed margin only.
	RawUseUncertainty *bool `json:"raw_use_uncertainty,omitempty"`

	// Reporting
	TooLateThreshold *float64 `json:"too_late_threshold,omitempty"` // metres to the stop line
	ReportUnits      *string  `json:"report_units,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// DefaultExperimentConfig returns a config with every field populated from
// the built-in defaults. It matches config/experiment.defaults.json.
func DefaultExperimentConfig() *ExperimentConfig {
	empty := &ExperimentConfig{}
	return &ExperimentConfig{
		Dt:                 ptrFloat64(empty.GetDt()),
		Steps:              ptrInt(empty.GetSteps()),
		InitialPosition:    ptrFloat64(empty.GetInitialPosition()),
		InitialSpeed:       ptrFloat64(empty.GetInitialSpeed()),
		Acceleration:       ptrFloat64(empty.GetAcceleration()),
		BrakeDecel:         ptrFloat64(empty.GetBrakeDecel()),
		MeasurementStds:    empty.GetMeasurementStds(),
		Seed:               ptrUint64(empty.GetSeed()),
		ProcessVar:         ptrFloat64(empty.GetProcessVar()),
		InitialPosVar:      ptrFloat64(empty.GetInitialPosVar()),
		InitialVelVar:      ptrFloat64(empty.GetInitialVelVar()),
		InitialVelocityEst: ptrFloat64(empty.GetInitialVelocityEst()),
		StopPosition:       ptrFloat64(empty.GetStopPosition()),
		BrakeMargin:        ptrFloat64(empty.GetBrakeMargin()),
		UseUncertainty:     ptrBool(empty.GetUseUncertainty()),
		KSigma:             ptrFloat64(empty.GetKSigma()),
		RawUseUncertainty:  ptrBool(empty.GetRawUseUncertainty()),
		TooLateThreshold:   ptrFloat64(empty.GetTooLateThreshold()),
		ReportUnits:        ptrString(empty.GetReportUnits()),
	}
}

// LoadExperimentConfig loads an ExperimentConfig from a JSON file on disk.
func LoadExperimentConfig(path string) (*ExperimentConfig, error) {
	return LoadExperimentConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadExperimentConfigFS loads an ExperimentConfig through fsys. The file
// must have a .json extension and be under 1MB. The parsed config is
// validated before it is returned.
func LoadExperimentConfigFS(fsys fsutil.FileReader, path string) (*ExperimentConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ExperimentConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *ExperimentConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadExperimentConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values describe a runnable
// experiment. Unset fields are not checked; their defaults are valid.
func (c *ExperimentConfig) Validate() error {
	if c.Dt != nil && !(*c.Dt > 0 && !math.IsInf(*c.Dt, 0)) {
		return fmt.Errorf("dt must be positive and finite, got %v", *c.Dt)
	}
	if c.Steps != nil && *c.Steps < MinSteps {
		return fmt.Errorf("steps must be at least %d, got %d", MinSteps, *c.Steps)
	}
	if c.BrakeDecel != nil && *c.BrakeDecel <= 0 {
		return fmt.Errorf("brake_decel must be positive, got %v", *c.BrakeDecel)
	}
	for i, s := range c.MeasurementStds {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return fmt.Errorf("measurement_stds[%d] must be non-negative and finite, got %v", i, s)
		}
	}
	if c.ProcessVar != nil && *c.ProcessVar < 0 {
		return fmt.Errorf("process_var must be non-negative, got %v", *c.ProcessVar)
	}
	if c.InitialPosVar != nil && *c.InitialPosVar < 0 {
		return fmt.Errorf("initial_pos_var must be non-negative, got %v", *c.InitialPosVar)
	}
	if c.InitialVelVar != nil && *c.InitialVelVar < 0 {
		return fmt.Errorf("initial_vel_var must be non-negative, got %v", *c.InitialVelVar)
	}
	if c.BrakeMargin != nil && *c.BrakeMargin < 0 {
		return fmt.Errorf("brake_margin must be non-negative, got %v", *c.BrakeMargin)
	}
	if c.KSigma != nil && *c.KSigma < 0 {
		return fmt.Errorf("k_sigma must be non-negative, got %v", *c.KSigma)
	}
	if c.TooLateThreshold != nil && !(*c.TooLateThreshold >= 0) {
		return fmt.Errorf("too_late_threshold must be non-negative, got %v", *c.TooLateThreshold)
	}
	if c.ReportUnits != nil && !units.IsValid(*c.ReportUnits) {
		return fmt.Errorf("report_units must be one of %s, got %q", units.GetValidUnitsString(), *c.ReportUnits)
	}
	return nil
}

// GetDt returns the dt value or the default.
func (c *ExperimentConfig) GetDt() float64 {
	if c.Dt == nil {
		return 0.1
	}
	return *c.Dt
}

// GetSteps returns the steps value or the default.
func (c *ExperimentConfig) GetSteps() int {
	if c.Steps == nil {
		return 200
	}
	return *c.Steps
}

// GetInitialPosition returns the initial_position value or the default.
func (c *ExperimentConfig) GetInitialPosition() float64 {
	if c.InitialPosition == nil {
		return 0
	}
	return *c.InitialPosition
}

// GetInitialSpeed returns the initial_speed value or the default.
func (c *ExperimentConfig) GetInitialSpeed() float64 {
	if c.InitialSpeed == nil {
		return 10
	}
	return *c.InitialSpeed
}

// GetAcceleration returns the acceleration value or the default.
func (c *ExperimentConfig) GetAcceleration() float64 {
	if c.Acceleration == nil {
		return 0
	}
	return *c.Acceleration
}

// GetBrakeDecel returns the brake_decel value or the default.
func (c *ExperimentConfig) GetBrakeDecel() float64 {
	if c.BrakeDecel == nil {
		return 6
	}
	return *c.BrakeDecel
}

// GetMeasurementStds returns a copy of measurement_stds or the default sweep.
func (c *ExperimentConfig) GetMeasurementStds() []float64 {
	if len(c.MeasurementStds) == 0 {
		return []float64{0.5, 2.0, 5.0}
	}
	out := make([]float64, len(c.MeasurementStds))
	copy(out, c.MeasurementStds)
	return out
}

// GetSeed returns the seed value or the default.
func (c *ExperimentConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetProcessVar returns the process_var value or the default.
func (c *ExperimentConfig) GetProcessVar() float64 {
	if c.ProcessVar == nil {
		return 1
	}
	return *c.ProcessVar
}

// GetInitialPosVar returns the initial_pos_var value or the default.
func (c *ExperimentConfig) GetInitialPosVar() float64 {
	if c.InitialPosVar == nil {
		return 25
	}
	return *c.InitialPosVar
}

// GetInitialVelVar returns the initial_vel_var value or the default.
func (c *ExperimentConfig) GetInitialVelVar() float64 {
	if c.InitialVelVar == nil {
		return 25
	}
	return *c.InitialVelVar
}

// GetInitialVelocityEst returns the initial_velocity_estimate value, or
// the configured initial speed when unset.
func (c *ExperimentConfig) GetInitialVelocityEst() float64 {
	if c.InitialVelocityEst == nil {
		return c.GetInitialSpeed()
	}
	return *c.InitialVelocityEst
}

// GetStopPosition returns the stop_position value or the default.
func (c *ExperimentConfig) GetStopPosition() float64 {
	if c.StopPosition == nil {
		return 120
	}
	return *c.StopPosition
}

// GetBrakeMargin returns the brake_margin value or the default.
func (c *ExperimentConfig) GetBrakeMargin() float64 {
	if c.BrakeMargin == nil {
		return 20
	}
	return *c.BrakeMargin
}

// GetUseUncertainty returns the use_uncertainty value or the default.
func (c *ExperimentConfig) GetUseUncertainty() bool {
	if c.UseUncertainty == nil {
		return true
	}
	return *c.UseUncertainty
}

// GetKSigma returns the k_sigma value or the default.
func (c *ExperimentConfig) GetKSigma() float64 {
	if c.KSigma == nil {
		return 2
	}
	return *c.KSigma
}

// GetRawUseUncertainty returns the raw_use_uncertainty value or the default.
func (c *ExperimentConfig) GetRawUseUncertainty() bool {
	if c.RawUseUncertainty == nil {
		return false
	}
	return *c.RawUseUncertainty
}

// GetTooLateThreshold returns the too_late_threshold value or the default.
func (c *ExperimentConfig) GetTooLateThreshold() float64 {
	if c.TooLateThreshold == nil {
		return 8
	}
	return *c.TooLateThreshold
}

// GetReportUnits returns the report_units value or the default.
func (c *ExperimentConfig) GetReportUnits() string {
	if c.ReportUnits == nil || *c.ReportUnits == "" {
		return units.MPS
	}
	return *c.ReportUnits
}
