// Command brakesim runs the braking experiment once per configured
// measurement-noise level and logs how filtering changes the braking
// decision.
package main

import (
	"flag"
	"log"

	"github.com/banshee-data/brakesim/internal/config"
	"github.com/banshee-data/brakesim/internal/experiment"
	"github.com/banshee-data/brakesim/internal/monitoring"
	"github.com/banshee-data/brakesim/internal/units"
	"github.com/banshee-data/brakesim/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to experiment config JSON (defaults built in)")
	verbose := flag.Bool("verbose", false, "Log every simulation step")
	flag.Parse()

	monitoring.SetVerbose(*verbose)
	log.Printf("brakesim %s", version.String())

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	results, err := runAll(cfg)
	if err != nil {
		log.Fatalf("Experiment failed: %v", err)
	}
	for _, line := range summaryLines(cfg, results) {
		log.Print(line)
	}
}

func loadConfig(path string) (*config.ExperimentConfig, error) {
	if path == "" {
		return config.DefaultExperimentConfig(), nil
	}
	return config.LoadExperimentConfig(path)
}

// runAll executes one run per configured noise level, in order.
func runAll(cfg *config.ExperimentConfig) ([]*experiment.Result, error) {
	stds := cfg.GetMeasurementStds()
	results := make([]*experiment.Result, 0, len(stds))
	for _, std := range stds {
		res, err := experiment.Run(experiment.FromConfig(cfg, std))
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func summaryLines(cfg *config.ExperimentConfig, results []*experiment.Result) []string {
	unit := cfg.GetReportUnits()
	lines := make([]string, 0, len(results)+1)
	lines = append(lines, "meas_std  obs_rmse  est_rmse  reduction  final_v  brake(oracle/raw/filtered)  stops(raw/filtered)  spurious(raw/filtered)  late(raw/filtered)")
	for _, r := range results {
		finalV := units.ConvertSpeed(r.Velocities[len(r.Velocities)-1], unit)
		lines = append(lines, formatRow(r, finalV, units.Label(unit)))
	}
	return lines
}
