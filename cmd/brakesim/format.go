package main

import (
	"fmt"

	"github.com/banshee-data/brakesim/internal/experiment"
)

func formatRow(r *experiment.Result, finalV float64, unitLabel string) string {
	return fmt.Sprintf("%8.2f  %8.4f  %8.4f  %8.1f%%  %6.2f %s  %d/%d/%d  %v/%v  %d/%d  %d/%d",
		r.MeasStd, r.ObservationRMSE, r.EstimateRMSE, 100*r.NoiseReduction(),
		finalV, unitLabel,
		r.Truthful.FirstBrakeStep, r.Raw.FirstBrakeStep, r.Filtered.FirstBrakeStep,
		r.Raw.StopsInTime, r.Filtered.StopsInTime,
		r.Raw.SpuriousBrakes, r.Filtered.SpuriousBrakes,
		r.Raw.LateBrakes, r.Filtered.LateBrakes)
}
