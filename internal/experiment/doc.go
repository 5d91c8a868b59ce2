// Package experiment runs one braking experiment end to end: simulate the
// true trajectory, generate noisy position readings, filter them, and
// evaluate the braking policy on the truth, the raw readings and the
// filtered estimate.
//
// Key types: RunConfig, Result, DecisionSummary.
//
// Each Run owns its filter and random source, so runs never share state
// and may execute in parallel.
package experiment
