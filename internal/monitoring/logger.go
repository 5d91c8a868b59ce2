// Package monitoring holds the diagnostic loggers shared by the simulation
// packages.
package monitoring

import "log"

// Logf is the package-level run logger. It defaults to log.Printf but may
// be replaced by SetLogger so tests and callers can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf receives per-step trace output. It is a no-op until SetVerbose
// enables it.
var Debugf func(format string, v ...interface{}) = noop

func noop(string, ...interface{}) {}

// SetLogger replaces the run logger. Passing nil installs a no-op logger.
// A verbose Debugf is redirected to the new logger as well.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = noop
	}
	Logf = f
	if verbose {
		Debugf = f
	}
}

var verbose bool

// SetVerbose toggles per-step trace output through Debugf.
func SetVerbose(on bool) {
	verbose = on
	if on {
		Debugf = Logf
		return
	}
	Debugf = noop
}
