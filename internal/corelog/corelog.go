// Package corelog is the process-wide diagnostic logger for the fusion
// core. It exists so every component logs through one replaceable sink
// instead of calling the log package directly, which lets tests silence
// or capture output without touching call sites.
package corelog

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf
// but may be replaced by SetLogger. Tests or the coordinator can redirect
// or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
