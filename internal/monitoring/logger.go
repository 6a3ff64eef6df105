// Package monitoring holds the process-wide logger used by the HTTP surface
// and the sweep store.
package monitoring

import (
	"io"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetOutput points Logf at w with the standard timestamp flags. A nil
// writer mutes logging.
func SetOutput(w io.Writer, flags int) {
	if w == nil {
		SetLogger(nil)
		return
	}
	SetLogger(log.New(w, "", flags).Printf)
}

// Prefixed returns a logger that tags every line with prefix and forwards
// to whatever Logf is current at call time.
func Prefixed(prefix string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
