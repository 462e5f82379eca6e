// Package monitoring holds the process-wide diagnostic logger used by the
// ingestion, aggregation, and persistence loops.
package monitoring

import "log"

// Logf emits one diagnostic line. It is log.Printf unless redirected with
// SetLogger; tests mute it by passing nil.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger redirects Logf. A nil f silences logging entirely.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}
