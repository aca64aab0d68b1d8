// Package monitoring carries the diagnostic logging used by the retrieval
// pipeline. Components receive a Logger through their options; a nil Logger
// resolves to the package-level Logf at call time.
package monitoring

import "log"

// Logger is a printf-style diagnostic sink.
type Logger func(format string, v ...interface{})

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf Logger = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f Logger) {
	if f == nil {
		Logf = Nop
		return
	}
	Logf = f
}

// Nop discards everything.
func Nop(string, ...interface{}) {}

// Or returns l, or a Logger that forwards to the package Logf when l is nil.
func Or(l Logger) Logger {
	if l != nil {
		return l
	}
	return func(format string, v ...interface{}) {
		Logf(format, v...)
	}
}

// Named prefixes every message with "[name] ". It replaces per-call named
// loggers: each component wraps the injected logger once at construction.
func Named(l Logger, name string) Logger {
	base := Or(l)
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		base(prefix+format, v...)
	}
}
