// Package monitoring holds the swappable diagnostic logger used by the
// hot-path components (pose ingestion, frame runner, event publisher).
package monitoring

import (
	"log"
	"sync"
)

var (
	mu   sync.RWMutex
	logf = log.Printf
)

// Logf writes a diagnostic line through the current package logger.
func Logf(format string, v ...interface{}) {
	mu.RLock()
	f := logf
	mu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the package logger. Passing nil mutes all output.
// It returns the previous logger so tests can restore it.
func SetLogger(f func(format string, v ...interface{})) func(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	prev := logf
	if f == nil {
		logf = func(string, ...interface{}) {}
	} else {
		logf = f
	}
	return prev
}

// Component returns a logger that prefixes every line with "[name] ".
func Component(name string) func(format string, v ...interface{}) {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
