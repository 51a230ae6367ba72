// Package telemetry is a thin wrapper over the standard log package
// with a level gate driven by the OPENXRD_LOG_LEVEL environment
// variable.
package telemetry

import (
	"log"
	"os"
	"sync"
)

// Level is a log verbosity level, ordered least to most verbose.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func parseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// EnvVar is the environment variable holding the server's log-level
// toggle.
const EnvVar = "OPENXRD_LOG_LEVEL"

var (
	mu      sync.Mutex
	current = parseLevel(os.Getenv(EnvVar))
	logger  = log.New(os.Stderr, "openxrd: ", log.LstdFlags)
)

// SetLevel overrides the level read from OPENXRD_LOG_LEVEL at package
// init, primarily for tests.
func SetLevel(l Level) {
	mu.Lock()
	current = l
	mu.Unlock()
}

func enabled(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return l <= current
}

// Debugf logs at LevelDebug.
func Debugf(format string, args ...any) {
	if enabled(LevelDebug) {
		logger.Printf("DEBUG "+format, args...)
	}
}

// Infof logs at LevelInfo.
func Infof(format string, args ...any) {
	if enabled(LevelInfo) {
		logger.Printf("INFO  "+format, args...)
	}
}

// Warnf logs at LevelWarn.
func Warnf(format string, args ...any) {
	if enabled(LevelWarn) {
		logger.Printf("WARN  "+format, args...)
	}
}

// Errorf logs at LevelError. Error-level logging is never gated off.
func Errorf(format string, args ...any) {
	logger.Printf("ERROR "+format, args...)
}
