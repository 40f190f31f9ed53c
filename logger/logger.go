// Package logger provides the logging abstraction used by the go-xystage packages,
// allowing applications to plug in their preferred logging implementation.
//
// The Logger interface supports structured logging with key-value pairs. Every
// package in this module logs through a Logger obtained from its configuration
// (see stage.WithLogger, scan.WithLogger), falling back to the package default
// returned by GetLogger.
//
// Log Levels:
//
//   - DebugLevel: per-command traffic, status polls and waiting progress.
//   - InfoLevel:  connection, scan and recovery milestones.
//   - WarnLevel:  retries, error frames and off-target positions.
//   - ErrorLevel: failed commands, moves and scan points.
//   - FatalLevel: unrecoverable errors in example programs.
package logger

import "strings"

// LogLevel indicates the logging severity level.
type LogLevel = int8

// Level is an alias of LogLevel.
type Level = LogLevel

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel LogLevel = iota - 1
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual
	// human review.
	WarnLevel
	// ErrorLevel logs are high-priority. If the stage is running smoothly,
	// it shouldn't generate any error-level logs.
	ErrorLevel
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel
)

// ParseLevel converts a level name ("debug", "info", "warn", "error", "fatal")
// to a LogLevel. Unknown names map to InfoLevel.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// Logger defines a common interface for logging.
type Logger interface {
	// Debug logs a message at DebugLevel.
	Debug(msg string, keysAndValues ...any)
	// Info logs a message at InfoLevel.
	Info(msg string, keysAndValues ...any)
	// Warn logs a message at WarnLevel.
	Warn(msg string, keysAndValues ...any)
	// Error logs a message at ErrorLevel.
	Error(msg string, keysAndValues ...any)
	// Fatal logs a message at FatalLevel, then calls os.Exit(1).
	Fatal(msg string, keysAndValues ...any)
	// With creates a child logger and adds structured context to it.
	// Key-values added to the child don't affect the parent, and vice versa.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level for this logger.
	Level() LogLevel
	// SetLevel sets the minimum enabled level for this logger.
	SetLevel(level LogLevel)
}
