// Package logger defines the structured logging interface used across the
// engine and CLI, with console, rotating-file, multi and no-op
// implementations.
package logger

// Logger is the logging interface every package takes. Fields are
// alternating key/value pairs.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	Debug(msg string, fields ...interface{})

	// Info logs an info-level message with optional structured fields.
	Info(msg string, fields ...interface{})

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...interface{})

	// Error logs an error-level message with the error and optional structured fields.
	Error(msg string, err error, fields ...interface{})
}

// Closeable is an optional interface for loggers that need cleanup.
type Closeable interface {
	// Close gracefully closes the logger, flushing any pending messages.
	Close() error
}

// NoOpLogger discards all messages. The engine default.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...interface{}) {}

func (NoOpLogger) Info(string, ...interface{}) {}

func (NoOpLogger) Warn(string, ...interface{}) {}

func (NoOpLogger) Error(string, error, ...interface{}) {}

var _ Logger = NoOpLogger{}
