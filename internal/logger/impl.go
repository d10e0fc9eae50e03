package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/julianstephens/go-utils/helpers"
	goulog "github.com/julianstephens/go-utils/logger"
)

// levelRank orders the textual levels for threshold checks.
var levelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// ConsoleLogger writes human-readable lines to stdout/stderr.
type ConsoleLogger struct {
	minLevel string
	out      io.Writer
	err      io.Writer
}

// NewConsoleLogger creates a console logger filtering below level
// ("debug", "info", "warn" or "error"; empty means "info").
func NewConsoleLogger(level string) Logger {
	if _, ok := levelRank[level]; !ok {
		level = "info"
	}
	return &ConsoleLogger{
		minLevel: level,
		out:      os.Stdout,
		err:      os.Stderr,
	}
}

func (cl *ConsoleLogger) enabled(level string) bool {
	return levelRank[level] >= levelRank[cl.minLevel]
}

func (cl *ConsoleLogger) Debug(msg string, fields ...interface{}) {
	if cl.enabled("debug") {
		cl.log("DEBUG", msg, fields...)
	}
}

func (cl *ConsoleLogger) Info(msg string, fields ...interface{}) {
	if cl.enabled("info") {
		cl.log("INFO", msg, fields...)
	}
}

func (cl *ConsoleLogger) Warn(msg string, fields ...interface{}) {
	if cl.enabled("warn") {
		cl.log("WARN", msg, fields...)
	}
}

// Error logs regardless of the configured level.
func (cl *ConsoleLogger) Error(msg string, err error, fields ...interface{}) {
	allFields := append([]interface{}{"error", err}, fields...)
	cl.log("ERROR", msg, allFields...)
}

func (cl *ConsoleLogger) log(level string, msg string, fields ...interface{}) {
	timestamp := time.Now().Format("2006-01-02T15:04:05.000Z07:00")

	fieldStr := ""
	for i := 0; i+1 < len(fields); i += 2 {
		fieldStr += fmt.Sprintf(" %v=%v", fields[i], fields[i+1])
	}

	line := fmt.Sprintf("[%s] %s: %s%s\n", timestamp, level, msg, fieldStr)
	if level == "ERROR" {
		fmt.Fprint(cl.err, line) // nolint:errcheck
	} else {
		fmt.Fprint(cl.out, line) // nolint:errcheck
	}
}

// FileLogger writes JSON lines to a rotating file via go-utils/logger.
type FileLogger struct {
	underlying *goulog.Logger
	filePath   string
}

// NewFileLogger creates a rotating-file logger. The directory is created
// when missing. maxFileSizeMB bounds each file; maxBackups bounds how many
// rotated files are retained (compressed, 28-day retention).
func NewFileLogger(logDir string, logFileName string, maxFileSizeMB int, maxBackups int) (Logger, error) {
	if err := helpers.Ensure(logDir, true); err != nil {
		return nil, wrapLoggerErr("create file logger", ErrLogCreate, err, logDir)
	}

	logPath := filepath.Join(logDir, logFileName)
	maxAge := 28
	underlying := goulog.New()
	if err := underlying.SetFileOutputWithConfig(goulog.FileRotationConfig{
		Filename:   logPath,
		MaxSize:    maxFileSizeMB,
		MaxBackups: &maxBackups,
		MaxAge:     &maxAge,
		Compress:   true,
	}); err != nil {
		return nil, wrapLoggerErr("create file logger", ErrLogCreate, err, logDir)
	}

	return &FileLogger{
		underlying: underlying,
		filePath:   logPath,
	}, nil
}

func (fl *FileLogger) Debug(msg string, fields ...interface{}) {
	if len(fields) == 0 {
		fl.underlying.Debug(msg)
		return
	}
	fl.underlying.WithFields(fieldsToMap(fields)).Debug(msg)
}

func (fl *FileLogger) Info(msg string, fields ...interface{}) {
	if len(fields) == 0 {
		fl.underlying.Info(msg)
		return
	}
	fl.underlying.WithFields(fieldsToMap(fields)).Info(msg)
}

func (fl *FileLogger) Warn(msg string, fields ...interface{}) {
	if len(fields) == 0 {
		fl.underlying.Warn(msg)
		return
	}
	fl.underlying.WithFields(fieldsToMap(fields)).Warn(msg)
}

func (fl *FileLogger) Error(msg string, err error, fields ...interface{}) {
	allFields := append([]interface{}{"error", err}, fields...)
	fl.underlying.WithFields(fieldsToMap(allFields)).Error(msg)
}

// Close flushes pending entries. go-utils/logger writes synchronously, so
// there is nothing to wait for.
func (fl *FileLogger) Close() error {
	return nil
}

// fieldsToMap converts alternating key/value arguments to a map. A
// trailing key without a value is dropped.
func fieldsToMap(fields []interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		result[fmt.Sprintf("%v", fields[i])] = fields[i+1]
	}
	return result
}

// MultiLogger forwards every call to all underlying loggers.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines loggers into one.
func NewMultiLogger(loggers ...Logger) Logger {
	return &MultiLogger{loggers: loggers}
}

func (ml *MultiLogger) Debug(msg string, fields ...interface{}) {
	for _, lg := range ml.loggers {
		lg.Debug(msg, fields...)
	}
}

func (ml *MultiLogger) Info(msg string, fields ...interface{}) {
	for _, lg := range ml.loggers {
		lg.Info(msg, fields...)
	}
}

func (ml *MultiLogger) Warn(msg string, fields ...interface{}) {
	for _, lg := range ml.loggers {
		lg.Warn(msg, fields...)
	}
}

func (ml *MultiLogger) Error(msg string, err error, fields ...interface{}) {
	for _, lg := range ml.loggers {
		lg.Error(msg, err, fields...)
	}
}

// Close closes every underlying Closeable logger, returning the last
// failure if any.
func (ml *MultiLogger) Close() error {
	var lastErr error
	for _, lg := range ml.loggers {
		if c, ok := lg.(Closeable); ok {
			if err := c.Close(); err != nil {
				lastErr = err
			}
		}
	}
	if lastErr == nil {
		return nil
	}
	return wrapLoggerErr("close multi logger", ErrLogClose, lastErr, "")
}
