package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger provides structured logging for the validation pipeline.
type Logger struct {
	*slog.Logger
	level slog.Level
}

// LogLevel represents different logging levels.
type LogLevel int

const (
	// LevelDebug provides detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo provides general informational messages.
	LevelInfo
	// LevelWarn provides warning messages for potentially problematic situations.
	LevelWarn
	// LevelError provides error messages for serious problems.
	LevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ToSlogLevel converts LogLevel to slog.Level.
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoggerConfig holds configuration for logger creation.
type LoggerConfig struct {
	// Level sets the minimum log level.
	Level LogLevel
	// Format specifies the output format ("json" or "text").
	Format string
	// Output specifies the output destination.
	Output io.Writer
	// IncludeSource adds source code information to log entries.
	IncludeSource bool
	// Component identifies the logging component.
	Component string
}

// New creates a new structured logger with the specified configuration.
func New(config LoggerConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Format == "" {
		config.Format = "text"
	}
	if config.Component == "" {
		config.Component = "xsd-pipeline"
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.ToSlogLevel(),
		AddSource: config.IncludeSource,
	}

	var handler slog.Handler
	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	logger := slog.New(handler).With("component", config.Component)

	return &Logger{
		Logger: logger,
		level:  config.Level.ToSlogLevel(),
	}
}

// NewDefault creates a logger with sensible defaults.
func NewDefault() *Logger {
	return New(LoggerConfig{
		Level:     LevelInfo,
		Format:    "text",
		Output:    os.Stdout,
		Component: "xsd-pipeline",
	})
}

// WithRun returns a logger tagged with a run correlation ID.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{l.With("run_id", runID), l.level}
}

// WithFile returns a logger with file context.
func (l *Logger) WithFile(path string) *Logger {
	return &Logger{l.With("file", path), l.level}
}

// WithSchema returns a logger with schema URI context.
func (l *Logger) WithSchema(uri string) *Logger {
	return &Logger{l.With("schema_uri", uri), l.level}
}

// WithError returns a logger with error context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{l.With("error", err.Error()), l.level}
}

// WithDuration returns a logger with duration context.
func (l *Logger) WithDuration(operation string, duration time.Duration) *Logger {
	return &Logger{l.With("operation", operation, "duration_ms", duration.Milliseconds()), l.level}
}

// IsLevelEnabled checks if a log level is enabled.
func (l *Logger) IsLevelEnabled(level LogLevel) bool {
	return l.level <= level.ToSlogLevel()
}

// Global logger instance for convenience.
var defaultLogger = NewDefault()

// SetDefault sets the global default logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the global default logger.
func Default() *Logger {
	return defaultLogger
}

// Debug logs a debug message using the default logger.
func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }

// Info logs an info message using the default logger.
func Info(msg string, args ...any) { defaultLogger.Info(msg, args...) }

// Warn logs a warning message using the default logger.
func Warn(msg string, args ...any) { defaultLogger.Warn(msg, args...) }

// Error logs an error message using the default logger.
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }
