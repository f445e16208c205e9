// Package observability provides the logging, metrics, and tracing
// facilities shared by the hotline service.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig configures logger construction.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format specifies output format: "json" or "text".
	// JSON is the default and is what production deployments scrape.
	Format string

	// Output is the writer for log output (defaults to os.Stdout).
	Output io.Writer

	// AddSource includes file and line number in log records.
	AddSource bool
}

// NewLogger creates a structured logger with the given configuration.
//
// If config.Output is nil, logs are written to os.Stdout. An empty or
// unrecognized level defaults to "info"; an empty format defaults to "json".
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Format == "" {
		config.Format = "json"
	}

	opts := &slog.HandlerOptions{
		Level:     LogLevelFromString(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return slog.New(handler)
}

// LogLevelFromString converts a string to a slog.Level.
// Returns LevelInfo if the string is not recognized.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
