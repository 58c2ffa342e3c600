// Package logger provides structured logging configuration using log/slog.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Config holds logger configuration.
type Config struct {
	Level  slog.Level
	Format string // "text", "json" or "auto"

	// Output defaults to os.Stderr
	Output io.Writer
}

// NewLogger creates a configured slog.Logger.
func NewLogger(cfg Config) *slog.Logger {
	var handler slog.Handler

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
		// Add a source location for debug level
		AddSource: cfg.Level <= slog.LevelDebug,
	}

	if resolveFormat(cfg.Format, out) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

// resolveFormat turns "auto" into "text" for terminals and "json" for everything else,
// so piped diagnostics stay machine-readable.
func resolveFormat(format string, out io.Writer) string {
	if format != "auto" {
		return format
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "text"
	}
	return "json"
}

// ParseLevel maps DEBUG, INFO, WARN, WARNING and ERROR (any case) to a slog.Level.
// Unknown values return fallback.
func ParseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return fallback
	}
}

// DefaultConfig returns the default logger configuration.
// Parses the BEATVIZ_LOG_LEVEL environment variable to set the log level
// and BEATVIZ_LOG_FORMAT (text, json, auto) to pick the handler.
// Default: INFO, auto
func DefaultConfig() Config {
	format := strings.ToLower(os.Getenv("BEATVIZ_LOG_FORMAT"))
	if format != "text" && format != "json" {
		format = "auto"
	}

	return Config{
		Level:  ParseLevel(os.Getenv("BEATVIZ_LOG_LEVEL"), slog.LevelInfo),
		Format: format,
	}
}
