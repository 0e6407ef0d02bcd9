// Package logger builds the slog loggers used by the client, the CLI and the
// example server, and carries a request-scoped logger through context.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level is the minimum level written.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds the logger settings.
type Config struct {
	Level     Level     // minimum level, info when unknown
	Format    Format    // json (default) or text
	AddSource bool      // include file:line
	Writer    io.Writer // defaults to os.Stderr
}

// New creates a slog.Logger from cfg.
func New(cfg Config) *slog.Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
	}

	opts := slog.HandlerOptions{
		AddSource: cfg.AddSource,
		Level:     ParseLevel(string(cfg.Level)),
	}

	var handler slog.Handler
	switch Format(strings.ToLower(string(cfg.Format))) {
	case FormatText:
		handler = slog.NewTextHandler(writer, &opts)
	default:
		handler = slog.NewJSONHandler(writer, &opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
