package config

import (
	"io"
	"log/slog"
)

// Verbosity levels selected by repeating -v.
const (
	VerbosityNone  = 0
	VerbosityInfo  = 1
	VerbosityDebug = 2
)

// LogLevel maps a -v count to a slog level. Warnings and errors are always
// shown; the count is clamped to 0..2.
func LogLevel(verbosity int) slog.Level {
	switch {
	case verbosity >= VerbosityDebug:
		return slog.LevelDebug
	case verbosity == VerbosityInfo:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// NewLogger returns a text logger writing to w at the level for verbosity.
func NewLogger(w io.Writer, verbosity int) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: LogLevel(verbosity)}))
}
