// Package logging builds the slog handlers used by the daemon.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// SetupHandlerText returns a human-readable handler writing to writer
// (stderr when nil). "trace" adds caller and timestamps to debug output.
func SetupHandlerText(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stderr
	}

	reportCaller := false
	reportTimestamp := true
	lvl := log.InfoLevel
	switch strings.ToLower(logLevel) {
	case "trace":
		reportCaller = true
		lvl = log.DebugLevel
	case "debug":
		lvl = log.DebugLevel
	case "warn", "warning":
		lvl = log.WarnLevel
	case "error":
		lvl = log.ErrorLevel
	}

	return log.NewWithOptions(writer, log.Options{
		ReportTimestamp: reportTimestamp,
		ReportCaller:    reportCaller,
		Level:           lvl,
		Prefix:          "cycle-switch",
	})
}

// SetupHandlerJSON returns a JSON handler writing to writer (stdout when nil).
func SetupHandlerJSON(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(logLevel)}
	if strings.ToLower(logLevel) == "trace" {
		opts.AddSource = true
	}
	return slog.NewJSONHandler(writer, opts)
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger for the given format ("text" or "json") and level.
func New(format, logLevel string, writer io.Writer) *slog.Logger {
	if strings.ToLower(format) == "json" {
		return slog.New(SetupHandlerJSON(logLevel, writer))
	}
	return slog.New(SetupHandlerText(logLevel, writer))
}

// SetupLogger installs a logger as the slog default and returns it.
func SetupLogger(format, logLevel string) *slog.Logger {
	logger := New(format, logLevel, nil)
	slog.SetDefault(logger)
	return logger
}
