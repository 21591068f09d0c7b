// Package log bootstraps the process-wide zerolog configuration.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so callers don't import zerolog for construction.
type Logger struct {
	zerolog.Logger
}

// New creates a root logger with the given level. When pretty is true, output is
// rendered with the console writer instead of raw JSON.
func New(level string, pretty bool) Logger {
	return NewWithOutput(level, pretty, os.Stderr)
}

// NewWithOutput creates a root logger writing to the given output.
func NewWithOutput(level string, pretty bool, out io.Writer) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	lvl := parseLevel(level)

	var w io.Writer = out
	if pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return Logger{logger}
}

// Module returns a child logger tagged with the module name.
func (l Logger) Module(name string) Logger {
	return Logger{l.With().Str("module", name).Logger()}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
