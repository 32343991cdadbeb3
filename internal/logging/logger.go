package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a component logger. format "json" writes one JSON object per line;
// anything else writes human-readable console output to stderr.
func New(level, format, component string) zerolog.Logger {
	return NewWithWriter(os.Stderr, level, format, component)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(out io.Writer, level, format, component string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	if !strings.EqualFold(format, "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// ParseLevel maps a configured level name, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
