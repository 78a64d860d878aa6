// Package logging provides the structured logger shared by all components
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger to provide a consistent interface
type Logger struct {
	zerolog.Logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger writing to stderr. Console output is used when
// stderr is a terminal, JSON lines otherwise.
func NewLogger(level string) *Logger {
	var out io.Writer = os.Stderr
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return NewLoggerWithOutput(level, out)
}

// NewLoggerWithOutput creates a logger writing to a specific output
func NewLoggerWithOutput(level string, w io.Writer) *Logger {
	logger := zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
	return &Logger{Logger: logger}
}

// NewSilentLogger creates a logger that discards all output
func NewSilentLogger() *Logger {
	return &Logger{Logger: zerolog.New(io.Discard)}
}

// Component returns a child logger tagged with the component name
func (l *Logger) Component(name string) *Logger {
	if l == nil {
		return NewSilentLogger()
	}
	return &Logger{Logger: l.With().Str("component", name).Logger()}
}
