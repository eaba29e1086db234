// Package logging provides structured logging for the AstraGuard client.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with output-format-specific behavior.
type Logger struct {
	zlog   zerolog.Logger
	format string // "console" or "json"
	output io.Writer
}

// NewLogger creates a new logger writing to w in the given format.
// Format "console" produces human-readable output for interactive use;
// anything else falls back to zerolog's native JSON for log collectors.
func NewLogger(format string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}

	var output io.Writer = w
	if format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
		}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Logger()

	return &Logger{
		zlog:   logger,
		format: format,
		output: output,
	}
}

// NewDefaultLogger creates a console logger on stderr.
func NewDefaultLogger() *Logger {
	return NewLogger("console", os.Stderr)
}

// Nop returns a logger that discards everything. Used as the fallback when
// a component is constructed without a logger.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop(), format: "nop", output: io.Discard}
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger context with additional fields.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// SetGlobalLevel sets the global zerolog level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	// Default to info; cmd flags can lower this to debug
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
