package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New constructs a zerolog.Logger with defaults for the service.
func New(appEnv string) zerolog.Logger {
	return NewWithWriter(appEnv, os.Stdout)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(appEnv string, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", "celebsnap").
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}

	return logger
}

// Nop returns a logger that discards everything. Used as the zero value for optional loggers.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
