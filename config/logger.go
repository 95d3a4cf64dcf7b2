package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger writes JSON logs, or human readable ones in development.
func NewLogger(env string) zerolog.Logger {
	level := zerolog.InfoLevel
	if env == "development" || env == "dev" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Logger()

	if level == zerolog.DebugLevel {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger
}
