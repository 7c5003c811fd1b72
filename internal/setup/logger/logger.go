// Package logger builds the process-wide zerolog logger that the wiring
// hands down to every component by pointer.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a leveled stdout logger with timestamps and caller info. An
// unknown level string falls back to info instead of failing startup.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Caller().
		Logger()
}
