package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	level := zerolog.InfoLevel
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}

	zerolog.SetGlobalLevel(level)
}

// NewLogger returns a console logger tagged with the given component name.
// Filtering happens through the zerolog global level: info by default,
// LOG_LEVEL at startup, SetGlobalLevel afterwards.
func NewLogger(component string) zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	return zerolog.New(writer).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// SetGlobalLevel adjusts the level of every logger. Used by the --log-level
// flag and the logLevel config key.
func SetGlobalLevel(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(parsed)
	return nil
}
