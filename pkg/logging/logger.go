package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// InitLogging (re)initializes the process-wide structured logger. Safe to
// call more than once; production entrypoints call it once at startup.
func InitLogging() {
	zerolog.TimeFieldFormat = time.RFC3339
	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Infof logs an info level message, printf-style.
func Infof(format string, v ...interface{}) {
	logger.Info().Msgf(format, v...)
}

// Warnf logs a warning level message.
func Warnf(format string, v ...interface{}) {
	logger.Warn().Msgf(format, v...)
}

// Errorf logs an error level message.
func Errorf(format string, v ...interface{}) {
	logger.Error().Msgf(format, v...)
}

// Logger returns the underlying zerolog logger for call sites that want
// structured fields instead of a printf string.
func Logger() *zerolog.Logger {
	return &logger
}
