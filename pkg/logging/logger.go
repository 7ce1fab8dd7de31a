package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates the service's base logger, stamped with its name and version.
// It defaults to JSON at info level; call Configure once configuration has
// been loaded to apply the operator's chosen level and format.
func New(serviceName, serviceVersion string) zerolog.Logger {
	return zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Str("version", serviceVersion).
		Logger().
		Level(zerolog.InfoLevel)
}

// Configure applies a level and output format to an existing logger,
// preserving its other context fields.
func Configure(logger zerolog.Logger, level, format string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if format == "console" || format == "pretty" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		return logger.Output(output).Level(logLevel)
	}
	return logger.Level(logLevel)
}

// WithComponent returns a logger with a component field.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
