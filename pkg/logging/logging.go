// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs a console-writer zerolog logger at the given level as the
// global logger. An unrecognized level falls back to info and logs a
// warning rather than failing startup over a typo in configuration.
func Setup(level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	log.Logger = zerolog.New(writer).With().Timestamp().Logger().Level(parsed)

	if err != nil && level != "" {
		log.Warn().Str("level", level).Msg("logging: unrecognized log level, defaulting to info")
	}
}
