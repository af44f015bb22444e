// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger. Development gets a human readable
// console writer; every other environment logs JSON to stdout.
func Init(service, env string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if env == "dev" || env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().
			Str("service", service).
			Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Caller().
			Str("service", service).
			Logger()
	}

	// zerolog.Ctx falls back to this when a context carries no logger
	zerolog.DefaultContextLogger = &log.Logger
}
