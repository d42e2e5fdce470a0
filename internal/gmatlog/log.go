// Package gmatlog initializes the process-wide zerolog logger:
// RFC3339 timestamps and a ConsoleWriter to stderr for human-readable
// local runs.
package gmatlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Init configures zerolog's global time format and returns a logger
// writing to stderr through a ConsoleWriter.
func Init(level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}
