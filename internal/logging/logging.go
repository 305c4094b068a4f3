// Package logging builds the process-wide zerolog.Logger, the structured
// logger the ambient stack uses in place of DayQuest-CDN's standard-library
// log.Printf calls, following the console-writer setup helixml-helix wires
// into its own server components.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a console-writer logger at the given level name ("debug",
// "info", "warn", "error"), defaulting to info on an unrecognized level.
func New(levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
