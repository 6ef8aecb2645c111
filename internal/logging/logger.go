package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger for local binaries: console output on
// stderr at the level named by MOCKUP_LOG_LEVEL (debug, info, warn, error;
// default info).
func Init() {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv("MOCKUP_LOG_LEVEL")))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// InitJSON configures the global logger with structured JSON on w. Lambda
// uses this so CloudWatch Logs Insights can query the fields.
func InitJSON(w io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv("MOCKUP_LOG_LEVEL")))
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
