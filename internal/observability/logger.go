package observability

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var initLogger sync.Once

// InitLogger configures the process-wide zerolog logger. Unknown level
// strings fall back to info. Pretty switches to the human console writer
// for local runs; production stays on JSON lines.
func InitLogger(level string, pretty bool) {
	initLogger.Do(func() {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil || lvl == zerolog.NoLevel {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

		logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		if pretty {
			logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
		}
		log.Logger = logger
	})
}

// GetLogger returns the process-wide logger. Components derive their own
// sub-loggers from it; session handlers tag entries with the session id.
func GetLogger() zerolog.Logger {
	return log.Logger
}
