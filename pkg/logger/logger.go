// Package logger builds the process-wide zerolog root logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls how the root logger is built.
type Config struct {
	Level  string    // zerolog level name: trace, debug, info, warn, error
	Pretty bool      // human-readable console output for development
	Out    io.Writer // destination, defaults to os.Stdout
}

// New builds the root logger. An unknown level name is an error, not a
// silent default.
func New(cfg Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("failed to parse log level %q: %w", cfg.Level, err)
	}

	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	// The level applies to this logger only, never the global one.
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// SetGlobalLogger routes zerolog's package-level logger through l, so
// stray log.Info() calls land in the same stream.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
