package logger

import (
	"io"
	stdlog "log"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/galois26/transient-correlator/internal/config"
)

// Init configures the global zerolog logger from cfg and routes the
// standard library logger through it. Call once at start-up.
//
// Pretty mode writes colored console lines for local runs; otherwise every
// line is a JSON object carrying the service name.
func Init(cfg config.Log) {
	InitWriter(cfg, os.Stdout)
}

// InitWriter is Init with an explicit destination.
func InitWriter(cfg config.Log, out io.Writer) {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil && cfg.Level != "" {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	w := out
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zlog.Logger = zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Logger()

	// zerolog stamps its own time
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}
