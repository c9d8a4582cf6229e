// Package log holds the process-wide zerolog logger and correlation helpers.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the level, sink and service name of the process logger.
type Config struct {
	Level   string
	Output  io.Writer
	Service string
}

var (
	mu   sync.RWMutex
	base = newLogger(Config{})
)

// Reset rebuilds the process logger. Commands call it once their
// configuration is loaded; loggers derived earlier keep the old sink.
func Reset(cfg Config) {
	l := newLogger(cfg)
	mu.Lock()
	base = l
	mu.Unlock()
}

func newLogger(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Service == "" {
		cfg.Service = "qrpay"
	}
	return zerolog.New(out).With().Timestamp().Str("service", cfg.Service).Logger()
}

// Base returns the process logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent tags the process logger with a component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}
