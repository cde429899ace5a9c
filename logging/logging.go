// Package logging provides the process-scoped default logger used by
// every package in this module when no per-component logger has been
// configured, mirroring the teacher's sip.DefaultLogger() fallback
// (sip/logger.go) but backed by zerolog rather than log/slog - per
// DESIGN.md, zerolog is this corpus's actual logging dependency.
package logging

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	current zerolog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
)

// SetDefault installs the process-wide default logger. Must be called
// before other packages start logging if the console default isn't
// wanted (e.g. JSON output in production).
func SetDefault(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

// Default returns the current process-wide logger.
func Default() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Shutdown flushes nothing today (zerolog writers are unbuffered here)
// but exists so callers have an explicit symmetric init/shutdown pair,
// per spec.md 9's "explicit init/shutdown" note.
func Shutdown() {}
