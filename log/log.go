// Package log wires the engine's diagnostic logging to
// github.com/rs/zerolog, following the field-based, leveled style used
// throughout the example corpus's logiface/zerolog backend. netcore
// components never log at a level that fires on the hot path by default:
// poll, callback and watermark hooks do not log, a fired timer logs at
// Trace, and closes log at Debug.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	current = zerolog.New(io.Discard)
)

// Configure installs the process-wide logger used by netcore components
// that were not given an explicit logger. Passing zerolog.Nop() silences all
// output, as does the package default (a logger writing to io.Discard).
func Configure(logger zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = logger
}

// ConfigureDefault installs a human-readable console logger writing to
// os.Stderr at info level, useful for examples and local debugging.
func ConfigureDefault() {
	Configure(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel).With().Timestamp().Logger())
}

// Logger returns the currently configured logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Component returns a child logger tagged with a "component" field, the
// convention every netcore package uses to identify its log lines
// (chronology, registry, reactor, proactor, queue, socket, iface).
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}
