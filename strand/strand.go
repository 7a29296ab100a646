// Package strand provides the serial execution context (§5) that orders
// callbacks for a single socket: the socket package runs a socket's
// user-visible completion callbacks (including connect and close
// completions) through its Strand, so user code never has to synchronize
// across them. Driver dispatch and Chronology timers themselves do not run
// through it.
package strand

import "sync"

// Strand serializes function execution: Run blocks the caller until fn (and
// every fn queued ahead of it) has executed, while concurrent callers are
// queued rather than interleaved. It is deliberately simpler than a full
// executor — one mutex, no goroutine of its own — since the Driver's own
// dispatch goroutine is what drives execution; Strand only needs to prevent
// two unrelated goroutines (e.g. a user call and a concurrent Driver
// dispatch) from running a socket's callbacks at once.
type Strand struct {
	mu sync.Mutex
}

// New creates an unlocked Strand.
func New() *Strand { return &Strand{} }

// Run executes fn with the strand held, blocking out any other Run call on
// the same Strand until fn returns.
func (s *Strand) Run(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// TryRun executes fn and returns true only if the strand was free; it never
// blocks. Useful for a Driver dispatch path that would rather skip a socket
// this cycle than stall the whole poll loop behind one busy connection.
func (s *Strand) TryRun(fn func()) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	fn()
	return true
}
