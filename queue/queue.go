// Package queue implements the per-socket read, write, and accept queues
// that extend the OS socket buffers with user-space buffering under
// configurable watermarks (§4.D), plus optional rate limiting.
package queue

import (
	"sync"
	"time"

	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/log"
)

var logger = log.Component("queue")

// RateLimiter decides whether a drain/deliver operation for category may
// proceed right now. The concrete implementation (ratelimiter.go) wraps
// catrate's multi-window sliding-log limiter.
type RateLimiter interface {
	// Allow reports whether an item in category may be processed now, and
	// if not, the time at which it next may be.
	Allow(category any) (time.Time, bool)
}

// base implements the watermark bookkeeping shared by ReadQueue, WriteQueue
// and AcceptQueue: size, low/high watermark, and the two latches plus
// shutdown flag from §3.
//
// Low-watermark events fire only after a prior high-watermark event;
// thereafter low and high strictly alternate (§3, §8 invariant 3).
type base struct {
	mu sync.Mutex

	size int
	wm   netcore.Watermarks

	// highInclusive selects the high-watermark comparison: ReadQueue and
	// AcceptQueue fire as soon as size reaches High (§4.D, "the Driver stops
	// when the queue reaches its high watermark"; neither can refuse what
	// the Driver pushes), while WriteQueue keeps the strict "size exceeds
	// High" comparison that its reject-before-enqueue check also uses.
	highInclusive bool

	lowArmed       bool // true once a high event has fired and no low event has answered it yet
	highBreached   bool // true while the high watermark is breached and no low event has fired since
	shutdownSend   bool
	shutdownRecv   bool

	onHigh func()
	onLow  func()
}

func newBase(wm netcore.Watermarks, highInclusive bool) base {
	return base{wm: wm, highInclusive: highInclusive}
}

// breachesHigh reports whether size has reached the high watermark, using
// the queue-kind-specific threshold comparison.
func (b *base) breachesHigh(size int) bool {
	if b.highInclusive {
		return size >= b.wm.High
	}
	return size > b.wm.High
}

// noteSizeLocked updates size and returns which watermark callbacks (if any)
// must be invoked, enforcing the alternation invariant. Caller holds mu.
func (b *base) noteSizeLocked(newSize int) (fireHigh, fireLow bool) {
	b.size = newSize
	if b.breachesHigh(b.size) && !b.highBreached {
		b.highBreached = true
		b.lowArmed = true
		fireHigh = true
	} else if b.size <= b.wm.Low && b.lowArmed {
		b.lowArmed = false
		b.highBreached = false
		fireLow = true
	}
	return
}

func (b *base) fire(fireHigh, fireLow bool) {
	if fireHigh && b.onHigh != nil {
		b.onHigh()
	}
	if fireLow && b.onLow != nil {
		b.onLow()
	}
}

// TotalSize returns the current queue size (bytes for Read/Write queues,
// item count for AcceptQueue).
func (b *base) TotalSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// LowWatermark returns the configured low watermark.
func (b *base) LowWatermark() int { return b.wm.Low }

// HighWatermark returns the configured high watermark.
func (b *base) HighWatermark() int { return b.wm.High }

// Direction identifies which half of a full-duplex socket a Shutdown call
// affects.
type Direction int

const (
	DirectionSend Direction = 1 << iota
	DirectionReceive
	DirectionBoth = DirectionSend | DirectionReceive
)

// Shutdown latches the queue against new enqueues in the given direction(s).
// Idempotent.
func (b *base) Shutdown(dir Direction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if dir&DirectionSend != 0 {
		b.shutdownSend = true
	}
	if dir&DirectionReceive != 0 {
		b.shutdownRecv = true
	}
}

func (b *base) isShutdownSend() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shutdownSend
}

func (b *base) isShutdownRecv() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shutdownRecv
}
