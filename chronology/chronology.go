// Package chronology implements the monotonic timer wheel and
// deferred-function queue that feeds a Driver between poll iterations (§4.A).
package chronology

import (
	"container/heap"
	"sync"
	"time"

	"github.com/kayalabs/netcore/log"
)

var logger = log.Component("chronology")

// Handle identifies a Timer for cancellation or rescheduling.
type Handle uint64

// Timer is (deadline, periodOption, callback, cancellationToken,
// oneShotFlag) per §3. Rescheduling a periodic timer happens internally:
// when its callback returns, a one-shot-false Timer is re-pushed with
// deadline = fire time + Period.
type Timer struct {
	handle   Handle
	deadline time.Time
	period   time.Duration // zero means one-shot
	callback func()
	cancelled bool
	seq      uint64 // insertion sequence, for FIFO tie-breaking at equal deadlines
	index    int    // heap index, maintained by container/heap
}

// Handle returns the Timer's stable identifier.
func (t *Timer) Handle() Handle { return t.handle }

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Chronology owns a min-heap of Timers keyed by absolute deadline (ties
// broken by insertion order) and a FIFO of deferred functions injected by
// socket callbacks that must not run reentrantly.
//
// A Chronology may delegate to a Parent, letting an Interface-wide
// Chronology fan a single wakeup out to several per-Driver Chronologies
// without every Driver needing its own OS timer.
type Chronology struct {
	mu       sync.Mutex
	heap     timerHeap
	nextSeq  uint64
	byHandle map[Handle]*Timer
	nextID   Handle

	deferred []func()
	staging  []func() // functions enqueued during a non-reentrant drain
	draining bool      // true while drainDeferred is invoking a non-reentrant batch

	Parent *Chronology
}

// New creates an empty Chronology.
func New() *Chronology {
	return &Chronology{byHandle: make(map[Handle]*Timer)}
}

// CreateTimer adds a Timer firing at deadline (or, if period > 0,
// repeating every period starting at deadline) and returns a handle usable
// for cancellation.
func (c *Chronology) CreateTimer(deadline time.Time, period time.Duration, callback func()) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	t := &Timer{
		handle:   c.nextID,
		deadline: deadline,
		period:   period,
		callback: callback,
		seq:      c.nextSeq,
	}
	c.nextSeq++
	heap.Push(&c.heap, t)
	c.byHandle[t.handle] = t
	return t.handle
}

// Cancel marks the timer as cancelled; it will not fire even if already
// due. Idempotent: cancelling twice, or an unknown handle, is a no-op.
func (c *Chronology) Cancel(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.byHandle[h]; ok {
		t.cancelled = true
		delete(c.byHandle, h)
	}
}

// Earliest peeks the head of the heap, returning the nearest deadline and
// true, or the zero time and false if empty. If Parent is set, the earlier
// of the two chronologies' Earliest is returned.
func (c *Chronology) Earliest() (time.Time, bool) {
	c.mu.Lock()
	var d time.Time
	var ok bool
	if len(c.heap) > 0 {
		d, ok = c.heap[0].deadline, true
	}
	c.mu.Unlock()

	if c.Parent != nil {
		if pd, pok := c.Parent.Earliest(); pok {
			if !ok || pd.Before(d) {
				return pd, true
			}
		}
	}
	return d, ok
}

// Announce pops every expired timer whose deadline is <= now, invoking each
// callback in turn, then drains the deferred-function FIFO. When
// permitReentrant is false, work enqueued by a callback (timer or deferred)
// during this call is staged for the next Announce instead of running
// immediately, bounding call-stack depth in single-threaded mode.
func (c *Chronology) Announce(permitReentrant bool) {
	now := time.Now()

	var due []*Timer
	c.mu.Lock()
	for len(c.heap) > 0 && !now.Before(c.heap[0].deadline) {
		t := heap.Pop(&c.heap).(*Timer)
		delete(c.byHandle, t.handle)
		if !t.cancelled {
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	// carried holds work deferred by timer callbacks in non-reentrant mode;
	// it joins the FIFO only after this call's deferred drain has run.
	var carried []func()
	run := func(fn func()) {
		if permitReentrant {
			fn()
			return
		}
		c.mu.Lock()
		c.draining = true
		c.mu.Unlock()
		fn()
		c.mu.Lock()
		c.draining = false
		carried = append(carried, c.staging...)
		c.staging = nil
		c.mu.Unlock()
	}

	for _, t := range due {
		logger.Trace().Uint64("timer", uint64(t.handle)).Msg("timer fired")
		run(t.callback)
		if t.period > 0 && !t.cancelled {
			c.mu.Lock()
			t.deadline = t.deadline.Add(t.period)
			if t.deadline.Before(now) {
				t.deadline = now.Add(t.period)
			}
			t.seq = c.nextSeq
			c.nextSeq++
			heap.Push(&c.heap, t)
			c.byHandle[t.handle] = t
			c.mu.Unlock()
		}
	}

	c.drainDeferred(permitReentrant)
	if len(carried) > 0 {
		c.mu.Lock()
		c.deferred = append(carried, c.deferred...)
		c.mu.Unlock()
	}

	if c.Parent != nil {
		c.Parent.Announce(permitReentrant)
	}
}

func (c *Chronology) drainDeferred(permitReentrant bool) {
	for {
		c.mu.Lock()
		if len(c.deferred) == 0 {
			c.mu.Unlock()
			return
		}
		batch := c.deferred
		c.deferred = nil
		if !permitReentrant {
			c.draining = true
		}
		c.mu.Unlock()

		for _, fn := range batch {
			fn()
		}

		if !permitReentrant {
			// Anything enqueued while running batch went to staging; promote
			// it to the FIFO and return, matching "this ensures bounded
			// call-stack depth in single-threaded mode" — we do not loop
			// back around to drain what was just promoted.
			c.mu.Lock()
			c.draining = false
			c.deferred = append(c.deferred, c.staging...)
			c.staging = nil
			c.mu.Unlock()
			return
		}
	}
}

// Defer enqueues fn to run on the Chronology's strand during the next
// Announce call. If called from within a callback that Announce is
// currently invoking in non-reentrant mode, fn is staged for the pass
// after that instead of running within the same Announce call.
func (c *Chronology) Defer(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draining {
		c.staging = append(c.staging, fn)
		return
	}
	c.deferred = append(c.deferred, fn)
}

// ClearTimers removes all pending timers. Idempotent.
func (c *Chronology) ClearTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heap = nil
	c.byHandle = make(map[Handle]*Timer)
}

// ClearDeferred discards any pending deferred functions without running
// them. Idempotent.
func (c *Chronology) ClearDeferred() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deferred = nil
	c.staging = nil
}

// ClearAll clears timers and deferred work.
func (c *Chronology) ClearAll() {
	c.ClearTimers()
	c.ClearDeferred()
}

// Len reports the number of live (non-cancelled, not-yet-fired) timers.
func (c *Chronology) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byHandle)
}
