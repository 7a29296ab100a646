package queue

import (
	"container/list"
	"time"

	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
)

// SendOptions configures one WriteQueue.Send call: relative ordering among
// queued sends, an optional absolute deadline, and a token that Cancel can
// later match against.
type SendOptions struct {
	Priority int // higher values drain first; ties keep FIFO order
	Deadline time.Time
	Token    uuid.UUID
}

// SendCallback receives the outcome of one queued send: the number of bytes
// actually written to the kernel buffer and the completion error (nil on
// success, a *netcore.Error otherwise).
type SendCallback func(n int, err error)

type writeEntry struct {
	data     []byte
	offset   int // bytes already handed to the kernel
	opts     SendOptions
	callback SendCallback
	elem     *list.Element
}

// Writer is the non-blocking kernel write primitive a Driver supplies to
// Drain. It must behave like a single non-blocking write(2): return n>0 for
// partial progress, and an error satisfying errors.Is(err,
// netcore.ErrWouldBlock) when the kernel buffer is full.
type Writer func(p []byte) (n int, err error)

// WriteQueue is the ordered sequence of send-operation entries of §3: each
// carries payload, options, priority, an optional deadline, and an optional
// cancellation token.
type WriteQueue struct {
	base
	entries     list.List
	byToken     map[uuid.UUID]*writeEntry
	RateLimiter RateLimiter
	Category    any // passed to RateLimiter.Allow; nil selects one shared bucket
}

// NewWriteQueue creates an empty WriteQueue with the given watermarks.
func NewWriteQueue(wm netcore.Watermarks, onHigh, onLow func()) *WriteQueue {
	q := &WriteQueue{base: newBase(wm, false), byToken: make(map[uuid.UUID]*writeEntry)}
	q.onHigh, q.onLow = onHigh, onLow
	return q
}

// Send enqueues data for later draining. If the queue is shut down for send,
// it fails with CodeEOF. If post-enqueue size would strictly exceed the high
// watermark, it fails with CodeWouldBlock and does not enqueue (§4.D).
// callback, if non-nil, fires exactly once when the data is fully drained,
// cancelled, or the queue errors out.
func (q *WriteQueue) Send(data []byte, opts SendOptions, callback SendCallback) error {
	q.mu.Lock()
	if q.shutdownSend {
		q.mu.Unlock()
		return netcore.ErrEOF
	}
	newSize := q.size + len(data)
	if newSize > q.wm.High {
		q.mu.Unlock()
		return netcore.ErrWouldBlock
	}

	e := &writeEntry{data: data, opts: opts, callback: callback}
	e.elem = q.insertByPriorityLocked(e)
	if opts.Token != uuid.Nil {
		q.byToken[opts.Token] = e
	}
	fireHigh, fireLow := q.noteSizeLocked(newSize)
	q.mu.Unlock()

	q.fire(fireHigh, fireLow)
	return nil
}

// insertByPriorityLocked places e after the last entry with priority >= its
// own, preserving FIFO order among entries of equal priority. Caller holds
// mu.
func (q *WriteQueue) insertByPriorityLocked(e *writeEntry) *list.Element {
	for el := q.entries.Back(); el != nil; el = el.Prev() {
		if el.Value.(*writeEntry).opts.Priority >= e.opts.Priority {
			return q.entries.InsertAfter(e, el)
		}
	}
	return q.entries.PushFront(e)
}

// Drain is called by a Driver when the socket is writable. It copies queued
// payload to the kernel via write in priority/FIFO order, honoring
// per-entry deadlines, up to budget bytes total. It returns the number of
// bytes actually written.
//
// Once an entry has begun writing (offset > 0), its deadline is no longer
// consulted: a send that partially left user-space always eventually
// completes with CodeOK and a byte count rather than racing a timeout
// against an in-flight copy (§9 open question, resolved).
func (q *WriteQueue) Drain(write Writer, budget int) (int, error) {
	type completion struct {
		cb  SendCallback
		n   int
		err error
	}
	var completions []completion
	written := 0

	q.mu.Lock()
	now := time.Now()
	for budget > 0 {
		front := q.entries.Front()
		if front == nil {
			break
		}
		e := front.Value.(*writeEntry)

		if q.RateLimiter != nil {
			if _, ok := q.RateLimiter.Allow(q.Category); !ok {
				break
			}
		}

		if e.offset == 0 && !e.opts.Deadline.IsZero() && now.After(e.opts.Deadline) {
			q.removeLocked(e)
			completions = append(completions, completion{e.callback, 0, netcore.ErrTimeout})
			continue
		}

		chunk := e.data[e.offset:]
		if len(chunk) > budget {
			chunk = chunk[:budget]
		}
		n, werr := write(chunk)
		if n > 0 {
			e.offset += n
			written += n
			budget -= n
			q.size -= n
		}
		if werr != nil {
			if netcore.CodeOf(werr) == netcore.CodeWouldBlock {
				break
			}
			q.removeLocked(e)
			completions = append(completions, completion{e.callback, e.offset, werr})
			continue
		}
		if e.offset >= len(e.data) {
			q.removeLocked(e)
			completions = append(completions, completion{e.callback, e.offset, nil})
			continue
		}
		if budget == 0 {
			break
		}
	}
	fireHigh, fireLow := q.noteSizeLocked(q.size)
	q.mu.Unlock()

	q.fire(fireHigh, fireLow)
	for _, c := range completions {
		if c.cb != nil {
			c.cb(c.n, c.err)
		}
	}
	return written, nil
}

// removeLocked unlinks e from the list and token index and takes its
// not-yet-written bytes off the queue size. Caller holds mu.
func (q *WriteQueue) removeLocked(e *writeEntry) {
	q.entries.Remove(e.elem)
	q.size -= len(e.data) - e.offset
	if e.opts.Token != uuid.Nil {
		delete(q.byToken, e.opts.Token)
	}
}

// Cancel removes the entry matching token, if any, and invokes its callback
// with CodeCancelled. Returns netcore.ErrNotFound if no such entry is
// queued (it may have already completed or never existed) — per §8
// invariant 5, this is not an error condition callers need to guard
// against.
func (q *WriteQueue) Cancel(token uuid.UUID) error {
	q.mu.Lock()
	e, ok := q.byToken[token]
	if !ok {
		q.mu.Unlock()
		return netcore.ErrNotFound
	}
	q.removeLocked(e)
	fireHigh, fireLow := q.noteSizeLocked(q.size)
	q.mu.Unlock()

	q.fire(fireHigh, fireLow)
	if e.callback != nil {
		e.callback(e.offset, netcore.ErrCancelled)
	}
	return nil
}

// DrainAll fails every queued entry with err (used on socket close) in FIFO
// order, per §4.E step 3.
func (q *WriteQueue) DrainAll(err error) {
	q.mu.Lock()
	var completions []*writeEntry
	for el := q.entries.Front(); el != nil; el = el.Next() {
		completions = append(completions, el.Value.(*writeEntry))
	}
	q.entries.Init()
	q.byToken = make(map[uuid.UUID]*writeEntry)
	fireHigh, fireLow := q.noteSizeLocked(0)
	q.mu.Unlock()

	q.fire(fireHigh, fireLow)
	for _, e := range completions {
		if e.callback != nil {
			e.callback(e.offset, err)
		}
	}
}

// Len returns the number of queued (not yet fully drained) send entries.
func (q *WriteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}
