package queue

import (
	"container/list"

	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
)

// Mode selects how ReadQueue consumption behaves: Stream merges chunks into
// one contiguous byte sequence (TCP semantics); Datagram never merges two
// chunks into one Receive call (UDP semantics — one recvfrom, one message).
type Mode int

const (
	ModeStream Mode = iota
	ModeDatagram
)

// chunk is one buffer the Driver read off the socket's receive buffer, with
// its source endpoint for datagram sockets.
type chunk struct {
	data   []byte
	offset int // bytes already consumed, stream mode only
	source netcore.Endpoint
}

func (c *chunk) remaining() []byte { return c.data[c.offset:] }

// ReceiveCallback receives the outcome of one queued receive-intent: the
// bytes delivered (already copied into the caller's buffer), the sender
// endpoint (meaningful for datagram sockets), and the completion error.
type ReceiveCallback func(n int, source netcore.Endpoint, err error)

type readIntent struct {
	buf      []byte
	token    uuid.UUID
	callback ReceiveCallback
	elem     *list.Element
}

// ReadQueue is the ordered sequence of byte buffers dequeued from the
// socket receive buffer (§3); head = oldest.
type ReadQueue struct {
	base
	Mode    Mode
	chunks  list.List
	intents list.List
	byToken map[uuid.UUID]*readIntent
}

// NewReadQueue creates an empty ReadQueue with the given watermarks.
func NewReadQueue(mode Mode, wm netcore.Watermarks, onHigh, onLow func()) *ReadQueue {
	q := &ReadQueue{base: newBase(wm, true), Mode: mode, byToken: make(map[uuid.UUID]*readIntent)}
	q.onHigh, q.onLow = onHigh, onLow
	return q
}

// Push is called by a Driver with bytes freshly read from the socket. If a
// pending receive-intent exists, the data is delivered to it directly
// without ever entering the queue; otherwise it is appended as a new chunk.
//
// Push returns true if the queue is now at or above its high watermark,
// signaling the Driver to stop issuing further reads until it drains (§4.D:
// "the Driver stops when the queue reaches its high watermark").
func (q *ReadQueue) Push(data []byte, source netcore.Endpoint) (atHighWatermark bool) {
	q.mu.Lock()
	if front := q.intents.Front(); front != nil {
		intent := front.Value.(*readIntent)
		q.intents.Remove(front)
		if intent.token != uuid.Nil {
			delete(q.byToken, intent.token)
		}
		q.mu.Unlock()

		n := copy(intent.buf, data)
		if intent.callback != nil {
			intent.callback(n, source, nil)
		}
		if n < len(data) {
			// Intent's buffer was smaller than the datagram/chunk: stream
			// mode keeps the remainder queued; datagram mode drops it (a
			// single recvfrom never spans two deliveries).
			if q.Mode == ModeStream {
				q.mu.Lock()
				fireHigh, fireLow := q.pushChunkLocked(data[n:], source)
				q.mu.Unlock()
				q.fire(fireHigh, fireLow)
			}
		}
		return q.TotalSize() >= q.wm.High
	}

	fireHigh, fireLow := q.pushChunkLocked(data, source)
	q.mu.Unlock()
	q.fire(fireHigh, fireLow)
	return fireHigh || q.TotalSize() >= q.wm.High
}

func (q *ReadQueue) pushChunkLocked(data []byte, source netcore.Endpoint) (fireHigh, fireLow bool) {
	c := &chunk{data: data, source: source}
	c.elemInit(&q.chunks)
	return q.noteSizeLocked(q.size + len(data))
}

// elemInit pushes c onto l's back; split out only so chunk stays a plain
// struct (no list.Element field to keep zero-value-friendly for tests).
func (c *chunk) elemInit(l *list.List) { l.PushBack(c) }

// Receive synchronously pulls up to len(buf) bytes (Stream mode) or exactly
// one queued chunk, truncated to len(buf) (Datagram mode). ok is false if
// nothing is queued.
func (q *ReadQueue) Receive(buf []byte) (n int, source netcore.Endpoint, ok bool) {
	q.mu.Lock()
	n, source, ok, fireHigh, fireLow := q.receiveLocked(buf)
	q.mu.Unlock()
	q.fire(fireHigh, fireLow)
	return n, source, ok
}

// receiveLocked performs the actual dequeue under mu but defers firing
// watermark callbacks to the caller, which must do so only after releasing
// mu (matching WriteQueue's fire-after-unlock discipline, so a watermark
// callback that re-enters the queue never deadlocks).
func (q *ReadQueue) receiveLocked(buf []byte) (n int, source netcore.Endpoint, ok, fireHigh, fireLow bool) {
	front := q.chunks.Front()
	if front == nil {
		return 0, netcore.Endpoint{}, false, false, false
	}
	c := front.Value.(*chunk)
	source = c.source

	if q.Mode == ModeDatagram {
		n = copy(buf, c.remaining())
		q.chunks.Remove(front)
		fireHigh, fireLow = q.noteSizeLocked(q.size - len(c.remaining()))
		return n, source, true, fireHigh, fireLow
	}

	for n < len(buf) {
		front := q.chunks.Front()
		if front == nil {
			break
		}
		c := front.Value.(*chunk)
		copied := copy(buf[n:], c.remaining())
		c.offset += copied
		n += copied
		if c.offset >= len(c.data) {
			q.chunks.Remove(front)
		}
	}
	fireHigh, fireLow = q.noteSizeLocked(q.size - n)
	return n, source, n > 0, fireHigh, fireLow
}

// ReceiveAsync delivers immediately if data is already queued; otherwise it
// registers a read-intent fulfilled by a future Push. Exactly one of the
// synchronous return or the callback fires with the data, never both. A
// non-nil token lets a later Socket.Cancel(token) pull the intent back out
// before it is fulfilled.
func (q *ReadQueue) ReceiveAsync(buf []byte, token uuid.UUID, callback ReceiveCallback) (delivered bool) {
	q.mu.Lock()
	if q.chunks.Len() > 0 {
		n, source, ok, fireHigh, fireLow := q.receiveLocked(buf)
		q.mu.Unlock()
		q.fire(fireHigh, fireLow)
		if ok && callback != nil {
			callback(n, source, nil)
		}
		return true
	}
	if q.shutdownRecv {
		q.mu.Unlock()
		if callback != nil {
			callback(0, netcore.Endpoint{}, netcore.ErrEOF)
		}
		return true
	}
	intent := &readIntent{buf: buf, token: token, callback: callback}
	intent.elem = q.intents.PushBack(intent)
	if token != uuid.Nil {
		q.byToken[token] = intent
	}
	q.mu.Unlock()
	return false
}

// CancelIntent removes the async receive intent registered under token, if
// any, and invokes its callback with CodeCancelled. Returns
// netcore.ErrNotFound if no such intent is pending.
func (q *ReadQueue) CancelIntent(token uuid.UUID) error {
	q.mu.Lock()
	intent, ok := q.byToken[token]
	if !ok {
		q.mu.Unlock()
		return netcore.ErrNotFound
	}
	q.intents.Remove(intent.elem)
	delete(q.byToken, token)
	q.mu.Unlock()

	if intent.callback != nil {
		intent.callback(0, netcore.Endpoint{}, netcore.ErrCancelled)
	}
	return nil
}

// CancelAllIntents fails every pending intent with err, used on
// shutdown/close.
func (q *ReadQueue) CancelAllIntents(err error) {
	q.mu.Lock()
	var intents []*readIntent
	for el := q.intents.Front(); el != nil; el = el.Next() {
		intents = append(intents, el.Value.(*readIntent))
	}
	q.intents.Init()
	q.byToken = make(map[uuid.UUID]*readIntent)
	q.mu.Unlock()

	for _, intent := range intents {
		if intent.callback != nil {
			intent.callback(0, netcore.Endpoint{}, err)
		}
	}
}

// PendingIntents reports how many async receive-intents are queued waiting
// for data.
func (q *ReadQueue) PendingIntents() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.intents.Len()
}
