package queue

import (
	"container/list"

	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
)

// AcceptCallback receives one accepted connection (opaque to this package —
// the socket package supplies concrete *socket.StreamSocket values here) or
// a completion error if accepting failed or the queue was torn down.
type AcceptCallback func(conn any, err error)

type acceptIntent struct {
	token    uuid.UUID
	callback AcceptCallback
	elem     *list.Element
}

// AcceptQueue holds sockets a listener has accepted but the application has
// not yet retrieved, plus any pending accept-intent callbacks waiting for
// the next connection (§3, §4.D). Its size unit is connection count, not
// bytes.
type AcceptQueue struct {
	base
	conns   list.List
	intents list.List
	byToken map[uuid.UUID]*acceptIntent
}

// NewAcceptQueue creates an empty AcceptQueue with the given watermarks.
func NewAcceptQueue(wm netcore.Watermarks, onHigh, onLow func()) *AcceptQueue {
	q := &AcceptQueue{base: newBase(wm, true), byToken: make(map[uuid.UUID]*acceptIntent)}
	q.onHigh, q.onLow = onHigh, onLow
	return q
}

// Push is called by a Driver with a freshly accepted connection. If an
// accept-intent is already waiting, conn is delivered to it directly;
// otherwise it is appended to the queue. Push returns true if the queue is
// now at or above its high watermark, signaling the listener to stop
// accepting until it drains.
func (q *AcceptQueue) Push(conn any) (atHighWatermark bool) {
	q.mu.Lock()
	if front := q.intents.Front(); front != nil {
		intent := front.Value.(*acceptIntent)
		q.intents.Remove(front)
		if intent.token != uuid.Nil {
			delete(q.byToken, intent.token)
		}
		q.mu.Unlock()
		if intent.callback != nil {
			intent.callback(conn, nil)
		}
		return false
	}

	q.conns.PushBack(conn)
	fireHigh, fireLow := q.noteSizeLocked(q.size + 1)
	q.mu.Unlock()
	q.fire(fireHigh, fireLow)
	return fireHigh || q.TotalSize() >= q.wm.High
}

// Accept synchronously pops the oldest queued connection, if any.
func (q *AcceptQueue) Accept() (conn any, ok bool) {
	q.mu.Lock()
	conn, ok, fireHigh, fireLow := q.acceptLocked()
	q.mu.Unlock()
	q.fire(fireHigh, fireLow)
	return conn, ok
}

// acceptLocked performs the dequeue under mu, deferring watermark firing to
// the caller (matching WriteQueue/ReadQueue's fire-after-unlock discipline).
func (q *AcceptQueue) acceptLocked() (conn any, ok, fireHigh, fireLow bool) {
	front := q.conns.Front()
	if front == nil {
		return nil, false, false, false
	}
	conn = front.Value
	q.conns.Remove(front)
	fireHigh, fireLow = q.noteSizeLocked(q.size - 1)
	return conn, true, fireHigh, fireLow
}

// AcceptAsync delivers the oldest queued connection immediately if one
// exists; otherwise it registers an accept-intent fulfilled by a future
// Push. A non-nil token lets a later Socket.Cancel(token) withdraw the
// intent before it is fulfilled.
func (q *AcceptQueue) AcceptAsync(token uuid.UUID, callback AcceptCallback) (delivered bool) {
	q.mu.Lock()
	if conn, ok, fireHigh, fireLow := q.acceptLocked(); ok {
		q.mu.Unlock()
		q.fire(fireHigh, fireLow)
		if callback != nil {
			callback(conn, nil)
		}
		return true
	}
	if q.shutdownRecv {
		q.mu.Unlock()
		if callback != nil {
			callback(nil, netcore.ErrEOF)
		}
		return true
	}
	intent := &acceptIntent{token: token, callback: callback}
	intent.elem = q.intents.PushBack(intent)
	if token != uuid.Nil {
		q.byToken[token] = intent
	}
	q.mu.Unlock()
	return false
}

// CancelIntent removes the accept intent registered under token, if any,
// and invokes its callback with CodeCancelled. Returns netcore.ErrNotFound
// if no such intent is pending.
func (q *AcceptQueue) CancelIntent(token uuid.UUID) error {
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
		intent.callback(nil, netcore.ErrCancelled)
	}
	return nil
}

// DrainAll fails every pending accept-intent with err and discards any
// queued, not-yet-retrieved connections by passing them to closeFn (used on
// listener close). Queued-but-unretrieved connections still need their
// resources released even though no one will ever Accept them.
func (q *AcceptQueue) DrainAll(err error, closeFn func(conn any)) {
	q.mu.Lock()
	var intents []*acceptIntent
	for el := q.intents.Front(); el != nil; el = el.Next() {
		intents = append(intents, el.Value.(*acceptIntent))
	}
	q.intents.Init()
	q.byToken = make(map[uuid.UUID]*acceptIntent)

	var conns []any
	for el := q.conns.Front(); el != nil; el = el.Next() {
		conns = append(conns, el.Value)
	}
	q.conns.Init()
	fireHigh, fireLow := q.noteSizeLocked(0)
	q.mu.Unlock()

	q.fire(fireHigh, fireLow)
	for _, intent := range intents {
		if intent.callback != nil {
			intent.callback(nil, err)
		}
	}
	if closeFn != nil {
		for _, conn := range conns {
			closeFn(conn)
		}
	}
}

// Len returns the number of connections currently queued, awaiting Accept.
func (q *AcceptQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.conns.Len()
}
