// Package proactor implements the completion-based Driver backend of §4.C,
// built directly on top of driver/reactor the same way gaio's watcher
// layers buffered, completion-delivering Read/Write calls over raw
// readiness events: a caller submits an operation and a callback, and the
// callback fires once the operation completes (with a result, an error, or
// a deadline expiry) rather than once on every readiness edge.
package proactor

import (
	"container/heap"
	"container/list"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/driver/reactor"
	"github.com/kayalabs/netcore/log"
	"github.com/kayalabs/netcore/registry"
)

var logger = log.Component("proactor")

type opKind int

const (
	opRead opKind = iota
	opWrite
)

// CompletionCallback receives the result of one completed operation: bytes
// transferred and a terminal error (nil on success).
type CompletionCallback func(n int, err error)

type pendingOp struct {
	kind     opKind
	buffer   []byte
	size     int // bytes transferred so far
	readFull bool
	deadline time.Time
	callback CompletionCallback

	heapIndex int // position in the owning Proactor's timeout heap, -1 if absent
	listElem  *list.Element
	list      *list.List
}

// opList is the per-descriptor bookkeeping mirroring the teacher's fdDesc:
// independent FIFOs of pending reads and pending writes.
type opList struct {
	readers list.List
	writers list.List
	entry   *registry.Entry
}

// deadlineHeap orders pendingOp by deadline, implementing container/heap.
type deadlineHeap []*pendingOp

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex, h[j].heapIndex = i, j
}
func (h *deadlineHeap) Push(x any) {
	op := x.(*pendingOp)
	op.heapIndex = len(*h)
	*h = append(*h, op)
}
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	op := old[n-1]
	old[n-1] = nil
	op.heapIndex = -1
	*h = old[:n-1]
	return op
}

// Proactor submits completion-delivering read/write operations against
// descriptors it shares with an underlying reactor.Reactor: the reactor
// supplies readiness, and Proactor drains it with non-blocking syscalls the
// way gaio's tryRead/tryWrite loops do, accumulating partial progress
// across readiness edges until the operation is satisfied.
type Proactor struct {
	r *reactor.Reactor

	mu       sync.Mutex
	descs    map[netcore.Descriptor]*opList
	timeouts deadlineHeap
	timer    *time.Timer
	metrics  netcore.Metrics
}

// New creates a Proactor over a freshly opened Reactor.
func New(metrics netcore.Metrics) (*Proactor, error) {
	r, err := reactor.New(metrics)
	if err != nil {
		return nil, err
	}
	p := &Proactor{
		r:       r,
		descs:   make(map[netcore.Descriptor]*opList),
		timer:   time.NewTimer(time.Hour),
		metrics: metrics,
	}
	p.timer.Stop()
	return p, nil
}

// Attach registers fd for completion-style operations.
func (p *Proactor) Attach(fd netcore.Descriptor) error {
	entry, err := p.r.Attach(fd)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.descs[fd] = &opList{entry: entry}
	p.mu.Unlock()
	return nil
}

// Detach cancels every pending operation on fd with netcore.ErrCancelled and
// removes it from the reactor.
func (p *Proactor) Detach(fd netcore.Descriptor, detachCallback func()) error {
	p.mu.Lock()
	desc, ok := p.descs[fd]
	if !ok {
		p.mu.Unlock()
		return registry.ErrDetached
	}
	delete(p.descs, fd)
	var failed []*pendingOp
	for e := desc.readers.Front(); e != nil; e = e.Next() {
		failed = append(failed, e.Value.(*pendingOp))
	}
	for e := desc.writers.Front(); e != nil; e = e.Next() {
		failed = append(failed, e.Value.(*pendingOp))
	}
	for _, op := range failed {
		if op.heapIndex >= 0 {
			heap.Remove(&p.timeouts, op.heapIndex)
		}
	}
	p.mu.Unlock()

	for _, op := range failed {
		if op.callback != nil {
			op.callback(op.size, netcore.ErrCancelled)
		}
	}
	return p.r.Detach(desc.entry, detachCallback)
}

// Read submits a completion-delivering read on fd. If readFull is true,
// callback fires only once len(buf) bytes have been copied (or an error or
// deadline occurs); otherwise it fires on the first successful read of any
// size, matching a single non-blocking read(2). A zero deadline means no
// timeout.
func (p *Proactor) Read(fd netcore.Descriptor, buf []byte, deadline time.Time, readFull bool, callback CompletionCallback) error {
	return p.submit(fd, opRead, buf, deadline, readFull, callback)
}

// Write submits a completion-delivering write on fd: callback fires once
// every byte of buf has been written, or on error/deadline.
func (p *Proactor) Write(fd netcore.Descriptor, buf []byte, deadline time.Time, callback CompletionCallback) error {
	return p.submit(fd, opWrite, buf, deadline, true, callback)
}

func (p *Proactor) submit(fd netcore.Descriptor, kind opKind, buf []byte, deadline time.Time, readFull bool, callback CompletionCallback) error {
	p.mu.Lock()
	desc, ok := p.descs[fd]
	if !ok {
		p.mu.Unlock()
		return registry.ErrDetached
	}

	op := &pendingOp{kind: kind, buffer: buf, readFull: readFull, deadline: deadline, callback: callback, heapIndex: -1}

	done, n, err := p.attemptLocked(fd, op)
	if done {
		p.mu.Unlock()
		if callback != nil {
			callback(n, err)
		}
		return nil
	}

	var target *list.List
	var cb registry.Callback
	if kind == opRead {
		target = &desc.readers
		cb = func(netcore.Event) { p.onReady(fd, opRead) }
	} else {
		target = &desc.writers
		cb = func(netcore.Event) { p.onReady(fd, opWrite) }
	}
	op.list = target
	op.listElem = target.PushBack(op)
	firstInList := target.Len() == 1
	if !deadline.IsZero() {
		heap.Push(&p.timeouts, op)
		p.rearmTimerLocked()
	}
	p.mu.Unlock()

	if firstInList {
		if kind == opRead {
			return p.r.ShowReadable(desc.entry, cb)
		}
		return p.r.ShowWritable(desc.entry, cb)
	}
	return nil
}

// attemptLocked tries the syscall immediately, mirroring the teacher's
// "try immediately if queue is empty" fast path. Caller holds mu.
func (p *Proactor) attemptLocked(fd netcore.Descriptor, op *pendingOp) (done bool, n int, err error) {
	if op.kind == opRead {
		return tryRead(int(fd), op)
	}
	return tryWrite(int(fd), op)
}

// onReady is the reactor callback for a descriptor with pending ops: it
// drains as many queued operations as remain satisfiable without blocking,
// exactly as the teacher's handleEvents walks desc.readers/writers.
func (p *Proactor) onReady(fd netcore.Descriptor, kind opKind) {
	p.mu.Lock()
	desc, ok := p.descs[fd]
	if !ok {
		p.mu.Unlock()
		return
	}
	target := &desc.readers
	if kind == opWrite {
		target = &desc.writers
	}

	type completion struct {
		cb  CompletionCallback
		n   int
		err error
	}
	var completions []completion
	for {
		front := target.Front()
		if front == nil {
			break
		}
		op := front.Value.(*pendingOp)
		var done bool
		var n int
		var err error
		if kind == opRead {
			done, n, err = tryRead(int(fd), op)
		} else {
			done, n, err = tryWrite(int(fd), op)
		}
		if !done {
			break
		}
		target.Remove(front)
		if op.heapIndex >= 0 {
			heap.Remove(&p.timeouts, op.heapIndex)
		}
		completions = append(completions, completion{cb: op.callback, n: n, err: err})
	}
	empty := target.Len() == 0
	p.mu.Unlock()

	if empty {
		if kind == opRead {
			p.r.HideReadable(desc.entry)
		} else {
			p.r.HideWritable(desc.entry)
		}
	}
	for _, c := range completions {
		if c.cb != nil {
			c.cb(c.n, c.err)
		}
	}
}

func (p *Proactor) rearmTimerLocked() {
	if p.timeouts.Len() == 0 {
		p.timer.Stop()
		return
	}
	p.timer.Reset(time.Until(p.timeouts[0].deadline))
}

// PollTimeouts must be driven periodically (e.g. by the owning Interface's
// event loop) to fail operations whose deadline has elapsed. It is separate
// from Reactor.Poll because timeout expiry is not a readiness event.
func (p *Proactor) PollTimeouts() {
	p.mu.Lock()
	now := time.Now()
	var expired []*pendingOp
	for p.timeouts.Len() > 0 && !now.Before(p.timeouts[0].deadline) {
		op := heap.Pop(&p.timeouts).(*pendingOp)
		// A deadline that fires after the operation already made partial
		// progress does not fail it (§9 open question, resolved the same
		// way as WriteQueue.Drain): only zero-progress ops time out.
		if op.size > 0 {
			continue
		}
		op.list.Remove(op.listElem)
		expired = append(expired, op)
	}
	p.mu.Unlock()

	for _, op := range expired {
		if op.callback != nil {
			op.callback(op.size, netcore.ErrTimeout)
		}
	}
}

// tryRead performs one non-blocking read loop against fd, accumulating into
// op.buffer[op.size:], exactly mirroring the teacher's tryRead: EAGAIN means
// "not done yet", EINTR retries, any other error or (for non-readFull ops) any
// successful read completes the operation.
func tryRead(fd int, op *pendingOp) (done bool, n int, err error) {
	for {
		nr, er := syscall.Read(fd, op.buffer[op.size:])
		if er == syscall.EAGAIN {
			return false, op.size, nil
		}
		if er == syscall.EINTR {
			continue
		}
		if er == nil {
			op.size += nr
			if nr == 0 {
				er = io.EOF
			}
		}
		if er != nil {
			return true, op.size, netcore.NewError(netcore.CodeEOF, er)
		}
		break
	}
	if op.size == len(op.buffer) || !op.readFull {
		return true, op.size, nil
	}
	return false, op.size, nil
}

// tryWrite performs one non-blocking write loop against fd, mirroring the
// teacher's tryWrite.
func tryWrite(fd int, op *pendingOp) (done bool, n int, err error) {
	for {
		nw, ew := syscall.Write(fd, op.buffer[op.size:])
		if ew == syscall.EAGAIN {
			return false, op.size, nil
		}
		if ew == syscall.EINTR {
			continue
		}
		if ew == nil {
			op.size += nw
		} else {
			return true, op.size, netcore.NewError(netcore.CodeInternal, ew)
		}
		break
	}
	if op.size == len(op.buffer) {
		return true, op.size, nil
	}
	return false, op.size, nil
}

// Poll drives both readiness dispatch and timeout expiry for one iteration.
func (p *Proactor) Poll(timeout time.Duration) error {
	if err := p.r.Poll(timeout); err != nil {
		return err
	}
	p.PollTimeouts()
	return nil
}

// Close shuts down the underlying reactor.
func (p *Proactor) Close() error { return p.r.Close() }
