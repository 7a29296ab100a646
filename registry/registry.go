// Package registry implements the per-descriptor entry table a Driver uses
// to route readiness/completion events to user callbacks (§4.B). It is the
// sole authority on an entry's attached/detaching/detached lifecycle and the
// process counter that makes detach safe under concurrent dispatch.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/log"
)

var logger = log.Component("registry")

// State is the RegistryEntry lifecycle state of §3: an entry may be found
// by descriptor only while attached or detaching.
type State int32

const (
	StateAttached State = iota
	StateDetaching
	StateDetached
)

// Callback is the (function, strand-agnostic) pair invoked when an event
// fires for the event kind it was registered under. The strand itself is
// applied by the caller (socket package); Registry only guarantees
// non-reentrant, ordered invocation per descriptor.
type Callback func(netcore.Event)

// Entry is one RegistryEntry (§3): owns the descriptor, current Interest,
// up to three callbacks, the in-flight-callback process counter, and the
// detach token/callback/state.
//
// State and processCounter live packed together in one atomic word so that
// "is this entry still live, and if so bump its in-flight count" (used by
// LookupAndMarkProcessingOngoing) and "transition to detaching/detached
// based on the current count" (used by RemoveAndGetReadyToDetach and
// DecrementProcessCounter) are a single CAS against the same value rather
// than two independently-timed operations — a Poll thread's state check and
// a concurrent Detach's counter check can no longer observe a state that
// has since gone stale before either one acts on it (§8 invariants 2, 7).
type Entry struct {
	Descriptor netcore.Descriptor

	mu        sync.Mutex
	interest  netcore.Interest
	callbacks [4]Callback // indexed by netcore.EventKind

	word atomic.Uint64 // packed (State << 32) | processCounter

	detachToken    uuid.UUID
	detachCallback func()
	detachOnce     sync.Once
}

func packWord(state State, counter int32) uint64 {
	return uint64(uint32(state))<<32 | uint64(uint32(counter))
}

func unpackWord(w uint64) (State, int32) {
	return State(int32(w >> 32)), int32(uint32(w))
}

// Interest returns the entry's current aggregate interest mask.
func (e *Entry) Interest() netcore.Interest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interest
}

// State returns the entry's current lifecycle state.
func (e *Entry) State() State {
	st, _ := unpackWord(e.word.Load())
	return st
}

// ProcessCounter returns the current in-flight-callback count, for tests
// and diagnostics.
func (e *Entry) ProcessCounter() int32 {
	_, cnt := unpackWord(e.word.Load())
	return cnt
}

// ErrAlreadyAttached is returned by Registry.Add for a descriptor already
// present.
var ErrAlreadyAttached = netcore.NewError(netcore.CodeInvalid, nil)

// ErrDetached is returned by operations targeting a detached entry. A
// repeated detach request is the exception: it returns nil.
var ErrDetached = netcore.NewError(netcore.CodeNotAuthorized, nil)

// Registry maps Descriptor to *Entry under a single RWMutex; the process
// counter on each Entry is atomic so dispatch never needs the structural
// lock to bump/decrement it.
type Registry struct {
	mu      sync.RWMutex
	entries map[netcore.Descriptor]*Entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[netcore.Descriptor]*Entry)}
}

// Add creates an attached entry with empty Interest, or fails if the
// descriptor is already present.
func (r *Registry) Add(fd netcore.Descriptor) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[fd]; ok {
		return nil, ErrAlreadyAttached
	}
	e := &Entry{Descriptor: fd}
	r.entries[fd] = e
	return e, nil
}

// LookupAndMarkProcessingOngoing finds the entry for fd and atomically
// increments its process counter iff the entry is attached or detaching.
// This is the sole means by which a Driver thread obtains a reference to an
// entry during event announcement; every successful call must be paired
// with exactly one DecrementProcessCounter (§8 invariant 7).
func (r *Registry) LookupAndMarkProcessingOngoing(fd netcore.Descriptor) *Entry {
	r.mu.RLock()
	e, ok := r.entries[fd]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	for {
		old := e.word.Load()
		st, cnt := unpackWord(old)
		if st != StateAttached && st != StateDetaching {
			return nil
		}
		if e.word.CompareAndSwap(old, packWord(st, cnt+1)) {
			return e
		}
	}
}

// DecrementProcessCounter pairs with LookupAndMarkProcessingOngoing. If the
// counter reaches zero and the entry is detaching, the decrement and the
// transition to detached happen in the same CAS, so this call drives the
// detach to completion on the calling goroutine (§4.B: "defers announcement
// to the thread whose decrementProcessCounter drives the counter to zero").
func (r *Registry) DecrementProcessCounter(e *Entry) int32 {
	for {
		old := e.word.Load()
		st, cnt := unpackWord(old)
		if cnt <= 0 {
			logger.Error().Int("fd", int(e.Descriptor)).Msg("process counter went negative")
			panic("registry: process counter went negative")
		}
		newCnt := cnt - 1
		newSt := st
		announceNow := false
		if newCnt == 0 && st == StateDetaching {
			newSt = StateDetached
			announceNow = true
		}
		if e.word.CompareAndSwap(old, packWord(newSt, newCnt)) {
			if announceNow {
				r.finalizeDetach(e)
			}
			return newCnt
		}
	}
}

// showHide is the shared body of ShowX/HideX: it mutates interest and the
// callback slot for one event kind under the entry's lock and returns the
// new aggregate interest.
func (e *Entry) showHide(kind netcore.EventKind, set bool, cb Callback) (netcore.Interest, error) {
	if e.State() == StateDetached {
		return 0, ErrDetached
	}
	bit := bitFor(kind)
	e.mu.Lock()
	defer e.mu.Unlock()
	if set {
		e.interest = e.interest.Set(bit)
		e.callbacks[kind] = cb
	} else {
		e.interest = e.interest.Clear(bit)
		e.callbacks[kind] = nil
	}
	return e.interest, nil
}

func bitFor(kind netcore.EventKind) netcore.Interest {
	switch kind {
	case netcore.EventReadable:
		return netcore.InterestReadable
	case netcore.EventWritable:
		return netcore.InterestWritable
	case netcore.EventError:
		return netcore.InterestError
	default:
		return netcore.InterestNotifications
	}
}

// ShowReadable arms the readable callback and interest bit.
func (e *Entry) ShowReadable(cb Callback) (netcore.Interest, error) {
	return e.showHide(netcore.EventReadable, true, cb)
}

// HideReadable disarms the readable callback and interest bit.
func (e *Entry) HideReadable() (netcore.Interest, error) {
	return e.showHide(netcore.EventReadable, false, nil)
}

// ShowWritable arms the writable callback and interest bit.
func (e *Entry) ShowWritable(cb Callback) (netcore.Interest, error) {
	return e.showHide(netcore.EventWritable, true, cb)
}

// HideWritable disarms the writable callback and interest bit.
func (e *Entry) HideWritable() (netcore.Interest, error) {
	return e.showHide(netcore.EventWritable, false, nil)
}

// ShowError arms the error callback and interest bit.
func (e *Entry) ShowError(cb Callback) (netcore.Interest, error) {
	return e.showHide(netcore.EventError, true, cb)
}

// HideError disarms the error callback and interest bit.
func (e *Entry) HideError() (netcore.Interest, error) {
	return e.showHide(netcore.EventError, false, nil)
}

// announce is the shared body of AnnounceReadable/Writable/Error: it invokes
// the current callback for kind, clearing the interest bit first if the
// triggering event was one-shot (§4.B: "atomically with the invocation").
// Nothing is invoked once the entry is detached.
func (e *Entry) announce(kind netcore.EventKind, opts netcore.EventOptions) bool {
	if e.State() == StateDetached {
		return false
	}
	e.mu.Lock()
	cb := e.callbacks[kind]
	if cb == nil {
		e.mu.Unlock()
		return false
	}
	if opts.OneShot {
		e.interest = e.interest.Clear(bitFor(kind))
		e.callbacks[kind] = nil
	}
	e.mu.Unlock()

	cb(netcore.Event{Descriptor: e.Descriptor, Kind: kind, Options: opts})
	return true
}

// AnnounceReadable invokes the current readable callback, if any, returning
// whether one was invoked.
func (e *Entry) AnnounceReadable(opts netcore.EventOptions) bool {
	return e.announce(netcore.EventReadable, opts)
}

// AnnounceWritable invokes the current writable callback, if any.
func (e *Entry) AnnounceWritable(opts netcore.EventOptions) bool {
	return e.announce(netcore.EventWritable, opts)
}

// AnnounceError invokes the current error callback, if any.
func (e *Entry) AnnounceError(opts netcore.EventOptions) bool {
	return e.announce(netcore.EventError, opts)
}

// RemoveAndGetReadyToDetach transitions the entry to detaching (or straight
// to detached if nothing is in flight), installs detachCallback, and runs
// removeFn to deregister from the kernel. The choice between those two
// target states is made by the same CAS that performs the transition, so it
// can never act on a process counter that a concurrent
// LookupAndMarkProcessingOngoing/DecrementProcessCounter has since changed
// (§8 invariants 2, 7): whichever side's CAS lands first wins a consistent
// snapshot, and the other retries against the updated word.
func (r *Registry) RemoveAndGetReadyToDetach(fd netcore.Descriptor, detachCallback func(), removeFn func() error) error {
	r.mu.Lock()
	e, ok := r.entries[fd]
	r.mu.Unlock()
	if !ok {
		// Not mapped: an earlier detach already finished and unmapped the
		// entry (or fd was never added). Treated as a duplicate detach.
		return nil
	}

	var announceNow bool
	for {
		old := e.word.Load()
		st, cnt := unpackWord(old)
		if st != StateAttached {
			// Already detaching or detached: idempotent no-op, matching
			// "duplicate detach is idempotent" (§4.B failure semantics).
			return nil
		}
		newSt := StateDetaching
		if cnt == 0 {
			newSt = StateDetached
			announceNow = true
		} else {
			announceNow = false
		}
		if e.word.CompareAndSwap(old, packWord(newSt, cnt)) {
			break
		}
	}

	e.detachToken = uuid.New()
	e.detachCallback = detachCallback

	if removeFn != nil {
		if err := removeFn(); err != nil {
			logger.Warn().Err(err).Msg("removeFn failed during detach")
		}
	}

	if announceNow {
		r.finalizeDetach(e)
	}
	return nil
}

// finalizeDetach invokes the detach callback exactly once (guarded by
// sync.Once so a racing DecrementProcessCounter and an idempotent second
// detach request can never double-fire it) and removes the entry from the
// map, breaking the cyclic reference between Socket and RegistryEntry per
// §9. By the time this runs, the entry's word has already been transitioned
// to StateDetached by the same CAS that decided to call it.
func (r *Registry) finalizeDetach(e *Entry) bool {
	fired := false
	e.detachOnce.Do(func() {
		r.mu.Lock()
		delete(r.entries, e.Descriptor)
		r.mu.Unlock()
		fired = true
		if e.detachCallback != nil {
			e.detachCallback()
		}
	})
	return fired
}

// AnnounceDetached is exposed so a Driver can force-finalize a detach when
// it independently observes the counter at zero (e.g. on shutdown), per
// §4.B. It is always safe to call, even redundantly: it forces the word to
// StateDetached first so finalizeDetach's bookkeeping always runs against a
// consistent state.
func (r *Registry) AnnounceDetached(e *Entry) bool {
	for {
		old := e.word.Load()
		_, cnt := unpackWord(old)
		if e.word.CompareAndSwap(old, packWord(StateDetached, cnt)) {
			break
		}
	}
	return r.finalizeDetach(e)
}

// Len reports the number of entries currently attached or detaching, for
// tests and diagnostics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
