// Package reactor implements the readiness-based Driver backend of §4.C:
// descriptors are registered with the OS poller (epoll on Linux, kqueue on
// BSD/Darwin) and callbacks fire when the kernel reports a condition,
// leaving the actual read/write syscall to the caller. It is the lower
// layer driver/proactor builds its completion semantics on top of.
package reactor

import (
	"sync"
	"time"

	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/driver"
	"github.com/kayalabs/netcore/log"
	"github.com/kayalabs/netcore/registry"
)

var logger = log.Component("reactor")

// Reactor is a driver.Driver backed directly by the platform poller.
type Reactor struct {
	reg     *registry.Registry
	pfd     poller
	metrics netcore.Metrics

	mu     sync.Mutex
	closed bool
}

var _ driver.Driver = (*Reactor)(nil)

// New opens a platform poller and returns a ready-to-use Reactor. metrics
// may be nil, in which case counters are simply not collected.
func New(metrics netcore.Metrics) (*Reactor, error) {
	r := &Reactor{reg: registry.New(), pfd: newPoller(), metrics: metrics}
	if err := r.pfd.open(); err != nil {
		return nil, err
	}
	return r, nil
}

// Attach registers fd with the registry and the OS poller, returning its
// fresh entry with empty interest.
func (r *Reactor) Attach(fd netcore.Descriptor) (*registry.Entry, error) {
	entry, err := r.reg.Add(fd)
	if err != nil {
		return nil, err
	}
	if err := r.pfd.watch(fd); err != nil {
		return nil, err
	}
	return entry, nil
}

// Detach begins the two-phase detach protocol for entry (§4.B), removing it
// from the OS poller once no dispatch is in flight.
func (r *Reactor) Detach(entry *registry.Entry, detachCallback func()) error {
	return r.reg.RemoveAndGetReadyToDetach(entry.Descriptor, detachCallback, func() error {
		return r.pfd.unwatch(entry.Descriptor)
	})
}

func (r *Reactor) syncInterest(entry *registry.Entry) error {
	if err := r.pfd.setInterest(entry.Descriptor, entry.Interest()); err != nil {
		return err
	}
	return r.pfd.wake()
}

// ShowReadable arms cb for readable events on entry.
func (r *Reactor) ShowReadable(entry *registry.Entry, cb registry.Callback) error {
	if _, err := entry.ShowReadable(cb); err != nil {
		return err
	}
	return r.syncInterest(entry)
}

// HideReadable disarms the readable callback on entry.
func (r *Reactor) HideReadable(entry *registry.Entry) error {
	if _, err := entry.HideReadable(); err != nil {
		return err
	}
	return r.syncInterest(entry)
}

// ShowWritable arms cb for writable events on entry.
func (r *Reactor) ShowWritable(entry *registry.Entry, cb registry.Callback) error {
	if _, err := entry.ShowWritable(cb); err != nil {
		return err
	}
	return r.syncInterest(entry)
}

// HideWritable disarms the writable callback on entry.
func (r *Reactor) HideWritable(entry *registry.Entry) error {
	if _, err := entry.HideWritable(); err != nil {
		return err
	}
	return r.syncInterest(entry)
}

// ShowError arms cb for error events on entry. Error conditions
// (EPOLLERR/EPOLLHUP, or EV_EOF under kqueue) are always reported by the
// kernel regardless of the registered interest mask, so this only updates
// the callback slot.
func (r *Reactor) ShowError(entry *registry.Entry, cb registry.Callback) error {
	_, err := entry.ShowError(cb)
	return err
}

// HideError disarms the error callback on entry.
func (r *Reactor) HideError(entry *registry.Entry) error {
	_, err := entry.HideError()
	return err
}

// Poll blocks for at most timeout (negative blocks indefinitely) waiting
// for readiness, dispatching every ready descriptor's callbacks in
// error > writable > readable order (§4.C) before returning.
func (r *Reactor) Poll(timeout time.Duration) error {
	if r.metrics != nil {
		r.metrics.IncrementPollCalls()
	}
	events, err := r.pfd.wait(timeout)
	if err != nil {
		return err
	}
	for _, e := range events {
		entry := r.reg.LookupAndMarkProcessingOngoing(e.fd)
		if entry == nil {
			continue // detached or never attached: a stale wakeup, ignore
		}
		driver.DispatchPrecedence(entry, e.readable, e.writable, e.errored, r.metrics)
		r.reg.DecrementProcessCounter(entry)
		if r.metrics != nil {
			r.metrics.IncrementCallbacksInvoked()
		}
	}
	return nil
}

// Registry exposes the underlying registry so driver/proactor can attach
// its own completion bookkeeping to the same entries.
func (r *Reactor) Registry() *registry.Registry { return r.reg }

// Close shuts down the poller. Idempotent.
func (r *Reactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	logger.Debug().Msg("closing reactor")
	return r.pfd.close()
}
