// Package driver defines the capability surface a socket uses to attach to
// the OS's readiness/completion notification mechanism (§4.C). Two
// implementations are provided: driver/reactor (readiness-based, built
// directly on epoll/kqueue) and driver/proactor (completion-based, built on
// top of a reactor the way gaio's watcher layers buffered read/write
// completions over raw readiness events).
package driver

import (
	"time"

	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/registry"
)

// Driver is the capability interface a socket depends on: attach/detach a
// descriptor, arm/disarm interest in one of the three event kinds, and pump
// the underlying poller. Poll blocks for at most timeout waiting for at
// least one event, dispatching every ready event's callback before
// returning; a zero timeout polls without blocking.
type Driver interface {
	Attach(fd netcore.Descriptor) (*registry.Entry, error)
	Detach(entry *registry.Entry, detachCallback func()) error

	ShowReadable(entry *registry.Entry, cb registry.Callback) error
	HideReadable(entry *registry.Entry) error
	ShowWritable(entry *registry.Entry, cb registry.Callback) error
	HideWritable(entry *registry.Entry) error
	ShowError(entry *registry.Entry, cb registry.Callback) error
	HideError(entry *registry.Entry) error

	Poll(timeout time.Duration) error
	Close() error
}

// DispatchPrecedence is the fixed order §4.C mandates when a single
// readiness notification reports more than one condition at once: error
// takes priority over writable, which takes priority over readable. A
// socket's error callback may itself choose to detach, in which case the
// writable/readable announcements below it are skipped because the entry's
// state has already moved past StateAttached.
func DispatchPrecedence(entry *registry.Entry, readable, writable, errored bool, metrics netcore.Metrics) {
	fired := false
	if errored {
		fired = entry.AnnounceError(netcore.EventOptions{}) || fired
	}
	if entry.State() == registry.StateAttached && writable {
		fired = entry.AnnounceWritable(netcore.EventOptions{}) || fired
	}
	if entry.State() == registry.StateAttached && readable {
		fired = entry.AnnounceReadable(netcore.EventOptions{}) || fired
	}
	if !fired && metrics != nil {
		// None of the armed callbacks matched a condition the kernel
		// actually reported: a spurious wakeup (§8 invariant 6), harmless
		// but worth counting.
		metrics.IncrementSpuriousWakeups()
	}
}
