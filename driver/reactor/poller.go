package reactor

import (
	"time"

	"github.com/kayalabs/netcore"
)

// readyEvent is one fd's readiness report from the OS poller for a single
// Wait call.
type readyEvent struct {
	fd       netcore.Descriptor
	readable bool
	writable bool
	errored  bool
}

// poller is the per-OS primitive Reactor builds on: register/unregister a
// descriptor, change its interest mask, and block until at least one
// registered descriptor is ready (or the timeout elapses). Implemented by
// poller_linux.go (epoll) and poller_kqueue.go (kqueue), split by build tag
// exactly as the teacher splits its own poller backend per target OS.
type poller interface {
	open() error
	watch(fd netcore.Descriptor) error
	unwatch(fd netcore.Descriptor) error
	setInterest(fd netcore.Descriptor, interest netcore.Interest) error
	wait(timeout time.Duration) ([]readyEvent, error)
	wake() error
	close() error
}
