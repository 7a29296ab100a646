//go:build linux

package reactor

import (
	"time"

	"github.com/kayalabs/netcore"
	"golang.org/x/sys/unix"
)

// epollPoller wraps a Linux epoll instance plus an eventfd used purely to
// interrupt a blocked epoll_wait when Attach/Detach/Show/Hide need the poll
// goroutine to pick up a configuration change immediately (mirrors the
// teacher's chPendingNotify wakeup, but at the syscall level instead of via
// a Go channel since this goroutine blocks in the kernel, not on a select).
type epollPoller struct {
	epfd    int
	eventfd int
}

func newPoller() poller { return &epollPoller{epfd: -1, eventfd: -1} }

func (p *epollPoller) open() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return netcore.NewError(netcore.CodeInternal, err)
	}
	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return netcore.NewError(netcore.CodeInternal, err)
	}
	p.epfd = epfd
	p.eventfd = efd
	return p.epollCtl(unix.EPOLL_CTL_ADD, efd, unix.EPOLLIN)
}

func (p *epollPoller) epollCtl(op int, fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return netcore.NewError(netcore.CodeInternal, err)
	}
	return nil
}

func (p *epollPoller) watch(fd netcore.Descriptor) error {
	return p.epollCtl(unix.EPOLL_CTL_ADD, int(fd), unix.EPOLLET)
}

func (p *epollPoller) unwatch(fd netcore.Descriptor) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil {
		return netcore.NewError(netcore.CodeInternal, err)
	}
	return nil
}

func (p *epollPoller) setInterest(fd netcore.Descriptor, interest netcore.Interest) error {
	var events uint32 = unix.EPOLLET
	if interest.Has(netcore.InterestReadable) {
		events |= unix.EPOLLIN
	}
	if interest.Has(netcore.InterestWritable) {
		events |= unix.EPOLLOUT
	}
	return p.epollCtl(unix.EPOLL_CTL_MOD, int(fd), events)
}

func (p *epollPoller) wait(timeout time.Duration) ([]readyEvent, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	var raw [128]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, raw[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, netcore.NewError(netcore.CodeInternal, err)
	}

	events := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == p.eventfd {
			var buf [8]byte
			unix.Read(p.eventfd, buf[:])
			continue
		}
		e := readyEvent{fd: netcore.Descriptor(fd)}
		e.errored = raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
		e.readable = raw[i].Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0
		e.writable = raw[i].Events&unix.EPOLLOUT != 0
		events = append(events, e)
	}
	return events, nil
}

func (p *epollPoller) wake() error {
	var one [8]byte
	one[0] = 1
	_, err := unix.Write(p.eventfd, one[:])
	if err != nil && err != unix.EAGAIN {
		return netcore.NewError(netcore.CodeInternal, err)
	}
	return nil
}

func (p *epollPoller) close() error {
	unix.Close(p.eventfd)
	return unix.Close(p.epfd)
}
