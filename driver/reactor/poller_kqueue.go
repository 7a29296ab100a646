//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package reactor

import (
	"time"

	"github.com/kayalabs/netcore"
	"golang.org/x/sys/unix"
)

// kqueuePoller is the BSD/Darwin counterpart to epollPoller, grounded on the
// same build-tag split the teacher uses across its own target platforms
// (watcher.go: "linux || darwin || netbsd || freebsd || openbsd ||
// dragonfly"). A pipe stands in for eventfd, which these platforms lack.
type kqueuePoller struct {
	kq        int
	wakeRead  int
	wakeWrite int
}

func newPoller() poller { return &kqueuePoller{kq: -1, wakeRead: -1, wakeWrite: -1} }

func (p *kqueuePoller) open() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return netcore.NewError(netcore.CodeInternal, err)
	}
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		unix.Close(kq)
		return netcore.NewError(netcore.CodeInternal, err)
	}
	p.kq, p.wakeRead, p.wakeWrite = kq, fds[0], fds[1]
	unix.SetNonblock(p.wakeRead, true)

	ev := unix.Kevent_t{Ident: uint64(p.wakeRead), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD}
	_, err = unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	if err != nil {
		return netcore.NewError(netcore.CodeInternal, err)
	}
	return nil
}

func (p *kqueuePoller) watch(fd netcore.Descriptor) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_DISABLE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_DISABLE},
	}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		return netcore.NewError(netcore.CodeInternal, err)
	}
	return nil
}

func (p *kqueuePoller) unwatch(fd netcore.Descriptor) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	unix.Kevent(p.kq, changes, nil, nil) // best-effort: fd may already be gone
	return nil
}

func (p *kqueuePoller) setInterest(fd netcore.Descriptor, interest netcore.Interest) error {
	readFlag := uint16(unix.EV_DISABLE)
	if interest.Has(netcore.InterestReadable) {
		readFlag = unix.EV_ENABLE
	}
	writeFlag := uint16(unix.EV_DISABLE)
	if interest.Has(netcore.InterestWritable) {
		writeFlag = unix.EV_ENABLE
	}
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: readFlag},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: writeFlag},
	}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		return netcore.NewError(netcore.CodeInternal, err)
	}
	return nil
}

func (p *kqueuePoller) wait(timeout time.Duration) ([]readyEvent, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	raw := make([]unix.Kevent_t, 128)
	n, err := unix.Kevent(p.kq, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, netcore.NewError(netcore.CodeInternal, err)
	}

	byFD := make(map[netcore.Descriptor]*readyEvent, n)
	for i := 0; i < n; i++ {
		ident := int(raw[i].Ident)
		if ident == p.wakeRead {
			var buf [512]byte
			unix.Read(p.wakeRead, buf[:])
			continue
		}
		fd := netcore.Descriptor(ident)
		e := byFD[fd]
		if e == nil {
			e = &readyEvent{fd: fd}
			byFD[fd] = e
		}
		if raw[i].Flags&unix.EV_EOF != 0 {
			e.errored = true
		}
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			e.readable = true
		case unix.EVFILT_WRITE:
			e.writable = true
		}
	}

	events := make([]readyEvent, 0, len(byFD))
	for _, e := range byFD {
		events = append(events, *e)
	}
	return events, nil
}

func (p *kqueuePoller) wake() error {
	_, err := unix.Write(p.wakeWrite, []byte{1})
	if err != nil && err != unix.EAGAIN {
		return netcore.NewError(netcore.CodeInternal, err)
	}
	return nil
}

func (p *kqueuePoller) close() error {
	unix.Close(p.wakeRead)
	unix.Close(p.wakeWrite)
	return unix.Close(p.kq)
}
