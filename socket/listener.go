package socket

import (
	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/driver"
	"golang.org/x/sys/unix"
)

// ListenerSocket accepts inbound stream connections.
type ListenerSocket struct {
	*Socket
	newConn func(fd netcore.Descriptor, remote netcore.Endpoint) (*StreamSocket, error)
}

// NewListenerSocket opens a non-blocking listening socket bound to local
// and backlog-configured for backlog pending connections. newConn wraps
// each accepted raw fd as a *StreamSocket attached to the same Driver — it
// is a constructor callback rather than a direct dependency so the listener
// package does not need to import the stream-socket construction details of
// whatever Interface owns it.
func NewListenerSocket(transport netcore.Transport, local netcore.Endpoint, backlog int, drv driver.Driver, metrics netcore.Metrics, wm netcore.QueueWatermarks, newConn func(netcore.Descriptor, netcore.Endpoint) (*StreamSocket, error)) (*ListenerSocket, error) {
	if transport.Semantics != netcore.SemanticsListener {
		return nil, netcore.ErrInvalid
	}
	base, err := newSocket(transport, KindListener, drv, metrics, wm)
	if err != nil {
		return nil, err
	}

	sa, err := sockaddrOf(local)
	if err != nil {
		base.Close(nil)
		return nil, err
	}
	unix.SetsockoptInt(int(base.fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(int(base.fd), sa); err != nil {
		base.Close(nil)
		return nil, netcore.NewError(netcore.CodeAddressInUse, err)
	}
	if err := unix.Listen(int(base.fd), backlog); err != nil {
		base.Close(nil)
		return nil, netcore.NewError(netcore.CodeInternal, err)
	}
	base.localAddr = local
	base.setState(StateBound)

	l := &ListenerSocket{Socket: base, newConn: newConn}
	if err := l.armAcceptor(); err != nil {
		base.Close(nil)
		return nil, err
	}
	return l, nil
}

func (l *ListenerSocket) armAcceptor() error {
	return l.drv.ShowReadable(l.entry, func(netcore.Event) {
		for {
			nfd, sa, err := unix.Accept4(int(l.fd), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
			if err == unix.EAGAIN {
				return
			}
			if err != nil {
				logger.Warn().Err(err).Msg("accept failed")
				return
			}
			remote := endpointFromSockaddr(sa)
			conn, err := l.newConn(netcore.Descriptor(nfd), remote)
			if err != nil {
				unix.Close(nfd)
				continue
			}
			if l.AcceptQueue.Push(conn) {
				l.drv.HideReadable(l.entry)
				return
			}
		}
	})
}

// Accept synchronously pops an already-accepted connection, or arms an
// accept-intent fulfilled by a future accept. A non-nil token lets a later
// Socket.Cancel(token) withdraw the accept before it completes. callback,
// if non-nil, always runs on this listener's Strand.
func (l *ListenerSocket) Accept(token uuid.UUID, callback func(*StreamSocket, error)) error {
	typed := func(conn any, err error) {
		if callback == nil {
			return
		}
		if err != nil {
			callback(nil, err)
			return
		}
		callback(conn.(*StreamSocket), nil)
	}
	delivered := l.AcceptQueue.AcceptAsync(token, l.strandAccept(typed))
	if delivered {
		return nil
	}
	// The accept-intent just registered above will be satisfied by the next
	// connection armAcceptor's callback pushes in; re-arm in case a prior
	// high-watermark pause had disarmed readable interest.
	return l.armAcceptor()
}
