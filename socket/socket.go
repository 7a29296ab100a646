// Package socket implements the Socket state machine and operations of
// §6: a thin, tagged-kind wrapper (§9 design note — a kind enum instead of
// an interface hierarchy, since every variant is built from the same
// Descriptor/Entry/Queue parts and call sites already have to switch on
// kind to pick the right syscalls) over a raw descriptor, its Registry
// entry, its Driver, and its read/write/accept queues.
package socket

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/driver"
	"github.com/kayalabs/netcore/log"
	"github.com/kayalabs/netcore/queue"
	"github.com/kayalabs/netcore/registry"
	"github.com/kayalabs/netcore/strand"
	"golang.org/x/sys/unix"
)

var logger = log.Component("socket")

// Kind discriminates the tagged union of socket roles.
type Kind int

const (
	KindStream Kind = iota
	KindDatagram
	KindListener
)

// State is the lifecycle state of §6: created -> opened -> bound? ->
// connecting -> connected -> (shutting-send|shutting-receive)* -> closed.
type State int32

const (
	StateCreated State = iota
	StateOpened
	StateBound
	StateConnecting
	StateConnected
	StateShuttingSend
	StateShuttingReceive
	StateClosed
)

// Socket is the shared base embedded by StreamSocket, DatagramSocket, and
// ListenerSocket.
type Socket struct {
	Kind      Kind
	Transport netcore.Transport

	mu         sync.Mutex
	fd         netcore.Descriptor
	state      atomic.Int32
	entry      *registry.Entry
	drv        driver.Driver
	Strand     *strand.Strand
	Metrics    netcore.Metrics
	localAddr  netcore.Endpoint
	remoteAddr netcore.Endpoint
	closeOnce  sync.Once

	WriteQueue  *queue.WriteQueue
	ReadQueue   *queue.ReadQueue
	AcceptQueue *queue.AcceptQueue
}

// newSocket creates a fresh raw OS socket for transport and wraps it in a
// Socket base, attached to drv but with no interest armed yet.
func newSocket(transport netcore.Transport, kind Kind, drv driver.Driver, metrics netcore.Metrics, wm netcore.QueueWatermarks) (*Socket, error) {
	if !transport.Valid() {
		return nil, netcore.ErrInvalid
	}

	domain := unix.AF_INET
	if transport.Family == netcore.FamilyIPv6 {
		domain = unix.AF_INET6
	} else if transport.Family == netcore.FamilyLocal {
		domain = unix.AF_UNIX
	}
	typ := unix.SOCK_STREAM
	if transport.Protocol == netcore.ProtocolUDP {
		typ = unix.SOCK_DGRAM
	}

	fd, err := unix.Socket(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, netcore.NewError(netcore.CodeInternal, err)
	}

	s, err := wrapDescriptor(netcore.Descriptor(fd), transport, kind, drv, metrics, wm)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

// wrapDescriptor attaches an already-open descriptor (e.g. one returned by
// accept4) to drv and builds the Socket base around it, without creating or
// closing any OS socket itself.
func wrapDescriptor(fd netcore.Descriptor, transport netcore.Transport, kind Kind, drv driver.Driver, metrics netcore.Metrics, wm netcore.QueueWatermarks) (*Socket, error) {
	entry, err := drv.Attach(fd)
	if err != nil {
		return nil, err
	}

	s := &Socket{
		Kind:      kind,
		Transport: transport,
		fd:        fd,
		entry:     entry,
		drv:       drv,
		Strand:    strand.New(),
		Metrics:   metrics,
	}
	s.state.Store(int32(StateOpened))

	onHigh := func() {
		if metrics != nil {
			metrics.IncrementHighWatermarkEvents()
		}
	}
	onLow := func() {
		if metrics != nil {
			metrics.IncrementLowWatermarkEvents()
		}
	}
	s.WriteQueue = queue.NewWriteQueue(wm.Write, onHigh, onLow)
	s.ReadQueue = queue.NewReadQueue(readQueueMode(transport), wm.Read, onHigh, onLow)
	s.AcceptQueue = queue.NewAcceptQueue(wm.Accept, onHigh, onLow)
	return s, nil
}

func readQueueMode(t netcore.Transport) queue.Mode {
	if t.Protocol == netcore.ProtocolUDP {
		return queue.ModeDatagram
	}
	return queue.ModeStream
}

// Descriptor returns the underlying OS descriptor.
func (s *Socket) Descriptor() netcore.Descriptor { return s.fd }

// State returns the socket's current lifecycle state.
func (s *Socket) State() State { return State(s.state.Load()) }

func (s *Socket) setState(state State) { s.state.Store(int32(state)) }

// LocalAddr returns the endpoint bound at open/bind/connect time, if known.
func (s *Socket) LocalAddr() netcore.Endpoint { return s.localAddr }

// RemoteAddr returns the peer endpoint for connected sockets.
func (s *Socket) RemoteAddr() netcore.Endpoint { return s.remoteAddr }

// Entry exposes the registry entry for the Driver layer.
func (s *Socket) Entry() *registry.Entry { return s.entry }

// Driver exposes the Driver this socket is attached to.
func (s *Socket) Driver() driver.Driver { return s.drv }

// strandSend/strandReceive/strandAccept wrap a caller-supplied completion
// callback so it always runs through the socket's Strand, no matter which
// goroutine (Driver dispatch, a queue drain, a timer) ends up invoking it.
// Every async Socket operation (§6) routes its callback through one of
// these before handing it to the queue layer, which itself stays
// strand-agnostic (§5).
func (s *Socket) strandSend(callback queue.SendCallback) queue.SendCallback {
	if callback == nil {
		return nil
	}
	return func(n int, err error) {
		s.Strand.Run(func() { callback(n, err) })
	}
}

func (s *Socket) strandReceive(callback queue.ReceiveCallback) queue.ReceiveCallback {
	if callback == nil {
		return nil
	}
	return func(n int, source netcore.Endpoint, err error) {
		s.Strand.Run(func() { callback(n, source, err) })
	}
}

func (s *Socket) strandAccept(callback queue.AcceptCallback) queue.AcceptCallback {
	if callback == nil {
		return nil
	}
	return func(conn any, err error) {
		s.Strand.Run(func() { callback(conn, err) })
	}
}

// Cancel withdraws a pending asynchronous operation registered under token
// (a send, a receive, or an accept — §6 "cancel(token)"), trying each
// queue's token index in turn. Returns netcore.ErrNotFound if token matches
// nothing currently pending, which per §8 invariant 5 is not treated as an
// error callers need to guard against (the operation may already have
// completed).
func (s *Socket) Cancel(token uuid.UUID) error {
	if err := s.WriteQueue.Cancel(token); err == nil {
		return nil
	}
	if err := s.ReadQueue.CancelIntent(token); err == nil {
		return nil
	}
	if err := s.AcceptQueue.CancelIntent(token); err == nil {
		return nil
	}
	return netcore.ErrNotFound
}

// ShutdownWrite half-closes the send direction: the kernel is told via
// shutdown(2), the write queue stops accepting new sends, and any already
// queued sends still drain.
func (s *Socket) ShutdownWrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateClosed {
		return netcore.ErrInvalid
	}
	s.WriteQueue.Shutdown(queue.DirectionSend)
	if err := unix.Shutdown(int(s.fd), unix.SHUT_WR); err != nil {
		return netcore.NewError(netcore.CodeInternal, err)
	}
	s.setState(StateShuttingSend)
	return nil
}

// ShutdownReceive half-closes the receive direction.
func (s *Socket) ShutdownReceive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateClosed {
		return netcore.ErrInvalid
	}
	s.ReadQueue.Shutdown(queue.DirectionReceive)
	if err := unix.Shutdown(int(s.fd), unix.SHUT_RD); err != nil {
		return netcore.NewError(netcore.CodeInternal, err)
	}
	s.setState(StateShuttingReceive)
	return nil
}

// Close runs the five-step close protocol of §4.E: shut down both queue
// directions (failing everything still pending), detach from the Driver,
// close the kernel descriptor, and mark the socket closed. Idempotent.
//
// Close never blocks the calling goroutine on the detach completing, even
// when called reentrantly from within a callback the Driver is currently
// dispatching for this very socket (§5: "reentrant invocation of Socket
// methods from within a callback is explicitly supported and must not
// block"). It registers the detach and returns; the descriptor close, the
// state transition to StateClosed, and callback (if non-nil) all happen
// once the Driver confirms the detach, which may be synchronous (no
// in-flight callback) or run later on whichever goroutine's
// DecrementProcessCounter call finishes draining this socket.
func (s *Socket) Close(callback func(error)) error {
	var submitErr error
	s.closeOnce.Do(func() {
		s.WriteQueue.Shutdown(queue.DirectionBoth)
		s.ReadQueue.Shutdown(queue.DirectionBoth)

		s.WriteQueue.DrainAll(netcore.ErrCancelled)
		s.ReadQueue.CancelAllIntents(netcore.ErrCancelled)
		s.AcceptQueue.DrainAll(netcore.ErrCancelled, func(conn any) {
			if closable, ok := conn.(interface{ Close(func(error)) error }); ok {
				closable.Close(nil)
			}
		})

		finish := func() {
			s.Strand.Run(func() {
				var err error
				if cerr := unix.Close(int(s.fd)); cerr != nil {
					err = netcore.NewError(netcore.CodeInternal, cerr)
				}
				s.setState(StateClosed)
				logger.Debug().Int("fd", int(s.fd)).Msg("socket closed")
				if callback != nil {
					callback(err)
				}
			})
		}
		if err := s.drv.Detach(s.entry, finish); err != nil {
			logger.Warn().Err(err).Msg("detach failed during close")
			submitErr = err
		}
	})
	return submitErr
}
