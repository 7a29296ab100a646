package socket

import (
	"time"

	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/driver"
	"github.com/kayalabs/netcore/queue"
	"golang.org/x/sys/unix"
)

// StreamSocket is a connection-oriented, ordered-byte-stream socket (TCP or
// Unix stream).
type StreamSocket struct {
	*Socket
}

// NewStreamSocket opens a non-blocking TCP or Unix stream socket, attached
// to drv but not yet connected.
func NewStreamSocket(transport netcore.Transport, drv driver.Driver, metrics netcore.Metrics, wm netcore.QueueWatermarks) (*StreamSocket, error) {
	if transport.Semantics != netcore.SemanticsStream {
		return nil, netcore.ErrInvalid
	}
	base, err := newSocket(transport, KindStream, drv, metrics, wm)
	if err != nil {
		return nil, err
	}
	return &StreamSocket{Socket: base}, nil
}

// StreamTransportFor derives the connected-stream Transport a listener's
// accepted peers use from the listener's own Transport (same family and
// protocol, Semantics downgraded from listener to stream).
func StreamTransportFor(listener netcore.Transport) netcore.Transport {
	return netcore.Transport{Family: listener.Family, Protocol: listener.Protocol, Semantics: netcore.SemanticsStream}
}

// AcceptStreamSocket wraps an already-accepted descriptor (from accept4)
// as a connected *StreamSocket, without opening or closing any OS socket
// itself. It is the constructor listener.NewListenerSocket's newConn
// callback is expected to call.
func AcceptStreamSocket(fd netcore.Descriptor, remote netcore.Endpoint, transport netcore.Transport, drv driver.Driver, metrics netcore.Metrics, wm netcore.QueueWatermarks) (*StreamSocket, error) {
	base, err := wrapDescriptor(fd, transport, KindStream, drv, metrics, wm)
	if err != nil {
		return nil, err
	}
	base.remoteAddr = remote
	base.setState(StateConnected)
	return &StreamSocket{Socket: base}, nil
}

// Connect initiates a non-blocking connect(2) to remote. callback fires
// once the connect either succeeds or fails definitively (including on
// deadline, if deadline is non-zero); it never fires synchronously from
// within Connect itself.
func (s *StreamSocket) Connect(remote netcore.Endpoint, deadline time.Time, callback func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateOpened {
		return netcore.ErrInvalid
	}

	sa, err := sockaddrOf(remote)
	if err != nil {
		return err
	}

	err = unix.Connect(int(s.fd), sa)
	if err != nil && err != unix.EINPROGRESS {
		return netcore.NewError(netcore.CodeConnectionRefused, err)
	}
	s.remoteAddr = remote
	s.setState(StateConnecting)

	var timer *time.Timer
	finish := func(connErr error) {
		if timer != nil {
			timer.Stop()
		}
		s.Strand.Run(func() {
			if s.State() == StateConnecting {
				if connErr == nil {
					s.setState(StateConnected)
				}
			}
			if callback != nil {
				callback(connErr)
			}
		})
	}

	if err == nil {
		// connected immediately (common for Unix sockets)
		go finish(nil)
		return nil
	}

	if !deadline.IsZero() {
		timer = time.AfterFunc(time.Until(deadline), func() {
			s.drv.HideWritable(s.entry)
			finish(netcore.ErrTimeout)
		})
	}

	return s.drv.ShowWritable(s.entry, func(netcore.Event) {
		s.drv.HideWritable(s.entry)
		sockErr, _ := unix.GetsockoptInt(int(s.fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if sockErr != 0 {
			finish(netcore.NewError(netcore.CodeConnectionRefused, unix.Errno(sockErr)))
			return
		}
		finish(nil)
	})
}

// Send enqueues data on the write queue and arms the Driver's writable
// callback to drain it, exactly the way WriteQueue.Send/Drain are designed
// to be composed (§4.D/§4.E). callback, if non-nil, always runs on this
// socket's Strand.
func (s *StreamSocket) Send(data []byte, opts queue.SendOptions, callback queue.SendCallback) error {
	if err := s.WriteQueue.Send(data, opts, s.strandSend(callback)); err != nil {
		return err
	}
	return s.armWriter()
}

func (s *StreamSocket) armWriter() error {
	return s.drv.ShowWritable(s.entry, func(netcore.Event) {
		writer := func(p []byte) (int, error) {
			n, err := unix.Write(int(s.fd), p)
			if err == unix.EAGAIN {
				return n, netcore.ErrWouldBlock
			}
			if err != nil {
				return n, netcore.NewError(netcore.CodeConnectionReset, err)
			}
			return n, nil
		}
		if _, err := s.WriteQueue.Drain(writer, 1<<20); err != nil {
			logger.Warn().Err(err).Msg("drain failed")
		}
		if s.WriteQueue.Len() == 0 {
			s.drv.HideWritable(s.entry)
		}
	})
}

// Receive synchronously pulls already-buffered bytes, if any, or arms the
// Driver's readable callback to fill the queue from the kernel and invoke
// callback once data (or EOF/error) is available. A non-nil token lets a
// later Socket.Cancel(token) withdraw the receive before it completes.
// callback, if non-nil, always runs on this socket's Strand.
func (s *StreamSocket) Receive(buf []byte, token uuid.UUID, callback queue.ReceiveCallback) error {
	if s.ReadQueue.ReceiveAsync(buf, token, s.strandReceive(callback)) {
		return nil
	}
	return s.armReader()
}

func (s *StreamSocket) armReader() error {
	return s.drv.ShowReadable(s.entry, func(netcore.Event) {
		kernelBuf := make([]byte, 64*1024)
		for {
			n, err := unix.Read(int(s.fd), kernelBuf)
			if err == unix.EAGAIN {
				break
			}
			if err != nil {
				s.ReadQueue.CancelAllIntents(netcore.NewError(netcore.CodeConnectionReset, err))
				s.drv.HideReadable(s.entry)
				return
			}
			if n == 0 {
				s.ReadQueue.CancelAllIntents(netcore.ErrEOF)
				s.drv.HideReadable(s.entry)
				return
			}
			chunk := make([]byte, n)
			copy(chunk, kernelBuf[:n])
			if s.ReadQueue.Push(chunk, s.remoteAddr) {
				break // high watermark: stop filling until the queue drains
			}
		}
		if s.ReadQueue.PendingIntents() == 0 {
			s.drv.HideReadable(s.entry)
		}
	})
}
