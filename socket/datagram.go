package socket

import (
	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/driver"
	"github.com/kayalabs/netcore/queue"
	"golang.org/x/sys/unix"
)

// DatagramSocket is a connectionless, message-oriented socket (UDP).
type DatagramSocket struct {
	*Socket
}

// NewDatagramSocket opens a non-blocking UDP socket, optionally bound to
// local (the zero Endpoint lets the kernel pick an ephemeral port).
func NewDatagramSocket(transport netcore.Transport, local netcore.Endpoint, drv driver.Driver, metrics netcore.Metrics, wm netcore.QueueWatermarks) (*DatagramSocket, error) {
	if transport.Semantics != netcore.SemanticsDatagram {
		return nil, netcore.ErrInvalid
	}
	base, err := newSocket(transport, KindDatagram, drv, metrics, wm)
	if err != nil {
		return nil, err
	}
	d := &DatagramSocket{Socket: base}

	wantsBind := local.Port != 0 || local.Path != "" || len(local.Address) != 0
	if wantsBind {
		sa, err := sockaddrOf(local)
		if err != nil {
			base.Close(nil)
			return nil, err
		}
		if err := unix.Bind(int(base.fd), sa); err != nil {
			base.Close(nil)
			return nil, netcore.NewError(netcore.CodeAddressInUse, err)
		}
		base.localAddr = local
		base.setState(StateBound)
	}
	if err := d.armReader(); err != nil {
		base.Close(nil)
		return nil, err
	}
	return d, nil
}

// SendTo enqueues a single datagram addressed to dest. Each queued send is
// written with its own sendto(2) call — datagrams are never merged or
// split, per §3.
func (d *DatagramSocket) SendTo(data []byte, dest netcore.Endpoint, opts queue.SendOptions, callback queue.SendCallback) error {
	sa, err := sockaddrOf(dest)
	if err != nil {
		return err
	}
	if err := d.WriteQueue.Send(data, opts, d.strandSend(callback)); err != nil {
		return err
	}
	return d.drv.ShowWritable(d.entry, func(netcore.Event) {
		writer := func(p []byte) (int, error) {
			if err := unix.Sendto(int(d.fd), p, 0, sa); err != nil {
				if err == unix.EAGAIN {
					return 0, netcore.ErrWouldBlock
				}
				return 0, netcore.NewError(netcore.CodeUnreachable, err)
			}
			return len(p), nil
		}
		if _, err := d.WriteQueue.Drain(writer, 1<<20); err != nil {
			logger.Warn().Err(err).Msg("drain failed")
		}
		if d.WriteQueue.Len() == 0 {
			d.drv.HideWritable(d.entry)
		}
	})
}

// ReceiveFrom synchronously pulls an already-buffered datagram, or arms an
// async receive-intent fulfilled once one arrives. A non-nil token lets a
// later Socket.Cancel(token) withdraw the receive before it completes.
// callback, if non-nil, always runs on this socket's Strand.
func (d *DatagramSocket) ReceiveFrom(buf []byte, token uuid.UUID, callback queue.ReceiveCallback) error {
	if d.ReadQueue.ReceiveAsync(buf, token, d.strandReceive(callback)) {
		return nil
	}
	return nil // armReader is already continuously armed for datagram sockets
}

func (d *DatagramSocket) armReader() error {
	return d.drv.ShowReadable(d.entry, func(netcore.Event) {
		for {
			kernelBuf := make([]byte, 64*1024)
			n, sa, err := unix.Recvfrom(int(d.fd), kernelBuf, 0)
			if err == unix.EAGAIN {
				return
			}
			if err != nil {
				d.ReadQueue.CancelAllIntents(netcore.NewError(netcore.CodeConnectionReset, err))
				return
			}
			source := endpointFromSockaddr(sa)
			if d.ReadQueue.Push(kernelBuf[:n], source) {
				d.drv.HideReadable(d.entry)
				return
			}
		}
	})
}
