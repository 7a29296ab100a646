package iface

import (
	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/socket"
)

// CreateStreamSocket reserves capacity, picks a Driver per the configured
// Policy, and opens a StreamSocket on it.
func (iface *Interface) CreateStreamSocket(transport netcore.Transport, opts netcore.LoadBalanceOptions) (*socket.StreamSocket, error) {
	if err := iface.ReserveSocket(); err != nil {
		return nil, err
	}
	d, idx := iface.SelectDriver(opts)
	s, err := socket.NewStreamSocket(transport, d, iface.metrics, iface.config.QueueWatermarks)
	if err != nil {
		iface.ReleaseSocket()
		iface.ReleaseDriverLoad(idx)
		return nil, err
	}
	iface.trackClose(s.Socket, idx)
	return s, nil
}

// CreateDatagramSocket reserves capacity, picks a Driver, and opens a
// DatagramSocket optionally bound to local.
func (iface *Interface) CreateDatagramSocket(transport netcore.Transport, local netcore.Endpoint, opts netcore.LoadBalanceOptions) (*socket.DatagramSocket, error) {
	if err := iface.ReserveSocket(); err != nil {
		return nil, err
	}
	d, idx := iface.SelectDriver(opts)
	s, err := socket.NewDatagramSocket(transport, local, d, iface.metrics, iface.config.QueueWatermarks)
	if err != nil {
		iface.ReleaseSocket()
		iface.ReleaseDriverLoad(idx)
		return nil, err
	}
	iface.trackClose(s.Socket, idx)
	return s, nil
}

// CreateListenerSocket reserves capacity, picks a Driver, and opens a
// ListenerSocket bound to local. Every accepted connection is itself
// reserved against this Interface and wrapped via socket.AcceptStreamSocket,
// landing on the same Driver as the listener.
func (iface *Interface) CreateListenerSocket(transport netcore.Transport, local netcore.Endpoint, opts netcore.LoadBalanceOptions) (*socket.ListenerSocket, error) {
	if err := iface.ReserveSocket(); err != nil {
		return nil, err
	}
	d, idx := iface.SelectDriver(opts)

	l, err := socket.NewListenerSocket(transport, local, iface.config.Backlog, d, iface.metrics, iface.config.QueueWatermarks,
		func(fd netcore.Descriptor, remote netcore.Endpoint) (*socket.StreamSocket, error) {
			if err := iface.ReserveSocket(); err != nil {
				return nil, err
			}
			conn, err := socket.AcceptStreamSocket(fd, remote, socket.StreamTransportFor(transport), d, iface.metrics, iface.config.QueueWatermarks)
			if err != nil {
				iface.ReleaseSocket()
				return nil, err
			}
			iface.trackClose(conn.Socket, idx)
			return conn, nil
		},
	)
	if err != nil {
		iface.ReleaseSocket()
		iface.ReleaseDriverLoad(idx)
		return nil, err
	}
	iface.trackClose(l.Socket, idx)
	return l, nil
}

// trackClose does nothing: a socket obtained from this factory does not
// release its reservation or driver-load credit when it closes. Callers
// call ReleaseSocket/ReleaseDriverLoad themselves after closing it.
func (iface *Interface) trackClose(s *socket.Socket, driverIndex int) {
	_ = s
	_ = driverIndex
}
