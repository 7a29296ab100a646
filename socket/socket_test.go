package socket

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/driver/reactor"
	"github.com/kayalabs/netcore/queue"
	"github.com/stretchr/testify/require"
)

func newTestReactor(t *testing.T) *reactor.Reactor {
	t.Helper()
	r, err := reactor.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func streamTransport() netcore.Transport {
	return netcore.Transport{Family: netcore.FamilyIPv4, Protocol: netcore.ProtocolTCP, Semantics: netcore.SemanticsStream}
}

// pollUntil drives r's poll loop until condition reports true or deadline
// passes, returning whether it succeeded.
func pollUntil(t *testing.T, r *reactor.Reactor, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.Poll(10 * time.Millisecond)
		if condition() {
			return true
		}
	}
	return false
}

// TestStreamEchoOverLoopback is scenario S1 over TCP: dial a listener on
// loopback, send a payload, and observe it received on the accepted peer.
func TestStreamEchoOverLoopback(t *testing.T) {
	r := newTestReactor(t)
	wm := netcore.DefaultQueueWatermarks()

	var accepted *StreamSocket
	var acceptedOK bool

	listener, err := NewListenerSocket(
		netcore.Transport{Family: netcore.FamilyIPv4, Protocol: netcore.ProtocolTCP, Semantics: netcore.SemanticsListener},
		netcore.IPv4Endpoint(net.IPv4(127, 0, 0, 1), 0),
		16, r, nil, wm,
		func(fd netcore.Descriptor, remote netcore.Endpoint) (*StreamSocket, error) {
			base, err := wrapDescriptor(fd, streamTransport(), KindStream, r, nil, wm)
			if err != nil {
				return nil, err
			}
			base.remoteAddr = remote
			base.setState(StateConnected)
			return &StreamSocket{Socket: base}, nil
		},
	)
	require.NoError(t, err)
	defer listener.Close(nil)

	require.NoError(t, listener.Accept(uuid.Nil, func(conn *StreamSocket, err error) {
		require.NoError(t, err)
		accepted = conn
		acceptedOK = true
	}))

	client, err := NewStreamSocket(streamTransport(), r, nil, wm)
	require.NoError(t, err)
	defer client.Close(nil)

	var connectErr error
	var connectDone bool
	require.NoError(t, client.Connect(listener.LocalAddr(), time.Now().Add(2*time.Second), func(err error) {
		connectErr = err
		connectDone = true
	}))

	require.True(t, pollUntil(t, r, func() bool { return connectDone }), "connect did not complete")
	require.NoError(t, connectErr)

	require.True(t, pollUntil(t, r, func() bool { return acceptedOK }), "accept did not complete")

	require.NoError(t, client.Send([]byte("ping"), queue.SendOptions{}, nil))

	readBuf := make([]byte, 16)
	var received string
	var receiveDone bool
	require.NoError(t, accepted.Receive(readBuf, uuid.Nil, func(n int, _ netcore.Endpoint, err error) {
		require.NoError(t, err)
		received = string(readBuf[:n])
		receiveDone = true
	}))

	require.True(t, pollUntil(t, r, func() bool { return receiveDone }), "server never received the client's payload")
	require.Equal(t, "ping", received)
}

// TestSocketCancelWithdrawsPendingReceive covers §6's cancel(token): a
// receive registered with a token and never fulfilled can be pulled back
// out via Socket.Cancel before any data arrives.
func TestSocketCancelWithdrawsPendingReceive(t *testing.T) {
	r := newTestReactor(t)
	wm := netcore.DefaultQueueWatermarks()

	s, err := NewStreamSocket(streamTransport(), r, nil, wm)
	require.NoError(t, err)
	defer s.Close(nil)
	s.setState(StateConnected)

	token := uuid.New()
	var cancelErr error
	var fired bool
	require.NoError(t, s.Receive(make([]byte, 16), token, func(_ int, _ netcore.Endpoint, err error) {
		cancelErr = err
		fired = true
	}))
	require.Equal(t, 1, s.ReadQueue.PendingIntents())

	require.NoError(t, s.Cancel(token))
	require.True(t, fired)
	require.ErrorIs(t, cancelErr, netcore.ErrCancelled)
	require.Equal(t, 0, s.ReadQueue.PendingIntents())

	require.ErrorIs(t, s.Cancel(token), netcore.ErrNotFound)
}
