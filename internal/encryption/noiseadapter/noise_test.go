package noiseadapter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pump(t *testing.T, from, to *Adapter) {
	t.Helper()
	buf := make([]byte, 4096)
	n, err := from.PopOutgoingCipherText(buf)
	require.NoError(t, err)
	if n == 0 {
		return
	}
	require.NoError(t, to.PushIncomingCipherText(buf[:n]))
}

func TestHandshakeCompletes(t *testing.T) {
	initiator, err := NewInitiator()
	require.NoError(t, err)
	responder, err := NewResponder()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		pump(t, initiator, responder)
		pump(t, responder, initiator)

		iDone, err := initiator.InitiateHandshake()
		require.NoError(t, err)
		rDone, err := responder.InitiateHandshake()
		require.NoError(t, err)
		if iDone && rDone {
			return
		}
	}
	t.Fatal("handshake never completed")
}

func handshakeBoth(t *testing.T) (initiator, responder *Adapter) {
	t.Helper()
	initiator, err := NewInitiator()
	require.NoError(t, err)
	responder, err = NewResponder()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		pump(t, initiator, responder)
		pump(t, responder, initiator)
		iDone, err := initiator.InitiateHandshake()
		require.NoError(t, err)
		rDone, err := responder.InitiateHandshake()
		require.NoError(t, err)
		if iDone && rDone {
			return initiator, responder
		}
	}
	t.Fatal("handshake never completed")
	return nil, nil
}

func TestApplicationDataRoundTrips(t *testing.T) {
	initiator, responder := handshakeBoth(t)

	require.NoError(t, initiator.PushOutgoingPlainText([]byte("hello responder")))
	pump(t, initiator, responder)

	buf := make([]byte, 64)
	n, err := responder.PopIncomingPlainText(buf)
	require.NoError(t, err)
	require.Equal(t, "hello responder", string(buf[:n]))

	require.NoError(t, responder.PushOutgoingPlainText([]byte("hello initiator")))
	pump(t, responder, initiator)

	n, err = initiator.PopIncomingPlainText(buf)
	require.NoError(t, err)
	require.Equal(t, "hello initiator", string(buf[:n]))
}

func TestPushOutgoingBeforeHandshakeFails(t *testing.T) {
	initiator, err := NewInitiator()
	require.NoError(t, err)
	require.Error(t, initiator.PushOutgoingPlainText([]byte("too soon")))
}
