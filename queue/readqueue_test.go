package queue

import (
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadQueueStreamMergesChunks(t *testing.T) {
	q := NewReadQueue(ModeStream, wm(1, 1<<20), nil, nil)
	q.Push([]byte("hello "), netcore.Endpoint{})
	q.Push([]byte("world"), netcore.Endpoint{})

	buf := make([]byte, 64)
	n, _, ok := q.Receive(buf)
	require.True(t, ok)
	assert.Equal(t, "hello world", string(buf[:n]))
}

func TestReadQueueDatagramNeverMerges(t *testing.T) {
	q := NewReadQueue(ModeDatagram, wm(1, 1<<20), nil, nil)
	ep := netcore.IPv4Endpoint(net.IPv4(127, 0, 0, 1), 9000)
	q.Push([]byte("first"), ep)
	q.Push([]byte("second"), ep)

	buf := make([]byte, 64)
	n, _, ok := q.Receive(buf)
	require.True(t, ok)
	assert.Equal(t, "first", string(buf[:n]))

	n, _, ok = q.Receive(buf)
	require.True(t, ok)
	assert.Equal(t, "second", string(buf[:n]))
}

// TestReadQueueHighWatermarkStopsFilling covers scenario S3: pushing past
// the high watermark signals the caller (the Driver) to stop reading from
// the socket, and draining back to the low watermark fires onLow.
func TestReadQueueHighWatermarkStopsFilling(t *testing.T) {
	var highs, lows int
	q := NewReadQueue(ModeStream, wm(2, 8), func() { highs++ }, func() { lows++ })

	atHigh := q.Push(make([]byte, 4), netcore.Endpoint{})
	assert.False(t, atHigh)
	atHigh = q.Push(make([]byte, 6), netcore.Endpoint{})
	assert.True(t, atHigh)
	assert.Equal(t, 1, highs)

	buf := make([]byte, 9)
	n, _, ok := q.Receive(buf)
	require.True(t, ok)
	assert.Equal(t, 9, n)
	assert.Equal(t, 1, lows)
}

// TestReadQueueHighWatermarkFiresOnExactBoundary is the literal S3 scenario:
// the peer's push lands exactly on the high watermark (size == High, not
// beyond it). ReadQueue must still treat that as a breach, unlike
// WriteQueue's strictly-greater-than reject threshold.
func TestReadQueueHighWatermarkFiresOnExactBoundary(t *testing.T) {
	var highs, lows int
	q := NewReadQueue(ModeStream, wm(2, 8), func() { highs++ }, func() { lows++ })

	atHigh := q.Push(make([]byte, 8), netcore.Endpoint{})
	assert.True(t, atHigh)
	assert.Equal(t, 1, highs)

	buf := make([]byte, 8)
	n, _, ok := q.Receive(buf)
	require.True(t, ok)
	assert.Equal(t, 8, n)
	assert.Equal(t, 1, lows)
}

func TestReadQueueAsyncIntentDeliveredByPush(t *testing.T) {
	q := NewReadQueue(ModeStream, wm(1, 1<<20), nil, nil)
	buf := make([]byte, 16)
	var gotN int
	var gotErr error
	delivered := q.ReceiveAsync(buf, uuid.Nil, func(n int, _ netcore.Endpoint, err error) {
		gotN, gotErr = n, err
	})
	assert.False(t, delivered)
	assert.Equal(t, 1, q.PendingIntents())

	q.Push([]byte("hi"), netcore.Endpoint{})
	require.NoError(t, gotErr)
	assert.Equal(t, 2, gotN)
	assert.Equal(t, 0, q.PendingIntents())
}

func TestReadQueueReceiveAsyncDeliversQueuedDataImmediately(t *testing.T) {
	q := NewReadQueue(ModeStream, wm(1, 1<<20), nil, nil)
	q.Push([]byte("buffered"), netcore.Endpoint{})

	buf := make([]byte, 16)
	var gotN int
	delivered := q.ReceiveAsync(buf, uuid.Nil, func(n int, _ netcore.Endpoint, _ error) { gotN = n })
	assert.True(t, delivered)
	assert.Equal(t, 8, gotN)
}

func TestReadQueueCancelAllIntentsOnShutdown(t *testing.T) {
	q := NewReadQueue(ModeStream, wm(1, 1<<20), nil, nil)
	var err error
	q.ReceiveAsync(make([]byte, 4), uuid.Nil, func(_ int, _ netcore.Endpoint, e error) { err = e })
	q.CancelAllIntents(netcore.ErrCancelled)
	assert.ErrorIs(t, err, netcore.ErrCancelled)
	assert.Equal(t, 0, q.PendingIntents())
}

func TestReadQueueCancelIntentByToken(t *testing.T) {
	q := NewReadQueue(ModeStream, wm(1, 1<<20), nil, nil)
	token := uuid.New()
	var err error
	q.ReceiveAsync(make([]byte, 4), token, func(_ int, _ netcore.Endpoint, e error) { err = e })

	require.NoError(t, q.CancelIntent(token))
	assert.ErrorIs(t, err, netcore.ErrCancelled)
	assert.Equal(t, 0, q.PendingIntents())

	assert.ErrorIs(t, q.CancelIntent(token), netcore.ErrNotFound)
}
