package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wm(low, high int) netcore.Watermarks { return netcore.Watermarks{Low: low, High: high} }

// TestWriteQueueHighWatermark covers scenario S2: enqueuing past the high
// watermark fails fast without entering the queue, and a drain back under
// the low watermark fires onLow exactly once.
func TestWriteQueueHighWatermark(t *testing.T) {
	var highs, lows int
	q := NewWriteQueue(wm(4, 10), func() { highs++ }, func() { lows++ })

	require.NoError(t, q.Send(make([]byte, 8), SendOptions{}, nil))
	err := q.Send(make([]byte, 8), SendOptions{}, nil)
	assert.ErrorIs(t, err, netcore.ErrWouldBlock)
	assert.Equal(t, 0, highs, "8 bytes queued, high watermark 10 not yet crossed")

	require.NoError(t, q.Send(make([]byte, 4), SendOptions{}, nil))
	assert.Equal(t, 1, highs)

	written := 0
	writer := func(p []byte) (int, error) {
		n := len(p)
		written += n
		return n, nil
	}
	n, err := q.Drain(writer, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, 1, lows)
}

func TestWriteQueueFIFOCompletionOrder(t *testing.T) {
	q := NewWriteQueue(wm(1, 1<<20), nil, nil)
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		require.NoError(t, q.Send([]byte{byte(i)}, SendOptions{}, func(int, error) { order = append(order, i) }))
	}
	writer := func(p []byte) (int, error) { return len(p), nil }
	_, err := q.Drain(writer, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestWriteQueuePriorityOrdering(t *testing.T) {
	q := NewWriteQueue(wm(1, 1<<20), nil, nil)
	var order []int
	require.NoError(t, q.Send([]byte{1}, SendOptions{Priority: 0}, func(int, error) { order = append(order, 1) }))
	require.NoError(t, q.Send([]byte{2}, SendOptions{Priority: 5}, func(int, error) { order = append(order, 2) }))
	require.NoError(t, q.Send([]byte{3}, SendOptions{Priority: 5}, func(int, error) { order = append(order, 3) }))

	writer := func(p []byte) (int, error) { return len(p), nil }
	_, err := q.Drain(writer, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 1}, order)
}

func TestWriteQueueCancel(t *testing.T) {
	q := NewWriteQueue(wm(1, 1<<20), nil, nil)
	token := uuid.New()
	var gotErr error
	require.NoError(t, q.Send([]byte("hello"), SendOptions{Token: token}, func(n int, err error) { gotErr = err }))

	require.NoError(t, q.Cancel(token))
	assert.ErrorIs(t, gotErr, netcore.ErrCancelled)
	assert.Equal(t, 0, q.Len())

	assert.ErrorIs(t, q.Cancel(token), netcore.ErrNotFound)
}

// TestWriteQueuePartialWriteIgnoresDeadline resolves the §9 open question:
// once a send has begun (offset > 0), an expired deadline no longer fails
// it — it always completes with the byte count.
func TestWriteQueuePartialWriteIgnoresDeadline(t *testing.T) {
	q := NewWriteQueue(wm(1, 1<<20), nil, nil)
	deadline := time.Now().Add(20 * time.Millisecond)
	var n int
	var err error
	require.NoError(t, q.Send([]byte("hello world"), SendOptions{Deadline: deadline}, func(nn int, e error) { n, err = nn, e }))

	calls := 0
	writer := func(p []byte) (int, error) {
		calls++
		switch calls {
		case 1:
			return 3, nil // partial: offset becomes > 0
		case 2:
			return 0, netcore.ErrWouldBlock // kernel buffer full
		}
		return len(p), nil
	}
	_, derr := q.Drain(writer, 1<<20)
	require.NoError(t, derr)

	time.Sleep(30 * time.Millisecond) // deadline passes while the send is partly written
	_, derr = q.Drain(writer, 1<<20)
	require.NoError(t, derr)
	require.NoError(t, err)
	assert.Equal(t, len("hello world"), n)
}

func TestWriteQueueSendAfterShutdownFails(t *testing.T) {
	q := NewWriteQueue(wm(1, 1<<20), nil, nil)
	q.Shutdown(DirectionSend)
	err := q.Send([]byte("x"), SendOptions{}, nil)
	assert.ErrorIs(t, err, netcore.ErrEOF)
}

func TestWriteQueueDrainAll(t *testing.T) {
	q := NewWriteQueue(wm(1, 1<<20), nil, nil)
	var errs []error
	require.NoError(t, q.Send([]byte("a"), SendOptions{}, func(_ int, e error) { errs = append(errs, e) }))
	require.NoError(t, q.Send([]byte("b"), SendOptions{}, func(_ int, e error) { errs = append(errs, e) }))

	q.DrainAll(netcore.ErrCancelled)
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.ErrorIs(t, e, netcore.ErrCancelled)
	}
	assert.Equal(t, 0, q.Len())
}
