package queue

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kayalabs/netcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptQueuePushThenAccept(t *testing.T) {
	q := NewAcceptQueue(wm(1, 4), nil, nil)
	q.Push("conn-a")
	q.Push("conn-b")

	c, ok := q.Accept()
	require.True(t, ok)
	assert.Equal(t, "conn-a", c)
	assert.Equal(t, 1, q.Len())
}

func TestAcceptQueueHighWatermark(t *testing.T) {
	var highs, lows int
	q := NewAcceptQueue(wm(1, 2), func() { highs++ }, func() { lows++ })
	q.Push("a")
	atHigh := q.Push("b")
	assert.True(t, atHigh)
	assert.Equal(t, 1, highs)

	q.Accept()
	_, ok := q.Accept()
	require.True(t, ok)
	assert.Equal(t, 1, lows)
}

func TestAcceptQueueIntentSatisfiedDirectlyWithoutQueueing(t *testing.T) {
	q := NewAcceptQueue(wm(1, 4), nil, nil)
	var got any
	delivered := q.AcceptAsync(uuid.Nil, func(conn any, err error) { got = conn })
	assert.False(t, delivered)

	q.Push("conn-a")
	assert.Equal(t, "conn-a", got)
	assert.Equal(t, 0, q.Len(), "delivered straight to the intent, never entered the queue")
}

func TestAcceptQueueDrainAllClosesUnretrievedAndFailsPendingIntents(t *testing.T) {
	q := NewAcceptQueue(wm(1, 4), nil, nil)
	q.Push("conn-a") // queued until the AcceptAsync below retrieves it

	var pendingErr error
	delivered := q.AcceptAsync(uuid.Nil, func(conn any, err error) {
		// since conn-a is already queued, this intent is satisfied
		// immediately and never becomes "pending".
		pendingErr = err
	})
	require.True(t, delivered)
	require.NoError(t, pendingErr)

	var secondErr error
	q.AcceptAsync(uuid.Nil, func(conn any, err error) { secondErr = err })

	var closed []any
	q.DrainAll(netcore.ErrCancelled, func(conn any) { closed = append(closed, conn) })

	assert.ErrorIs(t, secondErr, netcore.ErrCancelled)
	assert.Equal(t, 0, q.Len())

	q.Push("conn-b") // no intent is pending any more, so this one stays queued
	q.DrainAll(netcore.ErrCancelled, func(conn any) { closed = append(closed, conn) })
	assert.Equal(t, []any{"conn-b"}, closed)
	assert.Equal(t, 0, q.Len())
}

func TestAcceptQueueCancelIntentByToken(t *testing.T) {
	q := NewAcceptQueue(wm(1, 4), nil, nil)
	token := uuid.New()
	var err error
	q.AcceptAsync(token, func(_ any, e error) { err = e })

	require.NoError(t, q.CancelIntent(token))
	assert.ErrorIs(t, err, netcore.ErrCancelled)

	assert.ErrorIs(t, q.CancelIntent(token), netcore.ErrNotFound)
}
