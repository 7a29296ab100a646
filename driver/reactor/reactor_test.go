package reactor

import (
	"testing"
	"time"

	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newPipePair(t *testing.T) (readFD, writeFD int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// TestReactorDeliversReadable covers the basic readiness round trip: attach
// a descriptor, arm readable, write on the peer end, and observe the
// callback fire from Poll.
func TestReactorDeliversReadable(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)
	defer r.Close()

	readFD, writeFD := newPipePair(t)
	entry, err := r.Attach(netcore.Descriptor(readFD))
	require.NoError(t, err)

	fired := make(chan netcore.Event, 1)
	require.NoError(t, r.ShowReadable(entry, func(ev netcore.Event) { fired <- ev }))

	_, err = unix.Write(writeFD, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, r.Poll(time.Second))
	select {
	case ev := <-fired:
		assert.Equal(t, netcore.EventReadable, ev.Kind)
	default:
		t.Fatal("readable callback did not fire")
	}
}

func TestReactorDetachStopsDelivery(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)
	defer r.Close()

	readFD, writeFD := newPipePair(t)
	entry, err := r.Attach(netcore.Descriptor(readFD))
	require.NoError(t, err)

	calls := 0
	require.NoError(t, r.ShowReadable(entry, func(netcore.Event) { calls++ }))

	done := make(chan struct{})
	require.NoError(t, r.Detach(entry, func() { close(done) }))
	<-done
	assert.Equal(t, registry.StateDetached, entry.State())

	unix.Write(writeFD, []byte("x"))
	_ = r.Poll(10 * time.Millisecond)
	assert.Equal(t, 0, calls)
}
