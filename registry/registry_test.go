package registry

import (
	"sync"
	"testing"

	"github.com/kayalabs/netcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsDuplicate(t *testing.T) {
	r := New()
	_, err := r.Add(1)
	require.NoError(t, err)
	_, err = r.Add(1)
	assert.ErrorIs(t, err, ErrAlreadyAttached)
}

func TestShowAnnounceReadable(t *testing.T) {
	r := New()
	e, err := r.Add(1)
	require.NoError(t, err)

	var got netcore.Event
	interest, err := e.ShowReadable(func(ev netcore.Event) { got = ev })
	require.NoError(t, err)
	assert.True(t, interest.Has(netcore.InterestReadable))

	invoked := e.AnnounceReadable(netcore.EventOptions{})
	assert.True(t, invoked)
	assert.Equal(t, netcore.EventReadable, got.Kind)
}

func TestOneShotClearsInterestAtomically(t *testing.T) {
	r := New()
	e, _ := r.Add(1)
	calls := 0
	_, _ = e.ShowReadable(func(netcore.Event) { calls++ })

	ok := e.AnnounceReadable(netcore.EventOptions{OneShot: true})
	assert.True(t, ok)
	assert.False(t, e.Interest().Has(netcore.InterestReadable))

	// Second announce finds no callback: one-shot already disarmed it.
	ok = e.AnnounceReadable(netcore.EventOptions{})
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

// TestNoPostDetachCallbacks is invariant 2 of §8: after AnnounceDetached
// returns true, no further callbacks fire for that entry.
func TestNoPostDetachCallbacks(t *testing.T) {
	r := New()
	e, _ := r.Add(1)
	calls := 0
	_, _ = e.ShowReadable(func(netcore.Event) { calls++ })

	detached := make(chan struct{})
	err := r.RemoveAndGetReadyToDetach(1, func() { close(detached) }, func() error { return nil })
	require.NoError(t, err)
	<-detached

	assert.Equal(t, StateDetached, e.State())
	ok := e.AnnounceReadable(netcore.EventOptions{})
	assert.False(t, ok)
	assert.Equal(t, 0, calls)
}

// TestDetachWaitsForInFlightProcessing verifies the two-phase detach:
// detaching while a callback is in flight does not finalize until the
// matching DecrementProcessCounter call.
func TestDetachWaitsForInFlightProcessing(t *testing.T) {
	r := New()
	e, _ := r.Add(1)

	held := r.LookupAndMarkProcessingOngoing(1)
	require.NotNil(t, held)
	assert.Equal(t, int32(1), e.ProcessCounter())

	detached := make(chan struct{})
	err := r.RemoveAndGetReadyToDetach(1, func() { close(detached) }, func() error { return nil })
	require.NoError(t, err)

	select {
	case <-detached:
		t.Fatal("detach finalized while a reference was still outstanding")
	default:
	}
	assert.Equal(t, StateDetaching, e.State())

	r.DecrementProcessCounter(held)

	<-detached // must not block/hang
	assert.Equal(t, StateDetached, e.State())
}

// TestDuplicateDetachIsIdempotent covers §4.B's failure semantics: a second
// detach request against an already-detaching/detached entry is a no-op,
// not an error and not a double-fire of the detach callback.
func TestDuplicateDetachIsIdempotent(t *testing.T) {
	r := New()
	r.Add(1)

	fires := 0
	err1 := r.RemoveAndGetReadyToDetach(1, func() { fires++ }, func() error { return nil })
	err2 := r.RemoveAndGetReadyToDetach(1, func() { fires++ }, func() error { return nil })

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, 1, fires)
}

// TestProcessCounterCorrectness is invariant 7: every successful
// LookupAndMarkProcessingOngoing is paired with exactly one
// DecrementProcessCounter, verified concurrently.
func TestProcessCounterCorrectness(t *testing.T) {
	r := New()
	e, _ := r.Add(1)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if entry := r.LookupAndMarkProcessingOngoing(1); entry != nil {
				r.DecrementProcessCounter(entry)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(0), e.ProcessCounter())
}

func TestLookupFailsOnDetachedEntry(t *testing.T) {
	r := New()
	r.Add(1)
	done := make(chan struct{})
	_ = r.RemoveAndGetReadyToDetach(1, func() { close(done) }, func() error { return nil })
	<-done

	assert.Nil(t, r.LookupAndMarkProcessingOngoing(1))
}
