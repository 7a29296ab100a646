package iface

import (
	"testing"
	"time"

	"github.com/kayalabs/netcore"
	"github.com/stretchr/testify/require"
)

func newTestInterface(t *testing.T, numDrivers int, policy Policy) *Interface {
	t.Helper()
	cfg := netcore.NewConfig(netcore.WithPollTimeout(5 * time.Millisecond))
	i, err := New(numDrivers, policy, cfg, false)
	require.NoError(t, err)
	t.Cleanup(func() { i.CloseAll() })
	return i
}

func TestSelectDriverRoundRobin(t *testing.T) {
	i := newTestInterface(t, 3, PolicyRoundRobin)

	var indices []int
	for n := 0; n < 6; n++ {
		_, idx := i.SelectDriver(netcore.LoadBalanceOptions{})
		indices = append(indices, idx)
	}
	require.Equal(t, []int{0, 1, 2, 0, 1, 2}, indices)
}

func TestSelectDriverFixedIndex(t *testing.T) {
	i := newTestInterface(t, 3, PolicyFixed)

	_, idx := i.SelectDriver(netcore.LoadBalanceOptions{ThreadIndex: 2, IndexSet: true})
	require.Equal(t, 2, idx)

	// An unset index, or one out of range, falls back to driver 0.
	_, idx = i.SelectDriver(netcore.LoadBalanceOptions{})
	require.Equal(t, 0, idx)
	_, idx = i.SelectDriver(netcore.LoadBalanceOptions{ThreadIndex: 99, IndexSet: true})
	require.Equal(t, 0, idx)
}

func TestSelectDriverLeastLoaded(t *testing.T) {
	i := newTestInterface(t, 2, PolicyLeastLoaded)

	_, idxA := i.SelectDriver(netcore.LoadBalanceOptions{})
	_, idxB := i.SelectDriver(netcore.LoadBalanceOptions{})
	require.NotEqual(t, idxA, idxB, "least-loaded should spread across both drivers when loads are equal")

	i.ReleaseDriverLoad(idxA)
	_, idxC := i.SelectDriver(netcore.LoadBalanceOptions{})
	require.Equal(t, idxA, idxC, "releasing load should make that driver the next least-loaded pick")
}

func TestReserveSocketRespectsLimit(t *testing.T) {
	i := newTestInterface(t, 1, PolicyRoundRobin)
	i.SetMaxReservations(2)

	require.NoError(t, i.ReserveSocket())
	require.NoError(t, i.ReserveSocket())
	require.Error(t, i.ReserveSocket())

	i.ReleaseSocket()
	require.NoError(t, i.ReserveSocket())
}

func TestCloseAllStopsWorkers(t *testing.T) {
	i := newTestInterface(t, 2, PolicyRoundRobin)
	require.False(t, i.Linger(50*time.Millisecond), "workers should still be running before CloseAll")
	require.NoError(t, i.CloseAll())
	require.True(t, i.Linger(2*time.Second), "workers should have exited after CloseAll")
}
