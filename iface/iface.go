// Package iface implements the Interface of §4.F: the top-level object an
// application holds, owning a pool of Drivers (each pumped by its own
// worker goroutine), an optional Chronology for scheduled callbacks, a
// reservation counter bounding how many sockets may be outstanding, and any
// configured rate limiters.
package iface

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kayalabs/netcore"
	"github.com/kayalabs/netcore/chronology"
	"github.com/kayalabs/netcore/driver"
	"github.com/kayalabs/netcore/driver/reactor"
	"github.com/kayalabs/netcore/log"
	"github.com/kayalabs/netcore/queue"
)

var logger = log.Component("iface")

// Policy selects how CreateStreamSocket/CreateDatagramSocket/
// CreateListenerSocket pick a Driver out of the pool for a new socket.
type Policy int

const (
	// PolicyRoundRobin assigns drivers in rotation.
	PolicyRoundRobin Policy = iota
	// PolicyLeastLoaded assigns the driver with the fewest sockets
	// currently reserved against it.
	PolicyLeastLoaded
	// PolicyFixed always returns the driver selected by
	// netcore.LoadBalanceOptions.ThreadIndex.
	PolicyFixed
)

// Interface is the application-facing handle over a pool of Drivers.
type Interface struct {
	config  *netcore.Config
	policy  Policy
	metrics netcore.Metrics

	mu         sync.Mutex
	drivers    []driver.Driver
	load       []int64 // sockets reserved per driver index, for PolicyLeastLoaded
	nextRR     uint64
	chronology *chronology.Chronology
	rateLimit  queue.RateLimiter

	reservations atomic.Int64
	maxReservations int64

	wg       sync.WaitGroup
	stopping chan struct{}
	stopOnce sync.Once
}

// New builds an Interface with numDrivers reactor-backed Drivers, starts
// one worker goroutine per driver pumping Poll in a loop, and optionally
// starts a Chronology goroutine if withChronology is true.
func New(numDrivers int, policy Policy, config *netcore.Config, withChronology bool) (*Interface, error) {
	if config == nil {
		config = netcore.NewConfig()
	}
	if numDrivers < 1 {
		numDrivers = 1
	}

	iface := &Interface{
		config:          config,
		policy:          policy,
		metrics:         config.Metrics,
		drivers:         make([]driver.Driver, numDrivers),
		load:            make([]int64, numDrivers),
		maxReservations: 1 << 20,
		stopping:        make(chan struct{}),
	}

	for i := 0; i < numDrivers; i++ {
		r, err := reactor.New(config.Metrics)
		if err != nil {
			iface.CloseAll()
			return nil, err
		}
		iface.drivers[i] = r
	}

	if withChronology {
		iface.chronology = chronology.New()
	}

	iface.wg.Add(numDrivers)
	for i, d := range iface.drivers {
		go iface.runWorker(i, d)
	}
	if iface.chronology != nil {
		iface.wg.Add(1)
		go iface.runChronology()
	}
	return iface, nil
}

func (iface *Interface) runWorker(index int, d driver.Driver) {
	defer iface.wg.Done()
	for {
		select {
		case <-iface.stopping:
			return
		default:
		}
		if err := d.Poll(iface.config.PollTimeout); err != nil {
			logger.Warn().Err(err).Int("driver", index).Msg("poll error")
		}
	}
}

func (iface *Interface) runChronology() {
	defer iface.wg.Done()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-iface.stopping:
			return
		case <-ticker.C:
			iface.chronology.Announce(false)
		}
	}
}

// Chronology exposes the Interface's scheduled-callback facility, if one was
// requested at construction.
func (iface *Interface) Chronology() *chronology.Chronology { return iface.chronology }

// SetRateLimiter stores rl on the Interface. Sockets created by this
// Interface's factory do not receive it: each WriteQueue consults only its
// own RateLimiter field, which is left for the caller to set.
func (iface *Interface) SetRateLimiter(rl queue.RateLimiter) { iface.rateLimit = rl }

// SetMaxReservations bounds how many outstanding sockets (open or pending
// close) this Interface permits at once; ReserveSocket fails with
// CodeWouldBlock past this limit, the way the Queue's high watermark fails
// fast rather than blocking.
func (iface *Interface) SetMaxReservations(max int64) { iface.maxReservations = max }

// ReserveSocket increments the reservation counter, or fails if the
// Interface is at capacity. Every successful reservation must be paired
// with exactly one ReleaseSocket.
func (iface *Interface) ReserveSocket() error {
	for {
		cur := iface.reservations.Load()
		if cur >= iface.maxReservations {
			return netcore.ErrWouldBlock
		}
		if iface.reservations.CompareAndSwap(cur, cur+1) {
			return nil
		}
	}
}

// ReleaseSocket decrements the reservation counter.
func (iface *Interface) ReleaseSocket() { iface.reservations.Add(-1) }

// SelectDriver picks one Driver from the pool per the configured Policy.
func (iface *Interface) SelectDriver(opts netcore.LoadBalanceOptions) (driver.Driver, int) {
	iface.mu.Lock()
	defer iface.mu.Unlock()

	n := len(iface.drivers)
	switch iface.policy {
	case PolicyFixed:
		idx := opts.ThreadIndex
		if !opts.IndexSet || idx < 0 || idx >= n {
			idx = 0
		}
		return iface.drivers[idx], idx
	case PolicyLeastLoaded:
		best := 0
		for i := 1; i < n; i++ {
			if iface.load[i] < iface.load[best] {
				best = i
			}
		}
		iface.load[best]++
		return iface.drivers[best], best
	default: // PolicyRoundRobin
		idx := int(iface.nextRR % uint64(n))
		iface.nextRR++
		return iface.drivers[idx], idx
	}
}

// ReleaseDriverLoad decrements the load counter PolicyLeastLoaded uses, once
// a socket assigned to driverIndex closes.
func (iface *Interface) ReleaseDriverLoad(driverIndex int) {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	if driverIndex >= 0 && driverIndex < len(iface.load) && iface.load[driverIndex] > 0 {
		iface.load[driverIndex]--
	}
}

// Metrics returns the Interface's configured Metrics collector, which may
// be nil.
func (iface *Interface) Metrics() netcore.Metrics { return iface.metrics }

// Linger blocks until every driver worker (and the chronology goroutine, if
// any) has exited, or timeout elapses first.
func (iface *Interface) Linger(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		iface.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Shutdown signals every worker goroutine to stop after its current Poll
// call returns; it does not close the underlying Drivers (use CloseAll for
// that once Linger confirms the workers have exited).
func (iface *Interface) Shutdown() {
	iface.stopOnce.Do(func() { close(iface.stopping) })
}

// CloseAll shuts down workers, waits for them to exit, then closes every
// Driver in the pool.
func (iface *Interface) CloseAll() error {
	iface.Shutdown()
	iface.Linger(5 * time.Second)

	var firstErr error
	for _, d := range iface.drivers {
		if d == nil {
			continue
		}
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
