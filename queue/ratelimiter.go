package queue

import (
	"time"

	"github.com/joeycumines/go-utilpkg/catrate"
)

// CatRateLimiter adapts catrate's multi-window sliding-log limiter to the
// RateLimiter interface WriteQueue and the Driver consult before draining or
// delivering. A WriteQueue configured with one models per-connection or
// per-peer send shaping; an Interface-wide instance models a global cap
// across every socket it owns.
type CatRateLimiter struct {
	limiter *catrate.Limiter
}

// NewCatRateLimiter builds a RateLimiter enforcing every window in rates
// simultaneously (e.g. 50 sends/second and 1000/minute). Panics if rates is
// invalid (non-positive windows/counts, or non-monotonic across windows),
// matching catrate.NewLimiter's own contract.
func NewCatRateLimiter(rates map[time.Duration]int) *CatRateLimiter {
	return &CatRateLimiter{limiter: catrate.NewLimiter(rates)}
}

// Allow reports whether category may proceed now, per catrate's sliding-log
// accounting.
func (c *CatRateLimiter) Allow(category any) (time.Time, bool) {
	return c.limiter.Allow(category)
}
