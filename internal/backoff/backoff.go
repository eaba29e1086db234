// Package backoff holds the client-wide quiet period imposed after the
// backend signals overload. One clock gates all traffic: a single
// overloaded endpoint throttles everything, a deliberately conservative
// choice since the backend is one logical service.
package backoff

import (
	"context"
	"sync"
	"time"
)

// Controller tracks a single "quiet until" timestamp. The zero timestamp
// means no backoff is active. Only the request executor arms it, and only
// on receipt of a server rate-limit response.
type Controller struct {
	mu         sync.Mutex
	until      time.Time
	multiplier float64
	max        time.Duration
	clock      func() time.Time
}

// NewController creates a controller that scales Retry-After values by
// multiplier and caps the resulting quiet period at max.
func NewController(multiplier float64, max time.Duration) *Controller {
	if multiplier < 1 {
		multiplier = 1
	}
	return &Controller{
		multiplier: multiplier,
		max:        max,
		clock:      time.Now,
	}
}

// SetClock overrides the time source. For tests.
func (c *Controller) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// Arm sets the quiet period from a server-requested Retry-After duration:
// until = now + min(retryAfter x multiplier, max). Returns the resulting
// deadline. Re-arming always overwrites; the most recent overload signal
// wins.
func (c *Controller) Arm(retryAfter time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := time.Duration(float64(retryAfter) * c.multiplier)
	if d > c.max {
		d = c.max
	}
	c.until = c.clock().Add(d)
	return c.until
}

// Active reports whether a quiet period is currently in force.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock().Before(c.until)
}

// Until returns the current quiet-until deadline (zero when inactive).
func (c *Controller) Until() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.until
}

// Wait blocks until the quiet period has elapsed or ctx is done. A backoff
// re-armed while waiting is observed: the loop re-checks the deadline after
// every sleep. Returns ctx.Err() on cancellation.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		remaining := c.until.Sub(c.clock())
		c.mu.Unlock()

		if remaining <= 0 {
			return nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
