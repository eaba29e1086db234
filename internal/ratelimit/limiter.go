// Package ratelimit enforces a per-endpoint sliding-window rate limit for
// outbound API calls. Each endpoint key owns a trailing 60-second budget;
// the ceiling itself comes from the capacity policy and can shrink when the
// backend degrades.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/sr-857/astraguard-client/internal/constants"
)

// window tracks one endpoint's activity inside the current lookback.
type window struct {
	lastRequest time.Time // Refreshed on every recorded dispatch
	count       int       // Requests recorded in the current window
}

// Limiter tracks sliding windows per endpoint key.
//
// Windows are pruned lazily: any key whose last recorded request is older
// than the lookback is evicted outright on the next admissibility check,
// resetting its count to zero. There is no background sweeper.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	lookback time.Duration
	clock    func() time.Time
}

// NewLimiter creates a limiter with the standard 60-second lookback.
func NewLimiter() *Limiter {
	return &Limiter{
		windows:  make(map[string]*window),
		lookback: constants.RateLimitWindow,
		clock:    time.Now,
	}
}

// SetClock overrides the time source. For tests.
func (l *Limiter) SetClock(clock func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

// Key normalizes an endpoint into a limiter key by stripping the query
// string, so /api/x?id=1 and /api/x?id=2 share one budget.
func Key(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

// Allow reports whether one more request to key fits under limit.
// It does not consume budget; that happens in TryAcquire at the moment of
// actual dispatch, so queued-but-undispatched requests don't burn quota
// early. A positive Allow is advisory only: the answer can go stale before
// TryAcquire runs.
func (l *Limiter) Allow(key string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	l.evictStale(now)

	w, ok := l.windows[key]
	if !ok {
		return limit > 0
	}
	return w.count < limit
}

// TryAcquire checks key's budget against limit and, when it fits, records
// the dispatch in the same critical section. This is the only admission
// operation that consumes budget: concurrent dispatchers to the same key
// serialize here, so no more than limit acquisitions can succeed per
// window regardless of how many goroutines passed an earlier Allow check.
func (l *Limiter) TryAcquire(key string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	l.evictStale(now)

	w, ok := l.windows[key]
	if !ok {
		if limit <= 0 {
			return false
		}
		l.windows[key] = &window{lastRequest: now, count: 1}
		return true
	}
	if w.count >= limit {
		return false
	}
	w.count++
	w.lastRequest = now
	return true
}

// Count returns the tracked request count for key, 0 if untracked or stale.
func (l *Limiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictStale(l.clock())
	if w, ok := l.windows[key]; ok {
		return w.count
	}
	return 0
}

// TrackedEndpoints returns how many endpoint keys currently hold a window.
func (l *Limiter) TrackedEndpoints() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictStale(l.clock())
	return len(l.windows)
}

// evictStale drops every window not touched within the lookback.
// Caller holds l.mu.
func (l *Limiter) evictStale(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.lastRequest) > l.lookback {
			delete(l.windows, key)
		}
	}
}
