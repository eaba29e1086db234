package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock returns a controllable time source.
func fakeClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestKey(t *testing.T) {
	tests := []struct {
		endpoint string
		expected string
	}{
		{"/api/v1/status", "/api/v1/status"},
		{"/api/v1/items?id=1", "/api/v1/items"},
		{"/api/v1/items?id=2&x=y", "/api/v1/items"},
		{"", ""},
		{"?only=query", ""},
	}

	for _, tt := range tests {
		if got := Key(tt.endpoint); got != tt.expected {
			t.Errorf("Key(%q) = %q, want %q", tt.endpoint, got, tt.expected)
		}
	}
}

func TestAllowUntrackedEndpoint(t *testing.T) {
	l := NewLimiter()

	if !l.Allow("/api/x", 5) {
		t.Error("Expected untracked endpoint to be allowed under a positive limit")
	}
	if l.Allow("/api/x", 0) {
		t.Error("Expected a zero limit to reject even untracked endpoints")
	}
	if l.TryAcquire("/api/x", 0) {
		t.Error("Expected TryAcquire to reject under a zero limit")
	}
}

func TestTryAcquireEnforcesLimit(t *testing.T) {
	clock, _ := fakeClock(time.Unix(1000, 0))
	l := NewLimiter()
	l.SetClock(clock)

	limit := 3
	for i := 0; i < limit; i++ {
		if !l.TryAcquire("/api/x", limit) {
			t.Fatalf("Acquisition %d unexpectedly rejected", i+1)
		}
	}

	if l.TryAcquire("/api/x", limit) {
		t.Error("Expected acquisition beyond the per-minute limit to fail")
	}
	if l.Allow("/api/x", limit) {
		t.Error("Expected Allow to agree the endpoint is at its limit")
	}
	if got := l.Count("/api/x"); got != limit {
		t.Errorf("Count = %d, want %d", got, limit)
	}
}

func TestAllowDoesNotConsumeBudget(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < 10; i++ {
		l.Allow("/api/x", 1)
	}
	if got := l.Count("/api/x"); got != 0 {
		t.Errorf("Count after Allow-only calls = %d, want 0", got)
	}
	if !l.TryAcquire("/api/x", 1) {
		t.Error("Expected budget to be intact after Allow-only calls")
	}
}

func TestTryAcquireIsAtomicUnderContention(t *testing.T) {
	l := NewLimiter()
	const limit = 3
	const contenders = 50

	var granted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			// Everyone sees a green light here; only the atomic
			// check-and-increment may hand out budget.
			l.Allow("/api/x", limit)
			if l.TryAcquire("/api/x", limit) {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := granted.Load(); got != limit {
		t.Errorf("Granted %d acquisitions, want exactly %d", got, limit)
	}
	if got := l.Count("/api/x"); got != limit {
		t.Errorf("Count = %d, want %d", got, limit)
	}
}

func TestWindowExpiryResetsCount(t *testing.T) {
	clock, advance := fakeClock(time.Unix(1000, 0))
	l := NewLimiter()
	l.SetClock(clock)

	for i := 0; i < 3; i++ {
		l.TryAcquire("/api/x", 3)
	}
	if l.TryAcquire("/api/x", 3) {
		t.Fatal("Expected endpoint to be at its limit")
	}

	advance(61 * time.Second)

	if !l.TryAcquire("/api/x", 3) {
		t.Error("Expected stale window to be evicted after the lookback elapsed")
	}
	if got := l.Count("/api/x"); got != 1 {
		t.Errorf("Count after expiry and one acquisition = %d, want 1", got)
	}
}

func TestEndpointsAreIndependent(t *testing.T) {
	l := NewLimiter()

	l.TryAcquire("/api/a", 2)
	l.TryAcquire("/api/a", 2)

	if l.TryAcquire("/api/a", 2) {
		t.Error("Expected /api/a to be at its limit")
	}
	if !l.TryAcquire("/api/b", 2) {
		t.Error("Expected /api/b to have an untouched budget")
	}
	if got := l.TrackedEndpoints(); got != 2 {
		t.Errorf("TrackedEndpoints = %d, want 2", got)
	}
}

func TestEvictionRemovesOnlyStaleWindows(t *testing.T) {
	clock, advance := fakeClock(time.Unix(1000, 0))
	l := NewLimiter()
	l.SetClock(clock)

	l.TryAcquire("/api/old", 5)
	advance(45 * time.Second)
	l.TryAcquire("/api/new", 5)
	advance(30 * time.Second)

	// /api/old is 75s stale, /api/new only 30s.
	if got := l.TrackedEndpoints(); got != 1 {
		t.Errorf("TrackedEndpoints = %d, want 1", got)
	}
	if got := l.Count("/api/new"); got != 1 {
		t.Errorf("Count(/api/new) = %d, want 1", got)
	}
}
