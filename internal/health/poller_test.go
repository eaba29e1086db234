package health

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sr-857/astraguard-client/internal/events"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// waitFor polls cond until true or the deadline lapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func TestPollerFetchesAndClassifies(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/state" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cpu_usage": 95, "memory_usage": 40, "active_connections": 7, "anomaly_score": 0.2}`))
	})

	p := NewPoller(server.URL, Options{
		Interval:   time.Hour, // only the immediate first poll should fire
		HTTPClient: server.Client(),
	})
	p.Start()
	defer p.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return p.Latest().Status == StatusCritical
	})

	snap := p.Latest()
	if snap.CPUUsage != 95 || snap.ActiveConnections != 7 {
		t.Errorf("Snapshot = %+v, want cpu 95 and 7 connections", snap)
	}
}

func TestPollerInitialSnapshotIsHealthy(t *testing.T) {
	p := NewPoller("http://unused.invalid", Options{})

	snap := p.Latest()
	if snap.Status != StatusHealthy {
		t.Errorf("Initial status = %s, want healthy", snap.Status)
	}
}

func TestPollerFallsBackOnServerError(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	p := NewPoller(server.URL, Options{
		Interval:   time.Hour,
		HTTPClient: server.Client(),
	})
	p.Start()
	defer p.Stop()

	waitFor(t, 5*time.Second, func() bool {
		return p.Latest().Status == StatusDegraded
	})

	snap := p.Latest()
	if snap.CPUUsage != 80 || snap.AnomalyScore != 0.7 {
		t.Errorf("Fallback snapshot = %+v, want conservative placeholders", snap)
	}
}

func TestPollerFallsBackOnBadBody(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	p := NewPoller(server.URL, Options{
		Interval:   time.Hour,
		HTTPClient: server.Client(),
	})
	p.Start()
	defer p.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return p.Latest().Status == StatusDegraded
	})
}

func TestPollerPublishesTransitions(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cpu_usage": 75}`))
	})

	bus := events.NewEventBus(10)
	defer bus.Close()
	eventCh := bus.Subscribe(events.EventHealthChanged)

	p := NewPoller(server.URL, Options{
		Interval:   time.Hour,
		HTTPClient: server.Client(),
		Bus:        bus,
	})
	p.Start()
	defer p.Stop()

	select {
	case ev := <-eventCh:
		he, ok := ev.(*events.HealthEvent)
		if !ok {
			t.Fatalf("Expected HealthEvent, got %T", ev)
		}
		if he.OldStatus != string(StatusHealthy) || he.NewStatus != string(StatusDegraded) {
			t.Errorf("Transition %s -> %s, want healthy -> degraded", he.OldStatus, he.NewStatus)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No health transition event published")
	}
}

func TestPollerOnSnapshotCallback(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cpu_usage": 10}`))
	})

	var calls atomic.Int64
	p := NewPoller(server.URL, Options{
		Interval:   20 * time.Millisecond,
		HTTPClient: server.Client(),
	})
	p.OnSnapshot = func(Snapshot) { calls.Add(1) }
	p.Start()
	defer p.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return calls.Load() >= 2
	})
}

func TestPollerStopHaltsPolling(t *testing.T) {
	var hits atomic.Int64
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"cpu_usage": 10}`))
	})

	p := NewPoller(server.URL, Options{
		Interval:   10 * time.Millisecond,
		HTTPClient: server.Client(),
	})
	p.Start()

	waitFor(t, 2*time.Second, func() bool { return hits.Load() >= 2 })

	p.Stop()
	p.Stop() // idempotent

	settled := hits.Load()
	time.Sleep(100 * time.Millisecond)
	// Allow one in-flight poll to finish after Stop.
	if after := hits.Load(); after > settled+1 {
		t.Errorf("Polling continued after Stop: %d -> %d hits", settled, after)
	}
}
