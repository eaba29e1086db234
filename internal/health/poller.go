package health

import (
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/sr-857/astraguard-client/internal/constants"
	"github.com/sr-857/astraguard-client/internal/events"
	"github.com/sr-857/astraguard-client/internal/logging"
)

// Poller periodically fetches {baseURL}/health/state and keeps the latest
// classified snapshot. The health GET is idempotent, so transient transport
// failures are retried transparently through retryablehttp before the poll
// is declared failed.
type Poller struct {
	httpClient *nethttp.Client
	baseURL    string
	interval   time.Duration
	logger     *logging.Logger
	bus        *events.EventBus
	clock      func() time.Time

	// OnSnapshot, if set, is invoked with every new snapshot (including the
	// degraded fallback). Set before Start; called from the poll goroutine.
	OnSnapshot func(Snapshot)

	mu     sync.RWMutex
	latest Snapshot

	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// Options configures optional Poller collaborators.
type Options struct {
	// Interval overrides the default poll period.
	Interval time.Duration

	// HTTPClient is the base transport. Defaults to a plain client; tests
	// inject an httptest-backed one.
	HTTPClient *nethttp.Client

	// Logger defaults to a no-op logger.
	Logger *logging.Logger

	// Bus receives health_changed events on status transitions. Optional.
	Bus *events.EventBus

	// Clock defaults to time.Now. Injectable for tests.
	Clock func() time.Time
}

// NewPoller creates a poller for the given backend. It does not start
// polling until Start is called; until the first poll completes, Latest
// returns a healthy zero snapshot so a fresh client is not throttled by
// data it never fetched.
func NewPoller(baseURL string, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = constants.DefaultHealthCheckInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = constants.HealthFetchRetryMax
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 1 * time.Second
	retryClient.HTTPClient = &nethttp.Client{Timeout: constants.HealthFetchTimeout}
	if opts.HTTPClient != nil {
		// Shallow copy so the fetch timeout never leaks into the caller's
		// shared client.
		hc := *opts.HTTPClient
		if hc.Timeout == 0 {
			hc.Timeout = constants.HealthFetchTimeout
		}
		retryClient.HTTPClient = &hc
	}
	retryClient.Logger = nil // health polls are chatty; outcomes are logged below

	now := opts.Clock()
	return &Poller{
		httpClient: retryClient.StandardClient(),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		interval:   opts.Interval,
		logger:     opts.Logger,
		bus:        opts.Bus,
		clock:      opts.Clock,
		latest: Snapshot{
			Status:    StatusHealthy,
			Timestamp: now,
		},
		stopCh: make(chan struct{}),
	}
}

// Latest returns the most recent snapshot.
func (p *Poller) Latest() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Start begins polling in its own goroutine. The first poll fires
// immediately so the capacity policy has real data before any request is
// dispatched. Start is a no-op if called twice.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run()
}

// Stop halts polling. Idempotent; in-flight requests elsewhere in the
// client are unaffected.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

func (p *Poller) run() {
	p.pollOnce()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.pollOnce()
		}
	}
}

// pollOnce fetches, classifies, and stores one snapshot. Any failure
// (transport error after retries, non-2xx, bad body) synthesizes the
// degraded fallback instead of leaving the previous snapshot stale.
func (p *Poller) pollOnce() {
	snap, err := p.fetch()
	if err != nil {
		p.logger.Warn().Err(err).Msg("health poll failed, assuming degraded backend")
		snap = degradedFallback(p.clock())
	}

	p.mu.Lock()
	prev := p.latest
	p.latest = snap
	p.mu.Unlock()

	if prev.Status != snap.Status {
		p.logger.Info().
			Str("old_status", string(prev.Status)).
			Str("new_status", string(snap.Status)).
			Float64("cpu", snap.CPUUsage).
			Float64("memory", snap.MemoryUsage).
			Float64("anomaly", snap.AnomalyScore).
			Msg("backend health status changed")

		if p.bus != nil {
			p.bus.Publish(&events.HealthEvent{
				BaseEvent: events.BaseEvent{EventType: events.EventHealthChanged, Time: snap.Timestamp},
				OldStatus: string(prev.Status),
				NewStatus: string(snap.Status),
				CPUUsage:  snap.CPUUsage,
				Memory:    snap.MemoryUsage,
				Anomaly:   snap.AnomalyScore,
			})
		}
	}

	if p.OnSnapshot != nil {
		p.OnSnapshot(snap)
	}
}

func (p *Poller) fetch() (Snapshot, error) {
	resp, err := p.httpClient.Get(p.baseURL + "/health/state")
	if err != nil {
		return Snapshot{}, fmt.Errorf("health fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return Snapshot{}, fmt.Errorf("health fetch returned status %d", resp.StatusCode)
	}

	var wire wireSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode health response: %w", err)
	}

	return newSnapshot(wire, p.clock()), nil
}
