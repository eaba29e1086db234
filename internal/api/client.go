package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sr-857/astraguard-client/internal/backoff"
	"github.com/sr-857/astraguard-client/internal/capacity"
	"github.com/sr-857/astraguard-client/internal/config"
	"github.com/sr-857/astraguard-client/internal/constants"
	"github.com/sr-857/astraguard-client/internal/events"
	"github.com/sr-857/astraguard-client/internal/health"
	"github.com/sr-857/astraguard-client/internal/httpx"
	"github.com/sr-857/astraguard-client/internal/logging"
	"github.com/sr-857/astraguard-client/internal/queue"
	"github.com/sr-857/astraguard-client/internal/ratelimit"
)

// maxErrorBodyBytes caps how much of an error response body is kept for
// diagnostics.
const maxErrorBodyBytes = 512

// Response is a successful API result.
type Response struct {
	// Data is the raw JSON body. Callers unmarshal into their own types.
	Data json.RawMessage

	Status  int
	Headers nethttp.Header
}

// Client mediates every outbound call to the AstraGuard backend. It owns
// the admission state: the concurrency slots, the priority queue, the
// per-endpoint rate-limit windows, the global backoff clock, and the
// health poller that scales the limits.
//
// All state hangs off the instance; two Clients are fully independent.
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
	maxDepth   int

	logger  *logging.Logger
	bus     *events.EventBus
	policy  *capacity.Policy
	limiter *ratelimit.Limiter
	backoff *backoff.Controller
	poller  *health.Poller
	clock   func() time.Time

	// mu guards the admission state below. Holding it across dispatch is
	// forbidden; it is taken only for the short decide/bookkeep stretches.
	mu     sync.Mutex
	queue  *queue.Queue
	active int

	destroyOnce sync.Once
}

// Option customizes a Client at construction.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithEventBus attaches a bus receiving scheduler events.
func WithEventBus(bus *events.EventBus) Option {
	return func(c *Client) { c.bus = bus }
}

// WithHTTPClient replaces the underlying transport for both request
// execution and health polling. For tests.
func WithHTTPClient(hc *nethttp.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock overrides the time source used for admission decisions.
// For tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) { c.clock = clock }
}

// New creates a Client and starts its health poller.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	c := &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		timeout:  cfg.RequestTimeout,
		maxDepth: cfg.MaxQueueDepth,
		clock:    time.Now,
		queue:    queue.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logging.Nop()
	}
	if c.httpClient == nil {
		hc, err := httpx.NewClient(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
		}
		c.httpClient = hc
	}

	c.policy = capacity.NewPolicy(capacity.Limits{
		RequestsPerMinute:  cfg.MaxRequestsPerMinute,
		ConcurrentRequests: cfg.MaxConcurrentRequests,
	})
	c.limiter = ratelimit.NewLimiter()
	c.limiter.SetClock(c.clock)
	c.backoff = backoff.NewController(cfg.BackoffMultiplier, cfg.MaxBackoffTime)
	c.backoff.SetClock(c.clock)

	c.poller = health.NewPoller(c.baseURL, health.Options{
		Interval:   cfg.HealthCheckInterval,
		HTTPClient: c.httpClient,
		Logger:     c.logger,
		Bus:        c.bus,
		Clock:      c.clock,
	})
	c.poller.OnSnapshot = c.applySnapshot
	c.poller.Start()

	return c, nil
}

// applySnapshot recomputes effective limits when a new health snapshot
// lands, then drains in case the concurrency cap grew.
func (c *Client) applySnapshot(snap health.Snapshot) {
	if !c.policy.Apply(snap.Status) {
		return
	}

	eff := c.policy.Effective()
	c.logger.Info().
		Str("status", string(snap.Status)).
		Int("requests_per_minute", eff.RequestsPerMinute).
		Int("concurrent_requests", eff.ConcurrentRequests).
		Msg("effective limits rescaled")

	c.mu.Lock()
	c.drainLocked()
	c.mu.Unlock()
}

// Get issues a GET request through admission control.
func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, nethttp.MethodGet, endpoint, nil, opts...)
}

// Post issues a POST request with a JSON body through admission control.
func (c *Client) Post(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, nethttp.MethodPost, endpoint, body, opts...)
}

// Put issues a PUT request with a JSON body through admission control.
func (c *Client) Put(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, nethttp.MethodPut, endpoint, body, opts...)
}

// Delete issues a DELETE request through admission control.
func (c *Client) Delete(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, nethttp.MethodDelete, endpoint, nil, opts...)
}

// SystemHealth returns the latest backend health snapshot. Synchronous;
// intended for UI polling.
func (c *Client) SystemHealth() health.Snapshot {
	return c.poller.Latest()
}

// QueueLength returns the number of requests waiting for a dispatch slot.
func (c *Client) QueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// ActiveRequests returns the number of requests currently in flight.
func (c *Client) ActiveRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// EffectiveLimits returns the current health-scaled admission limits.
func (c *Client) EffectiveLimits() capacity.Limits {
	return c.policy.Effective()
}

// BackoffUntil returns the global quiet-until deadline (zero when no
// backoff is active).
func (c *Client) BackoffUntil() time.Time {
	return c.backoff.Until()
}

// Destroy stops the health poller. Requests already submitted, queued or
// in flight, still settle normally. Safe to call more than once.
func (c *Client) Destroy() {
	c.destroyOnce.Do(func() {
		c.poller.Stop()
		c.logger.Debug().Msg("client destroyed, health polling stopped")
	})
}

// do runs one request through admission: acquire a slot (immediately or
// via the queue), pass the rate-limit and backoff gates, execute, then
// free the slot and offer it to the next queued entry.
func (c *Client) do(ctx context.Context, method, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	ro := defaultRequestOptions()
	for _, opt := range opts {
		opt(ro)
	}

	key := ratelimit.Key(endpoint)

	if err := c.acquireSlot(ctx, method, key, ro.priority); err != nil {
		c.publishRequest(events.EventRequestFailed, method, key, ro.priority, err)
		return nil, err
	}

	resp, err := c.dispatch(ctx, method, endpoint, key, body, ro)

	c.mu.Lock()
	c.active--
	c.drainLocked()
	c.mu.Unlock()

	if err != nil {
		c.publishRequest(events.EventRequestFailed, method, key, ro.priority, err)
		return nil, err
	}
	c.publishRequest(events.EventRequestCompleted, method, key, ro.priority, nil)
	return resp, nil
}

// acquireSlot claims a concurrency slot, parking in the priority queue
// when none is free. On success the caller owns one slot and must release
// it. Fast path: a free slot at submission time skips the queue entirely —
// the drain loop keeps the invariant that the queue is only non-empty
// while every slot is taken, so skipping never jumps a queued entry.
func (c *Client) acquireSlot(ctx context.Context, method, key string, priority int) error {
	c.mu.Lock()

	if c.active < c.policy.Effective().ConcurrentRequests {
		c.active++
		c.mu.Unlock()
		return nil
	}

	if c.maxDepth > 0 && c.queue.Len() >= c.maxDepth {
		c.mu.Unlock()
		return ErrQueueFull
	}

	entry := c.queue.Push(priority, c.clock())
	queued := c.queue.Len()
	active := c.active
	c.mu.Unlock()

	c.logger.Debug().
		Str("method", method).
		Str("endpoint", key).
		Int("priority", priority).
		Int("queued", queued).
		Msg("request queued, all slots busy")
	if c.bus != nil {
		c.bus.PublishRequest(events.EventRequestQueued, method, key, priority, queued, active, nil)
	}

	select {
	case <-entry.Ready:
		// Slot granted by the drain loop; active was already incremented
		// on our behalf.
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		select {
		case <-entry.Ready:
			// Lost the race: the drainer released us before we could
			// abandon the entry. Give the slot back.
			c.active--
			c.drainLocked()
		default:
			entry.Abandoned = true
		}
		c.mu.Unlock()
		return &NetworkError{Err: ctx.Err()}
	}
}

// drainLocked hands free slots to queued entries, highest priority first.
// Caller holds c.mu.
func (c *Client) drainLocked() {
	for c.active < c.policy.Effective().ConcurrentRequests && c.queue.Len() > 0 {
		entry := c.queue.Pop()
		if entry == nil {
			return
		}
		if entry.Abandoned {
			continue
		}
		c.active++
		close(entry.Ready)
	}
}

// dispatch performs the admission checks that require an owned slot, then
// executes the network call and classifies the outcome.
func (c *Client) dispatch(ctx context.Context, method, endpoint, key string, body any, ro *requestOptions) (*Response, error) {
	// 1. Local rate limit pre-check. A rejection never reaches the network.
	limit := c.policy.Effective().RequestsPerMinute
	if !c.limiter.Allow(key, limit) {
		c.logger.Debug().
			Str("endpoint", key).
			Int("limit", limit).
			Msg("request rejected by local rate limit")
		return nil, &RateLimitError{Endpoint: key, Limit: limit}
	}

	// 2. Global backoff gate.
	if err := c.backoff.Wait(ctx); err != nil {
		return nil, &NetworkError{Err: err}
	}

	// 3. Budget is consumed at dispatch, never at enqueue. Check and
	// increment happen in one limiter critical section: concurrent
	// dispatchers that all passed the pre-check above still can't push
	// the window past its limit.
	if !c.limiter.TryAcquire(key, limit) {
		c.logger.Debug().
			Str("endpoint", key).
			Int("limit", limit).
			Msg("request rejected by local rate limit")
		return nil, &RateLimitError{Endpoint: key, Limit: limit}
	}

	if c.bus != nil {
		c.bus.PublishRequest(events.EventRequestDispatched, method, key, ro.priority, c.QueueLength(), c.ActiveRequests(), nil)
	}

	// 4. The network call, bounded by the per-request deadline.
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	// Caller-supplied headers win over the defaults.
	for k, vs := range ro.headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		until := c.backoff.Arm(retryAfter)
		io.Copy(io.Discard, resp.Body)

		c.logger.Warn().
			Str("method", method).
			Str("endpoint", key).
			Dur("retry_after", retryAfter).
			Time("backoff_until", until).
			Msg("server rate limited, global backoff armed")
		if c.bus != nil {
			c.bus.Publish(&events.BackoffEvent{
				BaseEvent:  events.BaseEvent{EventType: events.EventBackoffArmed, Time: c.clock()},
				RetryAfter: retryAfter,
				Until:      until,
			})
		}

		return nil, &ServerBackoffError{Endpoint: key, RetryAfter: retryAfter, Until: until}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &HTTPStatusError{
			Status:     resp.StatusCode,
			StatusText: nethttp.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	return &Response{
		Data:    data,
		Status:  resp.StatusCode,
		Headers: resp.Header.Clone(),
	}, nil
}

func (c *Client) publishRequest(eventType events.EventType, method, key string, priority int, err error) {
	if c.bus == nil {
		return
	}
	c.mu.Lock()
	queued := c.queue.Len()
	active := c.active
	c.mu.Unlock()
	c.bus.PublishRequest(eventType, method, key, priority, queued, active, err)
}

// parseRetryAfter reads a Retry-After header as integer seconds, falling
// back to the 1-second default when absent or unparseable.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return constants.DefaultRetryAfter
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return constants.DefaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// requestOptions collects per-request knobs.
type requestOptions struct {
	priority int
	headers  nethttp.Header
}

func defaultRequestOptions() *requestOptions {
	return &requestOptions{
		priority: constants.DefaultPriority,
		headers:  make(nethttp.Header),
	}
}

// RequestOption customizes a single request.
type RequestOption func(*requestOptions)

// WithPriority sets the admission priority. Higher values drain first;
// ties drain in submission order. Priority never preempts in-flight work.
func WithPriority(priority int) RequestOption {
	return func(ro *requestOptions) { ro.priority = priority }
}

// WithHeader adds a request header, overriding the JSON defaults on
// conflict.
func WithHeader(key, value string) RequestOption {
	return func(ro *requestOptions) { ro.headers.Add(key, value) }
}
