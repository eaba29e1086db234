// Package constants centralizes tuning knobs for the AstraGuard client.
// Values here are defaults; anything user-facing can be overridden through
// internal/config.
package constants

import (
	"time"
)

// Admission control defaults
const (
	// DefaultMaxRequestsPerMinute - base per-endpoint budget over the sliding
	// 60-second window. Scaled down by the capacity policy when the backend
	// reports degraded or critical health.
	DefaultMaxRequestsPerMinute = 60

	// DefaultMaxConcurrentRequests - base cap on in-flight requests.
	DefaultMaxConcurrentRequests = 5

	// DefaultMaxQueueDepth - maximum number of requests waiting for a
	// dispatch slot. Submissions beyond this are rejected with ErrQueueFull.
	// 0 disables the bound.
	DefaultMaxQueueDepth = 1000

	// DefaultPriority - priority assigned to requests that don't ask for one.
	DefaultPriority = 1

	// RateLimitWindow - lookback for the per-endpoint sliding window.
	// Endpoints idle longer than this are evicted and start from zero.
	RateLimitWindow = time.Minute
)

// Backoff configuration
const (
	// DefaultBackoffMultiplier - factor applied to the server's Retry-After
	// value when arming the global backoff clock.
	DefaultBackoffMultiplier = 2.0

	// DefaultMaxBackoffTime - ceiling on a single backoff period regardless
	// of what Retry-After requests.
	DefaultMaxBackoffTime = 30 * time.Second

	// DefaultRetryAfter - assumed Retry-After when the 429 response carries
	// no parseable header.
	DefaultRetryAfter = 1 * time.Second
)

// Health polling
const (
	// DefaultHealthCheckInterval - how often the poller fetches
	// /health/state from the backend.
	DefaultHealthCheckInterval = 10 * time.Second

	// HealthFetchTimeout - per-poll deadline. A poll that can't complete in
	// this window counts as a failure and synthesizes a degraded snapshot.
	HealthFetchTimeout = 5 * time.Second

	// HealthFetchRetryMax - transparent retries for the (idempotent) health
	// GET before declaring the poll failed.
	HealthFetchRetryMax = 2
)

// Request execution
const (
	// DefaultRequestTimeout - per-request deadline enforced at dispatch.
	// A request that exceeds it fails with a network-class error and frees
	// its concurrency slot. 0 disables the deadline.
	DefaultRequestTimeout = 60 * time.Second
)

// Caller-side retry (retry package)
const (
	// DefaultMaxRetries - bounded re-submission attempts for rate-limit
	// failures when the caller opts in.
	DefaultMaxRetries = 3

	// LocalRetryBaseDelay - first retry delay after a local admission
	// rejection. The local window is a full minute, so retrying sooner
	// would just be rejected again.
	LocalRetryBaseDelay = 60 * time.Second

	// ServerRetryBaseDelay - first retry delay after a server 429 when the
	// response carried no usable Retry-After.
	ServerRetryBaseDelay = 30 * time.Second
)

// Notifications
const (
	// NotificationTTL - how long a notification stays visible before the
	// center prunes it.
	NotificationTTL = 5 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second
)
