// Package api provides the admission-controlled client for the AstraGuard
// backend. This file defines the error taxonomy; classification happens
// exactly once, at the executor boundary, and every layer above only
// inspects already-classified errors.
package api

import (
	"errors"
	"fmt"
	"time"
)

// ErrQueueFull indicates the admission queue hit its configured depth.
// The request was rejected at submission time and never held a slot.
var ErrQueueFull = errors.New("admission queue is full")

// RateLimitError is a local admission rejection: the endpoint's sliding
// 60-second window is already at its effective budget. Requests failing
// this way never reach the network.
type RateLimitError struct {
	Endpoint string // Stripped endpoint key
	Limit    int    // Effective per-minute cap at rejection time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit %d/min)", e.Endpoint, e.Limit)
}

// ServerBackoffError reports that the backend answered 429. Receiving it
// means the global backoff clock has already been armed.
type ServerBackoffError struct {
	Endpoint   string
	RetryAfter time.Duration // As requested by the server (or the 1s default)
	Until      time.Time     // Effective quiet-until after multiplier and cap
}

func (e *ServerBackoffError) Error() string {
	return fmt.Sprintf("server rate limited %s, retry after %s", e.Endpoint, e.RetryAfter)
}

// HTTPStatusError is any other non-2xx response. It is never retried
// automatically.
type HTTPStatusError struct {
	Status     int
	StatusText string
	Body       string // Truncated response body for diagnostics
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.StatusText, e.Body)
	}
	return fmt.Sprintf("HTTP %d %s", e.Status, e.StatusText)
}

// NetworkError is a transport-level failure (DNS, connection refused,
// timeout, cancelled context). The cause is wrapped unmodified.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is either rate-limit class: a local
// admission rejection or a server 429. These are the only errors the retry
// layer re-submits.
func IsRateLimited(err error) bool {
	var local *RateLimitError
	var server *ServerBackoffError
	return errors.As(err, &local) || errors.As(err, &server)
}

// IsServerBackoff reports whether err carries a server 429.
func IsServerBackoff(err error) bool {
	var server *ServerBackoffError
	return errors.As(err, &server)
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
