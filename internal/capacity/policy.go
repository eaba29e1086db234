// Package capacity scales the client's base limits by backend health.
// Degrading proportionally rather than on/off keeps some throughput
// flowing while sharply reducing load exactly when the backend reports
// stress; this is a graceful-degradation contract, not a circuit breaker.
package capacity

import (
	"math"
	"sync"

	"github.com/sr-857/astraguard-client/internal/health"
)

// Limits is a pair of admission ceilings.
type Limits struct {
	// RequestsPerMinute caps each endpoint's trailing 60-second budget.
	RequestsPerMinute int

	// ConcurrentRequests caps simultaneously in-flight requests.
	ConcurrentRequests int
}

// Multiplier maps a health status to a capacity scaling factor.
func Multiplier(status health.Status) float64 {
	switch status {
	case health.StatusCritical:
		return 0.2
	case health.StatusDegraded:
		return 0.5
	default:
		return 1.0
	}
}

// Scale applies a multiplier to base limits, flooring the results.
func Scale(base Limits, multiplier float64) Limits {
	return Limits{
		RequestsPerMinute:  int(math.Floor(float64(base.RequestsPerMinute) * multiplier)),
		ConcurrentRequests: int(math.Floor(float64(base.ConcurrentRequests) * multiplier)),
	}
}

// Policy keeps the base limits immutable and recomputes the effective
// limits on every health transition. The base values are never written
// after construction, so repeated transitions can't corrode the configured
// ceilings.
type Policy struct {
	base Limits

	mu        sync.RWMutex
	effective Limits
	status    health.Status
}

// NewPolicy creates a policy starting at full (healthy) capacity.
func NewPolicy(base Limits) *Policy {
	return &Policy{
		base:      base,
		effective: base,
		status:    health.StatusHealthy,
	}
}

// Base returns the immutable configured limits.
func (p *Policy) Base() Limits {
	return p.base
}

// Effective returns the current scaled limits.
func (p *Policy) Effective() Limits {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.effective
}

// Status returns the health status the current limits were derived from.
func (p *Policy) Status() health.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Apply recomputes the effective limits for a new health status and
// reports whether they changed.
func (p *Policy) Apply(status health.Status) bool {
	scaled := Scale(p.base, Multiplier(status))

	p.mu.Lock()
	defer p.mu.Unlock()
	changed := scaled != p.effective
	p.effective = scaled
	p.status = status
	return changed
}
