// Package notify keeps a rolling list of ephemeral user-facing notices and
// optionally mirrors them to the desktop. It uses github.com/gen2brain/beeep
// for cross-platform desktop notification support.
package notify

import (
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/sr-857/astraguard-client/internal/constants"
	"github.com/sr-857/astraguard-client/internal/events"
	"github.com/sr-857/astraguard-client/internal/logging"
)

// Severity levels for notifications.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Notification is one ephemeral notice. It expires a fixed interval after
// creation and disappears from Active on the next read.
type Notification struct {
	ID        int
	Message   string
	Severity  string
	CreatedAt time.Time
}

// Center collects notifications and expires them after a TTL. Expired
// entries are pruned lazily, on the next Push or Active call.
type Center struct {
	logger  *logging.Logger
	bus     *events.EventBus
	ttl     time.Duration
	clock   func() time.Time
	desktop bool

	mu     sync.Mutex
	nextID int
	list   []Notification
}

// Options configures optional Center collaborators.
type Options struct {
	// Logger defaults to a no-op logger.
	Logger *logging.Logger

	// Bus receives a notification event per Push. Optional.
	Bus *events.EventBus

	// TTL overrides the default expiry interval.
	TTL time.Duration

	// Desktop mirrors warning and error notices to the OS notification
	// area via beeep.
	Desktop bool

	// Clock defaults to time.Now. Injectable for tests.
	Clock func() time.Time
}

// NewCenter creates a notification center.
func NewCenter(opts Options) *Center {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.TTL <= 0 {
		opts.TTL = constants.NotificationTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Center{
		logger:  opts.Logger,
		bus:     opts.Bus,
		ttl:     opts.TTL,
		clock:   opts.Clock,
		desktop: opts.Desktop,
	}
}

// Push adds a notification and returns it.
func (c *Center) Push(message, severity string) Notification {
	now := c.clock()

	c.mu.Lock()
	c.pruneLocked(now)
	c.nextID++
	n := Notification{
		ID:        c.nextID,
		Message:   message,
		Severity:  severity,
		CreatedAt: now,
	}
	c.list = append(c.list, n)
	c.mu.Unlock()

	c.logger.Debug().
		Str("severity", severity).
		Str("message", message).
		Msg("notification pushed")

	if c.bus != nil {
		c.bus.PublishNotification(message, severity)
	}

	if c.desktop && severity != SeverityInfo {
		// Best effort; a missing notification daemon is not an error worth
		// surfacing to the caller.
		if err := beeep.Notify("AstraGuard", message, ""); err != nil {
			c.logger.Debug().Err(err).Msg("desktop notification failed")
		}
	}

	return n
}

// Active returns the notifications that have not expired, oldest first.
func (c *Center) Active() []Notification {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)

	out := make([]Notification, len(c.list))
	copy(out, c.list)
	return out
}

// Dismiss removes a notification before its TTL elapses.
func (c *Center) Dismiss(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, n := range c.list {
		if n.ID == id {
			c.list = append(c.list[:i], c.list[i+1:]...)
			return
		}
	}
}

// pruneLocked drops expired entries. Caller holds c.mu.
func (c *Center) pruneLocked(now time.Time) {
	cutoff := now.Add(-c.ttl)
	kept := c.list[:0]
	for _, n := range c.list {
		if n.CreatedAt.After(cutoff) {
			kept = append(kept, n)
		}
	}
	c.list = kept
}
