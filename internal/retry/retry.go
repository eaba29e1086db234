// Package retry wraps individual client calls with bounded, exponentially
// delayed re-submission for rate-limit failures. It sits above the client:
// only errors the executor already classified as rate limiting (local or
// server) are retried, and only when the caller opted in. HTTP status and
// transport errors always surface unmodified.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sr-857/astraguard-client/internal/api"
	"github.com/sr-857/astraguard-client/internal/constants"
	"github.com/sr-857/astraguard-client/internal/logging"
	"github.com/sr-857/astraguard-client/internal/notify"
)

// CallFunc is one attempt of the underlying request.
type CallFunc func(ctx context.Context) (*api.Response, error)

// State describes the caller-visible progress of a wrapped call. It is
// reported before the first attempt, before each sleep, and once at the end.
type State struct {
	Loading     bool
	RateLimited bool
	Attempt     int           // Attempts completed so far
	NextRetryIn time.Duration // Zero unless a retry is scheduled
	Err         error         // Final error, set only on the last report
}

// Options configures the retry wrapper.
type Options struct {
	// RetryOnRateLimit enables re-submission. When false every error is
	// final after the first attempt.
	RetryOnRateLimit bool

	// MaxRetries bounds re-submissions (not counting the first attempt).
	// Zero selects the default.
	MaxRetries int

	// OnState, if set, receives progress updates.
	OnState func(State)

	// Notifier, if set, receives a "too many requests" notice per retry.
	Notifier *notify.Center

	// Logger defaults to a no-op logger.
	Logger *logging.Logger

	// Sleep waits out the retry delay. Defaults to a context-aware
	// time.Timer wait. Injectable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs fn, retrying rate-limit failures with exponential delay. The
// delay for retry n (1-based) is base × 2^(n-1), where base depends on
// which side rejected the request: the local admission limiter backs off
// for a full window, the server's own signal is trusted to recover sooner.
func Do(ctx context.Context, fn CallFunc, opts Options) (*api.Response, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = constants.DefaultMaxRetries
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	report := func(s State) {
		if opts.OnState != nil {
			opts.OnState(s)
		}
	}

	attempts := 0
	report(State{Loading: true})

	for {
		resp, err := fn(ctx)
		if err == nil {
			report(State{})
			return resp, nil
		}

		if !opts.RetryOnRateLimit || !api.IsRateLimited(err) || attempts >= opts.MaxRetries {
			report(State{Err: err})
			return nil, err
		}

		attempts++
		delay := retryDelay(err, attempts)

		opts.Logger.Info().
			Err(err).
			Int("attempt", attempts).
			Int("max_retries", opts.MaxRetries).
			Dur("delay", delay).
			Msg("rate limited, retry scheduled")
		if opts.Notifier != nil {
			opts.Notifier.Push(
				fmt.Sprintf("Too many requests, retrying in %ds (attempt %d/%d)",
					int(delay.Seconds()), attempts, opts.MaxRetries),
				notify.SeverityWarning,
			)
		}
		report(State{Loading: true, RateLimited: true, Attempt: attempts, NextRetryIn: delay})

		if err := opts.Sleep(ctx, delay); err != nil {
			report(State{Err: err})
			return nil, err
		}
	}
}

// retryDelay computes the delay before retry number attempt (1-based).
func retryDelay(err error, attempt int) time.Duration {
	base := constants.LocalRetryBaseDelay
	if api.IsServerBackoff(err) {
		base = constants.ServerRetryBaseDelay
	}
	return base * time.Duration(1<<(attempt-1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
