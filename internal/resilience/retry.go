// Package resilience provides retry-with-backoff and fallback-chain
// primitives shared by the source fan-out and the download waterfall.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// RetryConfig controls the backoff schedule.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the delay after the first failed attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth of the delay.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the schedule used when the caller supplies
// nothing: 3 attempts, 500ms base, 10s cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

func (c *RetryConfig) applyDefaults() {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
}

// Retryable reports whether an error belongs to the whitelisted set of
// transient failure classes. Non-transient failures (not found, fatal,
// validation) are never retried.
func Retryable(err error) bool {
	var srcErr *domain.SourceError
	if errors.As(err, &srcErr) {
		return srcErr.Retryable()
	}
	return errors.Is(err, domain.ErrTimeout) ||
		errors.Is(err, domain.ErrRateLimited) ||
		errors.Is(err, domain.ErrTransient)
}

// Retry runs op until it succeeds, fails non-retryably, or the attempt
// budget is exhausted. The delay after attempt k is
// min(base*2^k, max) plus uniform random jitter of up to 50% of that
// value, so that many clients backing off from one throttled service do
// not retry in lockstep. When the failure carries a server-requested
// Retry-After delay, that delay is used instead.
//
// Retry returns the last error when all attempts fail, and stops early
// when the context is cancelled.
func Retry[T any](ctx context.Context, cfg RetryConfig, op func(ctx context.Context) (T, error)) (T, error) {
	cfg.applyDefaults()

	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, retryDelay(cfg, attempt-1, lastErr)); err != nil {
				return zero, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Retryable(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}

// retryDelay picks the wait before the next attempt: a throttled source
// that named its own Retry-After delay gets exactly that, everything
// else gets the jittered exponential backoff.
func retryDelay(cfg RetryConfig, k int, lastErr error) time.Duration {
	var srcErr *domain.SourceError
	if errors.As(lastErr, &srcErr) && srcErr.RetryAfter > 0 {
		return srcErr.RetryAfter
	}
	return backoffDelay(cfg, k)
}

// backoffDelay computes the capped exponential delay with jitter for the
// k-th failed attempt (0-based).
func backoffDelay(cfg RetryConfig, k int) time.Duration {
	delay := cfg.BaseDelay << uint(k)
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

// sleep waits for the given duration, respecting context cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
