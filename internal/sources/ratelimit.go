package sources

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket rate limiter for controlling request
// rates to one external API. It is safe for concurrent use because the
// underlying rate.Limiter is goroutine-safe for all operations.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained requests
// with the given burst size.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// NewIntervalLimiter creates a limiter enforcing a minimum interval between
// requests, with a burst of one. An interval of zero means unlimited.
func NewIntervalLimiter(minInterval time.Duration) *RateLimiter {
	if minInterval <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait blocks until a request is allowed or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow returns true and consumes a token if a request is allowed now.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetRate updates the rate limit while preserving the burst size. Used to
// back off dynamically when an API reports throttling.
func (r *RateLimiter) SetRate(ratePerSecond float64) {
	r.limiter.SetLimit(rate.Limit(ratePerSecond))
}

// Tokens returns the current number of available tokens.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// LimiterPool maintains one rate limiter per source name. The pool is the
// only state shared across concurrent calls to the same provider.
type LimiterPool struct {
	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewLimiterPool creates an empty pool.
func NewLimiterPool() *LimiterPool {
	return &LimiterPool{limiters: make(map[string]*RateLimiter)}
}

// For returns the limiter for the named source, creating one with the given
// minimum interval on first use. Subsequent calls ignore the interval.
func (p *LimiterPool) For(name string, minInterval time.Duration) *RateLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters[name]; ok {
		return l
	}
	l := NewIntervalLimiter(minInterval)
	p.limiters[name] = l
	return l
}
