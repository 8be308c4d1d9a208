package sources

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// HTTPClientConfig configures the shared provider HTTP client.
type HTTPClientConfig struct {
	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g. "X-API-Key").
	APIKeyHeader string
}

// HTTPClient wraps http.Client with per-source rate limiting and default
// headers. Retry policy is deliberately not built in: callers wrap requests
// in the resilience layer so that retry behavior is uniform across providers
// and download locations.
//
// HTTPClient is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a rate-limited HTTP client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Meridian-PublicationDiscovery/1.0"
	}

	return &HTTPClient{
		client:      &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes an HTTP request after waiting for the rate limiter and
// applying the configured default headers.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	if err := c.rateLimiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	return c.client.Do(req)
}

// RetryAfter extracts the Retry-After delay from a throttled response.
// It supports both delta-seconds and HTTP-date forms and returns zero when
// the header is absent or unparseable.
func RetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return 0
}

// ClassifyResponse converts a non-OK HTTP response into the domain error
// taxonomy, carrying the server's Retry-After delay so the retry loop can
// honor it instead of its own backoff schedule.
func ClassifyResponse(source string, resp *http.Response) *domain.SourceError {
	srcErr := domain.NewHTTPSourceError(source, resp.StatusCode)
	srcErr.RetryAfter = RetryAfter(resp)
	return srcErr
}

// ClassifyError converts a transport-level error from Do into the domain
// error taxonomy for the named source.
func ClassifyError(source string, err error) *domain.SourceError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewSourceError(source, domain.KindTimeout, err)
	case errors.Is(err, context.Canceled):
		return domain.NewSourceError(source, domain.KindFatal, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewSourceError(source, domain.KindTimeout, err)
	}

	// Connection resets, refused connections, and DNS failures are
	// transient from the orchestrator's point of view.
	return domain.NewSourceError(source, domain.KindTransient, err)
}
