package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

func TestNewHTTPClient(t *testing.T) {
	t.Run("applies default values", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{})

		require.NotNil(t, client)
		assert.Equal(t, 30*time.Second, client.client.Timeout)
		assert.Equal(t, "Meridian-PublicationDiscovery/1.0", client.config.UserAgent)
		assert.Equal(t, float64(10), client.config.RateLimit)
	})
}

func TestHTTPClient_Do(t *testing.T) {
	t.Run("sets User-Agent and API key headers", func(t *testing.T) {
		var gotUserAgent, gotAPIKey string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUserAgent = r.Header.Get("User-Agent")
			gotAPIKey = r.Header.Get("X-API-Key")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewHTTPClient(HTTPClientConfig{
			UserAgent:    "TestAgent/1.0",
			RateLimit:    100,
			APIKey:       "secret",
			APIKeyHeader: "X-API-Key",
		})

		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, "TestAgent/1.0", gotUserAgent)
		assert.Equal(t, "secret", gotAPIKey)
	})

	t.Run("returns rate limiter error on cancelled context", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{RateLimit: 0.001, BurstSize: 1})
		client.rateLimiter.Allow() // drain

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid", nil)
		require.NoError(t, err)

		_, err = client.Do(req)
		assert.Error(t, err)
	})
}

func TestRetryAfter(t *testing.T) {
	t.Run("parses delta seconds", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{"Retry-After": []string{"7"}}}
		assert.Equal(t, 7*time.Second, RetryAfter(resp))
	})

	t.Run("parses HTTP date", func(t *testing.T) {
		future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
		resp := &http.Response{Header: http.Header{"Retry-After": []string{future}}}
		delay := RetryAfter(resp)
		assert.Greater(t, delay, 20*time.Second)
		assert.LessOrEqual(t, delay, 30*time.Second)
	})

	t.Run("returns zero for missing or garbage header", func(t *testing.T) {
		assert.Zero(t, RetryAfter(&http.Response{Header: http.Header{}}))
		resp := &http.Response{Header: http.Header{"Retry-After": []string{"soon"}}}
		assert.Zero(t, RetryAfter(resp))
	})
}

func TestClassifyResponse(t *testing.T) {
	t.Run("throttled response carries the requested delay", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: http.StatusTooManyRequests,
			Header:     http.Header{"Retry-After": []string{"3"}},
		}
		err := ClassifyResponse("crossref", resp)
		assert.Equal(t, domain.KindRateLimited, err.Kind)
		assert.Equal(t, "crossref", err.Source)
		assert.Equal(t, http.StatusTooManyRequests, err.StatusCode)
		assert.Equal(t, 3*time.Second, err.RetryAfter)
	})

	t.Run("server error without the header has no delay", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusBadGateway, Header: http.Header{}}
		err := ClassifyResponse("openalex", resp)
		assert.Equal(t, domain.KindTransient, err.Kind)
		assert.Zero(t, err.RetryAfter)
	})
}

func TestClassifyError(t *testing.T) {
	t.Run("deadline exceeded maps to timeout", func(t *testing.T) {
		err := ClassifyError("pubmed", context.DeadlineExceeded)
		assert.Equal(t, domain.KindTimeout, err.Kind)
		assert.Equal(t, "pubmed", err.Source)
	})

	t.Run("cancellation maps to fatal", func(t *testing.T) {
		err := ClassifyError("pubmed", context.Canceled)
		assert.Equal(t, domain.KindFatal, err.Kind)
	})

	t.Run("other network errors map to transient", func(t *testing.T) {
		err := ClassifyError("pubmed", errors.New("connection reset by peer"))
		assert.Equal(t, domain.KindTransient, err.Kind)
		assert.True(t, err.Retryable())
	})
}
