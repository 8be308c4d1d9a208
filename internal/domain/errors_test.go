package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceError_Unwrap(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		sentinel error
	}{
		{KindNotFound, ErrNotFound},
		{KindRateLimited, ErrRateLimited},
		{KindTimeout, ErrTimeout},
		{KindTransient, ErrTransient},
		{KindFatal, ErrFatal},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := NewSourceError("pubmed", tt.kind, nil)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestSourceError_UnwrapExposesCause(t *testing.T) {
	err := NewSourceError("openalex", KindFatal, context.Canceled)

	// Both the kind sentinel and the transport cause must be reachable.
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, context.Canceled)

	timeoutErr := NewSourceError("pubmed", KindTimeout, context.DeadlineExceeded)
	assert.ErrorIs(t, timeoutErr, ErrTimeout)
	assert.ErrorIs(t, timeoutErr, context.DeadlineExceeded)
}

func TestErrorKind_Retryable(t *testing.T) {
	assert.True(t, KindRateLimited.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindTransient.Retryable())
	assert.False(t, KindNotFound.Retryable())
	assert.False(t, KindFatal.Retryable())
}

func TestKindFromStatus(t *testing.T) {
	assert.Equal(t, KindNotFound, KindFromStatus(404))
	assert.Equal(t, KindRateLimited, KindFromStatus(429))
	assert.Equal(t, KindTimeout, KindFromStatus(504))
	assert.Equal(t, KindTransient, KindFromStatus(500))
	assert.Equal(t, KindTransient, KindFromStatus(503))
	assert.Equal(t, KindFatal, KindFromStatus(400))
	assert.Equal(t, KindFatal, KindFromStatus(401))
}

func TestNewHTTPSourceError(t *testing.T) {
	err := NewHTTPSourceError("crossref", 503)
	assert.Equal(t, "crossref", err.Source)
	assert.Equal(t, 503, err.StatusCode)
	assert.True(t, err.Retryable())
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Contains(t, err.Error(), "crossref")
	assert.Contains(t, err.Error(), "503")
}
