package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a source had no record for the query.
	// Providers report it as an empty result, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates a source rejected the call for rate reasons.
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout indicates an external call exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrTransient indicates a retryable external failure.
	ErrTransient = errors.New("transient failure")

	// ErrFatal indicates a non-retryable failure, e.g. bad credentials.
	ErrFatal = errors.New("fatal source error")

	// ErrSourceUnavailable indicates one provider is down or erroring.
	// Isolated per source; never fatal to the overall operation.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrAllSourcesExhausted indicates every provider returned empty or
	// errored for one discovery query.
	ErrAllSourcesExhausted = errors.New("all sources exhausted")

	// ErrValidationFailed indicates a downloaded payload failed the PDF
	// magic-byte check.
	ErrValidationFailed = errors.New("payload validation failed")

	// ErrAllLocationsExhausted indicates every download candidate failed.
	// This is a normal terminal outcome, not a crash.
	ErrAllLocationsExhausted = errors.New("all download locations exhausted")

	// ErrMalformedCandidate indicates a source returned data missing
	// required fields.
	ErrMalformedCandidate = errors.New("malformed candidate")

	// ErrNoProviders indicates no source providers are registered.
	// This is a configuration error and propagates to the caller.
	ErrNoProviders = errors.New("no source providers registered")

	// ErrEmptyBundle indicates an identifier bundle with no usable field.
	ErrEmptyBundle = errors.New("identifier bundle is empty")
)

// ErrorKind classifies a provider failure for retry and reporting decisions.
type ErrorKind int

const (
	// KindNotFound means the source had no matching record.
	KindNotFound ErrorKind = iota
	// KindRateLimited means the source throttled the call (HTTP 429).
	KindRateLimited
	// KindTimeout means the call exceeded its deadline.
	KindTimeout
	// KindTransient means a retryable failure (connection reset, 5xx).
	KindTransient
	// KindFatal means a non-retryable failure (bad credentials, 4xx).
	KindFatal
)

// String returns the kind name for logging and metric labels.
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind may be retried.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindTimeout || k == KindTransient
}

// SourceError describes a failure from one source provider.
type SourceError struct {
	// Source names the provider that failed.
	Source string
	// Kind classifies the failure.
	Kind ErrorKind
	// StatusCode is the HTTP status, when the failure was HTTP-level.
	StatusCode int
	// RetryAfter is the backoff the server asked for on a throttled
	// response, zero when it did not ask for one. The retry loop
	// prefers it over its own computed delay.
	RetryAfter time.Duration
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Source, e.Kind, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Kind)
}

// Unwrap exposes both the kind sentinel and the underlying cause, so
// errors.Is matches the taxonomy (ErrTransient etc.) and whatever the
// transport reported (context.Canceled etc.) alike.
func (e *SourceError) Unwrap() []error {
	var errs []error
	if sentinel := e.Kind.sentinel(); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// sentinel returns the errors.Is target for the kind, nil when unknown.
func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindRateLimited:
		return ErrRateLimited
	case KindTimeout:
		return ErrTimeout
	case KindTransient:
		return ErrTransient
	case KindFatal:
		return ErrFatal
	default:
		return nil
	}
}

// Retryable reports whether the failure may be retried.
func (e *SourceError) Retryable() bool {
	return e.Kind.Retryable()
}

// NewSourceError creates a SourceError for the given provider and kind.
func NewSourceError(source string, kind ErrorKind, cause error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Cause: cause}
}

// NewHTTPSourceError creates a SourceError classified from an HTTP status.
func NewHTTPSourceError(source string, statusCode int) *SourceError {
	return &SourceError{Source: source, Kind: KindFromStatus(statusCode), StatusCode: statusCode}
}

// KindFromStatus classifies an HTTP status code into an ErrorKind.
func KindFromStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == 404:
		return KindNotFound
	case statusCode == 429:
		return KindRateLimited
	case statusCode == 408 || statusCode == 504:
		return KindTimeout
	case statusCode >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
