package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// Step is one link in a fallback chain. Name identifies the step in
// error messages and attempt logs.
type Step[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)

	// Accept, when set, validates a result that came back without an
	// error. A rejected result is recorded as ErrEmptyResult and the
	// chain moves on; steps that can complete without producing
	// anything usable set this to keep the walk going.
	Accept func(T) bool
}

// ErrEmptyResult marks a step that returned no error but whose result
// its Accept func rejected.
var ErrEmptyResult = errors.New("fallback: step produced an empty result")

// abortError stops the chain immediately, carrying the step's error.
type abortError struct {
	cause error
}

func (e *abortError) Error() string { return "fallback aborted: " + e.cause.Error() }

func (e *abortError) Unwrap() error { return e.cause }

// Abort wraps err so the chain stops at this step instead of moving to
// the next one. Meant for infrastructure failures where trying another
// path cannot help.
func Abort(err error) error {
	return &abortError{cause: err}
}

// AbortCause returns the error a step passed to Abort, or nil when the
// chain was not aborted.
func AbortCause(err error) error {
	var abort *abortError
	if errors.As(err, &abort) {
		return abort.cause
	}
	return nil
}

// ChainResult records the outcome of a single step for callers that
// need the full attempt history.
type ChainResult struct {
	Name string
	Err  error
}

// Fallback tries each step in order and returns the first success.
// Every failure is recorded; when all steps fail the returned error
// wraps domain.ErrAllSourcesExhausted together with the per-step
// failures, and the full history is returned alongside it.
//
// A fatal (non-retryable, non-miss) error from a step does not abort
// the chain: later steps may still succeed through a different path.
// The one exception is a step error wrapped with Abort, which stops the
// walk at that step and is returned as-is.
func Fallback[T any](ctx context.Context, steps []Step[T]) (T, []ChainResult, error) {
	var zero T
	history := make([]ChainResult, 0, len(steps))

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return zero, history, err
		}

		result, err := step.Run(ctx)
		if err == nil {
			if step.Accept == nil || step.Accept(result) {
				history = append(history, ChainResult{Name: step.Name})
				return result, history, nil
			}
			err = ErrEmptyResult
		}
		history = append(history, ChainResult{Name: step.Name, Err: err})
		if AbortCause(err) != nil {
			return zero, history, err
		}
	}

	errs := make([]error, 0, len(history)+1)
	errs = append(errs, domain.ErrAllSourcesExhausted)
	for _, h := range history {
		if h.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, h.Err))
		}
	}
	if len(steps) == 0 {
		return zero, history, fmt.Errorf("%w: empty chain", domain.ErrAllSourcesExhausted)
	}
	return zero, history, errors.Join(errs...)
}
