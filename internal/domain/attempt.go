package domain

import "time"

// AttemptOutcome classifies the result of one download attempt.
type AttemptOutcome string

const (
	// OutcomeSuccess means the payload was fetched and validated as a PDF.
	OutcomeSuccess AttemptOutcome = "success"
	// OutcomeFailure means the fetch failed at the HTTP or network level.
	OutcomeFailure AttemptOutcome = "failure"
	// OutcomeTimeout means the fetch exceeded its deadline.
	OutcomeTimeout AttemptOutcome = "timeout"
	// OutcomeValidationFailed means the fetch succeeded but the payload
	// failed PDF validation.
	OutcomeValidationFailed AttemptOutcome = "validation_failed"
)

// DownloadAttempt records one try against one download location.
// A record's acquisition history is append-only; attempts are never mutated.
type DownloadAttempt struct {
	URL        string         `json:"url"`
	Timestamp  time.Time      `json:"timestamp"`
	Outcome    AttemptOutcome `json:"outcome"`
	StatusCode int            `json:"status_code,omitempty"`
	// Reason describes the failure in human-readable form.
	Reason string `json:"reason,omitempty"`
	// Duration is the wall-clock time the attempt took.
	Duration time.Duration `json:"duration,omitempty"`

	// FilePath, SizeBytes, and ContentHash are set only on success.
	FilePath    string `json:"file_path,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
}
