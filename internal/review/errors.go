package review

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceTimeout marks a source that did not answer within its timeout.
	ErrSourceTimeout = errors.New("source timed out")
	// ErrSourceFailure marks a source that raised an error or returned
	// unusable output.
	ErrSourceFailure = errors.New("source failed")
	// ErrParseDegraded marks a source whose output was mostly unparseable.
	// It is recorded as a warning and never stops a run.
	ErrParseDegraded = errors.New("degraded parse")
	// ErrAllSourcesUnavailable is returned when no source succeeded.
	ErrAllSourcesUnavailable = errors.New("all sources unavailable")
)

// SourceError describes why one source is unavailable.
type SourceError struct {
	SourceID string
	Outcome  Outcome
	Err      error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source %s: %s", e.SourceID, e.Outcome)
	}
	return fmt.Sprintf("source %s: %s: %v", e.SourceID, e.Outcome, e.Err)
}

// Unwrap exposes both the outcome sentinel and the underlying cause.
func (e *SourceError) Unwrap() []error {
	sentinel := ErrSourceFailure
	if e.Outcome == OutcomeTimedOut {
		sentinel = ErrSourceTimeout
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}
