package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a crawl job cannot be found. Callers
	// treat it as a normal query outcome.
	ErrJobNotFound = errors.New("crawl job not found")

	// ErrInvalidRange is returned for malformed, inverted or oversized ranges
	ErrInvalidRange = errors.New("invalid CEP range")

	// ErrUpstreamUnavailable is returned when no registered provider is healthy
	ErrUpstreamUnavailable = errors.New("upstream CEP service unavailable")

	// ErrItemNotFound marks a terminal per-item outcome: the key does not exist upstream
	ErrItemNotFound = errors.New("item not found upstream")

	// ErrItemTransientFailure marks a per-item failure the broker should redeliver
	ErrItemTransientFailure = errors.New("transient item failure")

	// ErrDuplicateItemResult is returned by stores when a result for the
	// (job_id, item_key) pair already exists
	ErrDuplicateItemResult = errors.New("duplicate item result")

	// ErrProgressComplete is returned by stores when an increment would push
	// processed_count past total_items
	ErrProgressComplete = errors.New("job progress already complete")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError anywhere in its chain
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// PartialEnqueueError reports that a job was persisted but only some of its
// items reached the broker. The job stays pending; reconciliation is up to
// the caller.
type PartialEnqueueError struct {
	JobID    string
	Enqueued int
	Total    int
	Err      error
}

func (e *PartialEnqueueError) Error() string {
	return fmt.Sprintf("crawl %s: enqueued %d of %d items: %v", e.JobID, e.Enqueued, e.Total, e.Err)
}

func (e *PartialEnqueueError) Unwrap() error {
	return e.Err
}
