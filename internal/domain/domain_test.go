package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusFinished, true},
		{JobStatusRunning, JobStatusFinished, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusRunning, JobStatusRunning, false},
		{JobStatusFinished, JobStatusRunning, false},
		{JobStatusFinished, JobStatusFailed, false},
		{JobStatusFailed, JobStatusFinished, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRetryableError(t *testing.T) {
	cause := errors.New("HTTP 429")
	err := fmt.Errorf("process item: %w", NewRetryableError(cause))

	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsRetryable(cause))
	assert.Equal(t, "retryable error: HTTP 429", NewRetryableError(cause).Error())
}

func TestPartialEnqueueError(t *testing.T) {
	cause := errors.New("channel closed")
	err := error(&PartialEnqueueError{JobID: "j1", Enqueued: 2, Total: 5, Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "crawl j1: enqueued 2 of 5 items: channel closed", err.Error())

	var partial *PartialEnqueueError
	assert.True(t, errors.As(err, &partial))
	assert.Equal(t, 2, partial.Enqueued)
}

func TestItemResult_PayloadJSON(t *testing.T) {
	assert.Nil(t, (&ItemResult{}).PayloadJSON())
	assert.JSONEq(t, `{"cep":"01001-000"}`, string((&ItemResult{Payload: []byte(`{"cep":"01001-000"}`)}).PayloadJSON()))
}

func TestJob_Done(t *testing.T) {
	job := &Job{TotalItems: 3, ProcessedCount: 2}
	assert.False(t, job.Done())
	job.ProcessedCount = 3
	assert.True(t, job.Done())
}
