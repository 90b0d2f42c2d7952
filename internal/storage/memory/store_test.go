package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(id string, total int) *domain.Job {
	return &domain.Job{
		ID:         id,
		RangeStart: "00000001",
		RangeEnd:   "00000003",
		TotalItems: total,
		Status:     domain.JobStatusPending,
	}
}

func TestStore_JobLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, newJob("job-1", 2)))
	assert.Error(t, store.CreateJob(ctx, newJob("job-1", 2)), "duplicate job id")

	exists, err := store.JobExists(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, exists)

	moved, err := store.MarkRunning(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = store.MarkRunning(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, moved, "already running")

	job, err := store.IncrementProgress(ctx, "job-1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, job.ProcessedCount)
	assert.Equal(t, 1, job.SuccessCount)

	job, err = store.IncrementProgress(ctx, "job-1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, job.ProcessedCount)
	assert.Equal(t, 1, job.ErrorCount)

	_, err = store.IncrementProgress(ctx, "job-1", true)
	assert.ErrorIs(t, err, domain.ErrProgressComplete)

	finished, err := store.MarkFinished(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, finished)

	first, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, first.FinishedAt)
	require.NotNil(t, first.StartedAt)

	finished, err = store.MarkFinished(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, finished)

	again, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, *first.FinishedAt, *again.FinishedAt, "finished_at is never overwritten")
	assert.Equal(t, domain.JobStatusFinished, again.Status)
}

func TestStore_GetJobNotFound(t *testing.T) {
	store := NewStore()
	_, err := store.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = store.IncrementProgress(context.Background(), "missing", true)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStore_InsertItemResultDedup(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1", 3)))

	result := &domain.ItemResult{JobID: "job-1", ItemKey: "00000001", Success: true, Payload: []byte(`{}`)}
	require.NoError(t, store.InsertItemResult(ctx, result))
	assert.ErrorIs(t, store.InsertItemResult(ctx, result), domain.ErrDuplicateItemResult)

	other := &domain.ItemResult{JobID: "unknown", ItemKey: "00000001"}
	assert.ErrorIs(t, store.InsertItemResult(ctx, other), domain.ErrJobNotFound)

	count, err := store.CountItemResults(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_ListItemResultsNewestFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1", 3)))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, key := range []string{"00000001", "00000002", "00000003"} {
		require.NoError(t, store.InsertItemResult(ctx, &domain.ItemResult{
			JobID:     "job-1",
			ItemKey:   key,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	tests := []struct {
		name   string
		offset int
		limit  int
		want   []string
	}{
		{name: "first page", offset: 0, limit: 2, want: []string{"00000003", "00000002"}},
		{name: "second page", offset: 2, limit: 2, want: []string{"00000001"}},
		{name: "past the end", offset: 10, limit: 2, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := store.ListItemResults(ctx, "job-1", tt.offset, tt.limit)
			require.NoError(t, err)
			keys := make([]string, 0, len(results))
			for _, r := range results {
				keys = append(keys, r.ItemKey)
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestStore_ConcurrentIncrement(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1", 50)))

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.IncrementProgress(ctx, "job-1", i%2 == 0)
		}(i)
	}
	wg.Wait()

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 50, job.ProcessedCount)
	assert.Equal(t, job.ProcessedCount, job.SuccessCount+job.ErrorCount)
}

func TestStore_RecordOutcome(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1", 2)))

	msg := domain.MessageItemNotFound
	first, err := store.RecordOutcome(ctx, &domain.ItemResult{JobID: "job-1", ItemKey: "00000001", Success: true})
	require.NoError(t, err)
	assert.True(t, first.Counted)
	assert.False(t, first.Finished)
	assert.Equal(t, 1, first.Job.ProcessedCount)

	_, err = store.RecordOutcome(ctx, &domain.ItemResult{JobID: "job-1", ItemKey: "00000001"})
	assert.ErrorIs(t, err, domain.ErrDuplicateItemResult)

	last, err := store.RecordOutcome(ctx, &domain.ItemResult{JobID: "job-1", ItemKey: "00000002", ErrorMessage: &msg})
	require.NoError(t, err)
	assert.True(t, last.Counted)
	assert.True(t, last.Finished)
	assert.Equal(t, domain.JobStatusFinished, last.Job.Status)
	assert.NotNil(t, last.Job.FinishedAt)
	assert.Equal(t, 1, last.Job.SuccessCount)
	assert.Equal(t, 1, last.Job.ErrorCount)

	// a stray key past the total is kept but not counted
	stray, err := store.RecordOutcome(ctx, &domain.ItemResult{JobID: "job-1", ItemKey: "00000009", Success: true})
	require.NoError(t, err)
	assert.False(t, stray.Counted)
	assert.False(t, stray.Finished)
	assert.Equal(t, 2, stray.Job.ProcessedCount)

	_, err = store.RecordOutcome(ctx, &domain.ItemResult{JobID: "missing", ItemKey: "00000001"})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStore_HasItemResult(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1", 2)))

	done, err := store.HasItemResult(ctx, "job-1", "00000001")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, store.InsertItemResult(ctx, &domain.ItemResult{JobID: "job-1", ItemKey: "00000001"}))

	done, err = store.HasItemResult(ctx, "job-1", "00000001")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestStore_TransitionsOnlyMoveForward(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1", 1)))

	finished, err := store.MarkFinished(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, finished, "pending may finish directly")

	moved, err := store.MarkRunning(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, moved, "finished never goes back to running")

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFinished, job.Status)
	assert.Nil(t, job.StartedAt)
}
