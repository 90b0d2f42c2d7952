package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/domain"
	"github.com/cuongbtq/cep-crawler/internal/health"
	"github.com/cuongbtq/cep-crawler/internal/storage/memory"
	"github.com/cuongbtq/cep-crawler/internal/workitem"
	"github.com/cuongbtq/cep-crawler/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []workitem.Message
	failAt   int // 1-based publish call that fails, 0 never
	calls    int
}

func (p *recordingPublisher) Publish(_ context.Context, msg workitem.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failAt > 0 && p.calls == p.failAt {
		return errors.New("channel closed")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) keys(t *testing.T) []string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.messages))
	for _, msg := range p.messages {
		item, err := workitem.Decode(msg.Body)
		require.NoError(t, err)
		assert.Equal(t, item.DedupKey(), msg.ID)
		keys = append(keys, item.ItemKey)
	}
	return keys
}

type fakeChecker struct {
	healthy     atomic.Bool
	recoverNext bool
	checks      atomic.Int32
}

func (f *fakeChecker) IsHealthy() bool { return f.healthy.Load() }

func (f *fakeChecker) CheckHealth(context.Context) bool {
	f.checks.Add(1)
	if f.recoverNext {
		f.healthy.Store(true)
	}
	return f.healthy.Load()
}

func (f *fakeChecker) Status() health.Status {
	return health.Status{Provider: "ViaCEP", Healthy: f.healthy.Load(), ConsecutiveFailures: 3}
}

func (f *fakeChecker) WaitForHealthy(context.Context, time.Duration) error { return nil }

func healthyChecker() *fakeChecker {
	c := &fakeChecker{}
	c.healthy.Store(true)
	return c
}

type fixture struct {
	orch      *Orchestrator
	store     *memory.Store
	publisher *recordingPublisher
	checker   *fakeChecker
}

func newFixture(checker *fakeChecker) *fixture {
	store := memory.NewStore()
	pub := &recordingPublisher{}
	return &fixture{
		orch:      New(store, pub, checker, logger.NewNop().Logger),
		store:     store,
		publisher: pub,
		checker:   checker,
	}
}

func TestOrchestrator_CreateJob(t *testing.T) {
	f := newFixture(healthyChecker())
	ctx := context.Background()

	jobID, total, err := f.orch.CreateJob(ctx, "00000001", "00000003")
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	job, err := f.orch.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.TotalItems)
	assert.Zero(t, job.ProcessedCount)

	assert.Equal(t, []string{"00000001", "00000002", "00000003"}, f.publisher.keys(t))
}

func TestOrchestrator_CreateJobPreservesWidth(t *testing.T) {
	f := newFixture(healthyChecker())

	_, total, err := f.orch.CreateJob(context.Background(), "01310098", "01310102")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []string{"01310098", "01310099", "01310100", "01310101", "01310102"}, f.publisher.keys(t))
}

func TestOrchestrator_CreateJobInvalidRange(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
	}{
		{name: "inverted", start: "00000010", end: "00000005"},
		{name: "span of 1001", start: "00000000", end: "00001000"},
		{name: "non numeric", start: "0000000a", end: "00000010"},
		{name: "width mismatch", start: "1", end: "00000010"},
		{name: "empty", start: "", end: "00000010"},
		{name: "wider than stored keys", start: "00000000000000001", end: "00000000000000002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(healthyChecker())

			jobID, _, err := f.orch.CreateJob(context.Background(), tt.start, tt.end)
			assert.ErrorIs(t, err, domain.ErrInvalidRange)
			assert.Empty(t, jobID)
			assert.Empty(t, f.publisher.keys(t))
		})
	}
}

func TestOrchestrator_CreateJobMaxSpan(t *testing.T) {
	f := newFixture(healthyChecker())

	_, total, err := f.orch.CreateJob(context.Background(), "00000001", "00001000")
	require.NoError(t, err)
	assert.Equal(t, domain.MaxItemsPerJob, total)
	assert.Len(t, f.publisher.keys(t), domain.MaxItemsPerJob)
}

func TestOrchestrator_CreateJobUpstreamUnavailable(t *testing.T) {
	f := newFixture(&fakeChecker{})

	jobID, _, err := f.orch.CreateJob(context.Background(), "00000001", "00000003")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "Provider: ViaCEP")
	assert.Empty(t, jobID)
	assert.Equal(t, int32(1), f.checker.checks.Load(), "exactly one on-demand check")
	assert.Empty(t, f.publisher.keys(t))
}

func TestOrchestrator_CreateJobRecoversOnDemand(t *testing.T) {
	f := newFixture(&fakeChecker{recoverNext: true})

	_, total, err := f.orch.CreateJob(context.Background(), "00000001", "00000002")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, int32(1), f.checker.checks.Load())
}

func TestOrchestrator_CreateJobPartialEnqueue(t *testing.T) {
	f := newFixture(healthyChecker())
	f.publisher.failAt = 3

	jobID, total, err := f.orch.CreateJob(context.Background(), "00000001", "00000005")
	require.Error(t, err)

	var partial *domain.PartialEnqueueError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, jobID, partial.JobID)
	assert.Equal(t, 2, partial.Enqueued)
	assert.Equal(t, 5, partial.Total)
	assert.Equal(t, 5, total)

	job, err := f.orch.GetStatus(context.Background(), jobID)
	require.NoError(t, err, "job record remains after partial enqueue")
	assert.Equal(t, domain.JobStatusPending, job.Status)
}

func TestOrchestrator_CreateJobCanceledContext(t *testing.T) {
	f := newFixture(healthyChecker())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.orch.CreateJob(ctx, "00000001", "00000003")
	var partial *domain.PartialEnqueueError
	require.ErrorAs(t, err, &partial)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, partial.Enqueued)
}

func TestOrchestrator_GetStatusNotFound(t *testing.T) {
	f := newFixture(healthyChecker())

	for _, id := range []string{"not-a-uuid", "3f1c7a52-8e0b-4b7e-9c55-2a1d4f6e8b90"} {
		_, err := f.orch.GetStatus(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrJobNotFound, id)
	}
}

func TestOrchestrator_EndToEndScenario(t *testing.T) {
	f := newFixture(healthyChecker())
	ctx := context.Background()

	jobID, _, err := f.orch.CreateJob(ctx, "00000001", "00000003")
	require.NoError(t, err)

	outcomes := []domain.ItemOutcome{
		{JobID: jobID, ItemKey: "00000001", Success: true, Payload: json.RawMessage(`{"cep":"00000-001"}`)},
		{JobID: jobID, ItemKey: "00000002", Success: true, Payload: json.RawMessage(`{"cep":"00000-002"}`)},
		{JobID: jobID, ItemKey: "00000003", ErrorMessage: domain.MessageItemNotFound},
	}

	f.orch.MarkRunning(ctx, jobID)
	var last *domain.Job
	for _, outcome := range outcomes {
		recorded, err := f.orch.RecordItemOutcome(ctx, outcome)
		require.NoError(t, err)
		require.True(t, recorded)

		last, err = f.orch.AdvanceProgress(ctx, jobID, outcome.Success)
		require.NoError(t, err)
	}

	assert.Equal(t, domain.JobStatusFinished, last.Status)
	assert.Equal(t, 3, last.ProcessedCount)
	assert.Equal(t, 2, last.SuccessCount)
	assert.Equal(t, 1, last.ErrorCount)
	assert.NotNil(t, last.StartedAt)
	assert.NotNil(t, last.FinishedAt)

	page, err := f.orch.GetResults(ctx, jobID, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Results, 3)
	require.NotNil(t, page.Results[0].ErrorMessage)
	assert.Equal(t, "00000003", page.Results[0].ItemKey, "newest first")
	assert.Equal(t, domain.MessageItemNotFound, *page.Results[0].ErrorMessage)
}

func TestOrchestrator_RecordItemOutcomeIdempotent(t *testing.T) {
	f := newFixture(healthyChecker())
	ctx := context.Background()

	jobID, _, err := f.orch.CreateJob(ctx, "00000001", "00000002")
	require.NoError(t, err)

	outcome := domain.ItemOutcome{JobID: jobID, ItemKey: "00000001", Success: true, Payload: json.RawMessage(`{}`)}
	recorded, err := f.orch.RecordItemOutcome(ctx, outcome)
	require.NoError(t, err)
	assert.True(t, recorded)

	recorded, err = f.orch.RecordItemOutcome(ctx, outcome)
	require.NoError(t, err, "duplicate is swallowed")
	assert.False(t, recorded)

	count, err := f.store.CountItemResults(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOrchestrator_RecordItemOutcomeDefaultMessage(t *testing.T) {
	f := newFixture(healthyChecker())
	ctx := context.Background()

	jobID, _, err := f.orch.CreateJob(ctx, "00000001", "00000001")
	require.NoError(t, err)

	_, err = f.orch.RecordItemOutcome(ctx, domain.ItemOutcome{JobID: jobID, ItemKey: "00000001"})
	require.NoError(t, err)

	results, err := f.store.ListItemResults(ctx, jobID, 0, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.MessageFetchError, *results[0].ErrorMessage)
	assert.Nil(t, results[0].Payload)
}

func TestOrchestrator_ConcurrentAdvanceFinishesOnce(t *testing.T) {
	f := newFixture(healthyChecker())
	ctx := context.Background()

	const total = 100
	jobID, _, err := f.orch.CreateJob(ctx, "00000001", "00000100")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var finishedSeen atomic.Int32
	for i := 0; i < total+10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := f.orch.AdvanceProgress(ctx, jobID, i%4 != 0)
			assert.NoError(t, err)
			if job != nil && job.Status == domain.JobStatusFinished {
				finishedSeen.Add(1)
			}
		}(i)
	}
	wg.Wait()

	job, err := f.orch.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, total, job.ProcessedCount)
	assert.Equal(t, job.ProcessedCount, job.SuccessCount+job.ErrorCount)
	assert.Equal(t, domain.JobStatusFinished, job.Status)
	assert.GreaterOrEqual(t, finishedSeen.Load(), int32(1))
}

func TestOrchestrator_FinishedAtNeverOverwritten(t *testing.T) {
	f := newFixture(healthyChecker())
	ctx := context.Background()

	jobID, _, err := f.orch.CreateJob(ctx, "00000001", "00000001")
	require.NoError(t, err)

	first, err := f.orch.AdvanceProgress(ctx, jobID, true)
	require.NoError(t, err)
	require.NotNil(t, first.FinishedAt)

	again, err := f.orch.AdvanceProgress(ctx, jobID, false)
	require.NoError(t, err)
	assert.Equal(t, *first.FinishedAt, *again.FinishedAt)
	assert.Equal(t, 1, again.ProcessedCount)
	assert.Zero(t, again.ErrorCount)
}

// rollbackStore fails every atomic record as a rolled back transaction would
type rollbackStore struct {
	*memory.Store
}

func (rollbackStore) RecordOutcome(context.Context, *domain.ItemResult) (*domain.Progress, error) {
	return nil, errors.New("failed to increment crawl progress: connection reset")
}

func TestOrchestrator_CompleteItem(t *testing.T) {
	f := newFixture(healthyChecker())
	ctx := context.Background()

	jobID, _, err := f.orch.CreateJob(ctx, "00000001", "00000002")
	require.NoError(t, err)

	outcome := domain.ItemOutcome{JobID: jobID, ItemKey: "00000001", Success: true, Payload: json.RawMessage(`{}`)}
	recorded, err := f.orch.CompleteItem(ctx, outcome)
	require.NoError(t, err)
	assert.True(t, recorded)

	recorded, err = f.orch.CompleteItem(ctx, outcome)
	require.NoError(t, err, "duplicate is swallowed")
	assert.False(t, recorded)

	done, err := f.orch.ItemCompleted(ctx, jobID, "00000001")
	require.NoError(t, err)
	assert.True(t, done)
	done, err = f.orch.ItemCompleted(ctx, jobID, "00000002")
	require.NoError(t, err)
	assert.False(t, done)

	job, err := f.orch.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.ProcessedCount)
	assert.Equal(t, domain.JobStatusPending, job.Status)

	recorded, err = f.orch.CompleteItem(ctx, domain.ItemOutcome{JobID: jobID, ItemKey: "00000002"})
	require.NoError(t, err)
	assert.True(t, recorded)

	job, err = f.orch.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFinished, job.Status)
	assert.Equal(t, 1, job.SuccessCount)
	assert.Equal(t, 1, job.ErrorCount)
}

func TestOrchestrator_ConcurrentCompleteItemFinishesOnce(t *testing.T) {
	f := newFixture(healthyChecker())
	ctx := context.Background()

	const total = 50
	jobID, _, err := f.orch.CreateJob(ctx, "00000001", "00000050")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var recordedCount atomic.Int32
	for i := 0; i < total*2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every key is delivered twice
			key := FormatKey(uint64(i%total)+1, 8)
			recorded, err := f.orch.CompleteItem(ctx, domain.ItemOutcome{JobID: jobID, ItemKey: key, Success: i%3 != 0})
			assert.NoError(t, err)
			if recorded {
				recordedCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	job, err := f.orch.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, int32(total), recordedCount.Load())
	assert.Equal(t, total, job.ProcessedCount)
	assert.Equal(t, job.ProcessedCount, job.SuccessCount+job.ErrorCount)
	assert.Equal(t, domain.JobStatusFinished, job.Status)

	count, err := f.store.CountItemResults(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, total, count)
}

func TestOrchestrator_CompleteItemStoreFailure(t *testing.T) {
	store := memory.NewStore()
	o := New(rollbackStore{store}, &recordingPublisher{}, healthyChecker(), logger.NewNop().Logger)
	ctx := context.Background()

	jobID, _, err := o.CreateJob(ctx, "00000001", "00000001")
	require.NoError(t, err)

	recorded, err := o.CompleteItem(ctx, domain.ItemOutcome{JobID: jobID, ItemKey: "00000001", Success: true})
	require.Error(t, err)
	assert.False(t, recorded)
	assert.Contains(t, err.Error(), "failed to complete item")

	done, err := o.ItemCompleted(ctx, jobID, "00000001")
	require.NoError(t, err)
	assert.False(t, done, "a failed record leaves the item open for redelivery")
}

func TestOrchestrator_GetResults(t *testing.T) {
	f := newFixture(healthyChecker())
	ctx := context.Background()

	jobID, _, err := f.orch.CreateJob(ctx, "00000001", "00000005")
	require.NoError(t, err)
	for _, key := range []string{"00000001", "00000002", "00000003", "00000004", "00000005"} {
		_, err := f.orch.RecordItemOutcome(ctx, domain.ItemOutcome{JobID: jobID, ItemKey: key, Success: true})
		require.NoError(t, err)
	}

	tests := []struct {
		name      string
		page      int
		limit     int
		wantLen   int
		wantPages int
	}{
		{name: "first page", page: 1, limit: 2, wantLen: 2, wantPages: 3},
		{name: "last page", page: 3, limit: 2, wantLen: 1, wantPages: 3},
		{name: "beyond last page", page: 9, limit: 2, wantLen: 0, wantPages: 3},
		{name: "single page", page: 1, limit: 100, wantLen: 5, wantPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.orch.GetResults(ctx, jobID, tt.page, tt.limit)
			require.NoError(t, err)
			assert.Len(t, page.Results, tt.wantLen)
			assert.Equal(t, 5, page.Total)
			assert.Equal(t, tt.wantPages, page.TotalPages)
			assert.Equal(t, tt.page, page.Page)
			assert.Equal(t, tt.limit, page.Limit)
		})
	}

	_, err = f.orch.GetResults(ctx, "3f1c7a52-8e0b-4b7e-9c55-2a1d4f6e8b90", 9, 2)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestParseRange(t *testing.T) {
	start, end, err := ParseRange("01310000", "01310999", domain.MaxItemsPerJob)
	require.NoError(t, err)
	assert.Equal(t, uint64(1310000), start)
	assert.Equal(t, uint64(1310999), end)

	_, _, err = ParseRange("1", "9", 5)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, _, err = ParseRange("0000000000000001", "0000000000000002", 5)
	assert.NoError(t, err, "16 digits fit the schema")

	assert.Equal(t, "00000042", FormatKey(42, 8))
	assert.Equal(t, "42", FormatKey(42, 1))
}

func TestWithMaxItems(t *testing.T) {
	store := memory.NewStore()
	o := New(store, &recordingPublisher{}, healthyChecker(), logger.NewNop().Logger, WithMaxItems(2))

	_, _, err := o.CreateJob(context.Background(), "00000001", "00000003")
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}
