// Package orchestrator turns a CEP range request into tracked work items and
// folds per-item outcomes back into job progress.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cuongbtq/cep-crawler/internal/domain"
	"github.com/cuongbtq/cep-crawler/internal/health"
	"github.com/cuongbtq/cep-crawler/internal/metrics"
	"github.com/cuongbtq/cep-crawler/internal/workitem"
	"github.com/google/uuid"
)

// Orchestrator owns the job lifecycle. The API process uses the producer
// side (CreateJob, GetStatus, GetResults); workers use the recording side.
type Orchestrator struct {
	store     Store
	publisher Publisher
	health    health.Checker
	logger    *slog.Logger
	maxItems  int
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithMaxItems overrides domain.MaxItemsPerJob
func WithMaxItems(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxItems = n
		}
	}
}

// New creates an Orchestrator. publisher and checker may be nil on the
// worker side, where only the recording operations are used.
func New(store Store, publisher Publisher, checker health.Checker, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		publisher: publisher,
		health:    checker,
		logger:    logger,
		maxItems:  domain.MaxItemsPerJob,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateJob validates the range, persists a pending job and enqueues one
// work item per key. It returns the job id and the number of items.
func (o *Orchestrator) CreateJob(ctx context.Context, rangeStart, rangeEnd string) (string, int, error) {
	start, end, err := ParseRange(rangeStart, rangeEnd, o.maxItems)
	if err != nil {
		return "", 0, err
	}

	if err := o.ensureHealthy(ctx); err != nil {
		return "", 0, err
	}

	total := int(end-start) + 1
	job := &domain.Job{
		ID:         uuid.NewString(),
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
		TotalItems: total,
		Status:     domain.JobStatusPending,
	}

	if err := o.store.CreateJob(ctx, job); err != nil {
		return "", 0, fmt.Errorf("failed to persist crawl job: %w", err)
	}
	metrics.ObserveJobCreated()

	o.logger.Info("Crawl job created",
		slog.String("crawl_id", job.ID),
		slog.String("cep_start", rangeStart),
		slog.String("cep_end", rangeEnd),
		slog.Int("total_ceps", total),
	)

	width := len(rangeStart)
	for i := 0; i < total; i++ {
		key := FormatKey(start+uint64(i), width)
		err := ctx.Err()
		if err == nil {
			err = o.enqueue(ctx, job.ID, key)
		}
		if err != nil {
			o.logger.Error("Failed to enqueue work item",
				slog.String("crawl_id", job.ID),
				slog.String("cep", key),
				slog.Int("enqueued", i),
				slog.Int("total", total),
				slog.Any("error", err),
			)
			return job.ID, total, &domain.PartialEnqueueError{
				JobID:    job.ID,
				Enqueued: i,
				Total:    total,
				Err:      err,
			}
		}
	}

	o.logger.Info("Crawl job enqueued",
		slog.String("crawl_id", job.ID),
		slog.Int("total_ceps", total),
	)

	return job.ID, total, nil
}

func (o *Orchestrator) enqueue(ctx context.Context, jobID, key string) error {
	msg, err := workitem.Encode(workitem.Item{JobID: jobID, ItemKey: key})
	if err != nil {
		return err
	}
	return o.publisher.Publish(ctx, msg)
}

// ensureHealthy runs one fresh check when the cached state is unhealthy
func (o *Orchestrator) ensureHealthy(ctx context.Context) error {
	if o.health == nil || o.health.IsHealthy() {
		return nil
	}

	if o.health.CheckHealth(ctx) {
		return nil
	}

	status := o.health.Status()
	o.logger.Warn("Rejecting crawl request - no healthy provider",
		slog.String("status", status.String()),
	)
	return fmt.Errorf("%w: %s", domain.ErrUpstreamUnavailable, status)
}

// GetStatus returns the job record. Unknown or malformed ids yield
// domain.ErrJobNotFound.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrJobNotFound
	}
	return o.store.GetJob(ctx, jobID)
}

// GetResults returns one newest-first page of item results. page is 1-based.
func (o *Orchestrator) GetResults(ctx context.Context, jobID string, page, pageSize int) (*domain.ResultPage, error) {
	if page < 1 || pageSize < 1 {
		return nil, fmt.Errorf("invalid pagination: page=%d limit=%d", page, pageSize)
	}
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrJobNotFound
	}

	exists, err := o.store.JobExists(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrJobNotFound
	}

	results, err := o.store.ListItemResults(ctx, jobID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	total, err := o.store.CountItemResults(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &domain.ResultPage{
		JobID:      jobID,
		Results:    results,
		Page:       page,
		Limit:      pageSize,
		Total:      total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// RecordItemOutcome persists one item result. A result already stored for the
// same item is not an error: recorded is false and progress must not advance.
func (o *Orchestrator) RecordItemOutcome(ctx context.Context, outcome domain.ItemOutcome) (bool, error) {
	err := o.store.InsertItemResult(ctx, newItemResult(outcome))
	if errors.Is(err, domain.ErrDuplicateItemResult) {
		o.logDuplicate(outcome)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record item result: %w", err)
	}

	return true, nil
}

// AdvanceProgress counts one processed item and finishes the job when every
// item has been processed. It returns the job as seen after the increment.
func (o *Orchestrator) AdvanceProgress(ctx context.Context, jobID string, success bool) (*domain.Job, error) {
	job, err := o.store.IncrementProgress(ctx, jobID, success)
	if errors.Is(err, domain.ErrProgressComplete) {
		o.logger.Warn("Progress already complete, increment ignored",
			slog.String("crawl_id", jobID),
		)
		return o.store.GetJob(ctx, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to advance progress: %w", err)
	}

	if !job.Done() {
		return job, nil
	}

	finished, err := o.store.MarkFinished(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to finish crawl job: %w", err)
	}
	if finished {
		o.reportFinished(job)
	}

	return o.store.GetJob(ctx, jobID)
}

// CompleteItem records an item outcome and advances progress as one atomic
// store operation, so a failure in between can never leave a stored result
// that was not counted. recorded is false when a previous delivery already
// completed the item; nothing changes then.
func (o *Orchestrator) CompleteItem(ctx context.Context, outcome domain.ItemOutcome) (bool, error) {
	progress, err := o.store.RecordOutcome(ctx, newItemResult(outcome))
	if errors.Is(err, domain.ErrDuplicateItemResult) {
		o.logDuplicate(outcome)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to complete item: %w", err)
	}

	if !progress.Counted {
		o.logger.Warn("Progress already complete, result stored without increment",
			slog.String("crawl_id", outcome.JobID),
			slog.String("cep", outcome.ItemKey),
		)
	}
	if progress.Finished {
		o.reportFinished(progress.Job)
	}

	return true, nil
}

// ItemCompleted reports whether a result for the item is already stored
func (o *Orchestrator) ItemCompleted(ctx context.Context, jobID, itemKey string) (bool, error) {
	done, err := o.store.HasItemResult(ctx, jobID, itemKey)
	if err != nil {
		return false, fmt.Errorf("failed to look up item result: %w", err)
	}
	return done, nil
}

func newItemResult(outcome domain.ItemOutcome) *domain.ItemResult {
	result := &domain.ItemResult{
		JobID:   outcome.JobID,
		ItemKey: outcome.ItemKey,
		Success: outcome.Success,
	}
	if outcome.Success {
		result.Payload = outcome.Payload
		return result
	}

	msg := outcome.ErrorMessage
	if msg == "" {
		msg = domain.MessageFetchError
	}
	result.ErrorMessage = &msg
	return result
}

func (o *Orchestrator) logDuplicate(outcome domain.ItemOutcome) {
	o.logger.Warn("Item result already recorded",
		slog.String("crawl_id", outcome.JobID),
		slog.String("cep", outcome.ItemKey),
	)
}

func (o *Orchestrator) reportFinished(job *domain.Job) {
	metrics.ObserveJobFinished()
	o.logger.Info("Crawl job finished",
		slog.String("crawl_id", job.ID),
		slog.Int("total_ceps", job.TotalItems),
		slog.Int("success_count", job.SuccessCount),
		slog.Int("error_count", job.ErrorCount),
	)
}

// MarkRunning moves a pending job to running. Failures are logged only.
func (o *Orchestrator) MarkRunning(ctx context.Context, jobID string) {
	moved, err := o.store.MarkRunning(ctx, jobID)
	if err != nil {
		o.logger.Error("Failed to mark crawl job running",
			slog.String("crawl_id", jobID),
			slog.Any("error", err),
		)
		return
	}
	if moved {
		o.logger.Info("Crawl job running", slog.String("crawl_id", jobID))
	}
}

// ParseRange validates a CEP range and returns its numeric bounds. Both keys
// must be digit strings of equal width, at most domain.MaxKeyWidth digits,
// with start <= end and at most maxItems keys in total.
func ParseRange(rangeStart, rangeEnd string, maxItems int) (uint64, uint64, error) {
	if rangeStart == "" || rangeEnd == "" {
		return 0, 0, fmt.Errorf("%w: cep_start and cep_end are required", domain.ErrInvalidRange)
	}
	if !isDigits(rangeStart) || !isDigits(rangeEnd) {
		return 0, 0, fmt.Errorf("%w: CEPs must contain only digits", domain.ErrInvalidRange)
	}
	if len(rangeStart) != len(rangeEnd) {
		return 0, 0, fmt.Errorf("%w: cep_start and cep_end must have the same length", domain.ErrInvalidRange)
	}
	if len(rangeStart) > domain.MaxKeyWidth {
		return 0, 0, fmt.Errorf("%w: CEPs cannot be longer than %d digits", domain.ErrInvalidRange, domain.MaxKeyWidth)
	}

	start, err := strconv.ParseUint(rangeStart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", domain.ErrInvalidRange, err)
	}
	end, err := strconv.ParseUint(rangeEnd, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", domain.ErrInvalidRange, err)
	}

	if start > end {
		return 0, 0, fmt.Errorf("%w: cep_start must be less than or equal to cep_end", domain.ErrInvalidRange)
	}
	if maxItems <= 0 {
		maxItems = domain.MaxItemsPerJob
	}
	if end-start+1 > uint64(maxItems) {
		return 0, 0, fmt.Errorf("%w: range cannot exceed %d CEPs", domain.ErrInvalidRange, maxItems)
	}

	return start, end, nil
}

// FormatKey renders n zero-padded to width digits
func FormatKey(n uint64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
