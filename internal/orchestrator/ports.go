package orchestrator

import (
	"context"

	"github.com/cuongbtq/cep-crawler/internal/domain"
	"github.com/cuongbtq/cep-crawler/internal/workitem"
)

// Store persists jobs and item results. Counter updates must be atomic with
// respect to concurrent callers.
type Store interface {
	// CreateJob inserts a new job row
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob returns domain.ErrJobNotFound when the job is absent
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)

	JobExists(ctx context.Context, jobID string) (bool, error)

	// MarkRunning moves a pending job to running and sets started_at.
	// It reports whether the transition happened.
	MarkRunning(ctx context.Context, jobID string) (bool, error)

	// InsertItemResult returns domain.ErrDuplicateItemResult when a result
	// for the same (job_id, item_key) already exists
	InsertItemResult(ctx context.Context, result *domain.ItemResult) error

	// IncrementProgress adds one processed item and returns the job as it is
	// after the increment. It returns domain.ErrProgressComplete when the job
	// has already processed every item.
	IncrementProgress(ctx context.Context, jobID string, success bool) (*domain.Job, error)

	// MarkFinished moves a non-terminal job to finished and sets finished_at.
	// It reports whether the transition happened.
	MarkFinished(ctx context.Context, jobID string) (bool, error)

	// RecordOutcome inserts the result, counts it in progress and finishes the
	// job on its last item as one atomic unit. A failure leaves nothing behind.
	// It returns domain.ErrDuplicateItemResult, changing nothing, when a result
	// for the same (job_id, item_key) already exists.
	RecordOutcome(ctx context.Context, result *domain.ItemResult) (*domain.Progress, error)

	// HasItemResult reports whether a result for the item is already stored
	HasItemResult(ctx context.Context, jobID, itemKey string) (bool, error)

	// ListItemResults returns results newest first
	ListItemResults(ctx context.Context, jobID string, offset, limit int) ([]domain.ItemResult, error)

	CountItemResults(ctx context.Context, jobID string) (int, error)
}

// Publisher delivers encoded work items to the broker
type Publisher interface {
	Publish(ctx context.Context, msg workitem.Message) error
}
