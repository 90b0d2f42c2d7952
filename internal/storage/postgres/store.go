// Package postgres implements the crawl Store on PostgreSQL through sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/cep-crawler/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgreSQL error codes the store maps to domain errors
const (
	codeForeignKeyViolation = "23503"
	codeInvalidTextRepr     = "22P02"
)

const jobColumns = `id, range_start, range_end, total_items, processed_count,
	success_count, error_count, status, started_at, finished_at, created_at, updated_at`

// Store handles all crawl database operations
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new crawl job
func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO crawl_jobs (
			id, range_start, range_end, total_items,
			processed_count, success_count, error_count, status
		) VALUES (
			:id, :range_start, :range_end, :total_items,
			:processed_count, :success_count, :error_count, :status
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("failed to create crawl job: %w", err)
	}

	return nil
}

// GetJob retrieves a crawl job by its ID
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return getJob(ctx, s.db, jobID)
}

func getJob(ctx context.Context, q sqlx.QueryerContext, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs WHERE id = $1`

	var job domain.Job
	if err := sqlx.GetContext(ctx, q, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) || hasCode(err, codeInvalidTextRepr) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get crawl job: %w", err)
	}

	return &job, nil
}

// JobExists reports whether a crawl job row exists
func (s *Store) JobExists(ctx context.Context, jobID string) (bool, error) {
	return jobExists(ctx, s.db, jobID)
}

func jobExists(ctx context.Context, q sqlx.QueryerContext, jobID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM crawl_jobs WHERE id = $1)`, jobID)
	if err != nil {
		if hasCode(err, codeInvalidTextRepr) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check crawl job: %w", err)
	}
	return exists, nil
}

// MarkRunning moves a pending job to running. Only the first caller wins.
func (s *Store) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE crawl_jobs
		SET status = $1,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE id = $2
		  AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusRunning, jobID, domain.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark crawl job running: %w", err)
	}

	return affected(result)
}

// InsertItemResult stores one item outcome; a second insert for the same
// (job_id, item_key) is reported as domain.ErrDuplicateItemResult
func (s *Store) InsertItemResult(ctx context.Context, r *domain.ItemResult) error {
	return insertItemResult(ctx, s.db, r)
}

func insertItemResult(ctx context.Context, q sqlx.ExecerContext, r *domain.ItemResult) error {
	query := `
		INSERT INTO crawl_results (
			job_id, item_key, success, payload, error_message, retry_count
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (job_id, item_key) DO NOTHING
	`

	var payload any
	if len(r.Payload) > 0 {
		payload = string(r.Payload)
	}

	result, err := q.ExecContext(ctx, query, r.JobID, r.ItemKey, r.Success, payload, r.ErrorMessage, r.RetryCount)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return domain.ErrJobNotFound
		}
		return fmt.Errorf("failed to insert crawl result: %w", err)
	}

	inserted, err := affected(result)
	if err != nil {
		return err
	}
	if !inserted {
		return domain.ErrDuplicateItemResult
	}

	return nil
}

// IncrementProgress adds one processed item and returns the updated row
func (s *Store) IncrementProgress(ctx context.Context, jobID string, success bool) (*domain.Job, error) {
	return s.incrementProgress(ctx, s.db, jobID, success)
}

func (s *Store) incrementProgress(ctx context.Context, q sqlx.QueryerContext, jobID string, success bool) (*domain.Job, error) {
	successInc, errorInc := 0, 1
	if success {
		successInc, errorInc = 1, 0
	}

	query := `
		UPDATE crawl_jobs
		SET processed_count = processed_count + 1,
		    success_count = success_count + $2,
		    error_count = error_count + $3,
		    updated_at = NOW()
		WHERE id = $1
		  AND processed_count < total_items
		RETURNING ` + jobColumns

	var job domain.Job
	err := sqlx.GetContext(ctx, q, &job, query, jobID, successInc, errorInc)
	if err == nil {
		return &job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to increment crawl progress: %w", err)
	}

	exists, existsErr := jobExists(ctx, q, jobID)
	if existsErr != nil {
		return nil, existsErr
	}
	if !exists {
		return nil, domain.ErrJobNotFound
	}

	s.logger.Warn("Progress increment refused - job already complete",
		slog.String("crawl_id", jobID),
	)
	return nil, domain.ErrProgressComplete
}

// MarkFinished moves a non-terminal job to finished. It reports whether this
// call performed the transition.
func (s *Store) MarkFinished(ctx context.Context, jobID string) (bool, error) {
	return markFinished(ctx, s.db, jobID)
}

func markFinished(ctx context.Context, q sqlx.ExecerContext, jobID string) (bool, error) {
	query := `
		UPDATE crawl_jobs
		SET status = $1,
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE id = $2
		  AND status IN ($3, $4)
	`

	result, err := q.ExecContext(ctx, query,
		domain.JobStatusFinished, jobID, domain.JobStatusPending, domain.JobStatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to mark crawl job finished: %w", err)
	}

	return affected(result)
}

// RecordOutcome inserts the result, increments progress and finishes the job
// on its last item inside one transaction. Any error rolls back all three.
func (s *Store) RecordOutcome(ctx context.Context, r *domain.ItemResult) (*domain.Progress, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback()
	}()

	if err := insertItemResult(ctx, tx, r); err != nil {
		return nil, err
	}

	progress := &domain.Progress{}
	job, err := s.incrementProgress(ctx, tx, r.JobID, r.Success)
	switch {
	case errors.Is(err, domain.ErrProgressComplete):
		if job, err = getJob(ctx, tx, r.JobID); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		progress.Counted = true
		if job.Done() {
			finished, err := markFinished(ctx, tx, r.JobID)
			if err != nil {
				return nil, err
			}
			if finished {
				progress.Finished = true
				if job, err = getJob(ctx, tx, r.JobID); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit item result: %w", err)
	}

	progress.Job = job
	return progress, nil
}

// HasItemResult reports whether a result for the item is already stored
func (s *Store) HasItemResult(ctx context.Context, jobID, itemKey string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM crawl_results WHERE job_id = $1 AND item_key = $2)`

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, jobID, itemKey); err != nil {
		if hasCode(err, codeInvalidTextRepr) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check crawl result: %w", err)
	}
	return exists, nil
}

// ListItemResults returns one page of results ordered newest first
func (s *Store) ListItemResults(ctx context.Context, jobID string, offset, limit int) ([]domain.ItemResult, error) {
	query := `
		SELECT job_id, item_key, success, payload, error_message, retry_count, created_at
		FROM crawl_results
		WHERE job_id = $1
		ORDER BY created_at DESC, item_key DESC
		LIMIT $2 OFFSET $3
	`

	results := []domain.ItemResult{}
	if err := s.db.SelectContext(ctx, &results, query, jobID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list crawl results: %w", err)
	}

	return results, nil
}

// CountItemResults returns the number of results stored for a job
func (s *Store) CountItemResults(ctx context.Context, jobID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM crawl_results WHERE job_id = $1`, jobID); err != nil {
		return 0, fmt.Errorf("failed to count crawl results: %w", err)
	}
	return count, nil
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
