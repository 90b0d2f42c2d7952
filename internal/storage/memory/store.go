// Package memory provides an in-process Store for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/domain"
)

type resultKey struct {
	jobID   string
	itemKey string
}

// Store keeps jobs and item results in maps guarded by one lock
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]domain.Job
	results map[string][]domain.ItemResult
	seen    map[resultKey]struct{}
	now     func() time.Time
}

// NewStore constructs an empty Store
func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]domain.Job),
		results: make(map[string][]domain.ItemResult),
		seen:    make(map[resultKey]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job
func (s *Store) CreateJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	now := s.now()
	stored := *job
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.jobs[job.ID] = stored
	return nil
}

// GetJob fetches a job by ID
func (s *Store) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &job, nil
}

func (s *Store) JobExists(_ context.Context, jobID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[jobID]
	return ok, nil
}

// MarkRunning moves a pending job to running
func (s *Store) MarkRunning(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(jobID, domain.JobStatusRunning), nil
}

// InsertItemResult appends a result unless one exists for the same key
func (s *Store) InsertItemResult(_ context.Context, result *domain.ItemResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(result)
}

// IncrementProgress bumps the counters and returns the updated job
func (s *Store) IncrementProgress(_ context.Context, jobID string, success bool) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementLocked(jobID, success)
}

// MarkFinished moves a non-terminal job to finished
func (s *Store) MarkFinished(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(jobID, domain.JobStatusFinished), nil
}

// RecordOutcome inserts, counts and finishes under a single lock hold
func (s *Store) RecordOutcome(_ context.Context, result *domain.ItemResult) (*domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertLocked(result); err != nil {
		return nil, err
	}

	progress := &domain.Progress{}
	job, err := s.incrementLocked(result.JobID, result.Success)
	switch {
	case errors.Is(err, domain.ErrProgressComplete):
		current := s.jobs[result.JobID]
		job = &current
	case err != nil:
		return nil, err
	default:
		progress.Counted = true
		if job.Done() && s.transitionLocked(result.JobID, domain.JobStatusFinished) {
			progress.Finished = true
			current := s.jobs[result.JobID]
			job = &current
		}
	}

	progress.Job = job
	return progress, nil
}

// HasItemResult reports whether a result exists for the item
func (s *Store) HasItemResult(_ context.Context, jobID, itemKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[resultKey{jobID: jobID, itemKey: itemKey}]
	return ok, nil
}

func (s *Store) insertLocked(result *domain.ItemResult) error {
	if _, ok := s.jobs[result.JobID]; !ok {
		return domain.ErrJobNotFound
	}
	key := resultKey{jobID: result.JobID, itemKey: result.ItemKey}
	if _, dup := s.seen[key]; dup {
		return domain.ErrDuplicateItemResult
	}
	stored := *result
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	if stored.Payload != nil {
		stored.Payload = append([]byte(nil), stored.Payload...)
	}
	s.seen[key] = struct{}{}
	s.results[result.JobID] = append(s.results[result.JobID], stored)
	return nil
}

func (s *Store) incrementLocked(jobID string, success bool) (*domain.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if job.ProcessedCount >= job.TotalItems {
		return nil, domain.ErrProgressComplete
	}
	job.ProcessedCount++
	if success {
		job.SuccessCount++
	} else {
		job.ErrorCount++
	}
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return &job, nil
}

// transitionLocked applies a forward status change and stamps its time
func (s *Store) transitionLocked(jobID, to string) bool {
	job, ok := s.jobs[jobID]
	if !ok || !domain.CanTransition(job.Status, to) {
		return false
	}
	now := s.now()
	job.Status = to
	switch to {
	case domain.JobStatusRunning:
		job.StartedAt = pointerTime(now)
	case domain.JobStatusFinished:
		job.FinishedAt = pointerTime(now)
	}
	job.UpdatedAt = now
	s.jobs[jobID] = job
	return true
}

// ListItemResults returns a copy of one page of results, newest first
func (s *Store) ListItemResults(_ context.Context, jobID string, offset, limit int) ([]domain.ItemResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.results[jobID]
	// reversed insertion order keeps equal timestamps newest first
	sorted := make([]domain.ItemResult, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		sorted = append(sorted, all[i])
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	if offset >= len(sorted) || limit <= 0 {
		return []domain.ItemResult{}, nil
	}
	end := min(offset+limit, len(sorted))
	return sorted[offset:end], nil
}

func (s *Store) CountItemResults(_ context.Context, jobID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results[jobID]), nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
