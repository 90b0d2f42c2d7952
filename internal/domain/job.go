package domain

import (
	"encoding/json"
	"time"
)

// Job is one bulk range-lookup request and its aggregate progress
type Job struct {
	ID             string     `db:"id"`
	RangeStart     string     `db:"range_start"`
	RangeEnd       string     `db:"range_end"`
	TotalItems     int        `db:"total_items"`
	ProcessedCount int        `db:"processed_count"`
	SuccessCount   int        `db:"success_count"`
	ErrorCount     int        `db:"error_count"`
	Status         string     `db:"status"`
	StartedAt      *time.Time `db:"started_at"`
	FinishedAt     *time.Time `db:"finished_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Done reports whether every item of the job has been processed
func (j *Job) Done() bool {
	return j.ProcessedCount >= j.TotalItems
}

// ItemResult is the persisted outcome of one item. At most one exists per
// (JobID, ItemKey).
type ItemResult struct {
	JobID        string    `db:"job_id"`
	ItemKey      string    `db:"item_key"`
	Success      bool      `db:"success"`
	Payload      []byte    `db:"payload"`
	ErrorMessage *string   `db:"error_message"`
	RetryCount   int       `db:"retry_count"`
	CreatedAt    time.Time `db:"created_at"`
}

// PayloadJSON returns the stored payload as raw JSON, nil when absent
func (r *ItemResult) PayloadJSON() json.RawMessage {
	if len(r.Payload) == 0 {
		return nil
	}
	return json.RawMessage(r.Payload)
}

// ItemOutcome is what a worker reports after processing one item
type ItemOutcome struct {
	JobID        string
	ItemKey      string
	Success      bool
	Payload      json.RawMessage
	ErrorMessage string
}

// Progress is what a store reports after recording one item result
type Progress struct {
	// Job is the job as it is after the record
	Job *Job
	// Counted is false when the job had already counted every item
	Counted bool
	// Finished is true when this record moved the job to finished
	Finished bool
}

// ResultPage is one page of item results, newest first
type ResultPage struct {
	JobID      string
	Results    []ItemResult
	Page       int
	Limit      int
	Total      int
	TotalPages int
}
