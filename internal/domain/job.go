package domain

import (
	"encoding/json"
	"time"
)

// JobKind distinguishes batch-analysis jobs from full workflow jobs.
type JobKind string

const (
	JobKindBatch    JobKind = "batch_analysis"
	JobKindWorkflow JobKind = "workflow"
)

// JobState is the lifecycle state of a background job. Terminal states
// (completed, failed, cancelled) are never left except by creating a new job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether s is a final state.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Progress reports where a running job currently is.
type Progress struct {
	Phase     string `json:"phase"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// JobStatus is the polled status of a background job. One goroutine owns a
// given job and is its only writer; readers go through the repository.
type JobStatus struct {
	ID        string          `json:"job_id"`
	Kind      JobKind         `json:"kind"`
	State     JobState        `json:"status"`
	Progress  Progress        `json:"progress"`
	Result    json.RawMessage `json:"results,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
