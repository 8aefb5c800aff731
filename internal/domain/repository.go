package domain

import (
	"context"
	"encoding/json"
)

// JobRepository persists job status in the control-plane store. Updates to a
// job in a terminal state must be rejected with a ConflictError.
type JobRepository interface {
	Create(ctx context.Context, job *JobStatus) error
	Get(ctx context.Context, id string) (*JobStatus, error)
	List(ctx context.Context) ([]JobStatus, error)
	UpdateProgress(ctx context.Context, id string, state JobState, p Progress) error
	Finish(ctx context.Context, id string, state JobState, result json.RawMessage, errText string) error
}

// AnalysisCacheRepository stores the most recent successful findings per
// table and category; the cached fallback strategy reads from it.
type AnalysisCacheRepository interface {
	Put(ctx context.Context, tableID string, category Category, findings []Finding) error
	Get(ctx context.Context, tableID string, category Category) ([]Finding, error)
}
