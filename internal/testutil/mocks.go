// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tablelens/internal/domain"
	"tablelens/internal/platform"
	"tablelens/internal/provider"
)

// === Completion provider mock ===

// MockProvider implements provider.CompletionProvider for testing.
type MockProvider struct {
	CompleteFn func(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error)

	mu       sync.Mutex
	Requests []provider.CompletionRequest // collected requests for assertions
}

// Complete implements the interface method for testing.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, req)
	}
	return &provider.Completion{Text: "[]"}, nil
}

// CallCount returns how many completions were requested.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// === Platform mock ===

// MockPlatform implements platform.Platform for testing.
type MockPlatform struct {
	ListContainersFn func(ctx context.Context) ([]platform.Container, error)
	GetSchemaFn      func(ctx context.Context, containerID string) (*platform.Schema, error)
	ListRecordsFn    func(ctx context.Context, containerID, tableID, filterFormula string) (*platform.RecordPage, error)
	CreateRecordsFn  func(ctx context.Context, containerID, tableID string, records []platform.Record) ([]platform.Record, error)
	UpdateRecordsFn  func(ctx context.Context, containerID, tableID string, records []platform.Record) ([]platform.Record, error)

	mu      sync.Mutex
	Created []platform.Record // collected created records for assertions
	Updated []platform.Record // collected updated records for assertions
}

func (m *MockPlatform) ListContainers(ctx context.Context) ([]platform.Container, error) {
	if m.ListContainersFn != nil {
		return m.ListContainersFn(ctx)
	}
	return nil, nil
}

func (m *MockPlatform) GetSchema(ctx context.Context, containerID string) (*platform.Schema, error) {
	if m.GetSchemaFn != nil {
		return m.GetSchemaFn(ctx, containerID)
	}
	return &platform.Schema{}, nil
}

func (m *MockPlatform) ListRecords(ctx context.Context, containerID, tableID, filterFormula string) (*platform.RecordPage, error) {
	if m.ListRecordsFn != nil {
		return m.ListRecordsFn(ctx, containerID, tableID, filterFormula)
	}
	return &platform.RecordPage{}, nil
}

func (m *MockPlatform) CreateRecords(ctx context.Context, containerID, tableID string, records []platform.Record) ([]platform.Record, error) {
	m.mu.Lock()
	m.Created = append(m.Created, records...)
	m.mu.Unlock()
	if m.CreateRecordsFn != nil {
		return m.CreateRecordsFn(ctx, containerID, tableID, records)
	}
	return records, nil
}

func (m *MockPlatform) UpdateRecords(ctx context.Context, containerID, tableID string, records []platform.Record) ([]platform.Record, error) {
	m.mu.Lock()
	m.Updated = append(m.Updated, records...)
	m.mu.Unlock()
	if m.UpdateRecordsFn != nil {
		return m.UpdateRecordsFn(ctx, containerID, tableID, records)
	}
	return records, nil
}

// === Job repository mock ===

// MockJobRepo implements domain.JobRepository in memory for testing. It
// enforces the terminal-state guard the SQLite repository enforces.
type MockJobRepo struct {
	CreateFn func(ctx context.Context, job *domain.JobStatus) error

	mu   sync.Mutex
	Jobs map[string]*domain.JobStatus
}

func NewMockJobRepo() *MockJobRepo {
	return &MockJobRepo{Jobs: make(map[string]*domain.JobStatus)}
}

func (m *MockJobRepo) Create(ctx context.Context, job *domain.JobStatus) error {
	if m.CreateFn != nil {
		if err := m.CreateFn(ctx, job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.Jobs[job.ID] = &cp
	return nil
}

func (m *MockJobRepo) Get(ctx context.Context, id string) (*domain.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[id]
	if !ok {
		return nil, domain.ErrNotFound("job %s not found", id)
	}
	cp := *job
	return &cp, nil
}

func (m *MockJobRepo) List(ctx context.Context) ([]domain.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]domain.JobStatus, 0, len(m.Jobs))
	for _, job := range m.Jobs {
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (m *MockJobRepo) UpdateProgress(ctx context.Context, id string, state domain.JobState, p domain.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[id]
	if !ok {
		return domain.ErrNotFound("job %s not found", id)
	}
	if job.State.Terminal() {
		return domain.ErrConflict("job %s is in a terminal state", id)
	}
	job.State = state
	job.Progress = p
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockJobRepo) Finish(ctx context.Context, id string, state domain.JobState, result json.RawMessage, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[id]
	if !ok {
		return domain.ErrNotFound("job %s not found", id)
	}
	if job.State.Terminal() {
		return domain.ErrConflict("job %s is in a terminal state", id)
	}
	job.State = state
	job.Result = result
	job.Error = errText
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// === Analysis cache mock ===

// MockCacheRepo implements domain.AnalysisCacheRepository in memory.
type MockCacheRepo struct {
	GetFn func(ctx context.Context, tableID string, category domain.Category) ([]domain.Finding, error)

	mu      sync.Mutex
	Entries map[string][]domain.Finding
}

func NewMockCacheRepo() *MockCacheRepo {
	return &MockCacheRepo{Entries: make(map[string][]domain.Finding)}
}

func cacheKey(tableID string, category domain.Category) string {
	return tableID + "/" + string(category)
}

func (m *MockCacheRepo) Put(ctx context.Context, tableID string, category domain.Category, findings []domain.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries[cacheKey(tableID, category)] = findings
	return nil
}

func (m *MockCacheRepo) Get(ctx context.Context, tableID string, category domain.Category) ([]domain.Finding, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, tableID, category)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	findings, ok := m.Entries[cacheKey(tableID, category)]
	if !ok {
		return nil, domain.ErrNotFound("no cached findings for %s/%s", tableID, category)
	}
	return findings, nil
}

// Compile-time checks.
var (
	_ provider.CompletionProvider    = (*MockProvider)(nil)
	_ platform.Platform              = (*MockPlatform)(nil)
	_ domain.JobRepository           = (*MockJobRepo)(nil)
	_ domain.AnalysisCacheRepository = (*MockCacheRepo)(nil)
)
