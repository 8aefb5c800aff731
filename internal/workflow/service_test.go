package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablelens/internal/analysis"
	"tablelens/internal/domain"
	"tablelens/internal/platform"
	"tablelens/internal/provider"
	"tablelens/internal/testutil"
)

func newTestService(prov provider.CompletionProvider, p platform.Platform) (*Service, *testutil.MockJobRepo) {
	if p == nil {
		p = &testutil.MockPlatform{}
	}
	orch := newTestOrchestrator(p, prov)
	jobs := testutil.NewMockJobRepo()
	return NewService(orch, orch.batch, jobs, nil), jobs
}

func waitForTerminal(t *testing.T, jobs *testutil.MockJobRepo, id string) *domain.JobStatus {
	t.Helper()
	var job *domain.JobStatus
	require.Eventually(t, func() bool {
		var err error
		job, err = jobs.Get(context.Background(), id)
		return err == nil && job.State.Terminal()
	}, 10*time.Second, 20*time.Millisecond, "job %s never reached a terminal state", id)
	return job
}

func serviceTables(n int) []domain.TableDescriptor {
	tables := make([]domain.TableDescriptor, n)
	for i := range tables {
		tables[i] = domain.TableDescriptor{TableID: string(rune('a' + i)), Name: "Table"}
	}
	return tables
}

// === StartBatch ===

func TestStartBatchCompletesJob(t *testing.T) {
	t.Parallel()

	svc, jobs := newTestService(&testutil.MockProvider{}, nil)

	id, err := svc.StartBatch(context.Background(), serviceTables(2), []domain.Category{domain.CategoryStructure}, "", analysis.BatchConfig{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job := waitForTerminal(t, jobs, id)
	assert.Equal(t, domain.JobCompleted, job.State)
	assert.Equal(t, domain.JobKindBatch, job.Kind)

	var result batchJobResult
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Len(t, result.Results, 2)
}

func TestStartBatchValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(&testutil.MockProvider{}, nil)
	var verr *domain.ValidationError

	_, err := svc.StartBatch(context.Background(), nil, nil, "", analysis.BatchConfig{})
	require.ErrorAs(t, err, &verr)

	_, err = svc.StartBatch(context.Background(), serviceTables(1), []domain.Category{"astrology"}, "", analysis.BatchConfig{})
	require.ErrorAs(t, err, &verr)

	_, err = svc.StartBatch(context.Background(), serviceTables(1), nil, "", analysis.BatchConfig{BatchSize: -1})
	require.ErrorAs(t, err, &verr)

	_, err = svc.StartBatch(context.Background(), serviceTables(1), nil, "", analysis.BatchConfig{MaxConcurrent: -2})
	require.ErrorAs(t, err, &verr)
}

// === StartWorkflow ===

func TestStartWorkflowCompletesJob(t *testing.T) {
	t.Parallel()

	mockPlatform := &testutil.MockPlatform{
		ListContainersFn: func(context.Context) ([]platform.Container, error) {
			return []platform.Container{{ID: "c1"}}, nil
		},
		GetSchemaFn: func(context.Context, string) (*platform.Schema, error) {
			return &platform.Schema{Tables: []platform.TableSchema{{ID: "tbl1", Name: "Orders"}}}, nil
		},
	}
	svc, jobs := newTestService(&testutil.MockProvider{}, mockPlatform)

	id, err := svc.StartWorkflow(context.Background(), Config{
		Categories: []domain.Category{domain.CategoryStructure},
	})
	require.NoError(t, err)

	job := waitForTerminal(t, jobs, id)
	assert.Equal(t, domain.JobCompleted, job.State)
	assert.Equal(t, domain.JobKindWorkflow, job.Kind)

	var summary Summary
	require.NoError(t, json.Unmarshal(job.Result, &summary))
	assert.Equal(t, id, summary.WorkflowID)
	assert.Equal(t, "completed", summary.Status)
	assert.Equal(t, 1, summary.TablesDiscovered)
}

func TestStartWorkflowRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(&testutil.MockProvider{}, nil)

	_, err := svc.StartWorkflow(context.Background(), Config{AutoUpdate: true})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestWorkflowFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	mockPlatform := &testutil.MockPlatform{
		ListContainersFn: func(context.Context) ([]platform.Container, error) {
			return nil, nil // no containers means no tables
		},
	}
	svc, jobs := newTestService(&testutil.MockProvider{}, mockPlatform)

	id, err := svc.StartWorkflow(context.Background(), Config{})
	require.NoError(t, err)

	job := waitForTerminal(t, jobs, id)
	assert.Equal(t, domain.JobFailed, job.State)
	assert.Contains(t, job.Error, "no tables discovered")
}

// === Cancel ===

func TestCancelRunningJob(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var once bool
	blocking := &testutil.MockProvider{
		CompleteFn: func(ctx context.Context, _ provider.CompletionRequest) (*provider.Completion, error) {
			if !once {
				once = true
				close(started)
			}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	svc, jobs := newTestService(blocking, nil)

	id, err := svc.StartBatch(context.Background(), serviceTables(1), []domain.Category{domain.CategoryStructure}, "", analysis.BatchConfig{})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("provider was never invoked")
	}

	msg, err := svc.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "job cancellation requested", msg)

	job := waitForTerminal(t, jobs, id)
	assert.Equal(t, domain.JobCancelled, job.State)
	assert.Equal(t, "cancelled by request", job.Error)
}

func TestCancelTerminalJobIsNoOp(t *testing.T) {
	t.Parallel()

	svc, jobs := newTestService(&testutil.MockProvider{}, nil)

	id, err := svc.StartBatch(context.Background(), serviceTables(1), []domain.Category{domain.CategoryStructure}, "", analysis.BatchConfig{})
	require.NoError(t, err)
	waitForTerminal(t, jobs, id)

	msg, err := svc.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "job is completed and cannot be cancelled", msg)

	job, err := jobs.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.State, "cancelling a finished job must not change its state")
}

func TestCancelUnknownJob(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(&testutil.MockProvider{}, nil)

	_, err := svc.Cancel(context.Background(), "nope")
	var nerr *domain.NotFoundError
	require.ErrorAs(t, err, &nerr)
}

// === Status and Results ===

func TestResultsRequireCompletedJob(t *testing.T) {
	t.Parallel()

	svc, jobs := newTestService(&testutil.MockProvider{}, nil)

	job := newJob(domain.JobKindBatch)
	require.NoError(t, jobs.Create(context.Background(), job))

	_, err := svc.Results(context.Background(), job.ID)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.Results(context.Background(), "missing")
	var nerr *domain.NotFoundError
	require.ErrorAs(t, err, &nerr)
}

func TestStatusReturnsPersistedJob(t *testing.T) {
	t.Parallel()

	svc, jobs := newTestService(&testutil.MockProvider{}, nil)

	job := newJob(domain.JobKindWorkflow)
	require.NoError(t, jobs.Create(context.Background(), job))

	got, err := svc.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.JobPending, got.State)
	assert.Equal(t, "initializing", got.Progress.Phase)
}

// === List and ActiveCount ===

func TestListBucketsJobs(t *testing.T) {
	t.Parallel()

	svc, jobs := newTestService(&testutil.MockProvider{}, nil)
	ctx := context.Background()

	pending := newJob(domain.JobKindBatch)
	require.NoError(t, jobs.Create(ctx, pending))

	done := newJob(domain.JobKindWorkflow)
	require.NoError(t, jobs.Create(ctx, done))
	require.NoError(t, jobs.Finish(ctx, done.ID, domain.JobCompleted, nil, ""))

	cancelled := newJob(domain.JobKindWorkflow)
	require.NoError(t, jobs.Create(ctx, cancelled))
	require.NoError(t, jobs.Finish(ctx, cancelled.ID, domain.JobCancelled, nil, "cancelled by request"))

	list, err := svc.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, list.Total)
	assert.Len(t, list.Active, 1)
	assert.Len(t, list.Completed, 1)
	assert.Len(t, list.Failed, 1, "cancelled jobs are grouped with failed ones")

	n, err := svc.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// === EstimateWorkflow ===

func TestEstimateWorkflow(t *testing.T) {
	t.Parallel()

	est, err := EstimateWorkflow(10, []domain.Category{domain.CategoryStructure, domain.CategoryPerformance})
	require.NoError(t, err)

	assert.Equal(t, 10, est.TableCount)
	assert.InDelta(t, 10.0, est.EstimatedTimeMinutes, 1e-9)
	assert.InDelta(t, 10.0, est.WorkflowOverhead.TotalOverheadMinutes, 1e-9)
	assert.InDelta(t, 20.0, est.TotalEstimatedTimeMinutes, 1e-9)
}

func TestEstimateWorkflowDefaultsTableCount(t *testing.T) {
	t.Parallel()

	est, err := EstimateWorkflow(0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultEstimatedTableCount, est.TableCount)
	assert.Equal(t, len(domain.AllCategories()), est.CategoriesCount)
}

func TestEstimateWorkflowInvalidCategory(t *testing.T) {
	t.Parallel()

	_, err := EstimateWorkflow(5, []domain.Category{"astrology"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}
