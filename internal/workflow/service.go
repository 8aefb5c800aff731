package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tablelens/internal/analysis"
	"tablelens/internal/domain"
)

// DefaultEstimatedTableCount is the table count assumed by pre-flight
// workflow estimates when the caller does not know the real number.
const DefaultEstimatedTableCount = 35

// Fixed overhead of the non-analysis workflow phases, in minutes.
const (
	overheadDiscoveryMinutes  = 2
	overheadProcessingMinutes = 3
	overheadUpdatesMinutes    = 5
)

// WorkflowOverhead itemizes the non-analysis time of a workflow run.
type WorkflowOverhead struct {
	DiscoveryMinutes     float64 `json:"table_discovery_time_minutes"`
	ProcessingMinutes    float64 `json:"result_processing_time_minutes"`
	UpdatesMinutes       float64 `json:"metadata_updates_time_minutes"`
	TotalOverheadMinutes float64 `json:"total_overhead_minutes"`
}

// WorkflowEstimate extends the batch estimate with workflow overhead.
type WorkflowEstimate struct {
	analysis.Estimate
	WorkflowOverhead          WorkflowOverhead `json:"workflow_overhead"`
	TotalEstimatedTimeMinutes float64          `json:"total_estimated_time_minutes"`
}

// JobInfo is the compact listing entry for one job.
type JobInfo struct {
	ID        string          `json:"workflow_id"`
	Kind      domain.JobKind  `json:"kind"`
	State     domain.JobState `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	Progress  domain.Progress `json:"progress"`
}

// JobList buckets jobs by lifecycle for the active-workflows endpoint.
// Cancelled jobs count as failed here.
type JobList struct {
	Active    []JobInfo `json:"active_workflows"`
	Completed []JobInfo `json:"completed_workflows"`
	Failed    []JobInfo `json:"failed_workflows"`
	Total     int       `json:"total_workflows"`
}

// batchJobResult is the persisted payload of a completed batch job.
type batchJobResult struct {
	Results     domain.BatchFindings  `json:"results"`
	Failures    []domain.TableFailure `json:"failures,omitempty"`
	CostSummary analysis.CostSummary  `json:"cost_summary"`
}

// Service owns background jobs: it starts them, persists their status, and
// cancels them. Each job is driven by exactly one goroutine, which is the
// only writer of that job's row.
type Service struct {
	orch    *Orchestrator
	batch   *analysis.BatchOrchestrator
	jobs    domain.JobRepository
	logger  *slog.Logger
	cancels sync.Map // job ID -> context.CancelFunc
}

// NewService creates the job service.
func NewService(orch *Orchestrator, batch *analysis.BatchOrchestrator, jobs domain.JobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{orch: orch, batch: batch, jobs: jobs, logger: logger}
}

// StartWorkflow launches a complete workflow run in the background and
// returns its job ID immediately.
func (s *Service) StartWorkflow(ctx context.Context, cfg Config) (string, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	job := newJob(domain.JobKindWorkflow)
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create workflow job: %w", err)
	}

	s.launch(job.ID, func(runCtx context.Context) (json.RawMessage, error) {
		summary, err := s.orch.Run(runCtx, cfg, s.progressFunc(job.ID))
		if err != nil {
			return nil, err
		}
		summary.WorkflowID = job.ID
		return json.Marshal(summary)
	})
	return job.ID, nil
}

// StartBatch launches a batch analysis job over explicit table descriptors.
// Zero fields of batchCfg keep the orchestrator's defaults.
func (s *Service) StartBatch(ctx context.Context, tables []domain.TableDescriptor, categories []domain.Category, fallback string, batchCfg analysis.BatchConfig) (string, error) {
	if len(tables) == 0 {
		return "", domain.ErrValidation("batch must contain at least one table")
	}
	if batchCfg.BatchSize < 0 || batchCfg.MaxConcurrent < 0 {
		return "", domain.ErrValidation("batch_size and max_concurrent must not be negative")
	}
	for _, cat := range categories {
		if !cat.Valid() {
			return "", domain.ErrValidation("unknown analysis category %q", cat)
		}
	}

	job := newJob(domain.JobKindBatch)
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create batch job: %w", err)
	}

	s.launch(job.ID, func(runCtx context.Context) (json.RawMessage, error) {
		progress := s.progressFunc(job.ID)
		result, err := s.batch.AnalyzeBatch(runCtx, tables, categories, fallback, batchCfg, func(completed, total int) {
			progress("analyzing", completed, total)
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(batchJobResult{
			Results:     result.Results,
			Failures:    result.Failures,
			CostSummary: s.orch.analyzer.Costs(),
		})
	})
	return job.ID, nil
}

// Status returns the persisted status of one job.
func (s *Service) Status(ctx context.Context, id string) (*domain.JobStatus, error) {
	return s.jobs.Get(ctx, id)
}

// Results returns a completed job's payload. A job that exists but has not
// completed yields a ValidationError so callers can map it to 400.
func (s *Service) Results(ctx context.Context, id string) (json.RawMessage, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State != domain.JobCompleted {
		return nil, domain.ErrValidation("job not completed, status: %s", job.State)
	}
	return job.Result, nil
}

// Cancel requests cancellation of a running job. Cancelling a job already in
// a terminal state changes nothing and reports why.
func (s *Service) Cancel(ctx context.Context, id string) (string, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job.State.Terminal() {
		return fmt.Sprintf("job is %s and cannot be cancelled", job.State), nil
	}

	if cancel, ok := s.cancels.Load(id); ok {
		cancel.(context.CancelFunc)()
	}
	return "job cancellation requested", nil
}

// List buckets every known job by lifecycle state.
func (s *Service) List(ctx context.Context) (*JobList, error) {
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return nil, err
	}

	list := &JobList{
		Active:    []JobInfo{},
		Completed: []JobInfo{},
		Failed:    []JobInfo{},
		Total:     len(jobs),
	}
	for _, job := range jobs {
		info := JobInfo{
			ID:        job.ID,
			Kind:      job.Kind,
			State:     job.State,
			StartedAt: job.CreatedAt,
			Progress:  job.Progress,
		}
		switch {
		case job.State == domain.JobPending || job.State == domain.JobRunning:
			list.Active = append(list.Active, info)
		case job.State == domain.JobCompleted:
			list.Completed = append(list.Completed, info)
		default:
			list.Failed = append(list.Failed, info)
		}
	}
	return list, nil
}

// ActiveCount reports how many jobs are currently pending or running.
func (s *Service) ActiveCount(ctx context.Context) (int, error) {
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, job := range jobs {
		if !job.State.Terminal() {
			n++
		}
	}
	return n, nil
}

// EstimateWorkflow projects cost and time for a workflow over tableCount
// tables (DefaultEstimatedTableCount when zero).
func EstimateWorkflow(tableCount int, categories []domain.Category) (*WorkflowEstimate, error) {
	if tableCount <= 0 {
		tableCount = DefaultEstimatedTableCount
	}
	base, err := analysis.EstimateBatchCost(tableCount, categories)
	if err != nil {
		return nil, err
	}

	overhead := WorkflowOverhead{
		DiscoveryMinutes:     overheadDiscoveryMinutes,
		ProcessingMinutes:    overheadProcessingMinutes,
		UpdatesMinutes:       overheadUpdatesMinutes,
		TotalOverheadMinutes: overheadDiscoveryMinutes + overheadProcessingMinutes + overheadUpdatesMinutes,
	}
	return &WorkflowEstimate{
		Estimate:                  base,
		WorkflowOverhead:          overhead,
		TotalEstimatedTimeMinutes: base.EstimatedTimeMinutes + overhead.TotalOverheadMinutes,
	}, nil
}

// launch runs fn in the owning goroutine for a job, handling state
// transitions, cancellation, and panics.
func (s *Service) launch(jobID string, fn func(ctx context.Context) (json.RawMessage, error)) {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancels.Store(jobID, cancel)

	go func() {
		defer func() {
			s.cancels.Delete(jobID)
			cancel()
			if r := recover(); r != nil {
				s.logger.Error("job panicked", "job", jobID, "panic", r)
				s.finish(jobID, domain.JobFailed, nil, fmt.Sprintf("internal panic: %v", r))
			}
		}()

		startCtx, cancelS := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.jobs.UpdateProgress(startCtx, jobID, domain.JobRunning, domain.Progress{Phase: "starting"})
		cancelS()
		if err != nil {
			s.logger.Error("failed to mark job running", "job", jobID, "error", err)
			return
		}

		result, err := fn(runCtx)
		switch {
		case runCtx.Err() != nil || errors.Is(err, context.Canceled):
			s.finish(jobID, domain.JobCancelled, nil, "cancelled by request")
			s.logger.Info("job cancelled", "job", jobID)
		case err == nil:
			s.finish(jobID, domain.JobCompleted, result, "")
			s.logger.Info("job completed", "job", jobID)
		default:
			s.finish(jobID, domain.JobFailed, nil, err.Error())
			s.logger.Error("job failed", "job", jobID, "error", err)
		}
	}()
}

// progressFunc persists progress updates for a job. Write failures are
// logged and otherwise ignored; progress is advisory.
func (s *Service) progressFunc(jobID string) ProgressFunc {
	return func(phase string, completed, total int) {
		ctx, cancelT := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelT()
		err := s.jobs.UpdateProgress(ctx, jobID, domain.JobRunning, domain.Progress{
			Phase:     phase,
			Completed: completed,
			Total:     total,
		})
		if err != nil {
			s.logger.Warn("failed to persist job progress", "job", jobID, "error", err)
		}
	}
}

func (s *Service) finish(jobID string, state domain.JobState, result json.RawMessage, errText string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.jobs.Finish(ctx, jobID, state, result, errText); err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			// Another writer already moved the job to a terminal state.
			return
		}
		s.logger.Error("failed to finish job", "job", jobID, "state", state, "error", err)
	}
}

func newJob(kind domain.JobKind) *domain.JobStatus {
	now := time.Now().UTC()
	return &domain.JobStatus{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     domain.JobPending,
		Progress:  domain.Progress{Phase: "initializing"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
