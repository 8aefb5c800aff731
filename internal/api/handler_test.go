package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablelens/internal/analysis"
	"tablelens/internal/domain"
	"tablelens/internal/provider"
	"tablelens/internal/quality"
	"tablelens/internal/resilience"
	"tablelens/internal/testutil"
	"tablelens/internal/workflow"
)

func newTestServer(t *testing.T, prov provider.CompletionProvider) (http.Handler, *testutil.MockJobRepo) {
	t.Helper()
	if prov == nil {
		prov = &testutil.MockProvider{}
	}

	exec := resilience.NewExecutor(
		resilience.RetryConfig{MaxAttempts: 1},
		resilience.NewCircuitRegistry(0, 0),
		resilience.NewErrorLog(),
		nil,
		nil,
	)
	analyzer := analysis.NewAnalyzer(prov, exec, nil, "test-model", nil)
	batch := analysis.NewBatchOrchestrator(analyzer, analysis.BatchConfig{}, nil)
	orch := workflow.NewOrchestrator(&testutil.MockPlatform{}, analyzer, batch, quality.NewGate(nil), nil)
	jobs := testutil.NewMockJobRepo()
	svc := workflow.NewService(orch, batch, jobs, nil)

	h := NewHandler(analyzer, svc, exec, nil)
	router := NewRouter(h, RouterConfig{
		CORSAllowedOrigins: []string{"*"},
		RateLimitRPS:       1000,
		RateLimitBurst:     1000,
	})
	return router, jobs
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// === /healthz ===

func TestHealthz(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)
	rec := doJSON(t, router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["active_jobs"])
}

// === /api/v1/analysis/categories ===

func TestCategoriesEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/analysis/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Categories []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"categories"`
		Total int `json:"total"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 8, body.Total)
	assert.Len(t, body.Categories, 8)
	assert.Equal(t, "structure", body.Categories[0].Name)
	assert.NotEmpty(t, body.Categories[0].Description)
}

// === /api/v1/analysis/estimate-cost ===

func TestEstimateCostEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/analysis/estimate-cost?table_count=10&categories=structure,performance", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var est analysis.Estimate
	decodeBody(t, rec, &est)
	assert.Equal(t, 10, est.TableCount)
	assert.Equal(t, 2, est.CategoriesCount)
	assert.InDelta(t, 0.4, est.EstimatedTotalCost, 1e-9)
}

func TestEstimateCostEndpointValidation(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		path string
	}{
		{name: "missing table_count", path: "/api/v1/analysis/estimate-cost"},
		{name: "non-numeric table_count", path: "/api/v1/analysis/estimate-cost?table_count=lots"},
		{name: "zero table_count", path: "/api/v1/analysis/estimate-cost?table_count=0"},
		{name: "unknown category", path: "/api/v1/analysis/estimate-cost?table_count=5&categories=astrology"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, router, http.MethodGet, tt.path, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// === /api/v1/analysis/table ===

func TestAnalyzeTableEndpoint(t *testing.T) {
	t.Parallel()

	prov := &testutil.MockProvider{
		CompleteFn: func(context.Context, provider.CompletionRequest) (*provider.Completion, error) {
			return &provider.Completion{Text: `[{"issue_type": "x", "description": "d"}]`, Cost: 0.02}, nil
		},
	}
	router, _ := newTestServer(t, prov)

	body := `{"table": {"source_id": "s1", "table_id": "tbl1", "name": "Orders", "fields": []}, "categories": ["structure"]}`
	rec := doJSON(t, router, http.MethodPost, "/api/v1/analysis/table", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TableID string                      `json:"table_id"`
		Results map[string][]domain.Finding `json:"results"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "tbl1", resp.TableID)
	assert.Len(t, resp.Results["structure"], 1)
}

func TestAnalyzeTableEndpointValidation(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing table id", body: `{"table": {"name": "Orders"}}`},
		{name: "missing table name", body: `{"table": {"table_id": "tbl1"}}`},
		{name: "unknown category", body: `{"table": {"table_id": "tbl1", "name": "Orders"}, "categories": ["astrology"]}`},
		{name: "unknown field", body: `{"tables": []}`},
		{name: "malformed json", body: `{`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, router, http.MethodPost, "/api/v1/analysis/table", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// === /api/v1/analysis/batch ===

func TestAnalyzeBatchEndpoint(t *testing.T) {
	t.Parallel()

	router, jobs := newTestServer(t, nil)

	body := `{"tables": [{"source_id": "s1", "table_id": "tbl1", "name": "Orders"}], "categories": ["structure"]}`
	rec := doJSON(t, router, http.MethodPost, "/api/v1/analysis/batch", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp["job_id"])
	assert.Equal(t, "started", resp["status"])

	// The job eventually completes; poll its status endpoint.
	require.Eventually(t, func() bool {
		job, err := jobs.Get(context.Background(), resp["job_id"])
		return err == nil && job.State == domain.JobCompleted
	}, 10*time.Second, 20*time.Millisecond)

	statusRec := doJSON(t, router, http.MethodGet, "/api/v1/analysis/batch/"+resp["job_id"]+"/status", "")
	require.Equal(t, http.StatusOK, statusRec.Code)
	var job domain.JobStatus
	decodeBody(t, statusRec, &job)
	assert.Equal(t, domain.JobCompleted, job.State)

	resultsRec := doJSON(t, router, http.MethodGet, "/api/v1/analysis/batch/"+resp["job_id"]+"/results", "")
	assert.Equal(t, http.StatusOK, resultsRec.Code)
}

func TestAnalyzeBatchEndpointEmptyTables(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/analysis/batch", `{"tables": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeBatchEndpointTuningFields(t *testing.T) {
	t.Parallel()

	router, jobs := newTestServer(t, nil)

	body := `{"tables": [{"source_id": "s1", "table_id": "tbl1", "name": "Orders"}],
		"categories": ["structure"], "batch_size": 3, "max_concurrent": 2}`
	rec := doJSON(t, router, http.MethodPost, "/api/v1/analysis/batch", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp["job_id"])
	require.Eventually(t, func() bool {
		job, err := jobs.Get(context.Background(), resp["job_id"])
		return err == nil && job.State == domain.JobCompleted
	}, 10*time.Second, 20*time.Millisecond)
}

func TestAnalyzeBatchEndpointNegativeTuning(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)
	body := `{"tables": [{"source_id": "s1", "table_id": "tbl1", "name": "Orders"}], "batch_size": -1}`
	rec := doJSON(t, router, http.MethodPost, "/api/v1/analysis/batch", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// === custom prompt ===

func TestCustomPromptEndpoint(t *testing.T) {
	t.Parallel()

	prov := &testutil.MockProvider{
		CompleteFn: func(_ context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
			return &provider.Completion{
				Text:  "The Orders table has 12 fields.",
				Model: req.Model,
				Usage: provider.Usage{InputTokens: 10, OutputTokens: 8},
				Cost:  0.001,
			}, nil
		},
	}
	router, _ := newTestServer(t, prov)

	body := `{"prompt": "Describe the Orders table schema.", "temperature": 0.2}`
	rec := doJSON(t, router, http.MethodPost, "/api/v1/analysis/custom-prompt", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Response string         `json:"response"`
		Model    string         `json:"model"`
		Usage    provider.Usage `json:"usage"`
		Cost     float64        `json:"cost"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "The Orders table has 12 fields.", resp.Response)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.InDelta(t, 0.001, resp.Cost, 1e-9)
}

func TestCustomPromptEndpointValidation(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/analysis/custom-prompt", `{"prompt": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/analysis/custom-prompt", `{"question": "hm"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// === job status and results edge cases ===

func TestJobStatusUnknownJob(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/analysis/batch/nope/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobResultsIncompleteJob(t *testing.T) {
	t.Parallel()

	router, jobs := newTestServer(t, nil)

	job := &domain.JobStatus{
		ID:        "job-pending",
		Kind:      domain.JobKindBatch,
		State:     domain.JobPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, jobs.Create(context.Background(), job))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/analysis/batch/job-pending/results", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Contains(t, body["message"], "not completed")
}

// === /api/v1/analysis/error-summary ===

func TestErrorSummaryEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/analysis/error-summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary domain.ErrorSummary
	decodeBody(t, rec, &summary)
	assert.Zero(t, summary.TotalErrors)
}

func TestErrorRecommendationsEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/analysis/error-recommendations", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

// === workflow routes ===

func TestStartWorkflowEndpointValidation(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)

	// auto_update defaults to true, which requires metadata coordinates.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflow/start-complete-analysis", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartWorkflowEndpoint(t *testing.T) {
	t.Parallel()

	router, jobs := newTestServer(t, nil)

	body := `{"auto_update": false, "categories": ["structure"]}`
	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflow/start-complete-analysis", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp["workflow_id"])

	// The mock platform has no containers, so discovery finds nothing and
	// the job fails; the status route still reports it.
	require.Eventually(t, func() bool {
		job, err := jobs.Get(context.Background(), resp["workflow_id"])
		return err == nil && job.State.Terminal()
	}, 10*time.Second, 20*time.Millisecond)

	statusRec := doJSON(t, router, http.MethodGet, "/api/v1/workflow/status/"+resp["workflow_id"], "")
	require.Equal(t, http.StatusOK, statusRec.Code)
	var job domain.JobStatus
	decodeBody(t, statusRec, &job)
	assert.Equal(t, domain.JobFailed, job.State)
}

func TestCancelWorkflowTerminal(t *testing.T) {
	t.Parallel()

	router, jobs := newTestServer(t, nil)

	job := &domain.JobStatus{
		ID:        "wf-done",
		Kind:      domain.JobKindWorkflow,
		State:     domain.JobCompleted,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, jobs.Create(context.Background(), job))

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/workflow/wf-done", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, "job is completed and cannot be cancelled", resp["message"])
}

func TestEstimateWorkflowEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflow/estimate-workflow-cost", `{"table_count": 10, "categories": ["structure"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var est workflow.WorkflowEstimate
	decodeBody(t, rec, &est)
	assert.Equal(t, 10, est.TableCount)
	assert.InDelta(t, 10.0, est.WorkflowOverhead.TotalOverheadMinutes, 1e-9)
}

func TestActiveWorkflowsEndpoint(t *testing.T) {
	t.Parallel()

	router, jobs := newTestServer(t, nil)
	require.NoError(t, jobs.Create(context.Background(), &domain.JobStatus{
		ID:        "wf-running",
		Kind:      domain.JobKindWorkflow,
		State:     domain.JobRunning,
		CreatedAt: time.Now().UTC(),
	}))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/workflow/active-workflows", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list workflow.JobList
	decodeBody(t, rec, &list)
	assert.Equal(t, 1, list.Total)
	assert.Len(t, list.Active, 1)
}

// === domain error mapping ===

func TestHTTPStatusFromDomainError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: domain.ErrNotFound("missing"), want: http.StatusNotFound},
		{name: "validation", err: domain.ErrValidation("bad input"), want: http.StatusBadRequest},
		{name: "conflict", err: domain.ErrConflict("terminal"), want: http.StatusConflict},
		{name: "unknown", err: assert.AnError, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, httpStatusFromDomainError(tt.err))
		})
	}
}
