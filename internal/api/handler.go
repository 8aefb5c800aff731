// Package api exposes the analysis and workflow services over HTTP.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tablelens/internal/analysis"
	"tablelens/internal/domain"
	"tablelens/internal/resilience"
	"tablelens/internal/workflow"
)

// Handler carries the service dependencies for all routes.
type Handler struct {
	analyzer *analysis.Analyzer
	jobs     *workflow.Service
	executor *resilience.Executor
	logger   *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(analyzer *analysis.Analyzer, jobs *workflow.Service, executor *resilience.Executor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{analyzer: analyzer, jobs: jobs, executor: executor, logger: logger}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := httpStatusFromDomainError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.respondJSON(w, status, map[string]interface{}{
		"code":    status,
		"message": err.Error(),
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

// --- analysis routes ---

type analyzeTableRequest struct {
	Table         domain.TableDescriptor   `json:"table"`
	Categories    []domain.Category        `json:"categories,omitempty"`
	RelatedTables []domain.TableDescriptor `json:"related_tables,omitempty"`
	Fallback      string                   `json:"fallback,omitempty"`
}

// AnalyzeTable runs a synchronous analysis of one table across the
// requested categories.
func (h *Handler) AnalyzeTable(w http.ResponseWriter, r *http.Request) {
	var req analyzeTableRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if req.Table.TableID == "" || req.Table.Name == "" {
		h.respondError(w, domain.ErrValidation("table.table_id and table.name are required"))
		return
	}
	for _, cat := range req.Categories {
		if !cat.Valid() {
			h.respondError(w, domain.ErrValidation("unknown analysis category %q", cat))
			return
		}
	}

	findings, err := h.analyzer.AnalyzeTable(r.Context(), req.Table, req.Categories, req.RelatedTables, req.Fallback)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"table_id":     req.Table.TableID,
		"table_name":   req.Table.Name,
		"results":      findings,
		"cost_summary": h.analyzer.Costs(),
	})
}

type customPromptRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// CustomPrompt forwards an ad-hoc prompt to the completion provider and
// returns the raw response with its cost.
func (h *Handler) CustomPrompt(w http.ResponseWriter, r *http.Request) {
	var req customPromptRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	completion, err := h.analyzer.CustomPrompt(r.Context(), req.Prompt, req.Model, req.Temperature, req.MaxTokens)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"response": completion.Text,
		"model":    completion.Model,
		"usage":    completion.Usage,
		"cost":     completion.Cost,
	})
}

type analyzeBatchRequest struct {
	Tables        []domain.TableDescriptor `json:"tables"`
	Categories    []domain.Category        `json:"categories,omitempty"`
	Fallback      string                   `json:"fallback,omitempty"`
	BatchSize     int                      `json:"batch_size,omitempty"`
	MaxConcurrent int                      `json:"max_concurrent,omitempty"`
}

// AnalyzeBatch starts a background batch job and returns its ID.
func (h *Handler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req analyzeBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	batchCfg := analysis.BatchConfig{BatchSize: req.BatchSize, MaxConcurrent: req.MaxConcurrent}
	jobID, err := h.jobs.StartBatch(r.Context(), req.Tables, req.Categories, req.Fallback, batchCfg)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  jobID,
		"status":  "started",
		"message": "batch analysis started",
	})
}

// JobStatus returns the current status of a batch job.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobs.Status(r.Context(), jobID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

// JobResults returns a completed batch job's findings. Incomplete jobs map
// to 400, unknown IDs to 404.
func (h *Handler) JobResults(w http.ResponseWriter, r *http.Request, jobID string) {
	result, err := h.jobs.Results(r.Context(), jobID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

// EstimateCost projects batch cost from query parameters table_count and
// categories (comma separated).
func (h *Handler) EstimateCost(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.Atoi(r.URL.Query().Get("table_count"))
	if err != nil || count <= 0 {
		h.respondError(w, domain.ErrValidation("table_count must be a positive integer"))
		return
	}
	categories, err := parseCategories(r.URL.Query().Get("categories"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	estimate, err := analysis.EstimateBatchCost(count, categories)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, estimate)
}

// Categories lists the available analysis categories with descriptions.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	type categoryInfo struct {
		Name        domain.Category `json:"name"`
		Description string          `json:"description"`
	}
	all := domain.AllCategories()
	infos := make([]categoryInfo, 0, len(all))
	for _, c := range all {
		infos = append(infos, categoryInfo{Name: c, Description: c.Description()})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"categories": infos,
		"total":      len(infos),
	})
}

// ErrorSummary exposes the fault-tolerance layer's aggregated error state.
func (h *Handler) ErrorSummary(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.executor.Errors().Summary(h.executor.Circuits()))
}

// ErrorRecommendations surfaces remediation advice derived from recent
// error patterns.
func (h *Handler) ErrorRecommendations(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": h.executor.Errors().Recommendations(h.executor.Circuits()),
	})
}

// Healthz reports liveness plus active job count.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	active, err := h.jobs.ActiveCount(r.Context())
	if err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"active_jobs": active,
	})
}

func parseCategories(raw string) ([]domain.Category, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	categories := make([]domain.Category, 0, len(parts))
	for _, p := range parts {
		c := domain.Category(strings.TrimSpace(p))
		if !c.Valid() {
			return nil, domain.ErrValidation("unknown analysis category %q", c)
		}
		categories = append(categories, c)
	}
	return categories, nil
}
