package api

import (
	"net/http"

	"tablelens/internal/domain"
	"tablelens/internal/workflow"
)

type startWorkflowRequest struct {
	MetadataSourceID string            `json:"metadata_source_id"`
	MetadataTableID  string            `json:"metadata_table_id"`
	TargetSourceIDs  []string          `json:"target_source_ids,omitempty"`
	BatchSize        int               `json:"batch_size,omitempty"`
	MaxConcurrent    int               `json:"max_concurrent,omitempty"`
	Categories       []domain.Category `json:"categories,omitempty"`
	AutoUpdate       *bool             `json:"auto_update,omitempty"`
	QualityThreshold float64           `json:"quality_threshold,omitempty"`
	Fallback         string            `json:"fallback,omitempty"`
}

func (r startWorkflowRequest) toConfig() workflow.Config {
	autoUpdate := true
	if r.AutoUpdate != nil {
		autoUpdate = *r.AutoUpdate
	}
	return workflow.Config{
		MetadataSourceID: r.MetadataSourceID,
		MetadataTableID:  r.MetadataTableID,
		TargetSourceIDs:  r.TargetSourceIDs,
		BatchSize:        r.BatchSize,
		MaxConcurrent:    r.MaxConcurrent,
		Categories:       r.Categories,
		AutoUpdate:       autoUpdate,
		QualityThreshold: r.QualityThreshold,
		Fallback:         r.Fallback,
	}
}

// StartWorkflow launches the complete discover-analyze-update pipeline in
// the background.
func (h *Handler) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req startWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	jobID, err := h.jobs.StartWorkflow(r.Context(), req.toConfig())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{
		"workflow_id": jobID,
		"status":      "started",
		"message":     "complete analysis workflow started",
	})
}

// WorkflowStatus returns the polled status of one workflow job.
func (h *Handler) WorkflowStatus(w http.ResponseWriter, r *http.Request, workflowID string) {
	job, err := h.jobs.Status(r.Context(), workflowID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

// WorkflowResults returns the summary of a completed workflow.
func (h *Handler) WorkflowResults(w http.ResponseWriter, r *http.Request, workflowID string) {
	result, err := h.jobs.Results(r.Context(), workflowID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

// CancelWorkflow requests cancellation. Terminal workflows are reported,
// not modified.
func (h *Handler) CancelWorkflow(w http.ResponseWriter, r *http.Request, workflowID string) {
	msg, err := h.jobs.Cancel(r.Context(), workflowID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": msg})
}

type estimateWorkflowRequest struct {
	TableCount int               `json:"table_count,omitempty"`
	Categories []domain.Category `json:"categories,omitempty"`
}

// EstimateWorkflow projects cost and time for a workflow run, including
// fixed discovery, processing, and update overhead.
func (h *Handler) EstimateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req estimateWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	estimate, err := workflow.EstimateWorkflow(req.TableCount, req.Categories)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, estimate)
}

// ActiveWorkflows buckets all known jobs by lifecycle state.
func (h *Handler) ActiveWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, list)
}
