package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"tablelens/internal/domain"
)

// Result is what the executor hands back to callers: either the operation's
// own findings, or a tagged fallback payload with error metadata.
type Result struct {
	Findings     []domain.Finding `json:"findings"`
	FallbackUsed bool             `json:"fallback_used"`
	FallbackType string           `json:"fallback_type,omitempty"`
	ErrorInfo    *ErrorInfo       `json:"error_info,omitempty"`
}

// ErrorInfo describes the failure that triggered a fallback.
type ErrorInfo struct {
	OriginalError string               `json:"original_error"`
	Category      domain.ErrorCategory `json:"error_category"`
	Severity      domain.Severity      `json:"severity"`
}

// FallbackStrategy is a named recovery procedure invoked after all retries
// for an operation are exhausted.
type FallbackStrategy interface {
	Name() string
	Execute(ctx context.Context, fctx domain.FaultContext, cause error) (*Result, error)
}

// --- simplified ---

// SimplifiedFallback always succeeds, returning a low-confidence
// manual-review placeholder finding. It terminates every fallback chain.
type SimplifiedFallback struct{}

func (SimplifiedFallback) Name() string { return "simplified" }

func (SimplifiedFallback) Execute(_ context.Context, fctx domain.FaultContext, cause error) (*Result, error) {
	category := fctx.Category
	if category == "" {
		category = domain.CategoryStructure
	}
	finding := domain.Finding{
		TableID:              fctx.TableID,
		TableName:            fctx.TableName,
		Category:             category,
		Priority:             domain.PriorityMedium,
		IssueType:            "analysis_fallback",
		Description:          fmt.Sprintf("Full analysis failed for table %s. Manual review recommended.", fctx.TableName),
		Recommendation:       "Perform manual analysis of this table structure and configuration.",
		Impact:               "Unknown - requires manual assessment",
		Effort:               domain.EffortMedium,
		EstimatedImprovement: "To be determined",
		ImplementationSteps:  []string{"Schedule manual review", "Assess table structure", "Implement improvements"},
		Confidence:           0.3,
		FallbackUsed:         true,
		FallbackType:         "simplified",
	}

	info := &ErrorInfo{Category: domain.ErrorUnknown, Severity: domain.SeverityMedium}
	if cause != nil {
		cat := Classify(cause)
		info = &ErrorInfo{
			OriginalError: cause.Error(),
			Category:      cat,
			Severity:      AssessSeverity(cat, fctx),
		}
	}

	return &Result{
		Findings:     []domain.Finding{finding},
		FallbackUsed: true,
		FallbackType: "simplified",
		ErrorInfo:    info,
	}, nil
}

// --- cached ---

// CachedFallback returns previously stored successful findings for the same
// table and category; with no cache hit it delegates to simplified.
type CachedFallback struct {
	Cache  domain.AnalysisCacheRepository
	Logger *slog.Logger
}

func (CachedFallback) Name() string { return "cached" }

func (f CachedFallback) Execute(ctx context.Context, fctx domain.FaultContext, cause error) (*Result, error) {
	if f.Cache != nil && fctx.TableID != "" && fctx.Category != "" {
		findings, err := f.Cache.Get(ctx, fctx.TableID, fctx.Category)
		if err == nil && len(findings) > 0 {
			if f.Logger != nil {
				f.Logger.Info("serving cached findings", "table", fctx.TableName, "category", fctx.Category)
			}
			for i := range findings {
				findings[i].FallbackUsed = true
				findings[i].FallbackType = "cached"
			}
			return &Result{
				Findings:     findings,
				FallbackUsed: true,
				FallbackType: "cached",
				ErrorInfo:    errorInfoFor(cause, fctx),
			}, nil
		}
	}
	return SimplifiedFallback{}.Execute(ctx, fctx, cause)
}

// --- partial ---

// PartialFallback salvages the parseable array prefix of a truncated
// provider response; with nothing to salvage it delegates to simplified.
type PartialFallback struct {
	Logger *slog.Logger
}

func (PartialFallback) Name() string { return "partial" }

func (f PartialFallback) Execute(ctx context.Context, fctx domain.FaultContext, cause error) (*Result, error) {
	if raw := fctx.PartialResponse; raw != "" {
		start := strings.Index(raw, "[")
		end := strings.LastIndex(raw, "]")
		if start != -1 && end > start {
			var findings []domain.Finding
			if err := json.Unmarshal([]byte(raw[start:end+1]), &findings); err == nil && len(findings) > 0 {
				for i := range findings {
					findings[i].TableID = fctx.TableID
					findings[i].TableName = fctx.TableName
					findings[i].Category = fctx.Category
					findings[i].FallbackUsed = true
					findings[i].FallbackType = "partial"
				}
				return &Result{
					Findings:     findings,
					FallbackUsed: true,
					FallbackType: "partial",
					ErrorInfo:    errorInfoFor(cause, fctx),
				}, nil
			}
			if f.Logger != nil {
				f.Logger.Warn("failed to salvage partial response", "table", fctx.TableName)
			}
		}
	}
	return SimplifiedFallback{}.Execute(ctx, fctx, cause)
}

func errorInfoFor(cause error, fctx domain.FaultContext) *ErrorInfo {
	if cause == nil {
		return nil
	}
	cat := Classify(cause)
	return &ErrorInfo{
		OriginalError: cause.Error(),
		Category:      cat,
		Severity:      AssessSeverity(cat, fctx),
	}
}
