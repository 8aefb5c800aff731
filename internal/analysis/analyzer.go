// Package analysis produces structured optimization findings for tables by
// prompting a completion provider and parsing its JSON answers.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tablelens/internal/domain"
	"tablelens/internal/provider"
	"tablelens/internal/resilience"
)

const (
	// minRequestInterval spaces out provider calls globally across all
	// concurrent analyses.
	minRequestInterval = time.Second

	analysisTemperature = 0.1
	analysisMaxTokens   = 4000

	// DefaultFallback is used when a caller does not name a strategy.
	DefaultFallback = "simplified"
)

// CostSummary reports accumulated provider spend.
type CostSummary struct {
	TotalCost              float64 `json:"total_cost"`
	AnalysisCount          int     `json:"analysis_count"`
	AverageCostPerAnalysis float64 `json:"average_cost_per_analysis"`
	EstimatedCostPerTable  float64 `json:"estimated_cost_per_table"`
}

// Estimate is a pre-flight cost and duration projection for a batch.
type Estimate struct {
	EstimatedTotalCost   float64 `json:"estimated_total_cost"`
	CostPerTable         float64 `json:"cost_per_table"`
	CategoriesCount      int     `json:"categories_count"`
	TableCount           int     `json:"table_count"`
	EstimatedTimeMinutes float64 `json:"estimated_time_minutes"`
}

// Per-category cost heuristics, derived from prompt complexity and typical
// response length.
var categoryCosts = map[domain.Category]float64{
	domain.CategoryStructure:         0.02,
	domain.CategoryNormalization:     0.025,
	domain.CategoryFieldTypes:        0.015,
	domain.CategoryRelationships:     0.03,
	domain.CategoryPerformance:       0.02,
	domain.CategoryDataQuality:       0.02,
	domain.CategoryNamingConventions: 0.01,
	domain.CategoryIndexing:          0.015,
}

const defaultCategoryCost = 0.02

// Analyzer runs single-category analyses under the fault-tolerance layer.
// Safe for concurrent use; the rate limiter serializes provider calls.
type Analyzer struct {
	provider provider.CompletionProvider
	executor *resilience.Executor
	cache    domain.AnalysisCacheRepository
	limiter  *rate.Limiter
	logger   *slog.Logger
	model    string

	mu        sync.Mutex
	totalCost float64
	count     int
}

// NewAnalyzer creates an analyzer. cache may be nil; findings are then never
// persisted for the cached fallback.
func NewAnalyzer(p provider.CompletionProvider, exec *resilience.Executor, cache domain.AnalysisCacheRepository, model string, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Analyzer{
		provider: p,
		executor: exec,
		cache:    cache,
		limiter:  rate.NewLimiter(rate.Every(minRequestInterval), 1),
		logger:   logger,
		model:    model,
	}
}

// AnalyzeCategory analyzes one table in one category. Provider failures go
// through retry, circuit-breaking, and the named fallback strategy, so the
// returned result is non-nil whenever err is nil.
func (a *Analyzer) AnalyzeCategory(ctx context.Context, table domain.TableDescriptor, category domain.Category, related []domain.TableDescriptor, fallback string) (*resilience.Result, error) {
	if !category.Valid() {
		return nil, domain.ErrValidation("unknown analysis category %q", category)
	}
	if fallback == "" {
		fallback = DefaultFallback
	}

	fctx := domain.FaultContext{
		Operation: fmt.Sprintf("analyze_%s", category),
		TableID:   table.TableID,
		TableName: table.Name,
		Category:  category,
	}

	op := func(ctx context.Context) ([]domain.Finding, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		completion, err := a.provider.Complete(ctx, provider.CompletionRequest{
			Messages: []provider.Message{
				{Role: provider.RoleSystem, Content: systemPrompt},
				{Role: provider.RoleUser, Content: promptFor(table, category, related)},
			},
			Model:       a.model,
			Temperature: analysisTemperature,
			MaxTokens:   analysisMaxTokens,
		})
		if err != nil {
			return nil, err
		}

		a.recordCost(completion.Cost)
		return a.parseFindings(completion.Text, table, category), nil
	}

	result, err := a.executor.ExecuteWithFallback(ctx, op, fctx, fallback)
	if err != nil {
		return nil, err
	}

	if a.cache != nil && !result.FallbackUsed && len(result.Findings) > 0 {
		if cerr := a.cache.Put(ctx, table.TableID, category, result.Findings); cerr != nil {
			a.logger.Warn("failed to cache findings", "table", table.Name, "category", category, "error", cerr)
		}
	}
	return result, nil
}

// AnalyzeTable runs every requested category for one table sequentially.
// A nil categories slice means all categories. Per-category failures never
// abort the remaining categories.
func (a *Analyzer) AnalyzeTable(ctx context.Context, table domain.TableDescriptor, categories []domain.Category, related []domain.TableDescriptor, fallback string) (domain.TableFindings, error) {
	if len(categories) == 0 {
		categories = domain.AllCategories()
	}

	results := make(domain.TableFindings, len(categories))
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := a.AnalyzeCategory(ctx, table, category, related, fallback)
		if err != nil {
			a.logger.Error("category analysis failed", "table", table.Name, "category", category, "error", err)
			results[category] = []domain.Finding{}
			continue
		}
		results[category] = res.Findings
		a.logger.Info("completed category analysis", "table", table.Name, "category", category, "findings", len(res.Findings))
	}
	return results, nil
}

// CustomPrompt sends an ad-hoc prompt straight to the provider, under the
// shared rate limit and cost accounting but outside the finding pipeline.
func (a *Analyzer) CustomPrompt(ctx context.Context, prompt, model string, temperature float64, maxTokens int) (*provider.Completion, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, domain.ErrValidation("prompt is required")
	}
	if model == "" {
		model = a.model
	}
	if maxTokens <= 0 {
		maxTokens = analysisMaxTokens
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	completion, err := a.provider.Complete(ctx, provider.CompletionRequest{
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("custom prompt failed: %w", err)
	}
	a.recordCost(completion.Cost)
	return completion, nil
}

// rawFinding mirrors the JSON shape the prompt asks for, before defaults.
type rawFinding struct {
	IssueType            string   `json:"issue_type"`
	Priority             string   `json:"priority"`
	Description          string   `json:"description"`
	Recommendation       string   `json:"recommendation"`
	Impact               string   `json:"impact"`
	Effort               string   `json:"effort"`
	EstimatedImprovement string   `json:"estimated_improvement"`
	ImplementationSteps  []string `json:"implementation_steps"`
	Confidence           *float64 `json:"confidence_score"`
}

// parseFindings extracts the JSON array from a model response. A response
// with no parseable array yields zero findings, not an error.
func (a *Analyzer) parseFindings(text string, table domain.TableDescriptor, category domain.Category) []domain.Finding {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end <= start {
		a.logger.Warn("no JSON array in provider response", "table", table.Name, "category", category)
		return nil
	}

	var raw []rawFinding
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		a.logger.Warn("malformed JSON in provider response", "table", table.Name, "category", category, "error", err)
		return nil
	}

	findings := make([]domain.Finding, 0, len(raw))
	for _, r := range raw {
		priority := domain.Priority(r.Priority)
		if !priority.Valid() {
			priority = domain.PriorityMedium
		}
		effort := domain.Effort(r.Effort)
		if !effort.Valid() {
			effort = domain.EffortMedium
		}
		confidence := 0.7
		if r.Confidence != nil {
			confidence = *r.Confidence
		}
		findings = append(findings, domain.Finding{
			TableID:              table.TableID,
			TableName:            table.Name,
			Category:             category,
			Priority:             priority,
			IssueType:            r.IssueType,
			Description:          r.Description,
			Recommendation:       r.Recommendation,
			Impact:               r.Impact,
			Effort:               effort,
			EstimatedImprovement: r.EstimatedImprovement,
			ImplementationSteps:  r.ImplementationSteps,
			Confidence:           confidence,
		})
	}
	return findings
}

func (a *Analyzer) recordCost(cost float64) {
	a.mu.Lock()
	a.totalCost += cost
	a.count++
	a.mu.Unlock()
}

// Costs reports accumulated spend across all analyses so far.
func (a *Analyzer) Costs() CostSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := a.count
	if count == 0 {
		count = 1
	}
	perTable := float64(a.count) / float64(len(domain.AllCategories()))
	if perTable < 1 {
		perTable = 1
	}
	return CostSummary{
		TotalCost:              round4(a.totalCost),
		AnalysisCount:          a.count,
		AverageCostPerAnalysis: round4(a.totalCost / float64(count)),
		EstimatedCostPerTable:  round4(a.totalCost / perTable),
	}
}

// EstimateBatchCost projects cost and wall time for analyzing tableCount
// tables across the given categories (all categories when nil). The estimate
// grows monotonically with both inputs.
func EstimateBatchCost(tableCount int, categories []domain.Category) (Estimate, error) {
	if tableCount <= 0 {
		return Estimate{}, domain.ErrValidation("table count must be positive, got %d", tableCount)
	}
	if len(categories) == 0 {
		categories = domain.AllCategories()
	}
	for _, c := range categories {
		if !c.Valid() {
			return Estimate{}, domain.ErrValidation("unknown analysis category %q", c)
		}
	}

	var perTable float64
	for _, c := range categories {
		cost, ok := categoryCosts[c]
		if !ok {
			cost = defaultCategoryCost
		}
		perTable += cost
	}
	total := perTable * float64(tableCount)

	return Estimate{
		EstimatedTotalCost:   round4(total),
		CostPerTable:         round4(perTable),
		CategoriesCount:      len(categories),
		TableCount:           tableCount,
		EstimatedTimeMinutes: float64(tableCount*len(categories)) * 0.5,
	}, nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
