// Package workflow runs the end-to-end analysis pipeline: discover tables
// from the data platform, analyze them in batches, quality-check the
// findings, and write summaries back to the metadata table.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tablelens/internal/analysis"
	"tablelens/internal/domain"
	"tablelens/internal/platform"
	"tablelens/internal/quality"
)

// Defaults for workflow configuration.
const (
	DefaultQualityThreshold = 0.7

	// metadataUpdateBatch bounds how many records go into one platform
	// write call.
	metadataUpdateBatch = 10

	// discoverConcurrency bounds parallel schema fetches during discovery.
	discoverConcurrency = 4

	topRecommendationLimit = 5
)

// Config parameterizes one workflow run.
type Config struct {
	// MetadataSourceID and MetadataTableID locate the table that receives
	// per-table analysis summaries.
	MetadataSourceID string            `json:"metadata_source_id"`
	MetadataTableID  string            `json:"metadata_table_id"`
	TargetSourceIDs  []string          `json:"target_source_ids,omitempty"`
	BatchSize        int               `json:"batch_size"`
	MaxConcurrent    int               `json:"max_concurrent"`
	Categories       []domain.Category `json:"categories,omitempty"`
	AutoUpdate       bool              `json:"auto_update"`
	QualityThreshold float64           `json:"quality_threshold"`
	Fallback         string            `json:"fallback,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = DefaultQualityThreshold
	}
	if c.Fallback == "" {
		c.Fallback = analysis.DefaultFallback
	}
	return c
}

// Validate checks the parts of a config the orchestrator cannot default.
func (c Config) Validate() error {
	if c.AutoUpdate && (c.MetadataSourceID == "" || c.MetadataTableID == "") {
		return domain.ErrValidation("metadata source and table are required when auto-update is enabled")
	}
	if c.BatchSize < 0 || c.MaxConcurrent < 0 {
		return domain.ErrValidation("batch_size and max_concurrent must not be negative")
	}
	for _, cat := range c.Categories {
		if !cat.Valid() {
			return domain.ErrValidation("unknown analysis category %q", cat)
		}
	}
	return nil
}

// TopRecommendation is a high-confidence recommendation surfaced in a table
// summary.
type TopRecommendation struct {
	Category       domain.Category `json:"category"`
	Recommendation string          `json:"recommendation"`
	Confidence     float64         `json:"confidence"`
}

// TableSummary condenses one table's findings for the metadata store.
type TableSummary struct {
	TableID            string              `json:"table_id"`
	TotalIssues        int                 `json:"total_issues"`
	HighPriority       int                 `json:"high_priority"`
	MediumPriority     int                 `json:"medium_priority"`
	LowPriority        int                 `json:"low_priority"`
	CategoriesAnalyzed []domain.Category   `json:"categories_analyzed"`
	TopRecommendations []TopRecommendation `json:"top_recommendations"`
}

// ProcessedResults buckets quality-checked findings by priority.
type ProcessedResults struct {
	HighPriority      []domain.Finding        `json:"high_priority_issues"`
	MediumPriority    []domain.Finding        `json:"medium_priority_issues"`
	LowPriority       []domain.Finding        `json:"low_priority_issues"`
	QualityFiltered   []domain.Finding        `json:"quality_filtered"`
	SummaryByCategory map[domain.Category]int `json:"summary_by_category"`
	TableSummaries    map[string]TableSummary `json:"table_summaries"`
	QualityReport     *domain.BatchReport     `json:"quality_report"`
}

// UpdateResults reports the metadata write-back step. Errors there are
// collected, never fatal to the workflow.
type UpdateResults struct {
	Skipped        bool     `json:"skipped,omitempty"`
	UpdatedRecords int      `json:"updated_records"`
	FailedUpdates  int      `json:"failed_updates"`
	Errors         []string `json:"errors,omitempty"`
}

// Summary is the final record of one workflow run.
type Summary struct {
	WorkflowID       string                `json:"workflow_id"`
	Status           string                `json:"status"`
	DurationSeconds  float64               `json:"duration_seconds"`
	TablesDiscovered int                   `json:"tables_discovered"`
	TablesAnalyzed   int                   `json:"tables_analyzed"`
	TablesFailed     int                   `json:"tables_failed"`
	CostSummary      analysis.CostSummary  `json:"cost_summary"`
	MetadataUpdates  *UpdateResults        `json:"metadata_updates"`
	FailedTables     []domain.TableFailure `json:"failed_tables,omitempty"`
	Processed        *ProcessedResults     `json:"processed_results"`
	StartedAt        time.Time             `json:"started_at"`
	CompletedAt      time.Time             `json:"completed_at"`
}

// ProgressFunc observes phase transitions and per-table completion.
type ProgressFunc func(phase string, completed, total int)

// Orchestrator drives the discover, analyze, process, update pipeline.
type Orchestrator struct {
	platform platform.Platform
	analyzer *analysis.Analyzer
	batch    *analysis.BatchOrchestrator
	gate     *quality.Gate
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator over the given collaborators.
func NewOrchestrator(p platform.Platform, a *analysis.Analyzer, b *analysis.BatchOrchestrator, g *quality.Gate, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		platform: p,
		analyzer: a,
		batch:    b,
		gate:     g,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes the complete workflow. progress may be nil. The returned
// summary is non-nil even on error, describing how far the run got.
func (o *Orchestrator) Run(ctx context.Context, cfg Config, progress ProgressFunc) (*Summary, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(string, int, int) {}
	}

	start := o.now()
	summary := &Summary{Status: "failed", StartedAt: start}
	finish := func() {
		summary.CompletedAt = o.now()
		summary.DurationSeconds = summary.CompletedAt.Sub(start).Seconds()
		summary.CostSummary = o.analyzer.Costs()
	}

	o.logger.Info("starting table discovery")
	progress("discovering", 0, 0)
	tables, err := o.Discover(ctx, cfg.TargetSourceIDs)
	if err != nil {
		finish()
		return summary, fmt.Errorf("table discovery failed: %w", err)
	}
	summary.TablesDiscovered = len(tables)
	o.logger.Info("discovered tables", "count", len(tables))
	if len(tables) == 0 {
		finish()
		return summary, domain.ErrNotFound("no tables discovered for analysis")
	}

	o.logger.Info("starting batch analysis")
	progress("analyzing", 0, len(tables))
	batchCfg := analysis.BatchConfig{BatchSize: cfg.BatchSize, MaxConcurrent: cfg.MaxConcurrent}
	batchResult, err := o.batch.AnalyzeBatch(ctx, tables, cfg.Categories, cfg.Fallback, batchCfg, func(completed, total int) {
		progress("analyzing", completed, total)
	})
	if err != nil {
		finish()
		return summary, fmt.Errorf("batch analysis failed: %w", err)
	}
	summary.TablesAnalyzed = len(batchResult.Results)
	summary.TablesFailed = len(batchResult.Failures)
	summary.FailedTables = batchResult.Failures

	o.logger.Info("processing analysis results")
	progress("processing", summary.TablesAnalyzed, len(tables))
	processed := o.Process(batchResult.Results, cfg.QualityThreshold)
	summary.Processed = processed

	if cfg.AutoUpdate {
		o.logger.Info("updating metadata table")
		progress("updating", summary.TablesAnalyzed, len(tables))
		summary.MetadataUpdates = o.UpdateMetadata(ctx, cfg, processed)
	} else {
		summary.MetadataUpdates = &UpdateResults{Skipped: true}
	}

	summary.Status = "completed"
	finish()
	progress("completed", summary.TablesAnalyzed, len(tables))
	o.logger.Info("workflow completed",
		"tables_discovered", summary.TablesDiscovered,
		"tables_analyzed", summary.TablesAnalyzed,
		"tables_failed", summary.TablesFailed,
		"duration_seconds", summary.DurationSeconds,
	)
	return summary, nil
}

// Discover lists tables across the given sources (all accessible sources
// when nil). A source whose schema cannot be fetched is logged and skipped;
// discovery fails only when the source listing itself fails.
func (o *Orchestrator) Discover(ctx context.Context, sourceIDs []string) ([]domain.TableDescriptor, error) {
	if len(sourceIDs) == 0 {
		containers, err := o.platform.ListContainers(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range containers {
			sourceIDs = append(sourceIDs, c.ID)
		}
	}

	var (
		mu     sync.Mutex
		tables []domain.TableDescriptor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoverConcurrency)

	for _, sourceID := range sourceIDs {
		sourceID := sourceID
		g.Go(func() error {
			schema, err := o.platform.GetSchema(gctx, sourceID)
			if err != nil {
				o.logger.Warn("failed to get schema, skipping source", "source", sourceID, "error", err)
				return nil
			}
			descriptors := make([]domain.TableDescriptor, 0, len(schema.Tables))
			for _, t := range schema.Tables {
				descriptors = append(descriptors, domain.TableDescriptor{
					SourceID:      sourceID,
					TableID:       t.ID,
					Name:          t.Name,
					Fields:        t.Fields,
					Relationships: ExtractRelationships(t.Fields),
					Views:         t.Views,
				})
			}
			mu.Lock()
			tables = append(tables, descriptors...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

// ExtractRelationships pulls link, lookup, and rollup structure out of field
// options.
func ExtractRelationships(fields []domain.FieldDescriptor) []domain.Relationship {
	var rels []domain.Relationship
	for _, f := range fields {
		switch f.Type {
		case "multipleRecordLinks":
			rels = append(rels, domain.Relationship{
				FieldID:       f.ID,
				FieldName:     f.Name,
				Type:          "link",
				LinkedTableID: optString(f.Options, "linkedTableId"),
				IsReversed:    optBool(f.Options, "isReversed"),
			})
		case "lookup", "multipleLookupValues":
			rels = append(rels, domain.Relationship{
				FieldID:         f.ID,
				FieldName:       f.Name,
				Type:            "lookup",
				RecordLinkField: optString(f.Options, "recordLinkFieldId"),
				LinkedFieldID:   optString(f.Options, "fieldIdInLinkedTable"),
			})
		case "rollup":
			rels = append(rels, domain.Relationship{
				FieldID:         f.ID,
				FieldName:       f.Name,
				Type:            "rollup",
				RecordLinkField: optString(f.Options, "recordLinkFieldId"),
				LinkedFieldID:   optString(f.Options, "fieldIdInLinkedTable"),
				Formula:         optString(f.Options, "formula"),
			})
		}
	}
	return rels
}

// Process quality-checks batch findings and buckets the survivors by
// priority. Findings below the confidence threshold, or rejected by the
// quality gate, land in QualityFiltered.
func (o *Orchestrator) Process(results domain.BatchFindings, threshold float64) *ProcessedResults {
	report := o.gate.ValidateBatch(results)

	processed := &ProcessedResults{
		SummaryByCategory: make(map[domain.Category]int),
		TableSummaries:    make(map[string]TableSummary, len(results)),
		QualityReport:     report,
	}
	for _, cat := range domain.AllCategories() {
		processed.SummaryByCategory[cat] = 0
	}

	for tableID, tableFindings := range results {
		ts := TableSummary{
			TableID:            tableID,
			TopRecommendations: []TopRecommendation{},
		}
		accepted := report.Accepted[tableID]

		for category, findings := range tableFindings {
			ts.CategoriesAnalyzed = append(ts.CategoriesAnalyzed, category)
			processed.SummaryByCategory[category] += len(findings)
			acceptedSet := indexFindings(accepted[category])

			for _, f := range findings {
				ts.TotalIssues++

				kept, ok := acceptedSet[findingKey(f)]
				if f.Confidence < threshold || !ok {
					processed.QualityFiltered = append(processed.QualityFiltered, f)
					continue
				}
				// The accepted copy carries the gate's quality-warning
				// flag, if any.
				f = kept

				switch f.Priority {
				case domain.PriorityHigh:
					processed.HighPriority = append(processed.HighPriority, f)
					ts.HighPriority++
				case domain.PriorityMedium:
					processed.MediumPriority = append(processed.MediumPriority, f)
					ts.MediumPriority++
				default:
					processed.LowPriority = append(processed.LowPriority, f)
					ts.LowPriority++
				}

				if f.Confidence >= 0.8 && f.Priority != domain.PriorityLow {
					ts.TopRecommendations = append(ts.TopRecommendations, TopRecommendation{
						Category:       category,
						Recommendation: f.Recommendation,
						Confidence:     f.Confidence,
					})
				}
			}
		}
		processed.TableSummaries[tableID] = ts
	}
	return processed
}

// UpdateMetadata writes per-table summaries to the metadata table. Existing
// records (matched on table_id) are updated, the rest are created, in
// batches. Failures are collected into the result, never returned.
func (o *Orchestrator) UpdateMetadata(ctx context.Context, cfg Config, processed *ProcessedResults) *UpdateResults {
	result := &UpdateResults{}
	now := o.now().UTC().Format(time.RFC3339)

	var creates, updates []platform.Record
	for tableID, summary := range processed.TableSummaries {
		top := summary.TopRecommendations
		if len(top) > topRecommendationLimit {
			top = top[:topRecommendationLimit]
		}
		improvements, err := json.Marshal(map[string]interface{}{
			"analysis_timestamp":    now,
			"total_issues":          summary.TotalIssues,
			"high_priority_count":   summary.HighPriority,
			"medium_priority_count": summary.MediumPriority,
			"low_priority_count":    summary.LowPriority,
			"categories_analyzed":   summary.CategoriesAnalyzed,
			"top_recommendations":   top,
			"analysis_status":       "completed",
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("encode summary for %s: %v", tableID, err))
			continue
		}

		fields := map[string]interface{}{
			"improvements":    string(improvements),
			"last_analysis":   now,
			"analysis_status": "completed",
		}

		page, err := o.platform.ListRecords(ctx, cfg.MetadataSourceID, cfg.MetadataTableID,
			fmt.Sprintf("{table_id} = '%s'", tableID))
		if err != nil {
			o.logger.Warn("failed to query metadata record", "table", tableID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("query failed for %s: %v", tableID, err))
			continue
		}

		if len(page.Records) > 0 {
			updates = append(updates, platform.Record{ID: page.Records[0].ID, Fields: fields})
		} else {
			fields["table_id"] = tableID
			creates = append(creates, platform.Record{Fields: fields})
		}
	}

	for _, chunk := range chunkRecords(updates, metadataUpdateBatch) {
		if _, err := o.platform.UpdateRecords(ctx, cfg.MetadataSourceID, cfg.MetadataTableID, chunk); err != nil {
			o.logger.Error("failed to update metadata records", "count", len(chunk), "error", err)
			result.FailedUpdates += len(chunk)
			result.Errors = append(result.Errors, fmt.Sprintf("update failed: %v", err))
			continue
		}
		result.UpdatedRecords += len(chunk)
	}
	for _, chunk := range chunkRecords(creates, metadataUpdateBatch) {
		if _, err := o.platform.CreateRecords(ctx, cfg.MetadataSourceID, cfg.MetadataTableID, chunk); err != nil {
			o.logger.Error("failed to create metadata records", "count", len(chunk), "error", err)
			result.FailedUpdates += len(chunk)
			result.Errors = append(result.Errors, fmt.Sprintf("create failed: %v", err))
			continue
		}
		result.UpdatedRecords += len(chunk)
	}
	return result
}

func chunkRecords(records []platform.Record, size int) [][]platform.Record {
	var chunks [][]platform.Record
	for i := 0; i < len(records); i += size {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[i:end])
	}
	return chunks
}

// findingKey identifies a finding within one table and category for
// accepted-set membership checks.
func findingKey(f domain.Finding) string {
	return f.IssueType + "\x00" + f.Description
}

func indexFindings(findings []domain.Finding) map[string]domain.Finding {
	set := make(map[string]domain.Finding, len(findings))
	for _, f := range findings {
		set[findingKey(f)] = f
	}
	return set
}

func optString(options map[string]interface{}, key string) string {
	if v, ok := options[key].(string); ok {
		return v
	}
	return ""
}

func optBool(options map[string]interface{}, key string) bool {
	if v, ok := options[key].(bool); ok {
		return v
	}
	return false
}
