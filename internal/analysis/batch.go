package analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"tablelens/internal/domain"
)

// Batch defaults.
const (
	DefaultBatchSize     = 5
	DefaultMaxConcurrent = 3
)

// BatchConfig bounds how a batch run is chunked and parallelized.
type BatchConfig struct {
	BatchSize     int
	MaxConcurrent int
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	return c
}

// BatchResult collects per-table findings and the tables that failed
// outright. Failed tables never abort the rest of the batch.
type BatchResult struct {
	Results  domain.BatchFindings  `json:"results"`
	Failures []domain.TableFailure `json:"failures,omitempty"`
}

// ProgressFunc observes batch progress after each completed table.
type ProgressFunc func(completed, total int)

// BatchOrchestrator fans table analyses out over a bounded worker set,
// chunked in batches with a join between chunks.
type BatchOrchestrator struct {
	analyzer *Analyzer
	cfg      BatchConfig
	logger   *slog.Logger
}

// NewBatchOrchestrator creates a batch orchestrator around an analyzer.
func NewBatchOrchestrator(a *Analyzer, cfg BatchConfig, logger *slog.Logger) *BatchOrchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BatchOrchestrator{analyzer: a, cfg: cfg.withDefaults(), logger: logger}
}

// resolve overlays per-call tuning on the construction config. Zero values
// keep the constructed defaults.
func (o *BatchOrchestrator) resolve(cfg BatchConfig) BatchConfig {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = o.cfg.BatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = o.cfg.MaxConcurrent
	}
	return cfg
}

// AnalyzeBatch analyzes every table across the given categories. A panic or
// error in one table is recorded as a failure; sibling tables keep running.
// cfg overrides the constructed batch size and concurrency per call; zero
// fields keep the defaults. progress may be nil.
func (o *BatchOrchestrator) AnalyzeBatch(ctx context.Context, tables []domain.TableDescriptor, categories []domain.Category, fallback string, cfg BatchConfig, progress ProgressFunc) (*BatchResult, error) {
	if len(tables) == 0 {
		return nil, domain.ErrValidation("batch must contain at least one table")
	}
	cfg = o.resolve(cfg)

	result := &BatchResult{Results: make(domain.BatchFindings, len(tables))}
	sem := semaphore.NewWeighted(int64(cfg.MaxConcurrent))

	var (
		mu        sync.Mutex
		completed int
	)
	total := len(tables)

	record := func(table domain.TableDescriptor, findings domain.TableFindings, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failures = append(result.Failures, domain.TableFailure{
				TableID:   table.TableID,
				TableName: table.Name,
				Error:     err.Error(),
			})
		} else {
			result.Results[table.TableID] = findings
		}
		completed++
		if progress != nil {
			progress(completed, total)
		}
	}

	batchCount := (total + cfg.BatchSize - 1) / cfg.BatchSize
	for i := 0; i < total; i += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := i + cfg.BatchSize
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		for _, table := range tables[i:end] {
			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return result, err
			}
			wg.Add(1)
			go func(table domain.TableDescriptor) {
				defer wg.Done()
				defer sem.Release(1)
				defer func() {
					if r := recover(); r != nil {
						o.logger.Error("panic analyzing table", "table", table.Name, "panic", r)
						record(table, nil, fmt.Errorf("panic during analysis: %v", r))
					}
				}()

				findings, err := o.analyzer.AnalyzeTable(ctx, table, categories, relatedTo(table, tables), fallback)
				record(table, findings, err)
			}(table)
		}
		wg.Wait()

		o.logger.Info("completed analysis batch", "batch", i/cfg.BatchSize+1, "of", batchCount)
	}

	return result, nil
}

// relatedTo returns every other table of the batch, giving the relationship
// prompt its cross-table context.
func relatedTo(table domain.TableDescriptor, all []domain.TableDescriptor) []domain.TableDescriptor {
	related := make([]domain.TableDescriptor, 0, len(all)-1)
	for _, t := range all {
		if t.TableID != table.TableID {
			related = append(related, t)
		}
	}
	return related
}
