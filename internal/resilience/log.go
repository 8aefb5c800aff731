package resilience

import (
	"fmt"
	"sync"
	"time"

	"tablelens/internal/domain"
)

// recentWindow bounds how far back the summary's recent-errors list reaches.
const recentWindow = time.Hour

// ErrorLog is an append-only record of classified failures, used for the
// error summary and remediation recommendations.
type ErrorLog struct {
	mu       sync.Mutex
	records  []domain.ErrorRecord
	patterns map[string]int
	now      func() time.Time
}

// NewErrorLog creates an empty error log.
func NewErrorLog() *ErrorLog {
	return &ErrorLog{
		patterns: make(map[string]int),
		now:      time.Now,
	}
}

// Record classifies and appends one error occurrence, returning the record.
func (l *ErrorLog) Record(err error, fctx domain.FaultContext) domain.ErrorRecord {
	category := Classify(err)
	rec := domain.ErrorRecord{
		Timestamp: l.now(),
		ErrorType: fmt.Sprintf("%T", err),
		Message:   err.Error(),
		Category:  category,
		Severity:  AssessSeverity(category, fctx),
		Operation: fctx.Operation,
		TableID:   fctx.TableID,
		TableName: fctx.TableName,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	l.patterns[string(category)+"_"+rec.ErrorType]++
	return rec
}

// Summary aggregates the log: totals, category/severity breakdowns, a
// rolling window of recent errors, and the open circuits of the registry.
func (l *ErrorLog) Summary(circuits *CircuitRegistry) domain.ErrorSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	summary := domain.ErrorSummary{
		TotalErrors:       len(l.records),
		CategoryBreakdown: make(map[domain.ErrorCategory]int),
		SeverityBreakdown: make(map[domain.Severity]int),
		ErrorPatterns:     make(map[string]int, len(l.patterns)),
	}
	cutoff := l.now().Add(-recentWindow)
	for _, rec := range l.records {
		summary.CategoryBreakdown[rec.Category]++
		summary.SeverityBreakdown[rec.Severity]++
		if rec.Timestamp.After(cutoff) {
			summary.RecentErrors = append(summary.RecentErrors, rec)
		}
	}
	for k, v := range l.patterns {
		summary.ErrorPatterns[k] = v
	}
	if circuits != nil {
		for _, snap := range circuits.Snapshot() {
			if snap.Open {
				summary.OpenCircuits = append(summary.OpenCircuits, snap)
			}
		}
	}
	return summary
}

// Recommendations derives remediation hints from error-category proportions.
func (l *ErrorLog) Recommendations(circuits *CircuitRegistry) []string {
	l.mu.Lock()
	total := len(l.records)
	counts := make(map[domain.ErrorCategory]int)
	for _, rec := range l.records {
		counts[rec.Category]++
	}
	l.mu.Unlock()

	if total == 0 {
		return nil
	}

	var recs []string
	if float64(counts[domain.ErrorAPILimit]) > float64(total)*0.2 {
		recs = append(recs, "High rate of API limit errors. Consider implementing more aggressive rate limiting.")
	}
	if float64(counts[domain.ErrorNetwork]) > float64(total)*0.3 {
		recs = append(recs, "Frequent network errors. Check network stability and implement connection pooling.")
	}
	if float64(counts[domain.ErrorTimeout]) > float64(total)*0.25 {
		recs = append(recs, "Many timeout errors. Consider increasing timeout values or reducing request complexity.")
	}
	if float64(counts[domain.ErrorParsing]) > float64(total)*0.15 {
		recs = append(recs, "Parsing errors detected. Review prompt engineering and response format expectations.")
	}
	if circuits != nil {
		open := 0
		for _, snap := range circuits.Snapshot() {
			if snap.Open {
				open++
			}
		}
		if open > 0 {
			recs = append(recs, fmt.Sprintf("%d circuit breakers are open. Monitor service health and consider manual intervention.", open))
		}
	}
	return recs
}
