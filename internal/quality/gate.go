package quality

import (
	"fmt"
	"io"
	"log/slog"

	"tablelens/internal/domain"
)

// Weights for the per-finding overall score. Category alignment folds into
// the content weighting when aggregating.
var checkWeights = map[string]float64{
	"confidence_score": 0.30,
	"content_quality":  0.25,
	"actionability":    0.20,
	"specificity":      0.15,
	"consistency":      0.10,
}

const defaultCheckWeight = 0.1

// Gate scores findings and filters them before they reach callers or the
// metadata store. Stateless; construct once and share.
type Gate struct {
	logger *slog.Logger
}

// NewGate creates a quality gate.
func NewGate(logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gate{logger: logger}
}

// Validate runs all six checks against one finding.
func (g *Gate) Validate(f domain.Finding) []domain.QualityVerdict {
	return []domain.QualityVerdict{
		checkConfidence(f),
		checkContent(f),
		checkActionability(f),
		checkSpecificity(f),
		checkConsistency(f),
		checkCategoryAlignment(f),
	}
}

// Score reduces a finding's verdicts to one weighted mean in [0,1].
func (g *Gate) Score(verdicts []domain.QualityVerdict) float64 {
	if len(verdicts) == 0 {
		return 0
	}
	var weighted, total float64
	for _, v := range verdicts {
		w, ok := checkWeights[v.Check]
		if !ok {
			w = defaultCheckWeight
		}
		weighted += v.Score * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// worst returns the verdict with the lowest score.
func worst(verdicts []domain.QualityVerdict) domain.QualityVerdict {
	w := verdicts[0]
	for _, v := range verdicts[1:] {
		if v.Score < w.Score {
			w = v
		}
	}
	return w
}

// ValidateBatch validates every finding in the batch. A finding whose worst
// verdict is invalid is excluded from the accepted set; a worst verdict of
// warning keeps the finding but counts it separately.
func (g *Gate) ValidateBatch(results domain.BatchFindings) *domain.BatchReport {
	report := &domain.BatchReport{
		TableScores:    make(map[string]float64),
		CategoryScores: make(map[domain.Category]float64),
		Accepted:       make(domain.BatchFindings),
	}

	var allScores []float64
	categoryScores := make(map[domain.Category][]float64)

	for tableID, tableResults := range results {
		var tableScores []float64
		accepted := make(domain.TableFindings)

		for category, findings := range tableResults {
			var kept []domain.Finding
			for _, f := range findings {
				report.Statistics.Total++

				verdicts := g.Validate(f)
				score := g.Score(verdicts)
				allScores = append(allScores, score)
				tableScores = append(tableScores, score)
				categoryScores[category] = append(categoryScores[category], score)

				switch w := worst(verdicts); w.Verdict {
				case domain.VerdictValid:
					report.Statistics.Valid++
					kept = append(kept, f)
				case domain.VerdictWarning:
					report.Statistics.Warning++
					f.QualityWarning = w.Message
					kept = append(kept, f)
				default:
					report.Statistics.Invalid++
					report.Rejected = append(report.Rejected, domain.RejectedFinding{
						TableID:  tableID,
						Category: category,
						Reason:   w.Message,
						Preview:  preview(f.Description, 100),
					})
				}
			}
			if len(kept) > 0 {
				accepted[category] = kept
			}
		}

		if len(tableScores) > 0 {
			report.TableScores[tableID] = mean(tableScores)
		}
		report.Accepted[tableID] = accepted
	}

	if len(allScores) > 0 {
		report.OverallScore = mean(allScores)
	}
	for category, scores := range categoryScores {
		report.CategoryScores[category] = mean(scores)
	}
	report.Recommendations = g.recommendations(report)

	g.logger.Debug("batch validation complete",
		"total", report.Statistics.Total,
		"valid", report.Statistics.Valid,
		"warning", report.Statistics.Warning,
		"invalid", report.Statistics.Invalid,
	)
	return report
}

// recommendations derives prompt-engineering advice from aggregate scores.
func (g *Gate) recommendations(report *domain.BatchReport) []string {
	var recs []string
	stats := report.Statistics

	if report.OverallScore > 0 && report.OverallScore < 0.6 {
		recs = append(recs, "Overall analysis quality is below acceptable threshold. Consider refining prompts.")
	}
	if stats.Total > 0 {
		if float64(stats.Invalid) > float64(stats.Total)*0.1 {
			recs = append(recs, "High number of invalid analyses. Review prompt engineering and model parameters.")
		}
		if float64(stats.Warning) > float64(stats.Total)*0.3 {
			recs = append(recs, "Many analyses have quality warnings. Consider post-processing improvements.")
		}
	}
	for category, score := range report.CategoryScores {
		if score < 0.5 {
			recs = append(recs, fmt.Sprintf("Poor quality in %s analysis. Review category-specific prompts.", category))
		}
	}
	return recs
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// preview truncates to n runes, never splitting a multi-byte character.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
