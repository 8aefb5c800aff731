// Package quality validates and scores findings before they are surfaced or
// persisted.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"tablelens/internal/domain"
)

// Rule thresholds for the content checks.
const (
	minDescriptionLength    = 20
	minRecommendationLength = 30
	minImplementationSteps  = 1
)

var (
	hedgeWords     = []string{"maybe", "possibly", "might", "could be", "perhaps", "potentially"}
	actionWords    = []string{"create", "add", "remove", "update", "modify", "implement", "configure", "set up", "change"}
	domainTerms    = []string{"field", "table", "view", "formula", "relationship", "validation", "automation"}
	genericPhrases = []string{"improve performance", "better organization", "optimize structure", "enhance quality"}

	metricsRe        = regexp.MustCompile(`\d+%|\d+x|reduce|increase|improve`)
	quantificationRe = regexp.MustCompile(`\d+%|\d+x|by \d+|reduce.*\d+|increase.*\d+`)
	tableRefRe       = regexp.MustCompile(`table|field|column|record`)
)

// specificityKeywords lists the vocabulary a finding in each category is
// expected to touch.
var specificityKeywords = map[domain.Category][]string{
	domain.CategoryStructure:     {"field", "organization", "layout", "grouping"},
	domain.CategoryNormalization: {"normalize", "relationship", "redundancy", "dependency"},
	domain.CategoryFieldTypes:    {"type", "format", "validation", "constraint"},
	domain.CategoryRelationships: {"link", "lookup", "rollup", "reference"},
	domain.CategoryPerformance:   {"speed", "load", "query", "index"},
	domain.CategoryDataQuality:   {"validation", "consistency", "accuracy", "completeness"},
}

// alignmentKeywords backs the category-alignment check.
var alignmentKeywords = map[domain.Category][]string{
	domain.CategoryStructure:     {"field", "organization", "layout", "grouping", "structure", "design", "schema"},
	domain.CategoryNormalization: {"normalize", "redundancy", "dependency", "relationship", "split", "separate", "duplicate"},
	domain.CategoryFieldTypes:    {"field type", "validation", "format", "constraint", "data type", "single line", "long text", "number", "date"},
	domain.CategoryRelationships: {"relationship", "link", "lookup", "rollup", "reference", "connection", "foreign key"},
	domain.CategoryPerformance:   {"performance", "speed", "optimization", "efficiency", "load time", "query", "index", "slow"},
	domain.CategoryDataQuality:   {"quality", "validation", "consistency", "accuracy", "completeness", "integrity", "clean", "standardize"},
}

// consistencyTerms is the stricter term set used by the consistency check
// for the categories where content drift is most common.
var consistencyTerms = map[domain.Category][]string{
	domain.CategoryPerformance:   {"performance", "speed", "optimization", "efficiency"},
	domain.CategoryDataQuality:   {"quality", "validation", "consistency", "accuracy"},
	domain.CategoryRelationships: {"relationship", "link", "reference", "connection"},
}

func checkConfidence(f domain.Finding) domain.QualityVerdict {
	switch {
	case f.Confidence >= 0.8:
		return domain.QualityVerdict{
			Check:   "confidence_score",
			Verdict: domain.VerdictValid,
			Score:   1.0,
			Message: "High confidence score",
		}
	case f.Confidence >= 0.5:
		return domain.QualityVerdict{
			Check:       "confidence_score",
			Verdict:     domain.VerdictWarning,
			Score:       0.7,
			Message:     fmt.Sprintf("Moderate confidence score: %.2f", f.Confidence),
			Suggestions: []string{"Consider requesting more specific analysis", "Validate with domain expert"},
		}
	default:
		return domain.QualityVerdict{
			Check:       "confidence_score",
			Verdict:     domain.VerdictInvalid,
			Score:       0.3,
			Message:     fmt.Sprintf("Low confidence score: %.2f", f.Confidence),
			Suggestions: []string{"Re-run analysis with different prompt", "Provide more context", "Use different model"},
		}
	}
}

func checkContent(f domain.Finding) domain.QualityVerdict {
	score := 1.0
	var issues []string

	if len(strings.TrimSpace(f.Description)) < minDescriptionLength {
		issues = append(issues, "Description too short or empty")
		score -= 0.3
	}
	if len(strings.TrimSpace(f.Recommendation)) < minRecommendationLength {
		issues = append(issues, "Recommendation too short or empty")
		score -= 0.3
	}

	content := strings.ToLower(f.Description + " " + f.Recommendation)
	hedges := 0
	for _, w := range hedgeWords {
		if strings.Contains(content, w) {
			hedges++
		}
	}
	if hedges > 2 {
		issues = append(issues, "Too much vague language")
		score -= 0.2
	}

	if !metricsRe.MatchString(strings.ToLower(f.Recommendation)) {
		score -= 0.1
	}

	return verdictFromScore("content_quality", score, issues,
		"Good content quality",
		[]string{"Add more specific details", "Include quantified benefits", "Reduce vague language"},
		[]string{"Completely revise analysis", "Provide more context", "Use more specific prompts"},
	)
}

func checkActionability(f domain.Finding) domain.QualityVerdict {
	score := 1.0
	var issues []string

	if len(f.ImplementationSteps) < minImplementationSteps {
		issues = append(issues, "Missing or insufficient implementation steps")
		score -= 0.4
	}

	rec := strings.ToLower(f.Recommendation)
	if !containsAny(rec, actionWords) {
		issues = append(issues, "Recommendation lacks clear action words")
		score -= 0.3
	}
	if !f.Effort.Valid() {
		issues = append(issues, "Invalid effort estimation")
		score -= 0.2
	}
	if !containsAny(rec, domainTerms) {
		score -= 0.1
	}

	return verdictFromScore("actionability", score, issues,
		"Highly actionable recommendation",
		[]string{"Add specific implementation steps", "Include clear action items", "Specify tools or methods"},
		[]string{"Rewrite with specific actions", "Add detailed implementation plan", "Focus on concrete steps"},
	)
}

func checkSpecificity(f domain.Finding) domain.QualityVerdict {
	score := 1.0
	var issues []string

	if !tableRefRe.MatchString(strings.ToLower(f.Description)) {
		issues = append(issues, "Lacks specific table/field references")
		score -= 0.3
	}

	rec := strings.ToLower(f.Recommendation)
	generic := 0
	for _, phrase := range genericPhrases {
		if strings.Contains(rec, phrase) {
			generic++
		}
	}
	if generic > 1 {
		issues = append(issues, "Too many generic phrases")
		score -= 0.2
	}

	if f.EstimatedImprovement != "" && !quantificationRe.MatchString(f.EstimatedImprovement) {
		score -= 0.2
	}

	if kws, ok := specificityKeywords[f.Category]; ok {
		if !containsAny(strings.ToLower(f.Description), kws) {
			score -= 0.2
		}
	}

	return verdictFromScore("specificity", score, issues,
		"Highly specific analysis",
		[]string{"Add specific table/field names", "Include quantified benefits", "Use category-specific terminology"},
		[]string{"Complete rewrite with specific details", "Focus on concrete elements", "Avoid generic language"},
	)
}

func checkConsistency(f domain.Finding) domain.QualityVerdict {
	score := 1.0
	var issues []string

	if f.Priority == domain.PriorityHigh && f.Effort == domain.EffortHigh {
		impact := strings.ToLower(f.Impact)
		if !strings.Contains(impact, "critical") && !strings.Contains(impact, "significant") {
			issues = append(issues, "High priority/effort needs stronger impact justification")
			score -= 0.2
		}
	}
	if f.Priority == domain.PriorityHigh && f.Confidence < 0.7 {
		issues = append(issues, "High priority recommendation should have higher confidence")
		score -= 0.2
	}

	steps := len(f.ImplementationSteps)
	if f.Effort == domain.EffortLow && steps > 3 {
		issues = append(issues, "Low effort claim inconsistent with many implementation steps")
		score -= 0.2
	} else if f.Effort == domain.EffortHigh && steps < 2 {
		issues = append(issues, "High effort claim inconsistent with few implementation steps")
		score -= 0.2
	}

	if terms, ok := consistencyTerms[f.Category]; ok {
		content := strings.ToLower(f.Description + " " + f.Recommendation)
		if !containsAny(content, terms) {
			issues = append(issues, fmt.Sprintf("Content doesn't align with %s category", f.Category))
			score -= 0.3
		}
	}

	return verdictFromScore("consistency", score, issues,
		"Internally consistent analysis",
		[]string{"Align priority with confidence", "Match effort with implementation complexity", "Ensure category alignment"},
		[]string{"Review all fields for alignment", "Revise priority/effort balance", "Ensure category-content match"},
	)
}

func checkCategoryAlignment(f domain.Finding) domain.QualityVerdict {
	kws, ok := alignmentKeywords[f.Category]
	if !ok {
		return domain.QualityVerdict{
			Check:       "category_alignment",
			Verdict:     domain.VerdictWarning,
			Score:       0.7,
			Message:     fmt.Sprintf("No specific validator for category %s", f.Category),
			Suggestions: []string{"Manually review category alignment"},
		}
	}

	content := strings.ToLower(f.Description + " " + f.Recommendation)
	if containsAny(content, kws) {
		return domain.QualityVerdict{
			Check:   "category_alignment",
			Verdict: domain.VerdictValid,
			Score:   1.0,
			Message: fmt.Sprintf("Well-aligned with %s category", f.Category),
		}
	}
	return domain.QualityVerdict{
		Check:       "category_alignment",
		Verdict:     domain.VerdictWarning,
		Score:       0.5,
		Message:     fmt.Sprintf("Weak alignment with %s category", f.Category),
		Suggestions: []string{"Use category-specific terminology", "Focus the finding on its category's concerns"},
	}
}

// verdictFromScore buckets a check score into valid/warning/invalid with the
// check's message and suggestion sets.
func verdictFromScore(check string, score float64, issues []string, validMsg string, warnSuggestions, invalidSuggestions []string) domain.QualityVerdict {
	if score < 0 {
		score = 0
	}
	switch {
	case score >= 0.8:
		return domain.QualityVerdict{Check: check, Verdict: domain.VerdictValid, Score: score, Message: validMsg}
	case score >= 0.5:
		return domain.QualityVerdict{
			Check:       check,
			Verdict:     domain.VerdictWarning,
			Score:       score,
			Message:     check + " issues: " + strings.Join(issues, ", "),
			Suggestions: warnSuggestions,
		}
	default:
		return domain.QualityVerdict{
			Check:       check,
			Verdict:     domain.VerdictInvalid,
			Score:       score,
			Message:     "Poor " + check + ": " + strings.Join(issues, ", "),
			Suggestions: invalidSuggestions,
		}
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
