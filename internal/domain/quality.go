package domain

// Verdict is the outcome of one quality check.
type Verdict string

const (
	VerdictValid   Verdict = "valid"
	VerdictWarning Verdict = "warning"
	VerdictInvalid Verdict = "invalid"
)

// QualityVerdict is the result of running a single named check against a
// finding. Scores are in [0,1].
type QualityVerdict struct {
	Check       string   `json:"check_name"`
	Verdict     Verdict  `json:"result"`
	Score       float64  `json:"score"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// RejectedFinding records a finding excluded by the quality gate together
// with the reason and a short preview for debugging prompt issues.
type RejectedFinding struct {
	TableID  string   `json:"table_id"`
	Category Category `json:"category"`
	Reason   string   `json:"reason"`
	Preview  string   `json:"preview"`
}

// BatchStatistics counts findings by their worst verdict. The invariant
// Valid+Warning+Invalid == Total holds after every batch validation.
type BatchStatistics struct {
	Total   int `json:"total_analyses"`
	Valid   int `json:"valid_analyses"`
	Warning int `json:"warning_analyses"`
	Invalid int `json:"invalid_analyses"`
}

// BatchReport is the aggregate outcome of validating a batch of findings.
type BatchReport struct {
	OverallScore    float64              `json:"overall_quality_score"`
	TableScores     map[string]float64   `json:"table_scores"`
	CategoryScores  map[Category]float64 `json:"category_scores"`
	Rejected        []RejectedFinding    `json:"quality_issues"`
	Recommendations []string             `json:"recommendations"`
	Accepted        BatchFindings        `json:"-"`
	Statistics      BatchStatistics      `json:"statistics"`
}
