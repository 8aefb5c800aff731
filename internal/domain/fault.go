package domain

import "time"

// ErrorCategory classifies a provider or platform failure. Classification is
// keyword-based and approximate; see resilience.Classify for the rule table.
type ErrorCategory string

const (
	ErrorNetwork        ErrorCategory = "network"
	ErrorAPILimit       ErrorCategory = "api_limit"
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorParsing        ErrorCategory = "parsing"
	ErrorValidation     ErrorCategory = "validation"
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorResource       ErrorCategory = "resource"
	ErrorUnknown        ErrorCategory = "unknown"
)

// Severity ranks how serious an error occurrence is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// FaultContext carries the operation metadata threaded through the
// fault-tolerance layer: which operation failed, against which table and
// category, and how far the retry loop has progressed.
type FaultContext struct {
	Operation   string
	TableID     string
	TableName   string
	Category    Category
	Attempt     int
	MaxAttempts int

	// PartialResponse holds a truncated provider response, when one exists,
	// for the partial-results fallback to salvage.
	PartialResponse string
}

// ErrorRecord is one entry of the append-only error log.
type ErrorRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	ErrorType string        `json:"error_type"`
	Message   string        `json:"error_message"`
	Category  ErrorCategory `json:"category"`
	Severity  Severity      `json:"severity"`
	Operation string        `json:"operation"`
	TableID   string        `json:"table_id,omitempty"`
	TableName string        `json:"table_name,omitempty"`
}

// CircuitSnapshot is the externally visible state of one circuit breaker.
type CircuitSnapshot struct {
	Operation    string `json:"operation"`
	Open         bool   `json:"is_open"`
	FailureCount int    `json:"failure_count"`
}

// ErrorSummary aggregates the error log for observability endpoints.
type ErrorSummary struct {
	TotalErrors       int                   `json:"total_errors"`
	CategoryBreakdown map[ErrorCategory]int `json:"category_breakdown"`
	SeverityBreakdown map[Severity]int      `json:"severity_breakdown"`
	RecentErrors      []ErrorRecord         `json:"recent_errors"`
	ErrorPatterns     map[string]int        `json:"error_patterns"`
	OpenCircuits      []CircuitSnapshot     `json:"open_circuits"`
}
