package domain

// Category identifies one axis of table analysis. Categories are a closed
// set: they select the prompt, the cost heuristic, and the quality rules.
type Category string

const (
	CategoryStructure         Category = "structure"
	CategoryNormalization     Category = "normalization"
	CategoryFieldTypes        Category = "field_types"
	CategoryRelationships     Category = "relationships"
	CategoryPerformance       Category = "performance"
	CategoryDataQuality       Category = "data_quality"
	CategoryNamingConventions Category = "naming_conventions"
	CategoryIndexing          Category = "indexing"
)

// AllCategories returns every analysis category in presentation order.
func AllCategories() []Category {
	return []Category{
		CategoryStructure,
		CategoryNormalization,
		CategoryFieldTypes,
		CategoryRelationships,
		CategoryPerformance,
		CategoryDataQuality,
		CategoryNamingConventions,
		CategoryIndexing,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryStructure, CategoryNormalization, CategoryFieldTypes,
		CategoryRelationships, CategoryPerformance, CategoryDataQuality,
		CategoryNamingConventions, CategoryIndexing:
		return true
	}
	return false
}

// Description returns a short human-readable summary of the category.
func (c Category) Description() string {
	switch c {
	case CategoryStructure:
		return "Analyze table structure, field organization, and design patterns"
	case CategoryNormalization:
		return "Identify normalization opportunities and data redundancy issues"
	case CategoryFieldTypes:
		return "Optimize field types, configurations, and validation rules"
	case CategoryRelationships:
		return "Analyze table relationships and linking opportunities"
	case CategoryPerformance:
		return "Identify performance bottlenecks and optimization opportunities"
	case CategoryDataQuality:
		return "Assess data quality, consistency, and validation needs"
	case CategoryNamingConventions:
		return "Review naming conventions and standardization"
	case CategoryIndexing:
		return "Analyze indexing and query optimization opportunities"
	}
	return "General analysis category"
}

// Priority ranks how urgently a finding should be acted on.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Effort estimates implementation difficulty of a finding.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Valid reports whether e is a known effort level.
func (e Effort) Valid() bool {
	return e == EffortLow || e == EffortMedium || e == EffortHigh
}

// FieldDescriptor describes one field of a table as reported by the
// tabular-data platform.
type FieldDescriptor struct {
	ID      string                 `json:"id,omitempty"`
	Name    string                 `json:"name"`
	Type    string                 `json:"type"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// Relationship describes a link, lookup, or rollup between tables, extracted
// from field options during discovery.
type Relationship struct {
	FieldID         string `json:"field_id,omitempty"`
	FieldName       string `json:"field_name"`
	Type            string `json:"type"` // link, lookup, rollup
	LinkedTableID   string `json:"linked_table_id,omitempty"`
	RecordLinkField string `json:"record_link_field,omitempty"`
	LinkedFieldID   string `json:"linked_field_id,omitempty"`
	IsReversed      bool   `json:"is_reversed,omitempty"`
	Formula         string `json:"formula,omitempty"`
}

// ViewDescriptor describes one saved view on a table.
type ViewDescriptor struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// TableDescriptor identifies a table and carries the schema metadata the
// analyzer needs. Built by the discovery step and never mutated afterwards.
type TableDescriptor struct {
	SourceID      string            `json:"source_id"`
	TableID       string            `json:"table_id"`
	Name          string            `json:"name"`
	Fields        []FieldDescriptor `json:"fields"`
	RecordCount   *int              `json:"record_count,omitempty"`
	Relationships []Relationship    `json:"relationships,omitempty"`
	Views         []ViewDescriptor  `json:"views,omitempty"`
}

// Finding is one structured recommendation produced by analyzing a table in
// a given category. Read-only after parsing.
type Finding struct {
	TableID              string   `json:"table_id"`
	TableName            string   `json:"table_name"`
	Category             Category `json:"category"`
	Priority             Priority `json:"priority"`
	IssueType            string   `json:"issue_type"`
	Description          string   `json:"description"`
	Recommendation       string   `json:"recommendation"`
	Impact               string   `json:"impact"`
	Effort               Effort   `json:"effort"`
	EstimatedImprovement string   `json:"estimated_improvement"`
	ImplementationSteps  []string `json:"implementation_steps"`
	Confidence           float64  `json:"confidence_score"`

	// Set on findings produced by a fallback strategy so downstream
	// consumers can discount them.
	FallbackUsed bool   `json:"fallback_used,omitempty"`
	FallbackType string `json:"fallback_type,omitempty"`

	// Set by the quality gate on accepted findings whose worst check
	// verdict is a warning; carries that check's message.
	QualityWarning string `json:"quality_warning,omitempty"`
}

// TableFindings groups findings by category for one table.
type TableFindings map[Category][]Finding

// BatchFindings maps table IDs to their per-category findings.
type BatchFindings map[string]TableFindings

// TableFailure records a table whose analysis failed outright.
type TableFailure struct {
	TableID   string `json:"table_id"`
	TableName string `json:"table_name"`
	Error     string `json:"error"`
}
