package analysis

import (
	"encoding/json"
	"fmt"

	"tablelens/internal/domain"
)

const systemPrompt = "You are an expert tabular-database optimization consultant."

// promptFor renders the category-specific analysis prompt for one table.
// Categories without a dedicated template fall back to the structure prompt,
// whose focus areas subsume them.
func promptFor(table domain.TableDescriptor, category domain.Category, related []domain.TableDescriptor) string {
	switch category {
	case domain.CategoryNormalization:
		return normalizationPrompt(table)
	case domain.CategoryFieldTypes:
		return fieldTypesPrompt(table)
	case domain.CategoryRelationships:
		return relationshipsPrompt(table, related)
	case domain.CategoryPerformance:
		return performancePrompt(table)
	case domain.CategoryDataQuality:
		return dataQualityPrompt(table)
	default:
		return structurePrompt(table)
	}
}

const findingsFormat = `Respond in JSON format with an array of findings:
` + "```json" + `
[
  {
    "issue_type": "string",
    "priority": "high|medium|low",
    "description": "string",
    "recommendation": "string",
    "impact": "string",
    "effort": "low|medium|high",
    "estimated_improvement": "string",
    "implementation_steps": ["step1", "step2", "..."],
    "confidence_score": 0.0
  }
]
` + "```"

func structurePrompt(t domain.TableDescriptor) string {
	return fmt.Sprintf(`You are an expert database analyst. Analyze the following table structure and provide detailed improvement recommendations.

TABLE INFORMATION:
- Source ID: %s
- Table Name: %s
- Table ID: %s
- Record Count: %s

FIELDS:
%s

RELATIONSHIPS:
%s

VIEWS:
%s

ANALYSIS FOCUS:
Analyze this table for structural improvements including:
1. Field organization and grouping
2. Primary key effectiveness
3. Field dependencies and redundancy
4. Table size and complexity
5. View organization efficiency

For each issue identified, provide:
- Issue Type: Brief category
- Priority: high/medium/low
- Description: Clear explanation of the problem
- Recommendation: Specific actionable solution
- Impact: Expected benefit of implementing the change
- Effort: low/medium/high implementation difficulty
- Estimated Improvement: Quantified benefit where possible
- Implementation Steps: Ordered list of actions needed
- Confidence Score: 0-1 rating of recommendation certainty

%s`,
		t.SourceID, t.Name, t.TableID, recordCountLabel(t),
		jsonBlock(t.Fields), jsonBlock(t.Relationships), jsonBlock(t.Views),
		findingsFormat)
}

func normalizationPrompt(t domain.TableDescriptor) string {
	return fmt.Sprintf(`You are a database normalization expert. Analyze this table for normalization improvements.

TABLE: %s
FIELDS: %s
RECORD COUNT: %s

NORMALIZATION ANALYSIS:
Identify violations of database normal forms (1NF, 2NF, 3NF) and suggest improvements:

1. First Normal Form (1NF) violations:
   - Multi-value fields that should be separate records
   - Atomic value violations
   - Repeating groups

2. Second Normal Form (2NF) violations:
   - Partial dependencies on composite keys
   - Fields that depend on only part of the primary key

3. Third Normal Form (3NF) violations:
   - Transitive dependencies
   - Fields that depend on non-key fields
   - Calculated fields that could be derived

4. Denormalization opportunities:
   - When to intentionally violate normal forms for performance
   - Lookup field optimizations
   - Calculated field efficiency

For each normalization issue, suggest:
- Table splitting strategies
- New relationship creation
- Field relocation recommendations
- Performance vs. normalization trade-offs

%s`, t.Name, jsonBlock(t.Fields), recordCountLabel(t), findingsFormat)
}

func fieldTypesPrompt(t domain.TableDescriptor) string {
	return fmt.Sprintf(`You are a field optimization specialist. Analyze field types and configurations for efficiency.

TABLE: %s
FIELDS: %s

FIELD OPTIMIZATION ANALYSIS:
Examine each field for:

1. Field Type Optimization:
   - Incorrect field types for data content
   - Single line text vs. Long text efficiency
   - Number field precision and formatting
   - Date/DateTime field usage
   - Select vs. Multi-select appropriateness
   - Attachment field optimization

2. Field Configuration:
   - Missing field descriptions
   - Inadequate validation rules
   - Inefficient formatting options
   - Default value opportunities
   - Required field settings

3. Lookup and Formula Fields:
   - Complex formulas that could be simplified
   - Lookup fields causing performance issues
   - Rollup field efficiency
   - Calculated vs. stored data decisions

4. Field Naming and Organization:
   - Inconsistent naming conventions
   - Non-descriptive field names
   - Field grouping opportunities
   - Field ordering optimization

Identify specific improvements for data integrity, performance, and user experience.

%s`, t.Name, jsonBlock(t.Fields), findingsFormat)
}

func relationshipsPrompt(t domain.TableDescriptor, related []domain.TableDescriptor) string {
	type relatedSummary struct {
		Name   string   `json:"name"`
		Fields []string `json:"fields"`
	}
	summaries := make([]relatedSummary, 0, len(related))
	for _, r := range related {
		names := make([]string, 0, len(r.Fields))
		for _, f := range r.Fields {
			names = append(names, f.Name)
		}
		summaries = append(summaries, relatedSummary{Name: r.Name, Fields: names})
	}

	return fmt.Sprintf(`You are a database relationship design expert. Analyze table relationships and suggest improvements.

PRIMARY TABLE: %s
FIELDS: %s
EXISTING RELATIONSHIPS: %s

RELATED TABLES:
%s

RELATIONSHIP ANALYSIS:

1. Missing Relationships:
   - Identify fields that should be linked to other tables
   - Potential many-to-many relationships
   - Lookup opportunities for data consistency

2. Relationship Optimization:
   - Inefficient relationship configurations
   - Bidirectional vs. unidirectional links
   - Link field naming conventions
   - Cascade delete considerations

3. Data Integrity:
   - Orphaned records potential
   - Referential integrity issues
   - Circular reference problems
   - Relationship constraint violations

4. Performance Impact:
   - Complex relationship chains
   - Lookup field performance issues
   - Rollup calculation efficiency
   - View filtering on relationships

Suggest relationship improvements including new links, relationship modifications, and data integrity enhancements.

%s`, t.Name, jsonBlock(t.Fields), jsonBlock(t.Relationships), jsonBlock(summaries), findingsFormat)
}

func performancePrompt(t domain.TableDescriptor) string {
	return fmt.Sprintf(`You are a performance optimization expert. Analyze this table for performance improvements.

TABLE: %s (%s records)
FIELDS: %s
VIEWS: %s

PERFORMANCE ANALYSIS:

1. Record Count Optimization:
   - Table size impact on performance
   - Record archiving strategies
   - Data lifecycle management
   - Historical data handling

2. Field Performance:
   - Complex formula fields causing slowdowns
   - Lookup field chain length
   - Attachment field sizes
   - Rollup calculation efficiency

3. View Optimization:
   - Excessive view count
   - Complex filtering and sorting
   - Grouping performance impact
   - View-specific field visibility

4. Query Optimization:
   - Most commonly filtered fields
   - Indexing opportunities
   - Search performance improvements
   - API access patterns

5. Automation Impact:
   - Formula recalculation triggers
   - Webhook frequency and efficiency
   - Sync performance considerations

Provide specific recommendations for improving table performance, load times, and user experience.

%s`, t.Name, recordCountLabel(t), jsonBlock(t.Fields), jsonBlock(t.Views), findingsFormat)
}

func dataQualityPrompt(t domain.TableDescriptor) string {
	return fmt.Sprintf(`You are a data quality expert. Analyze this table for data quality improvements.

TABLE: %s
FIELDS: %s

DATA QUALITY ANALYSIS:

1. Data Validation:
   - Missing validation rules
   - Inconsistent data formats
   - Invalid data patterns
   - Constraint violations

2. Data Completeness:
   - Fields with high null rates
   - Required fields not enforced
   - Incomplete record patterns
   - Missing mandatory relationships

3. Data Consistency:
   - Inconsistent naming conventions
   - Duplicate record potential
   - Format standardization needs
   - Cross-field validation rules

4. Data Accuracy:
   - Potential data entry errors
   - Outdated information patterns
   - Calculated field accuracy
   - Reference data consistency

5. Data Standardization:
   - Text formatting inconsistencies
   - Date format variations
   - Number precision issues
   - Selection option optimization

Suggest improvements for data quality, validation rules, and consistency enforcement.

%s`, t.Name, jsonBlock(t.Fields), findingsFormat)
}

func recordCountLabel(t domain.TableDescriptor) string {
	if t.RecordCount == nil {
		return "Unknown"
	}
	return fmt.Sprintf("%d", *t.RecordCount)
}

func jsonBlock(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
