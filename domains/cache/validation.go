package cache

// Severity of a validation issue. Errors block an update, warnings are advisory.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is one rule violation found in a configuration set.
type ValidationIssue struct {
	Pool       PoolName `json:"pool,omitempty"`
	Field      string   `json:"field,omitempty"`
	Path       string   `json:"path"`
	Rule       string   `json:"rule"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	Severity   Severity `json:"severity"`
}

// ValidationResult aggregates the issues of one validation pass.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Errors      []ValidationIssue `json:"errors"`
	Warnings    []ValidationIssue `json:"warnings"`
	Suggestions []string          `json:"suggestions"`
}

// NewValidationResult returns an empty, valid result with non-nil slices.
func NewValidationResult() ValidationResult {
	return ValidationResult{
		Valid:       true,
		Errors:      []ValidationIssue{},
		Warnings:    []ValidationIssue{},
		Suggestions: []string{},
	}
}

// Add routes the issue by severity and records its suggestion.
func (r *ValidationResult) Add(issue ValidationIssue) {
	if issue.Severity == SeverityError {
		r.Errors = append(r.Errors, issue)
		r.Valid = false
	} else {
		r.Warnings = append(r.Warnings, issue)
	}
	if issue.Suggestion != "" {
		r.Suggestions = append(r.Suggestions, issue.Suggestion)
	}
}

// NamedConfig is one input of a batch validation.
type NamedConfig struct {
	Name   string    `json:"name"`
	Config ConfigSet `json:"config"`
}

// NamedResult pairs a batch input name with its result.
type NamedResult struct {
	Name   string           `json:"name"`
	Result ValidationResult `json:"result"`
}
