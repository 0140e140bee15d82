package domain

// Diagnostic codes produced by the validation engine. Structural codes make a
// result invalid, ADDITIONAL_PROPERTY is advisory only, SCHEMA_NOT_FOUND is a
// configuration failure, TENANT_ISOLATION_VIOLATION is a security failure.
const (
	CodeTypeMismatch       = "TYPE_MISMATCH"
	CodeRequiredMissing    = "REQUIRED_FIELD_MISSING"
	CodeMinLength          = "MIN_LENGTH"
	CodeMaxLength          = "MAX_LENGTH"
	CodePatternMismatch    = "PATTERN_MISMATCH"
	CodeFormatInvalid      = "FORMAT_INVALID"
	CodeMinimum            = "MINIMUM"
	CodeMaximum            = "MAXIMUM"
	CodeEnumMismatch       = "ENUM_MISMATCH"
	CodeSchemaNotFound     = "SCHEMA_NOT_FOUND"
	CodeIsolationViolation = "TENANT_ISOLATION_VIOLATION"
	CodeAdditionalProperty = "ADDITIONAL_PROPERTY"
)

// ValidationError is one field-addressed validation failure. Field uses
// dotted paths with bracketed array indices, e.g. "items[0].tenant_id".
type ValidationError struct {
	Field      string `json:"field"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Value      any    `json:"value,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

// ValidationWarning is advisory feedback that never affects validity.
type ValidationWarning struct {
	Field      string `json:"field"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Value      any    `json:"value,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ValidationResult is the sole outcome channel of the engine. It is built
// fresh per call and never mutated after return. Valid is true iff Errors is
// empty.
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
	Schema   string              `json:"schema"`
	Version  string              `json:"version"`
}

// NewValidationResult returns a passing result tagged with schema name and
// version. Appending errors via AddError flips Valid.
func NewValidationResult(schema, version string) ValidationResult {
	return ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
		Schema:   schema,
		Version:  version,
	}
}

func (r *ValidationResult) AddError(e ValidationError) {
	r.Errors = append(r.Errors, e)
	r.Valid = false
}

func (r *ValidationResult) AddWarning(w ValidationWarning) {
	r.Warnings = append(r.Warnings, w)
}

// HasCode reports whether any error carries the given code.
func (r ValidationResult) HasCode(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Merge combines two independently produced results into one. The receiver's
// schema tag wins; diagnostics are concatenated in order.
func (r ValidationResult) Merge(other ValidationResult) ValidationResult {
	merged := NewValidationResult(r.Schema, r.Version)
	merged.Errors = append(merged.Errors, r.Errors...)
	merged.Errors = append(merged.Errors, other.Errors...)
	merged.Warnings = append(merged.Warnings, r.Warnings...)
	merged.Warnings = append(merged.Warnings, other.Warnings...)
	merged.Valid = len(merged.Errors) == 0
	return merged
}
