package validation

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/Sb253/tenantguard/internal/core/domain"
)

// Validator owns a name→schema registry and validates decoded JSON values
// against it. Validation is a pure read; registration takes the write lock,
// so dynamic schema reloads are safe against concurrent validations.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*domain.Schema
}

func NewValidator() *Validator {
	return &Validator{schemas: make(map[string]*domain.Schema)}
}

// Register stores a schema under its name, overwriting any previous entry.
func (v *Validator) Register(schema *domain.Schema) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.schemas[schema.Name] = schema
}

// Lookup returns the registered schema, or (nil, false).
func (v *Validator) Lookup(name string) (*domain.Schema, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.schemas[name]
	return s, ok
}

// Names returns all registered schema names, sorted.
func (v *Validator) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.schemas))
	for name := range v.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks data against the named schema. A missing schema name is a
// configuration failure and yields a single SCHEMA_NOT_FOUND error result;
// everything else is expressed as accumulated diagnostics. Validate never
// panics on malformed data and never mutates data or the schema.
func (v *Validator) Validate(data any, schemaName string) domain.ValidationResult {
	schema, ok := v.Lookup(schemaName)
	if !ok {
		result := domain.NewValidationResult(schemaName, "")
		result.AddError(domain.ValidationError{
			Field:   "",
			Code:    domain.CodeSchemaNotFound,
			Message: fmt.Sprintf("schema %q is not registered", schemaName),
		})
		return result
	}
	return ValidateAgainst(data, schema)
}

// ValidateAgainst checks data against an already-resolved schema. Exposed so
// the schema service can validate against per-tenant overrides that never
// enter the builtin registry.
func ValidateAgainst(data any, schema *domain.Schema) domain.ValidationResult {
	result := domain.NewValidationResult(schema.Name, schema.Version)
	validateObject(data, &schema.Property, "", &result)
	return result
}

// validateObject validates a value expected to be object-shaped. On a kind
// mismatch it emits one TYPE_MISMATCH and stops descending that branch.
func validateObject(data any, schema *domain.Property, path string, result *domain.ValidationResult) {
	obj, isObject := data.(map[string]any)
	if schema.AllowsKind(domain.KindObject) && isObject {
		for _, name := range schema.Required {
			if _, present := obj[name]; !present {
				result.AddError(domain.ValidationError{
					Field:   joinPath(path, name),
					Code:    domain.CodeRequiredMissing,
					Message: fmt.Sprintf("required field %q is missing", name),
				})
			}
		}

		// Declared names are walked in sorted order so diagnostics come out
		// in a stable order regardless of map iteration.
		declared := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			declared = append(declared, name)
		}
		sort.Strings(declared)
		for _, name := range declared {
			value, present := obj[name]
			if !present {
				continue
			}
			validateProperty(value, schema.Properties[name], joinPath(path, name), result)
		}

		if schema.ClosedShape() {
			extras := make([]string, 0, len(obj))
			for name := range obj {
				if _, ok := schema.Properties[name]; !ok {
					extras = append(extras, name)
				}
			}
			sort.Strings(extras)
			for _, name := range extras {
				result.AddWarning(domain.ValidationWarning{
					Field:      joinPath(path, name),
					Code:       domain.CodeAdditionalProperty,
					Message:    fmt.Sprintf("unexpected field %q", name),
					Suggestion: "remove the field or declare it in the schema",
				})
			}
		}
		return
	}

	if kind := kindOf(data); !schema.AllowsKind(kind) {
		result.AddError(domain.ValidationError{
			Field:      path,
			Code:       domain.CodeTypeMismatch,
			Message:    fmt.Sprintf("expected %v, got %s", schema.Types, kind),
			Value:      data,
			Constraint: fmt.Sprintf("type in %v", schema.Types),
		})
	}
}

// validateProperty dispatches on the runtime kind of value. A type mismatch
// stops the branch; otherwise every applicable constraint is checked
// independently so one value can accumulate several diagnostics.
func validateProperty(value any, prop *domain.Property, path string, result *domain.ValidationResult) {
	kind := kindOf(value)
	if len(prop.Types) > 0 && !prop.AllowsKind(kind) {
		result.AddError(domain.ValidationError{
			Field:      path,
			Code:       domain.CodeTypeMismatch,
			Message:    fmt.Sprintf("expected %v, got %s", prop.Types, kind),
			Value:      value,
			Constraint: fmt.Sprintf("type in %v", prop.Types),
		})
		return
	}

	switch kind {
	case domain.KindString:
		validateString(value.(string), prop, path, result)
	case domain.KindNumber:
		validateNumber(numberOf(value), value, prop, path, result)
	case domain.KindArray:
		if prop.Items != nil {
			for i, elem := range value.([]any) {
				validateProperty(elem, prop.Items, indexPath(path, i), result)
			}
		}
	case domain.KindObject:
		if prop.Properties != nil || len(prop.Required) > 0 || prop.ClosedShape() {
			validateObject(value, prop, path, result)
		}
	}

	if len(prop.Enum) > 0 && !enumContains(prop.Enum, value) {
		result.AddError(domain.ValidationError{
			Field:      path,
			Code:       domain.CodeEnumMismatch,
			Message:    fmt.Sprintf("value is not one of %v", prop.Enum),
			Value:      value,
			Constraint: fmt.Sprintf("enum %v", prop.Enum),
		})
	}
}

func validateString(s string, prop *domain.Property, path string, result *domain.ValidationResult) {
	if prop.MinLength != nil && len(s) < *prop.MinLength {
		result.AddError(domain.ValidationError{
			Field:      path,
			Code:       domain.CodeMinLength,
			Message:    fmt.Sprintf("length %d is below minimum %d", len(s), *prop.MinLength),
			Value:      s,
			Constraint: fmt.Sprintf("minLength %d", *prop.MinLength),
		})
	}
	if prop.MaxLength != nil && len(s) > *prop.MaxLength {
		result.AddError(domain.ValidationError{
			Field:      path,
			Code:       domain.CodeMaxLength,
			Message:    fmt.Sprintf("length %d exceeds maximum %d", len(s), *prop.MaxLength),
			Value:      s,
			Constraint: fmt.Sprintf("maxLength %d", *prop.MaxLength),
		})
	}
	if prop.Pattern != nil && !prop.Pattern.MatchString(s) {
		result.AddError(domain.ValidationError{
			Field:      path,
			Code:       domain.CodePatternMismatch,
			Message:    fmt.Sprintf("value does not match pattern %s", prop.Pattern),
			Value:      s,
			Constraint: fmt.Sprintf("pattern %s", prop.Pattern),
		})
	}
	if prop.Format != "" {
		if check, known := formatValidators[prop.Format]; known && !check(s) {
			result.AddError(domain.ValidationError{
				Field:      path,
				Code:       domain.CodeFormatInvalid,
				Message:    fmt.Sprintf("value is not a valid %s", prop.Format),
				Value:      s,
				Constraint: fmt.Sprintf("format %s", prop.Format),
			})
		}
	}
}

func validateNumber(n float64, raw any, prop *domain.Property, path string, result *domain.ValidationResult) {
	if prop.Minimum != nil && n < *prop.Minimum {
		result.AddError(domain.ValidationError{
			Field:      path,
			Code:       domain.CodeMinimum,
			Message:    fmt.Sprintf("value %v is below minimum %v", raw, *prop.Minimum),
			Value:      raw,
			Constraint: fmt.Sprintf("minimum %v", *prop.Minimum),
		})
	}
	if prop.Maximum != nil && n > *prop.Maximum {
		result.AddError(domain.ValidationError{
			Field:      path,
			Code:       domain.CodeMaximum,
			Message:    fmt.Sprintf("value %v exceeds maximum %v", raw, *prop.Maximum),
			Value:      raw,
			Constraint: fmt.Sprintf("maximum %v", *prop.Maximum),
		})
	}
}

// kindOf classifies the runtime kind of a decoded JSON value. Arrays are
// "array", never "object". Values outside the JSON vocabulary get an empty
// kind that matches no declared type.
func kindOf(v any) domain.Kind {
	switch v.(type) {
	case nil:
		return domain.KindNull
	case bool:
		return domain.KindBoolean
	case string:
		return domain.KindString
	case float64, float32, int, int64, int32:
		return domain.KindNumber
	case []any:
		return domain.KindArray
	case map[string]any:
		return domain.KindObject
	default:
		return domain.Kind("")
	}
}

func numberOf(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	default:
		return 0
	}
}

// enumContains tests membership by primitive equality, with numbers
// normalized so 2 and 2.0 compare equal. Container values never match.
func enumContains(enum []any, value any) bool {
	kind := kindOf(value)
	if kind == domain.KindArray || kind == domain.KindObject {
		return false
	}
	for _, member := range enum {
		if kind == domain.KindNumber && kindOf(member) == domain.KindNumber {
			if numberOf(member) == numberOf(value) {
				return true
			}
			continue
		}
		if member == value {
			return true
		}
	}
	return false
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
