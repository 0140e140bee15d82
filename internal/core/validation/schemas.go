package validation

import (
	"regexp"

	"github.com/Sb253/tenantguard/internal/core/domain"
)

// Builtin schemas for the core entities, registered at process start. Every
// persisted field is typed, finite-domain fields carry enums, identifier and
// contact fields carry formats, and every entity is a closed shape so new
// fields require an explicit schema change.

const builtinSchemaVersion = "1.0.0"

// RegisterBuiltins loads the entity schemas into v. Call once during startup.
func RegisterBuiltins(v *Validator) {
	v.Register(userSchema())
	v.Register(customerSchema())
	v.Register(jobSchema())
	v.Register(invoiceSchema())
}

// RulesFor returns the sanitization rule set applied before validating a
// payload of the named schema. Unknown names get empty rules.
func RulesFor(schema string) Rules {
	switch schema {
	case "user":
		return Rules{
			StripHTML:      []string{"name"},
			TrimWhitespace: []string{"name"},
			NormalizeEmail: []string{"email"},
			SanitizePhone:  []string{"phone"},
		}
	case "customer":
		return Rules{
			StripHTML:      []string{"name", "notes"},
			TrimWhitespace: []string{"name", "notes"},
			NormalizeEmail: []string{"email"},
			SanitizePhone:  []string{"phone"},
		}
	case "job":
		return Rules{
			StripHTML:      []string{"title", "description"},
			TrimWhitespace: []string{"title", "description"},
		}
	case "invoice":
		return Rules{
			TrimWhitespace: []string{"number"},
			StripHTML:      []string{"description"},
		}
	default:
		return Rules{}
	}
}

func userSchema() *domain.Schema {
	return &domain.Schema{
		Name:    "user",
		Version: builtinSchemaVersion,
		Property: closedObject(
			[]string{"id", TenantField, "email", "name", "role", "status"},
			map[string]*domain.Property{
				"id":         formatString("uuid"),
				TenantField:  boundedString(1, 64),
				"email":      formatString("email"),
				"name":       boundedString(1, 100),
				"phone":      formatString("phone"),
				"role":       enumString("admin", "manager", "technician", "office"),
				"status":     enumString("active", "inactive", "suspended"),
				"created_at": formatString("date-time"),
			},
		),
	}
}

func customerSchema() *domain.Schema {
	return &domain.Schema{
		Name:    "customer",
		Version: builtinSchemaVersion,
		Property: closedObject(
			[]string{"id", TenantField, "name", "email", "type", "status"},
			map[string]*domain.Property{
				"id":         formatString("uuid"),
				TenantField:  boundedString(1, 64),
				"name":       boundedString(1, 200),
				"email":      formatString("email"),
				"phone":      formatString("phone"),
				"type":       enumString("residential", "commercial", "industrial"),
				"status":     enumString("active", "inactive", "prospect"),
				"notes":      boundedString(0, 2000),
				"tags":       arrayOf(boundedString(1, 50)),
				"address":    addressProperty(),
				"created_at": formatString("date-time"),
				"updated_at": formatString("date-time"),
			},
		),
	}
}

func jobSchema() *domain.Schema {
	return &domain.Schema{
		Name:    "job",
		Version: builtinSchemaVersion,
		Property: closedObject(
			[]string{"id", TenantField, "customer_id", "title", "status", "priority"},
			map[string]*domain.Property{
				"id":           formatString("uuid"),
				TenantField:    boundedString(1, 64),
				"customer_id":  formatString("uuid"),
				"title":        boundedString(1, 200),
				"description":  boundedString(0, 2000),
				"status":       enumString("scheduled", "in_progress", "completed", "cancelled"),
				"priority":     enumString("low", "medium", "high", "urgent"),
				"scheduled_at": formatString("date-time"),
				"assigned_to":  arrayOf(formatString("uuid")),
			},
		),
	}
}

func invoiceSchema() *domain.Schema {
	lineItem := closedObject(
		[]string{"description", "quantity", "unit_price"},
		map[string]*domain.Property{
			"description": boundedString(1, 500),
			"quantity":    boundedNumber(1, 0),
			"unit_price":  boundedNumber(0, 0),
		},
	)
	return &domain.Schema{
		Name:    "invoice",
		Version: builtinSchemaVersion,
		Property: closedObject(
			[]string{"id", TenantField, "customer_id", "number", "amount", "status"},
			map[string]*domain.Property{
				"id":          formatString("uuid"),
				TenantField:   boundedString(1, 64),
				"customer_id": formatString("uuid"),
				"job_id":      formatString("uuid"),
				"number":      patternString(`^INV-[0-9]+$`),
				"amount":      boundedNumber(0, 0),
				"tax":         boundedNumber(0, 0),
				"status":      enumString("draft", "sent", "paid", "overdue", "void"),
				"due_date":    formatString("date"),
				"line_items":  arrayOfObj(lineItem),
			},
		),
	}
}

func addressProperty() *domain.Property {
	return &domain.Property{
		Types: []domain.Kind{domain.KindObject},
		Properties: map[string]*domain.Property{
			"street": boundedString(1, 200),
			"city":   boundedString(1, 100),
			"state":  boundedString(1, 100),
			"zip":    patternString(`^[0-9A-Za-z -]{3,10}$`),
		},
	}
}

// ---- property constructors ----

func closedObject(required []string, props map[string]*domain.Property) domain.Property {
	closed := false
	return domain.Property{
		Types:                []domain.Kind{domain.KindObject},
		Properties:           props,
		Required:             required,
		AdditionalProperties: &closed,
	}
}

func boundedString(minLen, maxLen int) *domain.Property {
	p := &domain.Property{Types: []domain.Kind{domain.KindString}}
	if minLen > 0 {
		p.MinLength = &minLen
	}
	if maxLen > 0 {
		p.MaxLength = &maxLen
	}
	return p
}

func formatString(format string) *domain.Property {
	return &domain.Property{
		Types:  []domain.Kind{domain.KindString},
		Format: format,
	}
}

func patternString(pattern string) *domain.Property {
	return &domain.Property{
		Types:   []domain.Kind{domain.KindString},
		Pattern: regexp.MustCompile(pattern),
	}
}

func enumString(values ...string) *domain.Property {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &domain.Property{
		Types: []domain.Kind{domain.KindString},
		Enum:  enum,
	}
}

func boundedNumber(min float64, max float64) *domain.Property {
	p := &domain.Property{Types: []domain.Kind{domain.KindNumber}}
	p.Minimum = &min
	if max > 0 {
		p.Maximum = &max
	}
	return p
}

func arrayOf(items *domain.Property) *domain.Property {
	return &domain.Property{
		Types: []domain.Kind{domain.KindArray},
		Items: items,
	}
}

func arrayOfObj(obj domain.Property) *domain.Property {
	return &domain.Property{
		Types: []domain.Kind{domain.KindArray},
		Items: &obj,
	}
}
