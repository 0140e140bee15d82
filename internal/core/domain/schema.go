package domain

import "regexp"

// Kind is a primitive shape tag matched against the runtime kind of a decoded
// JSON value. Arrays are distinguished from generic objects.
type Kind string

const (
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindNull    Kind = "null"
)

// Property describes the allowed shape of one value. Object-shaped properties
// and whole schemas are structurally interchangeable: Properties, Required and
// AdditionalProperties apply when Types includes "object", Items applies to
// arrays, the scalar constraints to strings and numbers. A Property is
// immutable once registered with a validator.
type Property struct {
	Types                []Kind
	Properties           map[string]*Property
	Required             []string
	AdditionalProperties *bool
	Items                *Property

	MinLength *int
	MaxLength *int
	Pattern   *regexp.Regexp
	Minimum   *float64
	Maximum   *float64
	Enum      []any
	Format    string
}

// AllowsKind reports whether k is one of the declared type tags.
func (p *Property) AllowsKind(k Kind) bool {
	for _, t := range p.Types {
		if t == k {
			return true
		}
	}
	return false
}

// ClosedShape reports whether AdditionalProperties is explicitly false.
func (p *Property) ClosedShape() bool {
	return p.AdditionalProperties != nil && !*p.AdditionalProperties
}

// Schema is a named, versioned root property.
type Schema struct {
	Name    string
	Version string
	Property
}
