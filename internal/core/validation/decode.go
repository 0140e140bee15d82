package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Sb253/tenantguard/internal/core/domain"
)

// ParseSchemaDocument turns a raw JSON Schema document into a compiled
// domain schema. The document must compile as draft-7 JSON Schema before it
// is decoded, so malformed keyword usage is rejected with the compiler's
// message instead of surfacing later as odd validation behavior.
func ParseSchemaDocument(name string, doc json.RawMessage) (*domain.Schema, error) {
	if !json.Valid(doc) {
		return nil, errors.New("schema must be valid json")
	}
	if err := compilable(doc); err != nil {
		return nil, fmt.Errorf("invalid json schema: %w", err)
	}

	var root propertyDoc
	if err := json.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("decode schema document: %w", err)
	}

	prop, err := root.compile()
	if err != nil {
		return nil, err
	}

	version := root.Version
	if version == "" {
		version = "1.0.0"
	}
	return &domain.Schema{Name: name, Version: version, Property: *prop}, nil
}

// compilable returns an error if doc is not a valid draft-7 JSON Schema.
func compilable(doc json.RawMessage) error {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("schema.json", bytes.NewReader(doc)); err != nil {
		return err
	}
	_, err := compiler.Compile("schema.json")
	return err
}

// propertyDoc mirrors the JSON Schema keyword subset the engine understands.
type propertyDoc struct {
	Type                 typeList                `json:"type"`
	Properties           map[string]*propertyDoc `json:"properties"`
	Required             []string                `json:"required"`
	AdditionalProperties *bool                   `json:"additionalProperties"`
	Items                *propertyDoc            `json:"items"`
	MinLength            *int                    `json:"minLength"`
	MaxLength            *int                    `json:"maxLength"`
	Pattern              string                  `json:"pattern"`
	Minimum              *float64                `json:"minimum"`
	Maximum              *float64                `json:"maximum"`
	Enum                 []any                   `json:"enum"`
	Format               string                  `json:"format"`
	Version              string                  `json:"version"`
}

func (d *propertyDoc) compile() (*domain.Property, error) {
	p := &domain.Property{
		Types:                d.Type.kinds(),
		Required:             d.Required,
		AdditionalProperties: d.AdditionalProperties,
		MinLength:            d.MinLength,
		MaxLength:            d.MaxLength,
		Minimum:              d.Minimum,
		Maximum:              d.Maximum,
		Enum:                 d.Enum,
		Format:               d.Format,
	}

	if d.Pattern != "" {
		re, err := regexp.Compile(d.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", d.Pattern, err)
		}
		p.Pattern = re
	}

	if d.Properties != nil {
		p.Properties = make(map[string]*domain.Property, len(d.Properties))
		for name, child := range d.Properties {
			compiled, err := child.compile()
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			p.Properties[name] = compiled
		}
	}

	if d.Items != nil {
		items, err := d.Items.compile()
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		p.Items = items
	}

	return p, nil
}

// typeList accepts the JSON Schema "type" keyword as either a single string
// or an array of strings.
type typeList []string

func (t *typeList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = typeList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("type must be a string or array of strings")
	}
	*t = typeList(many)
	return nil
}

func (t typeList) kinds() []domain.Kind {
	kinds := make([]domain.Kind, 0, len(t))
	for _, s := range t {
		if s == "integer" {
			s = string(domain.KindNumber)
		}
		kinds = append(kinds, domain.Kind(s))
	}
	return kinds
}
