package schema

import (
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Property is one named field of a hand-built object schema.
type Property struct {
	Name     string
	Schema   *jsonschema.Schema
	Required bool
}

// Required declares a field the payload must contain.
func Required(name string, s *jsonschema.Schema) Property {
	return Property{Name: name, Schema: s, Required: true}
}

// Optional declares a field the payload may omit.
func Optional(name string, s *jsonschema.Schema) Property {
	return Property{Name: name, Schema: s}
}

// Default returns a copy of p whose schema carries a default value.
func (p Property) Default(v any) Property {
	p.Schema = cloneSchema(p.Schema)
	p.Schema.Default = v
	return p
}

// Describe returns a copy of p whose schema carries a description.
func (p Property) Describe(text string) Property {
	p.Schema = cloneSchema(p.Schema)
	p.Schema.Description = text
	return p
}

// Object builds a closed object schema with properties in the given order.
// A later property with the same name replaces the earlier one in place.
func Object(props ...Property) *jsonschema.Schema {
	properties := orderedmap.New[string, *jsonschema.Schema]()
	required := make([]string, 0, len(props))
	seen := make(map[string]bool, len(props))
	for _, p := range props {
		s := p.Schema
		if s == nil {
			s = Any()
		}
		properties.Set(p.Name, s)
		if p.Required && !seen[p.Name] {
			required = append(required, p.Name)
			seen[p.Name] = true
		}
	}
	return &jsonschema.Schema{
		Type:                 TypeObject,
		Properties:           properties,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

func String() *jsonschema.Schema  { return &jsonschema.Schema{Type: TypeString} }
func Integer() *jsonschema.Schema { return &jsonschema.Schema{Type: TypeInteger} }
func Number() *jsonschema.Schema  { return &jsonschema.Schema{Type: TypeNumber} }
func Boolean() *jsonschema.Schema { return &jsonschema.Schema{Type: TypeBoolean} }

// Any accepts every JSON value.
func Any() *jsonschema.Schema { return &jsonschema.Schema{} }

// ArrayOf describes a list whose elements all match items.
func ArrayOf(items *jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: TypeArray, Items: items}
}

// Enum restricts s to the listed values.
func Enum(s *jsonschema.Schema, values ...any) *jsonschema.Schema {
	out := cloneSchema(s)
	out.Enum = append([]any(nil), values...)
	return out
}

func cloneSchema(s *jsonschema.Schema) *jsonschema.Schema {
	if s == nil {
		return Any()
	}
	cp := *s
	return &cp
}
