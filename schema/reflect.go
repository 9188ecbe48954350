// Package schema describes tool input shapes as JSON Schema and checks raw
// payloads against them. Schemas are derived either from Go structs
// (Reflect) or assembled by hand (Object); both produce the same
// *jsonschema.Schema that discovery exports and validation consumes.
package schema

import (
	"github.com/invopop/jsonschema"
)

// JSON Schema type names used by reflected and hand-built schemas.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeNull    = "null"
)

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		// Nested structs are inlined so clients never resolve $ref.
		// ExpandedStruct stays off: it looks the root up by type name and
		// anonymous structs have none.
		DoNotReference: true,
	}
}

// Reflect derives the input schema for T, which must be a struct type.
//
// Fields without `omitempty` are required. The `jsonschema` struct tag
// carries description, default, enum, minimum and maximum keywords.
func Reflect[T any]() *jsonschema.Schema {
	var zero T
	return ReflectValue(zero)
}

// ReflectValue derives a schema from the dynamic type of v. A nil v (an
// interface type parameter) yields an empty schema with no type, which tool
// registration rejects.
func ReflectValue(v any) *jsonschema.Schema {
	if v == nil {
		return &jsonschema.Schema{}
	}
	s := newReflector().Reflect(v)
	// Discovery output stays compact; the draft version and synthetic id
	// add nothing a client needs to build a request.
	s.Version = ""
	s.ID = ""
	return s
}
