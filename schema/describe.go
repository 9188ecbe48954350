package schema

import (
	"encoding/json"
	"math"
	"slices"

	"github.com/invopop/jsonschema"
	"github.com/tidwall/sjson"
)

// Field is a flattened, client-facing view of one top-level property.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Describe lists the top-level properties of s in declaration order.
func Describe(s *jsonschema.Schema) []Field {
	if s == nil || s.Properties == nil {
		return []Field{}
	}
	fields := make([]Field, 0, s.Properties.Len())
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		f := Field{
			Name:     pair.Key,
			Required: slices.Contains(s.Required, pair.Key),
		}
		if pair.Value != nil {
			f.Type = pair.Value.Type
			f.Default = pair.Value.Default
			f.Description = pair.Value.Description
		}
		fields = append(fields, f)
	}
	return fields
}

// Example returns the smallest payload that satisfies s: every required
// property set to its default, first enum value, or a zero value that
// respects declared bounds. Validate(s, Example(s)) reports nothing.
func Example(s *jsonschema.Schema) []byte {
	out := []byte("{}")
	if s == nil || s.Properties == nil {
		return out
	}
	for _, name := range s.Required {
		prop, ok := s.Properties.Get(name)
		if !ok {
			prop = Any()
		}
		raw, err := json.Marshal(exampleValue(prop))
		if err != nil {
			continue
		}
		if updated, err := sjson.SetRawBytes(out, escapePathKey(name), raw); err == nil {
			out = updated
		}
	}
	return out
}

func exampleValue(s *jsonschema.Schema) any {
	if s == nil {
		return nil
	}
	if s.Default != nil {
		return s.Default
	}
	if len(s.Enum) > 0 {
		return s.Enum[0]
	}
	switch s.Type {
	case TypeString:
		return ""
	case TypeInteger:
		return exampleNumber(s, true)
	case TypeNumber:
		return exampleNumber(s, false)
	case TypeBoolean:
		return false
	case TypeArray:
		return []any{}
	case TypeObject:
		return json.RawMessage(Example(s))
	default:
		return nil
	}
}

func exampleNumber(s *jsonschema.Schema, integer bool) any {
	var n float64
	if s.Minimum != "" {
		if minimum, err := s.Minimum.Float64(); err == nil && minimum > n {
			n = minimum
		}
	}
	if s.Maximum != "" {
		if maximum, err := s.Maximum.Float64(); err == nil && maximum < n {
			n = maximum
		}
	}
	if integer {
		return int64(math.Ceil(n))
	}
	return n
}
