package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
)

// Diagnostic codes reported by Validate.
const (
	CodeInvalidJSON   = "INVALID_JSON"
	CodeNotObject     = "NOT_OBJECT"
	CodeRequiredField = "REQUIRED_FIELD"
	CodeTypeMismatch  = "TYPE_MISMATCH"
	CodeUnknownField  = "UNKNOWN_FIELD"
	CodeEnum          = "ENUM"
	CodeMinimum       = "MINIMUM"
	CodeMaximum       = "MAXIMUM"
)

// Diagnostic is one field-level violation found in a payload.
type Diagnostic struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Field == "" {
		return d.Message
	}
	return d.Field + ": " + d.Message
}

// Validate checks payload against s and returns every violation, not just
// the first. An empty payload is treated as an empty object. Violations are
// ordered by declared property order, then unknown fields in payload order.
func Validate(s *jsonschema.Schema, payload []byte) []Diagnostic {
	payload = normalizePayload(payload)
	if !gjson.ValidBytes(payload) {
		return []Diagnostic{{
			Field:   "$",
			Code:    CodeInvalidJSON,
			Message: "payload is not valid JSON",
		}}
	}

	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return []Diagnostic{{
			Field:   "$",
			Code:    CodeNotObject,
			Message: fmt.Sprintf("payload must be a JSON object, got %s", describeValue(root)),
		}}
	}

	v := payloadValidator{}
	v.validateValue("", s, root)
	return v.diags
}

type payloadValidator struct {
	diags []Diagnostic
}

func (v *payloadValidator) add(field, code, message string) {
	v.diags = append(v.diags, Diagnostic{Field: field, Code: code, Message: message})
}

func (v *payloadValidator) validateValue(path string, s *jsonschema.Schema, value gjson.Result) {
	if s == nil {
		return
	}

	if !matchesType(s.Type, value) {
		v.add(fieldName(path), CodeTypeMismatch, fmt.Sprintf("expected %s, got %s", s.Type, describeValue(value)))
		return
	}

	if len(s.Enum) > 0 && !inEnum(s.Enum, value) {
		v.add(fieldName(path), CodeEnum, fmt.Sprintf("must be one of %s", formatEnum(s.Enum)))
	}

	if value.Type == gjson.Number {
		v.validateBounds(path, s, value.Num)
	}

	switch {
	case value.IsObject():
		v.validateObject(path, s, value)
	case value.IsArray() && s.Items != nil:
		for i, elem := range value.Array() {
			v.validateValue(fmt.Sprintf("%s[%d]", path, i), s.Items, elem)
		}
	}
}

func (v *payloadValidator) validateBounds(path string, s *jsonschema.Schema, num float64) {
	if s.Minimum != "" {
		if minimum, err := s.Minimum.Float64(); err == nil && num < minimum {
			v.add(fieldName(path), CodeMinimum, fmt.Sprintf("must be >= %s", s.Minimum))
		}
	}
	if s.Maximum != "" {
		if maximum, err := s.Maximum.Float64(); err == nil && num > maximum {
			v.add(fieldName(path), CodeMaximum, fmt.Sprintf("must be <= %s", s.Maximum))
		}
	}
}

func (v *payloadValidator) validateObject(path string, s *jsonschema.Schema, value gjson.Result) {
	present := make(map[string]gjson.Result)
	order := make([]string, 0)
	value.ForEach(func(key, val gjson.Result) bool {
		name := key.String()
		if _, dup := present[name]; !dup {
			order = append(order, name)
		}
		present[name] = val
		return true
	})

	for _, name := range s.Required {
		if _, ok := present[name]; !ok {
			v.add(joinField(path, name), CodeRequiredField, "required field is missing")
		}
	}

	if s.Properties != nil {
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			if val, ok := present[pair.Key]; ok {
				v.validateValue(joinField(path, pair.Key), pair.Value, val)
			}
		}
	}

	if !forbidsAdditional(s) {
		return
	}
	for _, name := range order {
		if s.Properties != nil {
			if _, declared := s.Properties.Get(name); declared {
				continue
			}
		}
		v.add(joinField(path, name), CodeUnknownField, "field is not declared by the tool")
	}
}

func matchesType(typeName string, value gjson.Result) bool {
	switch typeName {
	case "":
		return true
	case TypeString:
		return value.Type == gjson.String
	case TypeInteger:
		if value.Type != gjson.Number {
			return false
		}
		// 1.0 and 1e3 are numbers but will not decode into Go ints.
		_, err := strconv.ParseInt(value.Raw, 10, 64)
		return err == nil
	case TypeNumber:
		return value.Type == gjson.Number
	case TypeBoolean:
		return value.Type == gjson.True || value.Type == gjson.False
	case TypeArray:
		return value.IsArray()
	case TypeObject:
		return value.IsObject()
	case TypeNull:
		return value.Type == gjson.Null
	default:
		return false
	}
}

// forbidsAdditional reports whether additionalProperties is the boolean
// schema false. Reflected and hand-built schemas share jsonschema.FalseSchema;
// decoded ones carry their own copy, recognised by its encoding.
func forbidsAdditional(s *jsonschema.Schema) bool {
	ap := s.AdditionalProperties
	if ap == nil {
		return false
	}
	if ap == jsonschema.FalseSchema {
		return true
	}
	raw, err := json.Marshal(ap)
	return err == nil && bytes.Equal(bytes.TrimSpace(raw), []byte("false"))
}

func inEnum(enum []any, value gjson.Result) bool {
	got := fmt.Sprint(value.Value())
	for _, candidate := range enum {
		if fmt.Sprint(candidate) == got {
			return true
		}
	}
	return false
}

func formatEnum(enum []any) string {
	parts := make([]string, 0, len(enum))
	for _, e := range enum {
		parts = append(parts, fmt.Sprintf("%v", e))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func describeValue(value gjson.Result) string {
	switch {
	case value.IsObject():
		return TypeObject
	case value.IsArray():
		return TypeArray
	}
	switch value.Type {
	case gjson.String:
		return TypeString
	case gjson.Number:
		return TypeNumber
	case gjson.True, gjson.False:
		return TypeBoolean
	case gjson.Null:
		return TypeNull
	default:
		return "nothing"
	}
}

func fieldName(path string) string {
	if path == "" {
		return "$"
	}
	return path
}

func joinField(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func normalizePayload(payload []byte) []byte {
	if len(bytes.TrimSpace(payload)) == 0 {
		return []byte("{}")
	}
	return payload
}
