package schema

import (
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ApplyDefaults fills in absent properties that declare a default, at the
// top level and inside nested objects the payload already contains. The
// payload is assumed to have passed Validate.
func ApplyDefaults(s *jsonschema.Schema, payload []byte) ([]byte, error) {
	return applyDefaults(s, normalizePayload(payload), "")
}

func applyDefaults(s *jsonschema.Schema, out []byte, prefix string) ([]byte, error) {
	if s == nil || s.Properties == nil {
		return out, nil
	}

	var err error
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		path := escapePathKey(pair.Key)
		if prefix != "" {
			path = prefix + "." + path
		}

		current := gjson.GetBytes(out, path)
		if !current.Exists() {
			if pair.Value == nil || pair.Value.Default == nil {
				continue
			}
			out, err = sjson.SetBytes(out, path, pair.Value.Default)
			if err != nil {
				return nil, fmt.Errorf("schema: default for %q: %w", pair.Key, err)
			}
			continue
		}

		if current.IsObject() && pair.Value != nil && pair.Value.Properties != nil {
			out, err = applyDefaults(pair.Value, out, path)
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// escapePathKey escapes the characters gjson and sjson treat as path syntax.
func escapePathKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch r {
		case '\\', '.', '*', '?', '|', '#', '@', ':', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
