// Package sanitize HTML-escapes every string leaf of an outgoing payload
// before serialization. Applied to every body-carrying request, no
// per-endpoint exceptions.
package sanitize

import (
	"encoding/json"
	"fmt"
	"html"
)

// JSONBody marshals v, escapes every string leaf recursively and returns
// the serialized result.
func JSONBody(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to reparse request body: %w", err)
	}

	escaped, err := json.Marshal(Value(decoded))
	if err != nil {
		return nil, fmt.Errorf("failed to encode sanitized body: %w", err)
	}
	return escaped, nil
}

// Value escapes string leaves, descending into maps and slices. Non-string
// scalars pass through untouched.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return html.EscapeString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Value(val)
		}
		return out
	default:
		return v
	}
}
