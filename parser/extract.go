package parser

import (
	"strconv"
	"strings"
)

// Text extracts a string from a field that upstream APIs return either as a
// plain string or as an object carrying a "name" or "value" property
// (Open Library authors, publishers, subjects and descriptions).
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if s, ok := t["name"].(string); ok {
			return strings.TrimSpace(s)
		}
		if s, ok := t["value"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Names flattens a list field whose entries may be strings or name-bearing
// objects. A single non-list value is treated as a one-element list.
func Names(v any) []string {
	var items []any
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		items = t
	default:
		items = []any{t}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := Text(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Int reads a count that may arrive as a JSON number or a numeric string.
func Int(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
