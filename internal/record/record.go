// Package record navigates loosely structured decoded JSON documents.
//
// A record is whatever encoding/json produces when decoding into an any:
// map[string]any, []any, string, float64, bool or nil. Lookups never panic;
// a missing step yields the empty-string sentinel.
package record

import (
	"strconv"
)

// Get walks path through root. String segments index maps, int segments
// index slices (0 <= i < len). Any missing step returns "". A present but
// falsy final value also returns "", so callers treat "" as "no value".
func Get(root any, path ...any) any {
	v, ok := Lookup(root, path...)
	if !ok || !Truthy(v) {
		return ""
	}
	return v
}

// String is Get projected to a string. Numbers and true are formatted;
// containers yield "".
func String(root any, path ...any) string {
	switch v := Get(root, path...).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		if v {
			return "true"
		}
	}
	return ""
}

// Lookup walks path through root and reports whether every step exists.
// Unlike Get it keeps falsy values, so an empty title and a missing title
// can be told apart.
func Lookup(root any, path ...any) (any, bool) {
	cur := root
	for _, seg := range path {
		switch key := seg.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			next, ok := m[key]
			if !ok {
				return nil, false
			}
			cur = next
		case int:
			s, ok := cur.([]any)
			if !ok || key < 0 || key >= len(s) {
				return nil, false
			}
			cur = s[key]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Truthy reports whether v would count as a value: nil, false, zero numbers,
// empty strings and empty containers are falsy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}
