package engine

import "strings"

// resolveFieldPath walks a dot-path ("a.b.c") through nested
// map[string]any values, returning the value at that path and whether
// it was present. Internally this is the same traversal a JSON-Pointer
// ("/a/b/c") walk would perform; dot notation is just the surface
// syntax rules authors write.
func resolveFieldPath(root map[string]any, path string) (any, bool) {
	var cur any = root
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// jsonType classifies a decoded JSON value (as produced by
// encoding/json into map[string]any) into one of the field_types names.
func jsonType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "any"
	}
}
