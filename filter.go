package tessera

import "encoding/json"

// PropertyFilter is a structural pattern over instance properties. Every key
// of a filter must be present with an equal value; nested maps match as
// sub-patterns, so extra keys in the candidate are ignored at every level.
type PropertyFilter map[string]any

// Match reports whether props satisfies the filter. Top-level keys missing
// from props are looked up in fallback, which is typically the entity-level
// properties of the instance's descriptor.
func (f PropertyFilter) Match(props, fallback map[string]any) bool {
	return MatchProperties(f, props, fallback)
}

// MatchProperties reports whether every key of filter is present in props,
// falling back to fallback when props lacks it, with an equal value. Numbers
// compare by value regardless of their Go type.
func MatchProperties(filter, props, fallback map[string]any) bool {
	for key, want := range filter {
		got, ok := props[key]
		if !ok {
			got, ok = fallback[key]
		}
		if !ok || !matchValue(want, got) {
			return false
		}
	}
	return true
}

func matchValue(want, got any) bool {
	switch w := want.(type) {
	case nil:
		return got == nil
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		return MatchProperties(w, g, nil)
	case PropertyFilter:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		return MatchProperties(w, g, nil)
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !matchValue(w[i], g[i]) {
				return false
			}
		}
		return true
	case string:
		g, ok := got.(string)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	}
	if wn, ok := asNumber(want); ok {
		gn, ok := asNumber(got)
		return ok && wn == gn
	}
	return false
}

// asNumber normalizes the numeric types JSON, YAML, and Go literals produce.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
