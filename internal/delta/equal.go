package delta

import (
	"encoding/json"

	"github.com/dropsheet/patchd/internal/doc"
)

// Equal reports deep structural equality of two JSON values. Numbers are
// compared by value whatever their Go representation, so 1, int64(1),
// 1.0 and json.Number("1") are all equal.
func Equal(a, b any) bool {
	a, b = plain(a), plain(b)

	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, ok := bv[k]
			if !ok || !Equal(elem, other) {
				return false
			}
		}
		return true
	}

	if doc.IsNumber(a) {
		return equalNumbers(a, b)
	}
	return false
}

func equalNumbers(a, b any) bool {
	if ai, ok := doc.AsInt(a); ok {
		if bi, ok := doc.AsInt(b); ok {
			return ai == bi
		}
	}
	af, ok := doc.AsFloat(a)
	if !ok {
		return false
	}
	bf, ok := doc.AsFloat(b)
	return ok && af == bf
}

// plain maps a value onto the representations Equal and Diff switch on.
// Records become plain maps; other hand-built values ([]string,
// []map[string]any, structs) take a JSON round trip.
func plain(v any) any {
	switch val := v.(type) {
	case nil, bool, string, []any, map[string]any, json.Number,
		int, int32, int64, float32, float64:
		return v
	case doc.Record:
		return map[string]any(val)
	}
	normalized, err := doc.Normalize(v)
	if err != nil {
		return v
	}
	return normalized
}

// asObject returns v as a map when it is a JSON object.
func asObject(v any) (map[string]any, bool) {
	m, ok := plain(v).(map[string]any)
	return m, ok
}

// asArray returns v as a slice when it is a JSON array.
func asArray(v any) ([]any, bool) {
	a, ok := plain(v).([]any)
	return a, ok
}
