package delta

import (
	"encoding/json"
	"strconv"
)

// Encode converts a delta to its wire shape as plain Go values
// ([]any and map[string]any). A nil delta encodes as nil.
func Encode(d Delta) any {
	switch v := d.(type) {
	case nil:
		return nil
	case Set:
		return []any{v.Value}
	case Replace:
		return []any{v.Old, v.New}
	case Delete:
		return []any{v.Old, 0, OpDelete}
	case Text:
		return []any{v.Patch, 0, OpText}
	case Object:
		out := make(map[string]any, len(v))
		for k, sub := range v {
			if sub == nil {
				continue
			}
			out[k] = Encode(sub)
		}
		return out
	case *Array:
		if v == nil {
			return nil
		}
		return encodeArray(v)
	default:
		return nil
	}
}

func encodeArray(a *Array) map[string]any {
	out := map[string]any{"_t": ArrayTag}
	for i, value := range a.Inserts {
		out[strconv.Itoa(i)] = []any{value}
	}
	for i, sub := range a.Modifies {
		if sub == nil {
			continue
		}
		out[strconv.Itoa(i)] = Encode(sub)
	}
	for i, old := range a.Removes {
		out["_"+strconv.Itoa(i)] = []any{old, 0, OpDelete}
	}
	for from, to := range a.Moves {
		out["_"+strconv.Itoa(from)] = []any{"", to, OpMove}
	}
	if a.HasAppend {
		out[AppendKey] = a.Append
	}
	return out
}

// Marshal returns the JSON encoding of d with object keys sorted.
func Marshal(d Delta) ([]byte, error) {
	return json.Marshal(Encode(d))
}

// MarshalJSON implements json.Marshaler.
func (s Set) MarshalJSON() ([]byte, error) { return Marshal(s) }

// MarshalJSON implements json.Marshaler.
func (r Replace) MarshalJSON() ([]byte, error) { return Marshal(r) }

// MarshalJSON implements json.Marshaler.
func (d Delete) MarshalJSON() ([]byte, error) { return Marshal(d) }

// MarshalJSON implements json.Marshaler.
func (t Text) MarshalJSON() ([]byte, error) { return Marshal(t) }

// MarshalJSON implements json.Marshaler.
func (o Object) MarshalJSON() ([]byte, error) { return Marshal(o) }

// MarshalJSON implements json.Marshaler.
func (a *Array) MarshalJSON() ([]byte, error) { return Marshal(a) }
