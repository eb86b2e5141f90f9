package patch

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/dropsheet/patchd/internal/delta"
	"github.com/dropsheet/patchd/internal/doc"
)

// Apply applies d to current and returns the new value. A nil result with
// a nil error means the delta deleted the value.
func Apply(current any, d delta.Delta, override bool) (any, error) {
	out, present, err := apply(current, true, d, override, "")
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	return out, nil
}

// ApplyRecord applies d to a record. The result must still be an object.
func ApplyRecord(current doc.Record, d delta.Delta, override bool) (doc.Record, error) {
	out, present, err := apply(map[string]any(current), current != nil, d, override, "")
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, invalid("", "delta deletes the record")
	}
	rec, err := doc.RecordFromValue(out)
	if err != nil {
		return nil, invalid("", "%v", err)
	}
	return rec, nil
}

func apply(cur any, present bool, d delta.Delta, override bool, path string) (any, bool, error) {
	switch v := d.(type) {
	case nil:
		return cur, present, nil

	case delta.Set:
		return v.Value, true, nil

	case delta.Replace:
		if !override && !matches(cur, present, v.Old) {
			return nil, false, mismatch(path, v.Old, actual(cur, present))
		}
		return v.New, true, nil

	case delta.Delete:
		if !override && !matches(cur, present, v.Old) {
			return nil, false, mismatch(path, v.Old, actual(cur, present))
		}
		return nil, false, nil

	case delta.Text:
		s, ok := cur.(string)
		if !present || !ok {
			return nil, false, invalid(path, "text delta against %s", kindOf(cur, present))
		}
		out, clean, err := delta.ApplyText(s, v.Patch)
		if err != nil {
			return nil, false, invalid(path, "%v", err)
		}
		if !clean && !override {
			return nil, false, &Error{Kind: KindMismatch, Path: path, Message: "text patch does not apply to the current string"}
		}
		return out, true, nil

	case delta.Object:
		return applyObject(cur, present, v, override, path)

	case *delta.Array:
		if v == nil {
			return cur, present, nil
		}
		return applyArray(cur, present, v, override, path)
	}
	return nil, false, invalid(path, "unsupported delta type %T", d)
}

func applyObject(cur any, present bool, d delta.Object, override bool, path string) (any, bool, error) {
	var base map[string]any
	switch c := cur.(type) {
	case map[string]any:
		base = c
	case doc.Record:
		base = c
	default:
		if !override {
			if !present || cur == nil {
				return nil, false, &Error{Kind: KindMismatch, Path: path, Message: "object delta against an absent value", Actual: actual(cur, present)}
			}
			return nil, false, invalid(path, "object delta against %s", kindOf(cur, present))
		}
	}

	out := make(map[string]any, len(base)+len(d))
	maps.Copy(out, base)

	for _, key := range d.SortedKeys() {
		val, has := out[key]
		next, keep, err := apply(val, has, d[key], override, path+"/"+escape(key))
		if err != nil {
			return nil, false, err
		}
		if keep {
			out[key] = next
		} else {
			delete(out, key)
		}
	}
	return out, true, nil
}

type insertion struct {
	index int
	value any
}

func applyArray(cur any, present bool, d *delta.Array, override bool, path string) (any, bool, error) {
	src, ok := cur.([]any)
	if !ok {
		if !override {
			if !present || cur == nil {
				return nil, false, &Error{Kind: KindMismatch, Path: path, Message: "array delta against an absent value", Actual: actual(cur, present)}
			}
			return nil, false, invalid(path, "array delta against %s", kindOf(cur, present))
		}
	}
	result := slices.Clone(src)
	if result == nil {
		result = []any{}
	}

	inserts := make([]insertion, 0, len(d.Inserts)+len(d.Moves))
	for index, value := range d.Inserts {
		inserts = append(inserts, insertion{index: index, value: value})
	}

	// Removals run highest index first so earlier removals do not shift
	// the positions of later ones.
	removals := make([]int, 0, len(d.Removes)+len(d.Moves))
	for index := range d.Removes {
		removals = append(removals, index)
	}
	for from := range d.Moves {
		if _, dup := d.Removes[from]; !dup {
			removals = append(removals, from)
		}
	}
	slices.SortFunc(removals, func(a, b int) int { return cmp.Compare(b, a) })

	for _, index := range removals {
		elemPath := path + "/_" + strconv.Itoa(index)
		if index >= len(result) {
			if override {
				continue
			}
			if _, moved := d.Moves[index]; moved {
				return nil, false, invalid(elemPath, "move source %d out of range (length %d)", index, len(result))
			}
			return nil, false, mismatch(elemPath, d.Removes[index], Absent)
		}
		removed := result[index]
		result = slices.Delete(result, index, index+1)

		if to, moved := d.Moves[index]; moved {
			inserts = append(inserts, insertion{index: to, value: removed})
			continue
		}
		if !override && !delta.Equal(removed, d.Removes[index]) {
			return nil, false, mismatch(elemPath, d.Removes[index], removed)
		}
	}

	slices.SortStableFunc(inserts, func(a, b insertion) int { return cmp.Compare(a.index, b.index) })
	for _, ins := range inserts {
		index := ins.index
		if index > len(result) {
			if !override {
				return nil, false, invalid(path+"/"+strconv.Itoa(index), "insert index %d out of range (length %d)", index, len(result))
			}
			index = len(result)
		}
		result = slices.Insert(result, index, ins.value)
	}

	modified := make([]int, 0, len(d.Modifies))
	for index := range d.Modifies {
		modified = append(modified, index)
	}
	slices.Sort(modified)
	for _, index := range modified {
		elemPath := path + "/" + strconv.Itoa(index)
		if index >= len(result) {
			return nil, false, invalid(elemPath, "modification index %d out of range (length %d)", index, len(result))
		}
		next, keep, err := apply(result[index], true, d.Modifies[index], override, elemPath)
		if err != nil {
			return nil, false, err
		}
		if !keep {
			next = nil
		}
		result[index] = next
	}

	if d.HasAppend {
		result = append(result, d.Append)
	}
	return result, true, nil
}

func matches(cur any, present bool, expected any) bool {
	return present && delta.Equal(cur, expected)
}

func actual(cur any, present bool) any {
	if !present {
		return Absent
	}
	return cur
}

func kindOf(cur any, present bool) string {
	if !present {
		return "an absent value"
	}
	switch cur.(type) {
	case nil:
		return "null"
	case map[string]any, doc.Record:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	}
	if doc.IsNumber(cur) {
		return "a number"
	}
	return fmt.Sprintf("%T", cur)
}

func escape(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '~':
			out = append(out, '~', '0')
		case '/':
			out = append(out, '~', '1')
		default:
			out = append(out, key[i])
		}
	}
	return string(out)
}
