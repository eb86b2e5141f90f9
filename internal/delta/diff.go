package delta

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dropsheet/patchd/internal/doc"
)

// Diff computes a delta that turns from into to. It returns nil when the
// values are equal. Applying the result to from in verifying mode yields a
// value Equal to to.
//
// Objects diff field by field. Arrays diff with a longest common
// subsequence over element summaries: scalars are summarised by value and
// containers by kind, so containers that line up are diffed recursively
// instead of being removed and reinserted. Long strings become Text deltas.
func Diff(from, to any) Delta {
	if Equal(from, to) {
		return nil
	}

	if fo, ok := asObject(from); ok {
		if tobj, ok := asObject(to); ok {
			return diffObject(fo, tobj)
		}
	}
	if fa, ok := asArray(from); ok {
		if ta, ok := asArray(to); ok {
			return diffArray(fa, ta)
		}
	}
	if fs, ok := from.(string); ok {
		if ts, ok := to.(string); ok && len(fs) >= MinTextLength && len(ts) >= MinTextLength {
			if text, ok := MakeText(fs, ts); ok && len(text.Patch) < len(fs)+len(ts) {
				return text
			}
		}
	}
	return Replace{Old: from, New: to}
}

func diffObject(from, to map[string]any) Delta {
	out := Object{}
	for k, fv := range from {
		tv, ok := to[k]
		if !ok {
			out[k] = Delete{Old: fv}
			continue
		}
		if d := Diff(fv, tv); d != nil {
			out[k] = d
		}
	}
	for k, tv := range to {
		if _, ok := from[k]; !ok {
			out[k] = Set{Value: tv}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func diffArray(from, to []any) Delta {
	runes := map[string]rune{}
	fromRunes := summarize(runes, from)
	toRunes := summarize(runes, to)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes(fromRunes, toRunes, false)

	out := &Array{}
	fi, ti := 0, 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for c := 0; c < n; c++ {
				if sub := Diff(from[fi], to[ti]); sub != nil {
					out.Modify(ti, sub)
				}
				fi++
				ti++
			}
		case diffmatchpatch.DiffDelete:
			for c := 0; c < n; c++ {
				out.Remove(fi, from[fi])
				fi++
			}
		case diffmatchpatch.DiffInsert:
			for c := 0; c < n; c++ {
				out.Insert(ti, to[ti])
				ti++
			}
		}
	}
	if out.Empty() {
		return nil
	}
	return out
}

// summarize maps each element to a rune so the array can be diffed as a
// string. Equal scalars share a rune; containers share one rune per kind.
func summarize(runes map[string]rune, values []any) []rune {
	out := make([]rune, len(values))
	for i, v := range values {
		key := summaryKey(v)
		r, ok := runes[key]
		if !ok {
			r = indexRune(len(runes))
			runes[key] = r
		}
		out[i] = r
	}
	return out
}

func summaryKey(v any) string {
	switch plain(v).(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	canonical, err := doc.MarshalCanonical(v)
	if err != nil {
		return "invalid"
	}
	return "scalar:" + string(canonical)
}

// indexRune returns a valid, non-surrogate rune for the n-th summary so
// the diff text survives string conversion unchanged.
func indexRune(n int) rune {
	r := rune(0x100 + n)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}
