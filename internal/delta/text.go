package delta

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// MinTextLength is the shortest string pair Diff encodes as a Text delta.
// Shorter strings are cheaper to ship as a Replace.
const MinTextLength = 60

// MakeText builds a Text delta turning from into to. ok is false when the
// resulting patch does not reproduce to exactly, in which case callers
// should fall back to a Replace.
func MakeText(from, to string) (Text, bool) {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(from, to)
	text := Text{Patch: dmp.PatchToText(patches)}

	got, clean, err := ApplyText(from, text.Patch)
	if err != nil || !clean || got != to {
		return Text{}, false
	}
	return text, true
}

// ApplyText applies a patch produced by MakeText (or by any
// diff-match-patch patch_toText implementation) to current. clean is false
// when at least one hunk could not be located in current.
func ApplyText(current, patch string) (result string, clean bool, err error) {
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patch)
	if err != nil {
		return "", false, fmt.Errorf("parse text patch: %w", err)
	}
	result, applied := dmp.PatchApply(patches, current)
	for _, ok := range applied {
		if !ok {
			return result, false, nil
		}
	}
	return result, true, nil
}
