package delta

import (
	"encoding/json"
	"slices"
)

// Op codes carried in the third slot of a leaf tuple.
const (
	OpDelete = 0
	OpText   = 2
	OpMove   = 3
)

// ArrayTag is the value of the "_t" key that marks an array delta.
const ArrayTag = "a"

// AppendKey pushes one value to the end of an array.
const AppendKey = "append"

// Delta is a sealed interface over the delta shapes.
// Only Set, Replace, Delete, Text, Object and Array implement it.
type Delta interface {
	json.Marshaler
	isDelta()
}

// Set unconditionally replaces the current value.
type Set struct {
	Value any
}

// Replace asserts the current value equals Old, then sets New.
type Replace struct {
	Old any
	New any
}

// Delete asserts the current value equals Old, then removes it.
type Delete struct {
	Old any
}

// Text applies a diff-match-patch patch (patch_toText form) to a string.
type Text struct {
	Patch string
}

// Object applies a sub-delta to each named field.
type Object map[string]Delta

// Array edits an array in three order-independent phases: removals
// (highest index first), insertions (ascending target index) and
// modifications on the resulting array, then an optional append.
type Array struct {
	// Inserts maps a target index to the value inserted there.
	Inserts map[int]any
	// Modifies maps an index in the post-insert array to a sub-delta.
	Modifies map[int]Delta
	// Removes maps a source index to the value expected there.
	Removes map[int]any
	// Moves maps a source index to the target index its value is
	// reinserted at.
	Moves map[int]int
	// Append is pushed after every other phase when HasAppend is set.
	Append    any
	HasAppend bool
}

func (Set) isDelta()     {}
func (Replace) isDelta() {}
func (Delete) isDelta()  {}
func (Text) isDelta()    {}
func (Object) isDelta()  {}
func (*Array) isDelta()  {}

// SortedKeys returns the object's field names in ascending order.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Empty reports whether the array delta changes nothing.
func (a *Array) Empty() bool {
	return len(a.Inserts) == 0 && len(a.Modifies) == 0 && len(a.Removes) == 0 &&
		len(a.Moves) == 0 && !a.HasAppend
}

// Insert records an insertion of v at index and returns a for chaining.
func (a *Array) Insert(index int, v any) *Array {
	if a.Inserts == nil {
		a.Inserts = make(map[int]any)
	}
	a.Inserts[index] = v
	return a
}

// Modify records a sub-delta at index and returns a for chaining.
func (a *Array) Modify(index int, d Delta) *Array {
	if a.Modifies == nil {
		a.Modifies = make(map[int]Delta)
	}
	a.Modifies[index] = d
	return a
}

// Remove records a removal of the value old at index and returns a.
func (a *Array) Remove(index int, old any) *Array {
	if a.Removes == nil {
		a.Removes = make(map[int]any)
	}
	a.Removes[index] = old
	return a
}

// Move records a relocation from index from to index to and returns a.
func (a *Array) Move(from, to int) *Array {
	if a.Moves == nil {
		a.Moves = make(map[int]int)
	}
	a.Moves[from] = to
	return a
}

// Push records an append of v and returns a.
func (a *Array) Push(v any) *Array {
	a.Append = v
	a.HasAppend = true
	return a
}
