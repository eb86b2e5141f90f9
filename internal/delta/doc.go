// Package delta defines the structural patch format applied to records.
//
// A delta describes the transition of a JSON value. On the wire it has the
// jsondiffpatch shape: leaf tuples ([new], [old, new], [old, 0, 0],
// [patch, 0, 2]), objects keyed by field name, and arrays tagged with
// "_t": "a". In memory the shapes are an explicit tagged union so callers
// switch on type rather than sniffing tuple lengths:
//
//	Set      [v]                 unconditional set
//	Replace  [old, new]          transition asserting the prior value
//	Delete   [old, 0, 0]         removal asserting the prior value
//	Text     [patch, 0, 2]       diff-match-patch text patch on a string
//	Object   {"field": delta}    per-field sub-deltas
//	Array    {"_t": "a", ...}    insertions, modifications, removals, moves, append
//
// Applying a delta never needs the schema, only the current value's shape.
// See package patch for application and Diff for producing deltas.
package delta
