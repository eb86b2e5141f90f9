// Package patch applies deltas to JSON values.
//
// Application is pure: inputs are never mutated and a failure part way
// through leaves nothing behind, so callers simply discard the attempt.
// In verifying mode every asserted prior value (Replace, Delete, array
// removals, text hunks) must match the live value or a KindMismatch error
// is returned. Override mode skips those assertions and forces the target
// value; it is meant for system repair, never for user edits, because it
// silently discards concurrent changes.
package patch
