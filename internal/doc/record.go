package doc

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// Well-known record fields.
const (
	FieldID            = "id"
	FieldRecordVersion = "recordVersion"

	FieldAddedBy          = "addedBy"
	FieldAddedDate        = "addedDate"
	FieldAddedDateTime    = "addedDateTime"
	FieldModifiedBy       = "modifiedBy"
	FieldModifiedDate     = "modifiedDate"
	FieldModifiedDateTime = "modifiedDateTime"
)

// AddedFields are stamped once on insert and preserved on every update.
var AddedFields = []string{FieldAddedBy, FieldAddedDate, FieldAddedDateTime}

// ModifiedFields are stamped on every non-system mutation.
var ModifiedFields = []string{FieldModifiedBy, FieldModifiedDate, FieldModifiedDateTime}

// Record is a schema-typed JSON document identified by its "id" field.
type Record map[string]any

// ID returns the record's id, or "" when absent or not a string.
func (r Record) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

// Version returns the record's recordVersion. ok is false when the field
// is absent or null, meaning the record has never been committed.
func (r Record) Version() (version int64, ok bool) {
	n, ok := AsInt(r[FieldRecordVersion])
	return n, ok
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// WithVersion returns a shallow copy of r with recordVersion set.
func (r Record) WithVersion(version int64) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	out[FieldRecordVersion] = json.Number(strconv.FormatInt(version, 10))
	return out
}

// AsInt converts any JSON-ish integer to int64.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

// AsFloat converts any JSON-ish number to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// IsNumber reports whether v is one of the numeric representations a
// decoded or hand-built document may carry.
func IsNumber(v any) bool {
	_, ok := AsFloat(v)
	return ok
}

// RecordFromValue asserts that v is a JSON object and returns it as a Record.
func RecordFromValue(v any) (Record, error) {
	switch m := v.(type) {
	case Record:
		return m, nil
	case map[string]any:
		return Record(m), nil
	default:
		return nil, fmt.Errorf("record must be a JSON object, got %T", v)
	}
}
