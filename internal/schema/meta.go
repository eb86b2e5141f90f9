package schema

import (
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dropsheet/patchd/internal/doc"
)

// Meta describes one table.
type Meta struct {
	name   string
	fields []*Field
	byName map[string]*Field
}

// NewMeta builds a table descriptor. The implicit id and recordVersion
// fields are added when fields does not declare them.
func NewMeta(name string, fields ...*Field) *Meta {
	m := &Meta{name: name, byName: make(map[string]*Field, len(fields)+2)}
	if !hasField(fields, doc.FieldID) {
		m.add(&Field{Name: doc.FieldID, Kind: KindUUID})
	}
	if !hasField(fields, doc.FieldRecordVersion) {
		m.add(&Field{Name: doc.FieldRecordVersion, Kind: KindVersion})
	}
	for _, f := range fields {
		m.add(f)
	}
	return m
}

func hasField(fields []*Field, name string) bool {
	return slices.ContainsFunc(fields, func(f *Field) bool { return f.Name == name })
}

func (m *Meta) add(f *Field) {
	m.fields = append(m.fields, f)
	m.byName[f.Name] = f
}

// Name returns the table name.
func (m *Meta) Name() string { return m.name }

// Fields returns the top-level fields in declaration order.
func (m *Meta) Fields() []*Field { return m.fields }

// Field looks up a top-level field.
func (m *Meta) Field(name string) (*Field, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// Has reports whether the table declares a top-level field. The
// coordinator uses it to decide which audit fields to stamp.
func (m *Meta) Has(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// Default returns a fully populated record with the given id and no
// version.
func (m *Meta) Default(id string) doc.Record {
	out := doc.Record(defaultObject(m.fields))
	out[doc.FieldID] = id
	out[doc.FieldRecordVersion] = nil
	return out
}

// Repair fills every missing or null field of partial with its default
// and drops fields the table does not declare. A record without an id
// gets a fresh one. The input is not modified.
func (m *Meta) Repair(partial doc.Record) doc.Record {
	out := doc.Record(repairObject(m.fields, partial))
	if id, _ := out[doc.FieldID].(string); id == "" {
		out[doc.FieldID] = uuid.NewString()
	}
	return out
}

func repairObject(fields []*Field, in map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := in[f.Name]
		out[f.Name] = repairValue(f, v, ok)
	}
	return out
}

func repairValue(f *Field, v any, present bool) any {
	if !present || v == nil {
		return f.Default()
	}
	switch f.Kind {
	case KindRecord:
		obj, ok := asObject(v)
		if !ok {
			return f.Default()
		}
		return repairObject(f.Fields, obj)
	case KindArray, KindArrayNullable:
		list, ok := v.([]any)
		if !ok {
			return f.Default()
		}
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = repairValue(f.Items, item, true)
		}
		return out
	}
	return v
}

// FieldError is one validation failure.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks r against the table. It returns nil when r is valid.
func (m *Meta) Validate(r doc.Record) []FieldError {
	var errs []FieldError
	validateObject(&errs, "", m.fields, r)
	if id, ok := r[doc.FieldID]; ok && id == nil {
		errs = append(errs, FieldError{Path: "/" + doc.FieldID, Message: "must not be null"})
	}
	return errs
}

var decimalPattern = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)$`)

func validateObject(errs *[]FieldError, path string, fields []*Field, obj map[string]any) {
	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f.Name] = true
		v, ok := obj[f.Name]
		if !ok {
			*errs = append(*errs, FieldError{Path: path + "/" + f.Name, Message: "required"})
			continue
		}
		validateValue(errs, path+"/"+f.Name, f, v)
	}

	var extra []string
	for k := range obj {
		if !declared[k] {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	for _, k := range extra {
		*errs = append(*errs, FieldError{Path: path + "/" + k, Message: "unknown field"})
	}
}

func validateValue(errs *[]FieldError, path string, f *Field, v any) {
	fail := func(format string, args ...any) {
		*errs = append(*errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if v == nil {
		if !f.Kind.Nullable() {
			fail("must not be null")
		}
		return
	}

	switch f.Kind {
	case KindString, KindPhone, KindBinary:
		if _, ok := v.(string); !ok {
			fail("must be a string")
		}

	case KindMoney, KindPercentage, KindQuantity,
		KindMoneyNullable, KindPercentageNullable, KindQuantityNullable:
		s, ok := v.(string)
		if !ok || !decimalPattern.MatchString(s) {
			fail("must be a decimal string")
		}

	case KindBoolean, KindBooleanNullable:
		if _, ok := v.(bool); !ok {
			fail("must be a boolean")
		}

	case KindUUID:
		s, ok := v.(string)
		if !ok {
			fail("must be a uuid string")
			return
		}
		if err := uuid.Validate(s); err != nil {
			fail("invalid uuid %q", s)
		}

	case KindDate:
		s, ok := v.(string)
		if !ok {
			fail("must be a date string")
			return
		}
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			fail("invalid date %q", s)
		}

	case KindDateTime:
		s, ok := v.(string)
		if !ok {
			fail("must be a datetime string")
			return
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			fail("invalid datetime %q", s)
		}

	case KindEnum:
		s, ok := v.(string)
		if !ok || !slices.Contains(f.Values, s) {
			fail("must be one of %v", f.Values)
		}

	case KindVersion:
		n, ok := doc.AsInt(v)
		if !ok || n < 0 {
			fail("must be a non-negative integer")
		}

	case KindArray, KindArrayNullable:
		list, ok := v.([]any)
		if !ok {
			fail("must be an array")
			return
		}
		for i, item := range list {
			validateValue(errs, fmt.Sprintf("%s/%d", path, i), f.Items, item)
		}

	case KindRecord:
		obj, ok := asObject(v)
		if !ok {
			fail("must be an object")
			return
		}
		validateObject(errs, path, f.Fields, obj)
	}
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case doc.Record:
		return m, true
	}
	return nil, false
}
