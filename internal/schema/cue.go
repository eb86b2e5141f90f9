package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/dropsheet/patchd/internal/doc"
)

// Error is a schema definition error with its CUE source position.
type Error struct {
	Table   string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	where := e.Table
	if e.Field != "" {
		where += "." + e.Field
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), where, e.Message)
	}
	if where == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// Load reads every CUE file in dir and builds the registry from its
// table declarations.
func Load(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema directory: not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scan schema directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return FromValue(value)
}

// Compile builds a registry from CUE source text.
func Compile(src string) (*Registry, error) {
	v := cuecontext.New().CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return FromValue(v)
}

// FromValue builds a registry from the "table" struct of a CUE value.
func FromValue(v cue.Value) (*Registry, error) {
	tables := v.LookupPath(cue.ParsePath("table"))
	if !tables.Exists() {
		return nil, &Error{Message: "no table declarations found", Pos: v.Pos()}
	}

	iter, err := tables.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var metas []*Meta
	for iter.Next() {
		m, err := compileTable(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	return NewRegistry(metas...)
}

func compileTable(name string, v cue.Value) (*Meta, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &Error{Table: name, Message: "fields is required", Pos: v.Pos()}
	}
	fields, err := compileFields(name, "", fieldsVal)
	if err != nil {
		return nil, err
	}

	for _, f := range fields {
		switch {
		case f.Name == doc.FieldID && f.Kind != KindUUID:
			return nil, &Error{Table: name, Field: f.Name, Message: "id must be a uuid"}
		case f.Name == doc.FieldRecordVersion && f.Kind != KindVersion:
			return nil, &Error{Table: name, Field: f.Name, Message: "recordVersion must be a version"}
		}
	}
	return NewMeta(name, fields...), nil
}

func compileFields(table, prefix string, v cue.Value) ([]*Field, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var fields []*Field
	for iter.Next() {
		f, err := compileField(table, prefix+iter.Label(), iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// compileField accepts either a bare kind string or a struct with a type
// member plus kind-specific options.
func compileField(table, path, name string, v cue.Value) (*Field, error) {
	fail := func(format string, args ...any) error {
		return &Error{Table: table, Field: path, Message: fmt.Sprintf(format, args...), Pos: v.Pos()}
	}

	if s, err := v.String(); err == nil {
		switch Kind(s) {
		case KindEnum, KindArray, KindArrayNullable, KindRecord:
			return nil, fail("%s fields need the struct form", s)
		}
		return newField(name, Kind(s), fail)
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, fail("field must be a kind string or a struct, got %v", v.IncompleteKind())
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return nil, fail("type is required")
	}
	kind, err := typeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	f, err := newField(name, Kind(kind), fail)
	if err != nil {
		return nil, err
	}

	if linkVal := v.LookupPath(cue.ParsePath("linkTo")); linkVal.Exists() {
		if f.Kind != KindUUID {
			return nil, fail("linkTo is only valid on uuid fields")
		}
		if f.LinkTo, err = linkVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	switch f.Kind {
	case KindEnum:
		valuesVal := v.LookupPath(cue.ParsePath("values"))
		if !valuesVal.Exists() {
			return nil, fail("enum requires values")
		}
		list, err := valuesVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			f.Values = append(f.Values, s)
		}
		if len(f.Values) == 0 {
			return nil, fail("enum requires at least one value")
		}

	case KindArray, KindArrayNullable:
		itemsVal := v.LookupPath(cue.ParsePath("items"))
		if !itemsVal.Exists() {
			return nil, fail("array requires items")
		}
		if f.Items, err = compileField(table, path+"[]", "", itemsVal); err != nil {
			return nil, err
		}

	case KindRecord:
		fieldsVal := v.LookupPath(cue.ParsePath("fields"))
		if !fieldsVal.Exists() {
			return nil, fail("record requires fields")
		}
		if f.Fields, err = compileFields(table, path+".", fieldsVal); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func newField(name string, kind Kind, fail func(string, ...any) error) (*Field, error) {
	if !knownKinds[kind] {
		return nil, fail("unknown field kind %q", kind)
	}
	if kind == KindVersion && name != doc.FieldRecordVersion {
		return nil, fail("version kind is reserved for %s", doc.FieldRecordVersion)
	}
	return &Field{Name: name, Kind: kind}, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	msg := strings.TrimSpace(first.Error())
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{Message: msg, Pos: positions[0]}
	}
	return &Error{Message: msg}
}
