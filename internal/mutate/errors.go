package mutate

import (
	"errors"
	"fmt"

	"github.com/dropsheet/patchd/internal/schema"
)

// Code categorizes mutation failures. Every code aborts the whole batch
// with no partial commit.
type Code string

const (
	// CodePermissionDenied: the principal lacks a required capability.
	CodePermissionDenied Code = "PERMISSION_DENIED"

	// CodeBadPatch: a delta did not apply cleanly (mismatch or invalid
	// delta). The client should re-fetch and recompute.
	CodeBadPatch Code = "BAD_PATCH"

	// CodeInvalidRecord: the patched record fails schema validation.
	CodeInvalidRecord Code = "INVALID_RECORD"

	// CodeDeletedOrRaced: an insert found existing history for the id.
	CodeDeletedOrRaced Code = "DELETED_OR_RACED"

	// CodeInvalidPatch: the batch itself is malformed, e.g. patch ids and
	// patches differ in count.
	CodeInvalidPatch Code = "INVALID_PATCH"

	// CodeUnknownTable: no schema is registered for the table.
	CodeUnknownTable Code = "UNKNOWN_TABLE"

	// CodeNotFound: a read targeted a record that does not exist.
	CodeNotFound Code = "NOT_FOUND"
)

// Error is a typed mutation failure.
type Error struct {
	Code    Code
	Message string

	Table    string
	RecordID string

	// PatchIndex and PatchID identify the offending patch for BAD_PATCH.
	// PatchIndex is -1 otherwise.
	PatchIndex int
	PatchID    string

	// Fields carries the validator output for INVALID_RECORD.
	Fields []schema.FieldError

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Table != "" {
		msg += fmt.Sprintf(" (table=%s, id=%s", e.Table, e.RecordID)
		if e.PatchIndex >= 0 {
			msg += fmt.Sprintf(", patch=%d", e.PatchIndex)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of a mutation error, or "" for anything else.
func CodeOf(err error) Code {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// IsPermissionDenied reports whether err is a permission failure.
func IsPermissionDenied(err error) bool { return CodeOf(err) == CodePermissionDenied }

// IsBadPatch reports whether err is a patch application failure.
func IsBadPatch(err error) bool { return CodeOf(err) == CodeBadPatch }

// IsInvalidRecord reports whether err is a validation failure.
func IsInvalidRecord(err error) bool { return CodeOf(err) == CodeInvalidRecord }

// IsDeletedOrRaced reports whether err is an insert over existing history.
func IsDeletedOrRaced(err error) bool { return CodeOf(err) == CodeDeletedOrRaced }

// IsInvalidPatch reports whether err is a malformed batch.
func IsInvalidPatch(err error) bool { return CodeOf(err) == CodeInvalidPatch }

// IsNotFound reports whether err is a read of a missing record.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

func newError(code Code, table, id, format string, args ...any) *Error {
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Table:      table,
		RecordID:   id,
		PatchIndex: -1,
	}
}
