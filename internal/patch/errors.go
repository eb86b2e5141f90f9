package patch

import (
	"errors"
	"fmt"

	"github.com/dropsheet/patchd/internal/doc"
)

// ErrorKind categorizes application failures.
type ErrorKind string

const (
	// KindMismatch: the live value disagrees with the value the delta asserts.
	// This is the concurrent-edit conflict signal.
	KindMismatch ErrorKind = "MISMATCH"

	// KindInvalidDelta: the delta cannot apply to a value of this shape.
	KindInvalidDelta ErrorKind = "INVALID_DELTA"
)

// Error reports why a delta did not apply cleanly. Both kinds mean the
// patch was computed against a different state than the current one.
type Error struct {
	Kind    ErrorKind
	Path    string
	Message string

	// Expected and Actual are set for mismatches.
	Expected any
	Actual   any
}

func (e *Error) Error() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	if e.Kind == KindMismatch && e.Message == "" {
		return fmt.Sprintf("%s at %s: expected %s, got %s", e.Kind, path, show(e.Expected), show(e.Actual))
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, path, e.Message)
}

// IsMismatch reports whether err is a mismatch failure.
func IsMismatch(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindMismatch
}

// IsInvalidDelta reports whether err is an invalid-delta failure.
func IsInvalidDelta(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindInvalidDelta
}

func mismatch(path string, expected, actual any) *Error {
	return &Error{Kind: KindMismatch, Path: path, Expected: expected, Actual: actual}
}

func invalid(path, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidDelta, Path: path, Message: fmt.Sprintf(format, args...)}
}

// Absent stands in for a missing value in Error.Actual.
var Absent any = absentType{}

type absentType struct{}

func show(v any) string {
	if v == Absent {
		return "<absent>"
	}
	b, err := doc.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	const maxLen = 200
	if len(b) > maxLen {
		return string(b[:maxLen]) + "..."
	}
	return string(b)
}
