package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/dropsheet/patchd/internal/mutate"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected mutation, invalid schema, etc.
	ExitCommandError = 2 // Command error (bad config, unreadable input, database unavailable)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Texter is implemented by results with a human-readable rendering.
type Texter interface {
	WriteText(w io.Writer, p Painter) error
}

// Painter colors text when the output is a terminal.
type Painter struct {
	Enabled bool
}

func (p Painter) paint(c *color.Color, s string) string {
	if !p.Enabled {
		return s
	}
	c.EnableColor()
	return c.Sprint(s)
}

// OK renders s as a success marker.
func (p Painter) OK(s string) string { return p.paint(color.New(color.FgGreen, color.Bold), s) }

// Bad renders s as a failure marker.
func (p Painter) Bad(s string) string { return p.paint(color.New(color.FgRed, color.Bold), s) }

// Key renders s as a field label.
func (p Painter) Key(s string) string { return p.paint(color.New(color.FgCyan), s) }

// Dim renders s as secondary text.
func (p Painter) Dim(s string) string { return p.paint(color.New(color.Faint), s) }

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

func newFormatter(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   opts.Verbose,
	}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "BAD_PATCH", "INVALID_RECORD", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

func (f *OutputFormatter) painter() Painter {
	return Painter{Enabled: isTerminal(f.Writer) && !color.NoColor}
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if t, ok := data.(Texter); ok {
		return t.WriteText(f.Writer, f.painter())
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	p := f.painter()
	fmt.Fprintf(f.Writer, "%s [%s]: %s\n", p.Bad("Error"), code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// MutationError reports a rejected mutation and returns the ExitError the
// command should fail with. Other errors become command errors.
func (f *OutputFormatter) MutationError(err error) error {
	var me *mutate.Error
	if !errors.As(err, &me) {
		return WrapExitError(ExitCommandError, "command failed", err)
	}

	var details any
	switch {
	case len(me.Fields) > 0:
		details = me.Fields
	case me.PatchIndex >= 0:
		details = map[string]any{"patchIndex": me.PatchIndex, "patchId": me.PatchID}
	}
	if outErr := f.Error(string(me.Code), me.Message, details); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, string(me.Code), err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
