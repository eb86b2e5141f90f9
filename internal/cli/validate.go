package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dropsheet/patchd/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Tables []TableSummary `json:"tables,omitempty"`
}

// TableSummary describes one loaded table.
type TableSummary struct {
	Name   string `json:"name"`
	Fields int    `json:"fields"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Check table schemas without starting the service",
		Long: `Load every CUE file in a directory and check the table declarations:
field kinds, enum values, nested record and array shapes, and the
reserved id and recordVersion fields.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	formatter.VerboseLog("Loading schemas from %s", dir)

	reg, err := schema.Load(dir)
	if err != nil {
		var details any
		var se *schema.Error
		if errors.As(err, &se) && se.Pos.IsValid() {
			details = map[string]any{"file": se.Pos.Filename(), "line": se.Pos.Line(), "column": se.Pos.Column()}
		}
		if outErr := formatter.Error("INVALID_SCHEMA", err.Error(), details); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "schema validation failed", err)
	}

	result := ValidationResult{Valid: true}
	for _, name := range reg.Tables() {
		meta, _ := reg.Lookup(name)
		result.Tables = append(result.Tables, TableSummary{Name: name, Fields: len(meta.Fields())})
		formatter.VerboseLog("Table %s: %d fields", name, len(meta.Fields()))
	}
	return formatter.Success(result)
}

func (r ValidationResult) WriteText(w io.Writer, p Painter) error {
	fmt.Fprintf(w, "%s %d table(s) valid\n", p.OK("✓"), len(r.Tables))
	for _, t := range r.Tables {
		fmt.Fprintf(w, "  %s %s\n", t.Name, p.Dim(fmt.Sprintf("(%d fields)", t.Fields)))
	}
	return nil
}
