package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropsheet/patchd/internal/delta"
	"github.com/dropsheet/patchd/internal/doc"
)

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <from.json> <to.json>",
		Short: "Print the delta that turns one JSON document into another",
		Long: `Print the delta that turns one JSON document into another.

The output is in the wire format accepted by "patchd mutate" and the
HTTP API, so it can be used to build patch batches by hand.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func readDocument(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return doc.UnmarshalValue(data)
}

func runDiff(opts *RootOptions, fromPath, toPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	from, err := readDocument(fromPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read "+fromPath, err)
	}
	to, err := readDocument(toPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read "+toPath, err)
	}

	encoded, err := delta.Marshal(delta.Diff(from, to))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode delta", err)
	}
	return formatter.Success(diffOutput{Delta: encoded})
}

type diffOutput struct {
	Delta json.RawMessage `json:"delta"`
}

func (o diffOutput) WriteText(w io.Writer, p Painter) error {
	if string(o.Delta) == "null" {
		fmt.Fprintln(w, p.Dim("no changes"))
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, o.Delta, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(w, buf.String())
	return nil
}
