package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dropsheet/patchd/internal/mutate"
)

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	*RootOptions
	principalFlags
	Database string
	Schema   string
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read <table> <id>",
		Short: "Print the stored state of a record",
		Example: `  patchd read Customer 0190f5a4-7c1e-7a32-9b6e-3f1c2d4e5a60 \
    --user 0190f5a4-... --permissions Customer-read`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", dbFlagHelp)
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "directory of table schemas (overrides schema.dir)")
	opts.principalFlags.register(cmd)

	return cmd
}

func runRead(opts *ReadOptions, table, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	a, err := openApp(opts.RootOptions, overrides{Database: opts.Database, Schema: opts.Schema}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.svc.Read(cmd.Context(), opts.principal(), table, id)
	if err != nil {
		return formatter.MutationError(err)
	}
	return formatter.Success(readOutput{Table: table, ID: id, Snapshot: snap})
}

type readOutput struct {
	Table string `json:"table"`
	ID    string `json:"id"`
	*mutate.Snapshot
}

func (o readOutput) WriteText(w io.Writer, p Painter) error {
	fmt.Fprintf(w, "%s/%s %s %d\n", o.Table, o.ID, p.Key("version"), o.Version)
	fmt.Fprintf(w, "  %s %s\n", p.Key("digest:"), o.Digest)
	fmt.Fprintf(w, "  %s %s\n", p.Key("updated:"), o.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	return writeRecord(w, p, o.Record)
}
