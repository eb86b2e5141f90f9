package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	Database  string
	Schema    string
	Retention time.Duration
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete replay ledger entries past retention",
		Long: `Delete replay ledger entries older than the retention window.

A patch id whose ledger entry was pruned is applied again if it is
redelivered, so retention must exceed the longest client retry window.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", dbFlagHelp)
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "directory of table schemas (overrides schema.dir)")
	cmd.Flags().DurationVar(&opts.Retention, "retention", 0, "keep entries newer than this (overrides ledger.retention)")

	return cmd
}

func runPrune(opts *PruneOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	a, err := openApp(opts.RootOptions, overrides{Database: opts.Database, Schema: opts.Schema}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	retention := a.cfg.Ledger.Retention
	if opts.Retention > 0 {
		retention = opts.Retention
	}
	n, err := a.svc.Prune(cmd.Context(), retention)
	if err != nil {
		return WrapExitError(ExitFailure, "prune failed", err)
	}
	return formatter.Success(pruneOutput{Removed: n, Retention: retention.String()})
}

type pruneOutput struct {
	Removed   int64  `json:"removed"`
	Retention string `json:"retention"`
}

func (o pruneOutput) WriteText(w io.Writer, p Painter) error {
	fmt.Fprintf(w, "%s removed %d ledger entries older than %s\n", p.OK("✓"), o.Removed, o.Retention)
	return nil
}
