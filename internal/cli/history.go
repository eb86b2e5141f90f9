package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropsheet/patchd/internal/mutate"
	"github.com/dropsheet/patchd/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	principalFlags
	Database string
	Schema   string
	Table    string
	RecordID string
	UserID   string
	From     string
	To       string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List committed record versions, newest first",
		Example: `  patchd history --table Customer --from 2024-03-01 --to 2024-03-31 \
    --user 0190f5a4-... --permissions RecordHistory-read`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", dbFlagHelp)
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "directory of table schemas (overrides schema.dir)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "only this table")
	cmd.Flags().StringVar(&opts.RecordID, "record", "", "only this record id")
	cmd.Flags().StringVar(&opts.UserID, "by", "", "only changes by this user id")
	cmd.Flags().StringVar(&opts.From, "from", "", "first day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "last day to include (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.Limit, "limit", store.DefaultHistoryLimit, "maximum rows")
	opts.principalFlags.register(cmd)

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	q := mutate.HistoryQuery{
		Table:    opts.Table,
		RecordID: opts.RecordID,
		UserID:   opts.UserID,
		Limit:    opts.Limit,
	}
	var err error
	if q.FromDate, err = parseDay(opts.From); err != nil {
		return WrapExitError(ExitCommandError, "invalid --from", err)
	}
	if q.ToDate, err = parseDay(opts.To); err != nil {
		return WrapExitError(ExitCommandError, "invalid --to", err)
	}

	a, err := openApp(opts.RootOptions, overrides{Database: opts.Database, Schema: opts.Schema}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.svc.History(cmd.Context(), opts.principal(), q)
	if err != nil {
		return formatter.MutationError(err)
	}
	return formatter.Success(historyOutput(entries))
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

type historyOutput []store.HistoryEntry

func (o historyOutput) WriteText(w io.Writer, p Painter) error {
	if len(o) == 0 {
		fmt.Fprintln(w, p.Dim("no history"))
		return nil
	}
	for _, e := range o {
		fmt.Fprintf(w, "%s  %s/%s v%d  %s %s",
			e.ChangedTime.UTC().Format(time.RFC3339), e.Table, e.RecordID, e.Version, p.Key("by"), e.UserID)
		if e.Form != "" {
			fmt.Fprintf(w, "  %s %s", p.Key("form"), e.Form)
		}
		fmt.Fprintf(w, "\n  %s\n", p.Dim(string(e.Diff)))
	}
	return nil
}
