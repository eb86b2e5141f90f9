package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dropsheet/patchd/internal/doc"
	"github.com/dropsheet/patchd/internal/mutate"
	"github.com/dropsheet/patchd/internal/server"
)

// MutateOptions holds flags for the mutate command.
type MutateOptions struct {
	*RootOptions
	principalFlags
	Database string
	Schema   string
	Table    string
	ID       string
	Override bool
	System   bool
}

// NewMutateCommand creates the mutate command.
func NewMutateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MutateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mutate <batch.json>",
		Short: "Apply a patch batch to a record",
		Long: `Apply a patch batch to a record.

The batch file holds {"patchIds": [...], "patches": [...], "form": "..."}
in the same shape as the HTTP API. Use "-" to read it from stdin. Without
--id a fresh record id is generated.

Example:
  patchd mutate --table Customer --id 0190f5a4-... --user 0190f5a4-... \
    --permissions Customer-write,Customer-create batch.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", dbFlagHelp)
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "directory of table schemas (overrides schema.dir)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table name (required)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (default: new uuid)")
	cmd.Flags().BoolVar(&opts.Override, "override", false, "skip prior-value checks and repair the result")
	cmd.Flags().BoolVar(&opts.System, "system", false, "do not stamp audit fields")
	opts.principalFlags.register(cmd)
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func readBatchFile(path string, stdin io.Reader) (server.PatchRequest, error) {
	var req server.PatchRequest
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return req, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("parse batch: %w", err)
	}
	return req, nil
}

func runMutate(opts *MutateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	req, err := readBatchFile(path, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read batch", err)
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
		formatter.VerboseLog("Generated record id %s", id)
	}

	patches, err := mutate.DecodePatches(opts.Table, id, req.PatchIDs, req.Patches)
	if err != nil {
		return formatter.MutationError(err)
	}

	a, err := openApp(opts.RootOptions, overrides{Database: opts.Database, Schema: opts.Schema}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.svc.Mutate(cmd.Context(), mutate.Batch{
		Table:     opts.Table,
		ID:        id,
		Principal: opts.principal(),
		Form:      req.Form,
		Patches:   patches,
		Override:  opts.Override || req.Override,
		System:    opts.System,
	})
	if err != nil {
		return formatter.MutationError(err)
	}
	return formatter.Success(mutateOutput{Table: opts.Table, ID: id, Result: res})
}

type mutateOutput struct {
	Table string `json:"table"`
	ID    string `json:"id"`
	*mutate.Result
}

func (o mutateOutput) WriteText(w io.Writer, p Painter) error {
	state := "updated"
	switch {
	case o.Created:
		state = "created"
	case !o.Changed:
		state = "unchanged"
	}
	fmt.Fprintf(w, "%s %s/%s %s at version %d\n", p.OK("✓"), o.Table, o.ID, state, o.Version)
	fmt.Fprintf(w, "  %s %d  %s %d\n", p.Key("applied:"), len(o.Applied), p.Key("replayed:"), len(o.Replayed))
	return writeRecord(w, p, o.Record)
}

func writeRecord(w io.Writer, p Painter, r doc.Record) error {
	data, err := json.MarshalIndent(r, "  ", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s\n  %s\n", p.Dim("record:"), data)
	return nil
}
