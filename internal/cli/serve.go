package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropsheet/patchd/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Schema   string
	Addr     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the record API over HTTP",
		Long: `Serve the record API over HTTP.

Opens the database (creating it if it doesn't exist), loads the table
schemas and accepts patch batches until interrupted. A background task
prunes the replay ledger every ledger.prune_interval.

Example:
  patchd serve --config patchd.yaml
  patchd serve --db ./patchd.db --schema ./tables --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", dbFlagHelp)
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "directory of table schemas (overrides schema.dir)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides http.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, overrides{Database: opts.Database, Schema: opts.Schema}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := server.New(a.svc,
		server.WithMetrics(a.metrics.Handler()),
		server.WithHealthCheck(a.store.Ping),
		server.WithLogger(a.logger),
	)
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	go a.svc.RunPruner(ctx, a.cfg.Ledger.PruneInterval, a.cfg.Ledger.Retention)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	a.logger.Info("serving", "addr", ln.Addr().String(), "tables", a.schemas.Tables())
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	a.logger.Info("server stopped gracefully")
	return nil
}
