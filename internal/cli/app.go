package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropsheet/patchd/internal/authz"
	"github.com/dropsheet/patchd/internal/config"
	"github.com/dropsheet/patchd/internal/metrics"
	"github.com/dropsheet/patchd/internal/mutate"
	"github.com/dropsheet/patchd/internal/schema"
	"github.com/dropsheet/patchd/internal/store"
)

// app is the wired runtime shared by the commands that touch the store.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *store.Store
	schemas *schema.Registry
	metrics *metrics.Metrics
	svc     *mutate.Service
}

// overrides are command-line values that win over the config file.
type overrides struct {
	Database string
	Schema   string
}

func loadConfig(opts *RootOptions, o overrides) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database.Path = o.Database
	}
	if o.Schema != "" {
		cfg.Schema.Dir = o.Schema
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs always go to stderr so they
// never mix with command output.
func newLogger(cfg config.Log, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func newChecker(cfg config.Permissions) (authz.Checker, error) {
	switch cfg.Mode {
	case config.ModeAllow:
		return authz.AllowAll{}, nil
	case config.ModePolicy:
		return authz.NewPolicy(cfg.Policies)
	default:
		return authz.PermissionList{}, nil
	}
}

// openApp wires config, logging, store, schemas, permissions and the
// mutation service. The caller must Close it.
func openApp(opts *RootOptions, o overrides, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(opts, o)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, logOut)
	slog.SetDefault(logger)

	logger.Debug("loading schemas", "dir", cfg.Schema.Dir)
	schemas, err := schema.Load(cfg.Schema.Dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load schemas", err)
	}

	checker, err := newChecker(cfg.Permissions)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build permission policy", err)
	}

	logger.Debug("opening database", "path", cfg.Database.Path, "driver", cfg.Database.Driver)
	st, err := store.Open(cfg.Database.Path, store.WithDriver(cfg.Database.Driver))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	m := metrics.New()
	coord := mutate.NewCoordinator(st, schemas, checker,
		mutate.WithLogger(logger),
		mutate.WithMetrics(m),
	)
	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		schemas: schemas,
		metrics: m,
		svc:     mutate.NewService(coord),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// principalFlags identify the acting user for local commands.
type principalFlags struct {
	User        string
	Permissions []string
}

func (p principalFlags) principal() authz.Principal {
	return authz.Principal{ID: p.User, Permissions: p.Permissions}
}

func (p *principalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.User, "user", "", "acting user id")
	cmd.Flags().StringSliceVar(&p.Permissions, "permissions", nil, `permissions of the acting user, e.g. "Customer-write"`)
}

const dbFlagHelp = "path to SQLite database (overrides database.path)"
