// Package config loads the patchd configuration file.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// PATCHD_* environment variables. Command-line flags are applied by the
// caller on top of the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Database    Database    `yaml:"database"`
	Schema      Schema      `yaml:"schema"`
	Ledger      Ledger      `yaml:"ledger"`
	HTTP        HTTP        `yaml:"http"`
	Log         Log         `yaml:"log"`
	Permissions Permissions `yaml:"permissions"`
}

type Database struct {
	Path   string `yaml:"path"`
	Driver string `yaml:"driver"`
}

type Schema struct {
	Dir string `yaml:"dir"`
}

type Ledger struct {
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

type HTTP struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Permission modes.
const (
	ModeList   = "list"
	ModePolicy = "policy"
	ModeAllow  = "allow"
)

// Permissions selects the authz checker. Policies maps a table name (or
// "*") to a boolean expression and is only read in policy mode.
type Permissions struct {
	Mode     string            `yaml:"mode"`
	Policies map[string]string `yaml:"policies"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: Database{Path: "patchd.db", Driver: "sqlite3"},
		Schema:   Schema{Dir: "tables"},
		Ledger: Ledger{
			Retention:     7 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
		HTTP: HTTP{
			Addr:              "127.0.0.1:8080",
			ReadHeaderTimeout: 10 * time.Second,
		},
		Log:         Log{Level: "info", Format: "text"},
		Permissions: Permissions{Mode: ModeList},
	}
}

// Load reads path on top of the defaults and applies the environment. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"PATCHD_DATABASE_PATH":    &c.Database.Path,
		"PATCHD_DATABASE_DRIVER":  &c.Database.Driver,
		"PATCHD_SCHEMA_DIR":       &c.Schema.Dir,
		"PATCHD_HTTP_ADDR":        &c.HTTP.Addr,
		"PATCHD_LOG_LEVEL":        &c.Log.Level,
		"PATCHD_LOG_FORMAT":       &c.Log.Format,
		"PATCHD_PERMISSIONS_MODE": &c.Permissions.Mode,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"PATCHD_LEDGER_RETENTION":      &c.Ledger.Retention,
		"PATCHD_LEDGER_PRUNE_INTERVAL": &c.Ledger.PruneInterval,
	}
	for name, dst := range durations {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return errors.New("database.path is required")
	case c.Database.Driver != "sqlite3" && c.Database.Driver != "sqlite":
		return fmt.Errorf("database.driver %q: must be sqlite3 or sqlite", c.Database.Driver)
	case c.Schema.Dir == "":
		return errors.New("schema.dir is required")
	case c.Ledger.Retention <= 0:
		return errors.New("ledger.retention must be positive")
	case c.Ledger.PruneInterval <= 0:
		return errors.New("ledger.prune_interval must be positive")
	case c.HTTP.Addr == "":
		return errors.New("http.addr is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: must be debug, info, warn or error", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format %q: must be text or json", c.Log.Format)
	}

	switch c.Permissions.Mode {
	case ModeList, ModeAllow:
	case ModePolicy:
		if len(c.Permissions.Policies) == 0 {
			return errors.New("permissions.policies is required in policy mode")
		}
	default:
		return fmt.Errorf("permissions.mode %q: must be list, policy or allow", c.Permissions.Mode)
	}
	return nil
}
