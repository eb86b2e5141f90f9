package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patchd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/patchd/records.db
  driver: sqlite
ledger:
  retention: 72h
http:
  addr: ":9090"
permissions:
  mode: policy
  policies:
    "*": 'principal.id != ""'
    Customer: 'capability == "read" || "Customer-write" in principal.permissions'
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/patchd/records.db", cfg.Database.Path)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 72*time.Hour, cfg.Ledger.Retention)
	assert.Equal(t, time.Hour, cfg.Ledger.PruneInterval, "unset values keep defaults")
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, ModePolicy, cfg.Permissions.Mode)
	assert.Len(t, cfg.Permissions.Policies, 2)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load(writeConfig(t, "databse:\n  path: x.db\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PATCHD_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("PATCHD_LEDGER_RETENTION", "24h")
	t.Setenv("PATCHD_LOG_FORMAT", "json")

	cfg, err := Load(writeConfig(t, "database:\n  path: file.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path, "environment wins over the file")
	assert.Equal(t, 24*time.Hour, cfg.Ledger.Retention)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_BadEnvDuration(t *testing.T) {
	t.Setenv("PATCHD_LEDGER_PRUNE_INTERVAL", "soon")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PATCHD_LEDGER_PRUNE_INTERVAL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"no schema dir", func(c *Config) { c.Schema.Dir = "" }, "schema.dir"},
		{"zero retention", func(c *Config) { c.Ledger.Retention = 0 }, "ledger.retention"},
		{"zero interval", func(c *Config) { c.Ledger.PruneInterval = 0 }, "ledger.prune_interval"},
		{"no addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad mode", func(c *Config) { c.Permissions.Mode = "root" }, "permissions.mode"},
		{"policy without rules", func(c *Config) { c.Permissions.Mode = ModePolicy }, "permissions.policies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
