package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(EnvDSN, "")
	path := writeFile(t, t.TempDir(), "batchql.yaml", `
driver: pgx
dsn: postgres://localhost/app
mapping: entities.yaml
token_policy: explicit
slow_threshold: 250ms
`)
	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, &Config{
		Driver:        "pgx",
		DSN:           "postgres://localhost/app",
		Mapping:       "entities.yaml",
		TokenPolicy:   "explicit",
		SlowThreshold: 250 * time.Millisecond,
	}, cfg)
	assert.Equal(t, "pgx", cfg.dialect())

	cfg.Dialect = "postgres"
	assert.Equal(t, "postgres", cfg.dialect())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(EnvDSN, "")
	missing := filepath.Join(t.TempDir(), "batchql.yaml")
	cfg, err := LoadConfig(missing, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = LoadConfig(missing, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestLoadConfigEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "batchql.yaml", "dsn: file:app.db\n")
	t.Setenv(EnvDSN, "file:other.db")
	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "file:other.db", cfg.DSN)
	assert.Equal(t, "sqlite", cfg.Driver)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "batchql.yaml", "slow_threshold: [1]\n")
	_, err := LoadConfig(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}
