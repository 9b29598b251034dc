package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvDSN overrides the data source name of the configuration file.
const EnvDSN = "BATCHQL_DSN"

// DefaultConfigFile is read from the working directory when --config is
// not given.
const DefaultConfigFile = "batchql.yaml"

// Config is the content of batchql.yaml.
//
//	driver: pgx
//	dsn: postgres://localhost/app
//	mapping: mapping.yaml
//	slow_threshold: 200ms
type Config struct {
	// Driver is the database/sql driver name: sqlite, postgres, pgx or mysql.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Dialect defaults to the dialect of Driver.
	Dialect     string `yaml:"dialect"`
	Mapping     string `yaml:"mapping"`
	TokenPolicy string `yaml:"token_policy"`
	// SlowThreshold enables statement statistics when set.
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Driver:  "sqlite",
		Mapping: "mapping.yaml",
	}
}

// LoadConfig reads the configuration. The environment takes precedence
// over the file, and the file over the defaults. A missing file is an
// error only when explicit is set.
func LoadConfig(path string, explicit bool) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if dsn := os.Getenv(EnvDSN); dsn != "" {
		cfg.DSN = dsn
	}
	return cfg, nil
}

// dialect returns the dialect statements are rendered for.
func (c *Config) dialect() string {
	if c.Dialect != "" {
		return c.Dialect
	}
	return c.Driver
}
