// Package config loads relval configuration.
//
// Values come from, lowest priority first: defaults, a YAML file, and
// RELVAL_* environment variables. Command-line flags are applied by the
// caller on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jacentio/relval/internal/logging"
	"github.com/jacentio/relval/locker"
	"github.com/jacentio/relval/store"
	"github.com/jacentio/relval/submission"
)

// Backend types.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// Config is the complete relval configuration.
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Store      StoreConfig      `yaml:"store"`
	Locker     LockerConfig     `yaml:"locker"`
	Submission SubmissionConfig `yaml:"submission"`
	Logging    LoggingConfig    `yaml:"logging"`

	// DatasetBlacklist lists glob patterns of datasets requests may not use.
	DatasetBlacklist []string `yaml:"datasetBlacklist"`

	// Rules are veto expressions keyed by collection name.
	Rules map[string][]Rule `yaml:"rules"`
}

// BackendConfig selects and configures the document store.
type BackendConfig struct {
	// Type is memory, sqlite, postgres or dynamodb.
	// Default: "sqlite"
	Type string `yaml:"type"`

	// DSN is the database file (sqlite) or connection string (postgres).
	// Default: "relval.db"
	DSN string `yaml:"dsn"`

	// Region is the AWS region of the DynamoDB tables.
	Region string `yaml:"region"`

	// Endpoint overrides the DynamoDB endpoint (e.g., DynamoDB Local).
	Endpoint string `yaml:"endpoint"`

	// MetaTable is the DynamoDB table holding last-update markers.
	// Default: "<tablePrefix>meta"
	MetaTable string `yaml:"metaTable"`

	// CreateTables creates missing DynamoDB tables on startup.
	CreateTables bool `yaml:"createTables"`
}

// StoreConfig holds query limits and table naming.
type StoreConfig struct {
	DefaultLimit int    `yaml:"defaultLimit"`
	MaxLimit     int    `yaml:"maxLimit"`
	TablePrefix  string `yaml:"tablePrefix"`
}

// LockerConfig configures the named lock manager.
type LockerConfig struct {
	Shards int `yaml:"shards"`

	// Timeout bounds lock waits; zero waits indefinitely.
	Timeout time.Duration `yaml:"timeout"`
}

// SubmissionConfig configures the submission worker pool.
type SubmissionConfig struct {
	Workers int `yaml:"workers"`

	// DryRunDelay is the simulated duration of a dry run submission.
	DryRunDelay time.Duration `yaml:"dryRunDelay"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Rule is one named veto expression.
type Rule struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// Default returns the default configuration.
func Default() *Config {
	sc := store.DefaultConfig()
	lc := locker.DefaultConfig()
	pc := submission.DefaultConfig()
	return &Config{
		Backend: BackendConfig{Type: BackendSQLite, DSN: "relval.db"},
		Store: StoreConfig{
			DefaultLimit: sc.DefaultLimit,
			MaxLimit:     sc.MaxLimit,
			TablePrefix:  sc.TablePrefix,
		},
		Locker:     LockerConfig{Shards: lc.Shards, Timeout: lc.Timeout},
		Submission: SubmissionConfig{Workers: pc.Workers},
		Logging:    LoggingConfig{Level: "info", Format: string(logging.FormatText)},
	}
}

// ConfigError is a configuration file error.
type ConfigError struct {
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Path + ": " + e.Message
}

// Load reads the YAML file at path over the defaults, then applies the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(cfg, data); err != nil {
			return nil, &ConfigError{Path: path, Message: err.Error()}
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML data over cfg. Keys absent from data keep their value.
func Parse(cfg *Config, data []byte) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// Validate checks the backend selection and fills in missing limits.
func (c *Config) Validate() error {
	switch c.Backend.Type {
	case BackendMemory, BackendDynamoDB:
	case BackendSQLite, BackendPostgres:
		if c.Backend.DSN == "" {
			return fmt.Errorf("backend %s requires a dsn", c.Backend.Type)
		}
	case "":
		return errors.New("backend type is required")
	default:
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}
	if c.Locker.Timeout < 0 {
		return fmt.Errorf("locker timeout %s is negative", c.Locker.Timeout)
	}
	for collection, rules := range c.Rules {
		for i, r := range rules {
			if r.Expr == "" {
				return fmt.Errorf("rule %d of %s has no expression", i, collection)
			}
		}
	}

	sc := c.StoreConfig()
	c.Store = StoreConfig{DefaultLimit: sc.DefaultLimit, MaxLimit: sc.MaxLimit, TablePrefix: sc.TablePrefix}
	if c.Submission.Workers < 1 {
		c.Submission.Workers = submission.DefaultConfig().Workers
	}
	return nil
}

// StoreConfig returns the store limits with bounds applied.
func (c *Config) StoreConfig() store.Config {
	sc := store.Config{
		DefaultLimit: c.Store.DefaultLimit,
		MaxLimit:     c.Store.MaxLimit,
		TablePrefix:  c.Store.TablePrefix,
	}
	sc.Validate()
	return sc
}

// LockerConfig returns the lock manager settings.
func (c *Config) LockerConfig() locker.Config {
	return locker.Config{Shards: c.Locker.Shards, Timeout: c.Locker.Timeout}
}

// SubmissionConfig returns the worker pool settings.
func (c *Config) SubmissionConfig() submission.Config {
	return submission.Config{Workers: c.Submission.Workers}
}

// LoggingConfig returns the logger settings writing to os.Stderr.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  logging.ParseLevel(c.Logging.Level),
		Format: logging.ParseFormat(c.Logging.Format),
		Output: os.Stderr,
	}
}
