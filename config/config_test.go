package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jacentio/relval/config"
	"github.com/jacentio/relval/internal/logging"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}
	if cfg.Backend.Type != config.BackendSQLite || cfg.Backend.DSN != "relval.db" {
		t.Errorf("unexpected backend %+v", cfg.Backend)
	}
	sc := cfg.StoreConfig()
	if sc.DefaultLimit != 20 || sc.MaxLimit != 500 || sc.TablePrefix != "relval_" {
		t.Errorf("unexpected store config %+v", sc)
	}
	if cfg.SubmissionConfig().Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.SubmissionConfig().Workers)
	}
	if cfg.LockerConfig().Timeout != 0 {
		t.Errorf("expected no lock timeout, got %s", cfg.LockerConfig().Timeout)
	}
}

func TestParse(t *testing.T) {
	cfg := config.Default()
	data := []byte(`
backend:
  type: dynamodb
  region: eu-west-1
  createTables: true
store:
  maxLimit: 100
locker:
  timeout: 30s
submission:
  workers: 4
logging:
  level: debug
  format: json
datasetBlacklist:
  - /RelValZMM*/**
rules:
  requests:
    - name: memory cap
      expr: memory <= 16000
`)
	if err := config.Parse(cfg, data); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.Backend.Type != config.BackendDynamoDB || cfg.Backend.Region != "eu-west-1" || !cfg.Backend.CreateTables {
		t.Errorf("unexpected backend %+v", cfg.Backend)
	}
	if cfg.Backend.DSN != "relval.db" {
		t.Errorf("expected unspecified dsn to keep its default, got %q", cfg.Backend.DSN)
	}
	if cfg.Store.MaxLimit != 100 || cfg.Store.DefaultLimit != 20 {
		t.Errorf("unexpected store %+v", cfg.Store)
	}
	if cfg.Locker.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", cfg.Locker.Timeout)
	}
	if cfg.Submission.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Submission.Workers)
	}
	lc := cfg.LoggingConfig()
	if lc.Level != slog.LevelDebug || lc.Format != logging.FormatJSON {
		t.Errorf("unexpected logging %+v", lc)
	}
	if diff := cmp.Diff([]string{"/RelValZMM*/**"}, cfg.DatasetBlacklist); diff != "" {
		t.Errorf("unexpected blacklist (-want +got):\n%s", diff)
	}
	want := map[string][]config.Rule{"requests": {{Name: "memory cap", Expr: "memory <= 16000"}}}
	if diff := cmp.Diff(want, cfg.Rules); diff != "" {
		t.Errorf("unexpected rules (-want +got):\n%s", diff)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := config.Default()
	if err := config.Parse(cfg, []byte("backend:\n  type: memory\nsubmission:\n  workers: 3\n")); err != nil {
		t.Fatalf("parse: %v", err)
	}
	err := config.ApplyEnv(cfg, env(map[string]string{
		config.EnvBackend:          "postgres",
		config.EnvDSN:              "postgres://localhost/relval",
		config.EnvWorkers:          "8",
		config.EnvLockTimeout:      "1m",
		config.EnvTablePrefix:      "test_",
		config.EnvDatasetBlacklist: "/A/**, ,/B/**",
		config.EnvCreateTables:     "true",
	}))
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Backend.Type != "postgres" || cfg.Backend.DSN != "postgres://localhost/relval" {
		t.Errorf("expected env to win over the file, got %+v", cfg.Backend)
	}
	if cfg.Submission.Workers != 8 || cfg.Locker.Timeout != time.Minute || cfg.Store.TablePrefix != "test_" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if diff := cmp.Diff([]string{"/A/**", "/B/**"}, cfg.DatasetBlacklist); diff != "" {
		t.Errorf("unexpected blacklist (-want +got):\n%s", diff)
	}
	if !cfg.Backend.CreateTables {
		t.Error("expected create tables from env")
	}
}

func TestApplyEnv_Errors(t *testing.T) {
	for _, key := range []string{config.EnvWorkers, config.EnvMaxLimit, config.EnvLockTimeout, config.EnvCreateTables} {
		t.Run(key, func(t *testing.T) {
			err := config.ApplyEnv(config.Default(), env(map[string]string{key: "not-a-value"}))
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("expected error naming %s, got %v", key, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"unknown backend", func(c *config.Config) { c.Backend.Type = "mongodb" }, `unknown backend type "mongodb"`},
		{"missing backend", func(c *config.Config) { c.Backend.Type = "" }, "backend type is required"},
		{"sqlite without dsn", func(c *config.Config) { c.Backend.DSN = "" }, "backend sqlite requires a dsn"},
		{"memory without dsn", func(c *config.Config) { c.Backend = config.BackendConfig{Type: config.BackendMemory} }, ""},
		{"negative timeout", func(c *config.Config) { c.Locker.Timeout = -time.Second }, "locker timeout -1s is negative"},
		{"empty rule", func(c *config.Config) { c.Rules = map[string][]config.Rule{"requests": {{Name: "x"}}} }, "rule 0 of requests has no expression"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("expected %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ClampsLimits(t *testing.T) {
	cfg := config.Default()
	cfg.Store = config.StoreConfig{DefaultLimit: 900, MaxLimit: 0}
	cfg.Submission.Workers = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Store.MaxLimit != 500 || cfg.Store.DefaultLimit != 500 {
		t.Errorf("unexpected limits %+v", cfg.Store)
	}
	if cfg.Submission.Workers != 2 {
		t.Errorf("expected default workers, got %d", cfg.Submission.Workers)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relval.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  type: memory\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(config.EnvWorkers, "5")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.Type != config.BackendMemory || cfg.Submission.Workers != 5 {
		t.Errorf("unexpected config %+v", cfg)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("backend: [\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err = config.Load(bad)
	var cfgErr *config.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Path != bad {
		t.Errorf("expected ConfigError for %s, got %v", bad, err)
	}

	if _, err := config.Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
