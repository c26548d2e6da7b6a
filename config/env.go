package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by ApplyEnv.
const (
	EnvBackend          = "RELVAL_BACKEND"
	EnvDSN              = "RELVAL_DSN"
	EnvRegion           = "RELVAL_AWS_REGION"
	EnvEndpoint         = "RELVAL_DYNAMODB_ENDPOINT"
	EnvCreateTables     = "RELVAL_CREATE_TABLES"
	EnvTablePrefix      = "RELVAL_TABLE_PREFIX"
	EnvMaxLimit         = "RELVAL_MAX_LIMIT"
	EnvLockTimeout      = "RELVAL_LOCK_TIMEOUT"
	EnvWorkers          = "RELVAL_WORKERS"
	EnvLogLevel         = "RELVAL_LOG_LEVEL"
	EnvLogFormat        = "RELVAL_LOG_FORMAT"
	EnvDatasetBlacklist = "RELVAL_DATASET_BLACKLIST"
)

// ApplyEnv overrides cfg with the RELVAL_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvBackend, &cfg.Backend.Type)
	str(EnvDSN, &cfg.Backend.DSN)
	str(EnvRegion, &cfg.Backend.Region)
	str(EnvEndpoint, &cfg.Backend.Endpoint)
	str(EnvTablePrefix, &cfg.Store.TablePrefix)
	str(EnvLogLevel, &cfg.Logging.Level)
	str(EnvLogFormat, &cfg.Logging.Format)

	if v, ok := lookup(EnvCreateTables); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCreateTables, err)
		}
		cfg.Backend.CreateTables = b
	}
	for key, dst := range map[string]*int{EnvMaxLimit: &cfg.Store.MaxLimit, EnvWorkers: &cfg.Submission.Workers} {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup(EnvLockTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLockTimeout, err)
		}
		cfg.Locker.Timeout = d
	}
	if v, ok := lookup(EnvDatasetBlacklist); ok {
		cfg.DatasetBlacklist = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.DatasetBlacklist = append(cfg.DatasetBlacklist, p)
			}
		}
	}
	return nil
}
