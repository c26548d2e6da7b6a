package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gofrs/flock"

	"github.com/jacentio/relval/config"
	"github.com/jacentio/relval/store"
	"github.com/jacentio/relval/store/dynamo"
	"github.com/jacentio/relval/store/memstore"
	"github.com/jacentio/relval/store/sqlstore"
)

const (
	fileLockWait  = 30 * time.Second
	fileLockRetry = 50 * time.Millisecond
)

// ErrDatabaseBusy is returned when another relval process holds the SQLite
// database.
var ErrDatabaseBusy = errors.New("relval: database is in use by another process")

// openBackend opens the store selected by cfg. The returned release func
// drops the cross-process lock taken for SQLite files.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Backend, func() error, error) {
	storeCfg := cfg.StoreConfig()
	switch cfg.Backend.Type {
	case config.BackendMemory:
		return memstore.New(storeCfg), nil, nil

	case config.BackendSQLite:
		unlock, err := lockFile(ctx, cfg.Backend.DSN+".lock")
		if err != nil {
			return nil, nil, err
		}
		b, err := sqlstore.Open(ctx, sqlstore.Config{Dialect: sqlstore.SQLite.Name, DSN: cfg.Backend.DSN}, storeCfg)
		if err != nil {
			_ = unlock()
			return nil, nil, err
		}
		logger.Debug("opened sqlite store", "dsn", cfg.Backend.DSN)
		return b, unlock, nil

	case config.BackendPostgres:
		b, err := sqlstore.Open(ctx, sqlstore.Config{Dialect: sqlstore.Postgres.Name, DSN: cfg.Backend.DSN}, storeCfg)
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil

	case config.BackendDynamoDB:
		b, err := openDynamo(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("opened dynamodb store", "meta_table", b.MetaTable())
		return b, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
}

// lockFile takes an exclusive lock on path, waiting up to fileLockWait.
func lockFile(ctx context.Context, path string) (func() error, error) {
	ctx, cancel := context.WithTimeout(ctx, fileLockWait)
	defer cancel()

	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, fileLockRetry)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseBusy, path)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseBusy, path)
	}
	return fl.Unlock, nil
}

func openDynamo(ctx context.Context, cfg *config.Config) (*dynamo.Backend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Backend.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Backend.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Backend.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Backend.Endpoint)
		}
	})
	return dynamo.New(client, dynamo.Config{
		MetaTable:    cfg.Backend.MetaTable,
		CreateTables: cfg.Backend.CreateTables,
	}, cfg.StoreConfig()), nil
}
