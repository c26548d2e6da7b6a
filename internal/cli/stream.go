package cli

import (
	"context"
	"fmt"

	"github.com/jacentio/relval/config"
	"github.com/jacentio/relval/internal/logging"
	"github.com/jacentio/relval/relval"
	"github.com/jacentio/relval/stream"
)

// NewStreamHandler builds the DynamoDB Streams handler that keeps the
// last-update markers of the relval tables current. Configuration is read
// from the file at configPath and the environment.
func NewStreamHandler(ctx context.Context, configPath string) (*stream.Handler, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Backend.Type != config.BackendDynamoDB {
		return nil, fmt.Errorf("stream handler requires the %s backend, got %s", config.BackendDynamoDB, cfg.Backend.Type)
	}
	b, err := openDynamo(ctx, cfg)
	if err != nil {
		return nil, err
	}

	infos := relval.Infos()
	collections := make([]string, len(infos))
	for i, info := range infos {
		collections[i] = info.Name
	}
	return stream.NewHandler(b, stream.Config{
		Tables: stream.Tables(cfg.Store.TablePrefix, collections...),
	}, logging.New(cfg.LoggingConfig())), nil
}
