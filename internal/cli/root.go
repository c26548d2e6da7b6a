// Package cli implements the relval command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jacentio/relval/config"
	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/internal/logging"
	"github.com/jacentio/relval/internal/metrics"
	"github.com/jacentio/relval/relval"
	"github.com/jacentio/relval/store"
)

// Version is injected during build.
var Version = "dev"

// app carries the state shared by every command of one invocation.
type app struct {
	configPath  string
	backendType string
	dsn         string
	actor       string
	logLevel    string
	metricsFile string

	// openBackend opens the configured store. Tests replace it.
	openBackend func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Backend, func() error, error)

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	sys      *relval.System
	unlock   func() error
}

// NewRootCmd returns the relval command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{openBackend: openBackend})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "relval",
		Short: "relval manages release validation campaigns, tickets and requests",
		Long: `relval stores campaigns, subcampaigns, tickets and requests, validates
every change against their editing rules and submits approved requests.

Configuration is read from the file given with --config, then RELVAL_*
environment variables, then command-line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("RELVAL_CONFIG"), "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&a.backendType, "backend", "", "Store backend (memory, sqlite, postgres, dynamodb)")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "Database file or connection string")
	root.PersistentFlags().StringVar(&a.actor, "actor", os.Getenv("USER"), "Name recorded in document history")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		newVersionCmd(),
		newCreateCmd(a),
		newGetCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newQueryCmd(a),
		newApproveCmd(a),
		newResetCmd(a),
		newCompleteCmd(a),
		newSubmitCmd(a),
		newStatusCmd(a),
		newCreateRequestsCmd(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", Describe(err))
		os.Exit(ExitCode(err))
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relval version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relval %s\n", Version)
		},
	}
}

// loadConfig resolves the configuration with flags applied last.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.backendType != "" {
		cfg.Backend.Type = a.backendType
	}
	if a.dsn != "" {
		cfg.Backend.DSN = a.dsn
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// open builds the system for one command and returns the context the
// command runs in.
func (a *app) open(cmd *cobra.Command) (context.Context, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	a.cfg = cfg

	lc := cfg.LoggingConfig()
	lc.Output = cmd.ErrOrStderr()
	a.logger = logging.New(lc)
	a.registry = prometheus.NewRegistry()
	m := metrics.New(a.registry)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.actor != "" {
		ctx = controller.WithActor(ctx, a.actor)
	}

	backend, unlock, err := a.openBackend(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.unlock = unlock

	sys, err := relval.NewSystem(ctx, backend, relval.Options{
		DatasetBlacklist: cfg.DatasetBlacklist,
		Rules:            rules(cfg.Rules),
		Locker:           cfg.LockerConfig(),
		Submission:       cfg.SubmissionConfig(),
		Remote:           relval.DryRunRemote{Delay: cfg.Submission.DryRunDelay, Logger: a.logger},
		Logger:           a.logger,
		Metrics:          m,
	})
	if err != nil {
		_ = backend.Close()
		a.release()
		return nil, err
	}
	a.sys = sys
	sys.Start(ctx)
	return ctx, nil
}

// close drains submissions, closes the store and writes metrics.
func (a *app) close() error {
	if a.sys == nil {
		return nil
	}
	err := a.sys.Close()
	a.sys = nil
	if uerr := a.release(); uerr != nil {
		err = errors.Join(err, uerr)
	}
	if a.metricsFile != "" {
		if merr := prometheus.WriteToTextfile(a.metricsFile, a.registry); merr != nil {
			err = errors.Join(err, fmt.Errorf("write metrics: %w", merr))
		}
	}
	return err
}

func (a *app) release() error {
	if a.unlock == nil {
		return nil
	}
	err := a.unlock()
	a.unlock = nil
	return err
}

// run wraps a command body with open and close.
func (a *app) run(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, err := a.open(cmd)
		if err != nil {
			return err
		}
		err = fn(ctx, cmd, args)
		if cerr := a.close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return err
	}
}

func rules(in map[string][]config.Rule) map[string][]relval.Rule {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]relval.Rule, len(in))
	for collection, rs := range in {
		for _, r := range rs {
			out[collection] = append(out[collection], relval.Rule{Name: r.Name, Expr: r.Expr})
		}
	}
	return out
}
