package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/ascent/pkg/authz"
	"mercator-hq/ascent/pkg/cli"
	"mercator-hq/ascent/pkg/config"
	"mercator-hq/ascent/pkg/rules"
	"mercator-hq/ascent/pkg/server"
	"mercator-hq/ascent/pkg/sweep"
	"mercator-hq/ascent/pkg/telemetry/health"
	"mercator-hq/ascent/pkg/trigger"
	"mercator-hq/ascent/pkg/upgrade"
)

// consumerRestartDelay is how long to wait before rejoining the consumer
// group after a handler error. The new reader resumes from the last commit.
const consumerRestartDelay = 5 * time.Second

type runOptions struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the upgrade engine",
		Long: `Start the upgrade engine with the specified configuration.

The engine serves the admin API, consumes check messages and, when enabled,
runs the scheduled sweep. The rules file, if configured, is applied before
anything else starts.

Examples:
  # Start with default config
  ascent run

  # Start with custom config
  ascent run --config /etc/ascent/config.yaml

  # Override listen address
  ascent run --listen 0.0.0.0:8080

  # Validate config and rules without starting
  ascent run --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.listenAddress, "listen", "l", "", "override listen address")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate config and rules without starting")
	return cmd
}

func runEngine(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if opts.listenAddress != "" {
		cfg.Server.ListenAddress = opts.listenAddress
	}
	if opts.logLevel != "" {
		cfg.Telemetry.Logging.Level = opts.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError(root.configFile, err.Error())
	}

	logger, err := root.logger(cfg, cmd.ErrOrStderr(), cfg.Telemetry.Logging.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if opts.dryRun {
		if cfg.Rules.File != "" {
			f, err := rules.Load(cfg.Rules.File)
			if err != nil {
				return cli.NewConfigError("rules.file", err.Error())
			}
			if err := f.Validate(newEvaluator(cfg)); err != nil {
				return cli.NewConfigError("rules.file", err.Error())
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	return serve(ctx, a)
}

// serve starts every long-running component and blocks until ctx is done
// or one of them fails.
func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	var watcher *rules.Watcher
	if cfg.Rules.File != "" {
		loader := rules.NewLoader(cfg.Rules.File, a.store, a.evaluator, a.collector, logger)
		summary, err := loader.Reload(ctx)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("apply rules file: %w", err))
		}
		logger.Info("rules applied",
			"file", cfg.Rules.File,
			"tiers", summary.Tiers,
			"regular_rules", summary.RegularRules,
			"direct_rules", summary.DirectRules,
		)
		if cfg.Rules.Watch {
			w, err := rules.NewWatcher(loader, cfg.Rules.Debounce, logger)
			if err != nil {
				return cli.NewCommandError("run", err)
			}
			watcher = w
		}
	}

	az, err := authz.NewAuthorizer(cfg.Authz)
	if err != nil {
		return cli.NewConfigError("authz", err.Error())
	}
	manual := upgrade.NewManualFlow(a.service, az, logger, upgrade.WithTicketTTL(cfg.Manual.TicketTTL))

	handler := a.handler()
	publisher, err := a.publisher(handler)
	if err != nil {
		return cli.NewConfigError("trigger.kafka", err.Error())
	}
	defer publisher.Close()

	checker := health.New(5 * time.Second)
	checker.RegisterCheck("store", a.store.Ping)

	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		metricsHandler = a.collector.Handler()
	}
	srv, err := server.New(&cfg.Server, server.Deps{
		Manual:      manual,
		Engine:      a.service,
		History:     a.store,
		Authz:       az,
		Listener:    trigger.NewListener(publisher, logger),
		Health:      checker,
		Metrics:     metricsHandler,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Version:     health.VersionInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate},
	}, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	logger.Info("starting ascent",
		"version", Version,
		"listen_address", cfg.Server.ListenAddress,
		"storage", cfg.Storage.Backend,
		"trigger", cfg.Trigger.Backend,
		"sweep_enabled", cfg.Sweep.Enabled,
	)

	if cfg.Sweep.Enabled {
		sweeper := sweep.New(a.store, publisher, sweep.Options{
			BatchSize:   cfg.Sweep.BatchSize,
			Concurrency: cfg.Sweep.Concurrency,
			Debounce:    cfg.Sweep.Debounce,
			Recorder:    a.collector,
			Logger:      logger,
		})
		scheduler := sweep.NewScheduler(sweeper, cfg.Sweep.Schedule, sweep.Request{TierID: cfg.Sweep.TierID}, logger)
		if err := scheduler.Start(ctx); err != nil {
			return cli.NewConfigError("sweep.schedule", err.Error())
		}
		defer scheduler.Stop()
		if next := scheduler.NextRun(); next != nil {
			logger.Info("next sweep scheduled", "at", next.Format(time.RFC3339))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })

	if watcher != nil {
		g.Go(func() error { return watcher.Watch(ctx) })
	}
	if cfg.Trigger.Backend == "kafka" {
		newConsumer := func() (*trigger.KafkaConsumer, error) {
			return trigger.NewKafkaConsumer(cfg.Trigger.Kafka, handler, logger)
		}
		g.Go(func() error { return consume(ctx, newConsumer, logger) })
	}
	err = g.Wait()
	logger.Info("ascent stopped", "pending_tickets", manual.Pending())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// consume runs a Kafka consumer until ctx is done. After a handler error the
// reader is closed and a new one joins the group, which redelivers from the
// last committed offset.
func consume(ctx context.Context, newConsumer func() (*trigger.KafkaConsumer, error), logger *slog.Logger) error {
	for {
		c, err := newConsumer()
		if err != nil {
			return fmt.Errorf("create trigger consumer: %w", err)
		}
		err = c.Run(ctx)
		if cerr := c.Close(); cerr != nil {
			logger.Warn("closing trigger consumer", "error", cerr)
		}
		if err == nil || ctx.Err() != nil {
			return nil
		}
		logger.Error("trigger consumer stopped, restarting", "error", err, "delay", consumerRestartDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(consumerRestartDelay):
		}
	}
}
