package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/ascent/pkg/cli"
	"mercator-hq/ascent/pkg/config"
	"mercator-hq/ascent/pkg/expr"
	"mercator-hq/ascent/pkg/metricsource"
	"mercator-hq/ascent/pkg/store"
	"mercator-hq/ascent/pkg/telemetry/logging"
	"mercator-hq/ascent/pkg/telemetry/metrics"
	"mercator-hq/ascent/pkg/telemetry/tracing"
	"mercator-hq/ascent/pkg/trigger"
	"mercator-hq/ascent/pkg/upgrade"
)

// app holds the components shared by every command that touches storage.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     store.Store
	evaluator *expr.Evaluator
	collector *metrics.Collector
	tracer    *tracing.Tracer
	service   *upgrade.Service
}

// newApp opens storage and builds the upgrade engine.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	evaluator := newEvaluator(cfg)

	logger.Debug("opening storage",
		"backend", cfg.Storage.Backend,
		"dsn", logging.RedactDSN(cfg.Storage.Postgres.DSN),
	)
	st, err := store.Open(ctx, storeConfig(&cfg.Storage, evaluator))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	collector.WatchExpressionCache(evaluator.CacheLen)

	provider := metricsource.NewProvider(st, metricsource.WithLogger(logger))
	resolver := upgrade.NewResolver(st, provider, evaluator, collector, logger)
	executor := upgrade.NewExecutor(st, st, collector, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		evaluator: evaluator,
		collector: collector,
		tracer:    tracer,
		service:   upgrade.NewService(st, resolver, executor, collector, logger),
	}, nil
}

func newEvaluator(cfg *config.Config) *expr.Evaluator {
	return expr.NewEvaluator(expr.Config{CacheSize: cfg.Engine.CacheSize})
}

func storeConfig(cfg *config.StorageConfig, v *expr.Evaluator) store.Config {
	return store.Config{
		Backend: cfg.Backend,
		SQLite: &store.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			WALMode:      strings.EqualFold(cfg.SQLite.JournalMode, "wal"),
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		},
		Postgres: &store.PostgresConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
		},
		Validator: v,
	}
}

// handler returns a trigger handler bound to the engine.
func (a *app) handler() *trigger.Handler {
	return trigger.NewHandler(a.service, a.cfg.Trigger.MaxAttempts, a.collector, a.logger)
}

// publisher returns the configured trigger publisher. The inline backend
// handles each message synchronously through h.
func (a *app) publisher(h *trigger.Handler) (trigger.Publisher, error) {
	switch a.cfg.Trigger.Backend {
	case "kafka":
		return trigger.NewKafkaPublisher(a.cfg.Trigger.Kafka, a.collector, a.logger)
	default:
		return trigger.NewInlinePublisher(h, a.collector), nil
	}
}

// Close flushes spans and closes storage.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}

// withApp loads configuration, builds the engine, runs fn and closes
// everything. Short-lived commands log to stderr.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	logger, err := o.logger(cfg, cmd.ErrOrStderr(), "")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return cli.NewCommandError(cmd.Name(), err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()
	return fn(ctx, a)
}
