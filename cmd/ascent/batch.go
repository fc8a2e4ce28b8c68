package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ascent/pkg/cli"
	"mercator-hq/ascent/pkg/sweep"
)

func newBatchCheckCmd(root *rootOptions) *cobra.Command {
	var (
		tierID      int64
		limit       int
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch-check",
		Short: "Dispatch an upgrade check for many distributors",
		Long: `Run one sweep now: list distributors and dispatch a check message for
each through the configured trigger backend.

With the inline backend each check runs in this process before the command
returns. With the kafka backend the messages are published and handled by
the running engine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				ctx, stop := signalContext(ctx)
				defer stop()

				publisher, err := a.publisher(a.handler())
				if err != nil {
					return cli.NewConfigError("trigger.kafka", err.Error())
				}
				defer publisher.Close()

				if concurrency <= 0 {
					concurrency = a.cfg.Sweep.Concurrency
				}
				sweeper := sweep.New(a.store, publisher, sweep.Options{
					BatchSize:   a.cfg.Sweep.BatchSize,
					Concurrency: concurrency,
					Recorder:    a.collector,
					Logger:      a.logger,
				})
				report, err := sweeper.Run(ctx, sweep.Request{TierID: tierID, Limit: limit})
				if root.jsonOutput() {
					if perr := root.print(cmd, report); perr != nil {
						return perr
					}
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Dispatched %d checks, %d failed in %s\n",
						report.Dispatched, report.Failed, report.Elapsed.Round(time.Millisecond))
				}
				if err != nil {
					return cli.NewCommandError("batch-check", err)
				}
				if report.Failed > 0 {
					return &cli.ExitError{Code: 1, Message: fmt.Sprintf("%d checks failed to dispatch", report.Failed)}
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&tierID, "tier", 0, "only distributors currently at this tier id")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of distributors (0 for all)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel dispatches (defaults to sweep.concurrency)")
	return cmd
}

// signalContext is cli.SetupSignalHandler for an existing context.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
