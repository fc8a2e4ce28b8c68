package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/ascent/pkg/cli"
	"mercator-hq/ascent/pkg/tier"
	"mercator-hq/ascent/pkg/upgrade"
)

type initLevelsOptions struct {
	dryRun      bool
	batchSize   int
	tierID      int64
	maxSteps    int
	concurrency int
}

// initLevelsReport summarizes an init-levels run.
type initLevelsReport struct {
	Checked     int64 `json:"checked"`
	Upgraded    int64 `json:"upgraded"`
	Transitions int64 `json:"transitions"`
	Failed      int64 `json:"failed"`
	DryRun      bool  `json:"dry_run"`
}

func newInitLevelsCmd(root *rootOptions) *cobra.Command {
	opts := &initLevelsOptions{}
	cmd := &cobra.Command{
		Use:   "init-levels",
		Short: "Place every distributor on its correct tier",
		Long: `Walk all distributors and upgrade each one until no rule matches.

Use this after introducing or loosening rules. Each distributor may climb
several tiers; --max-steps bounds the number of transitions per
distributor. With --dry-run the first step of every distributor is
resolved and printed, and nothing is written.

Examples:
  ascent init-levels --dry-run
  ascent init-levels --tier 1 --batch-size 500 --concurrency 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.batchSize < 1 || opts.maxSteps < 1 || opts.concurrency < 1 {
				return &cli.ExitError{Code: 2, Message: "--batch-size, --max-steps and --concurrency must be at least 1"}
			}
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				ctx, stop := signalContext(ctx)
				defer stop()

				report, err := initLevels(ctx, cmd, root, a, opts)
				if perr := root.print(cmd, report.table()); perr != nil {
					return perr
				}
				if err != nil {
					return cli.NewCommandError("init-levels", err)
				}
				if report.Failed > 0 {
					return &cli.ExitError{Code: 1, Message: fmt.Sprintf("%d distributors failed", report.Failed)}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "show decisions without writing")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 1000, "distributors listed per page")
	cmd.Flags().Int64Var(&opts.tierID, "tier", 0, "only distributors currently at this tier id")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 10, "maximum transitions per distributor")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 8, "distributors processed in parallel")
	return cmd
}

func initLevels(ctx context.Context, cmd *cobra.Command, root *rootOptions, a *app, opts *initLevelsOptions) (*initLevelsReport, error) {
	var checked, upgraded, transitions, failed atomic.Int64
	progress := cli.NewScanProgress(cmd.ErrOrStderr())
	progress.Start(0)

	// Previews are printed in completion order.
	var mu sync.Mutex
	preview := func(res *upgrade.Resolution) {
		if !root.verbose && !res.Matched() {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(cmd.ErrOrStderr(), upgrade.Preview(res))
	}

	process := func(ctx context.Context, id int64) {
		moved := false
		defer func() {
			checked.Add(1)
			progress.Step(moved)
		}()

		if opts.dryRun {
			res, err := a.service.CheckEligibility(ctx, id)
			if err != nil {
				failed.Add(1)
				a.logger.Warn("eligibility check failed", "distributor_id", id, "error", err)
				return
			}
			if res.Matched() {
				moved = true
				upgraded.Add(1)
			}
			preview(res)
			return
		}

		records, err := a.service.UpgradeUntilStable(ctx, id, opts.maxSteps)
		if len(records) > 0 {
			moved = true
			upgraded.Add(1)
			transitions.Add(int64(len(records)))
		}
		if err != nil {
			failed.Add(1)
			a.logger.Warn("upgrade failed", "distributor_id", id, "steps", len(records), "error", err)
		}
	}

	var after int64
	var err error
	for {
		var ids []int64
		ids, err = a.store.ListDistributorIDs(ctx, tier.DistributorQuery{TierID: opts.tierID, AfterID: after, Limit: opts.batchSize})
		if err != nil || len(ids) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.concurrency)
		for _, id := range ids {
			g.Go(func() error {
				process(gctx, id)
				return nil
			})
		}
		_ = g.Wait()

		if err = ctx.Err(); err != nil {
			break
		}
		after = ids[len(ids)-1]
		if len(ids) < opts.batchSize {
			break
		}
	}

	if err != nil {
		progress.Error(err)
	} else {
		progress.Finish()
	}
	return &initLevelsReport{
		Checked:     checked.Load(),
		Upgraded:    upgraded.Load(),
		Transitions: transitions.Load(),
		Failed:      failed.Load(),
		DryRun:      opts.dryRun,
	}, err
}

func (r *initLevelsReport) table() *cli.Table {
	label := "Upgraded"
	if r.DryRun {
		label = "Would Upgrade"
	}
	t := &cli.Table{Headers: []string{"Checked", label, "Transitions", "Failed"}}
	t.Append(fmt.Sprint(r.Checked), fmt.Sprint(r.Upgraded), fmt.Sprint(r.Transitions), fmt.Sprint(r.Failed))
	return t
}
