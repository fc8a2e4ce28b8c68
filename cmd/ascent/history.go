package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ascent/pkg/cli"
	"mercator-hq/ascent/pkg/tier"
	"mercator-hq/ascent/pkg/upgrade"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <distributor-id>",
		Short: "Show the upgrade history of a distributor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return &cli.ExitError{Code: 2, Message: fmt.Sprintf("invalid distributor id %q", args[0])}
			}
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				records, err := a.store.HistoryByDistributor(ctx, id, limit)
				if err != nil {
					return cli.NewCommandError("history", err)
				}
				return printHistory(cmd, root, records)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of records")
	cmd.AddCommand(newHistoryQueryCmd(root))
	return cmd
}

func newHistoryQueryCmd(root *rootOptions) *cobra.Command {
	var (
		start, end  string
		triggerKind string
		limit       int
		offset      int
		countOnly   bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query upgrade history across distributors",
		Long: `Query history records by time range and trigger kind.

Times are RFC 3339 (2026-01-31T00:00:00Z) or a plain date (2026-01-31).

Examples:
  ascent history query --start 2026-01-01 --end 2026-02-01
  ascent history query --trigger-kind manual -o csv
  ascent history query --start 2026-01-01 --count`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var q tier.HistoryQuery
			var err error
			if q.StartTime, err = parseTimeFlag("start", start); err != nil {
				return err
			}
			if q.EndTime, err = parseTimeFlag("end", end); err != nil {
				return err
			}
			switch tier.TriggerKind(triggerKind) {
			case "", tier.TriggerAuto, tier.TriggerManual:
				q.TriggerKind = tier.TriggerKind(triggerKind)
			default:
				return &cli.ExitError{Code: 2, Message: fmt.Sprintf("invalid trigger kind %q (must be auto or manual)", triggerKind)}
			}
			q.Limit, q.Offset = limit, offset

			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				if countOnly {
					from, to := time.Time{}, time.Now().UTC()
					if q.StartTime != nil {
						from = *q.StartTime
					}
					if q.EndTime != nil {
						to = *q.EndTime
					}
					n, err := a.store.CountHistory(ctx, from, to)
					if err != nil {
						return cli.NewCommandError("history query", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), n)
					return nil
				}
				records, err := a.store.QueryHistory(ctx, q)
				if err != nil {
					return cli.NewCommandError("history query", err)
				}
				return printHistory(cmd, root, records)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "earliest occurrence (inclusive)")
	cmd.Flags().StringVar(&end, "end", "", "latest occurrence (inclusive)")
	cmd.Flags().StringVar(&triggerKind, "trigger-kind", "", "auto or manual")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of records")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	cmd.Flags().BoolVar(&countOnly, "count", false, "print only the number of records in the time range")
	return cmd
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, &cli.ExitError{Code: 2, Message: fmt.Sprintf("invalid --%s %q (use RFC 3339 or YYYY-MM-DD)", name, value)}
}

func printHistory(cmd *cobra.Command, root *rootOptions, records []*tier.HistoryRecord) error {
	if root.jsonOutput() {
		if records == nil {
			records = []*tier.HistoryRecord{}
		}
		return root.print(cmd, records)
	}
	table := &cli.Table{Headers: []string{"ID", "Distributor", "From", "To", "Rule", "Trigger", "Operator", "Reference", "Occurred At", "Snapshot"}}
	for _, h := range records {
		table.Append(
			h.ID,
			fmt.Sprint(h.DistributorID),
			tierName(h.PreviousTier),
			tierName(h.NewTier),
			fmt.Sprintf("%s #%d", h.RuleKind, h.RuleID),
			string(h.TriggerKind),
			formatOptionalString(h.Operator),
			formatOptionalString(h.TriggeringReference),
			h.OccurredAt.Format(time.RFC3339),
			upgrade.FormatSnapshotInline(h.Snapshot),
		)
	}
	return root.print(cmd, table)
}
