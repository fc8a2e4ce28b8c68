package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/ascent/pkg/cli"
	"mercator-hq/ascent/pkg/upgrade"
)

func newCheckCmd(root *rootOptions) *cobra.Command {
	var (
		execute   bool
		reference string
	)
	cmd := &cobra.Command{
		Use:   "check <distributor-id>",
		Short: "Resolve one distributor against the upgrade rules",
		Long: `Resolve a distributor and show which rule, if any, it qualifies for
together with the metric snapshot the decision was based on.

Nothing is written unless --execute is set, in which case a match is applied
as an automatic upgrade.

Examples:
  ascent check 42
  ascent check 42 --execute --reference withdrawal-981`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return &cli.ExitError{Code: 2, Message: fmt.Sprintf("invalid distributor id %q", args[0])}
			}
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				if !execute {
					res, err := a.service.CheckEligibility(ctx, id)
					if err != nil {
						return checkError(id, err)
					}
					return printResolution(cmd, root, res)
				}

				var opts []upgrade.UpgradeOption
				if reference != "" {
					opts = append(opts, upgrade.WithTriggeringReference(reference))
				}
				result, err := a.service.CheckAndUpgrade(ctx, id, opts...)
				if err != nil {
					return checkError(id, err)
				}
				if root.jsonOutput() {
					return root.print(cmd, result)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, upgrade.FormatSummary(result.Resolution))
				if result.Outcome == upgrade.OutcomeUpgraded {
					fmt.Fprintf(w, "✓ Upgraded: %s -> %s (history %s)\n",
						result.Record.PreviousTier.Name, result.Record.NewTier.Name, result.Record.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "apply a matching upgrade")
	cmd.Flags().StringVar(&reference, "reference", "", "triggering reference stored in the audit record")
	return cmd
}

func checkError(id int64, err error) error {
	if upgrade.IsNotFound(err) {
		return &cli.ExitError{Code: 1, Message: fmt.Sprintf("distributor %d not found", id)}
	}
	return cli.NewCommandError("check", err)
}

func printResolution(cmd *cobra.Command, root *rootOptions, res *upgrade.Resolution) error {
	if root.jsonOutput() {
		return root.print(cmd, res)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, upgrade.FormatSummary(res))
	if res.Matched() {
		fmt.Fprintf(w, "Condition: %s\n", res.Candidate.Expression)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "Skipped %s rule %d: %s\n", f.RuleKind, f.RuleID, f.Error)
	}

	table := &cli.Table{Headers: []string{"Metric", "Value"}}
	for _, pair := range upgrade.FormatSnapshot(res.Snapshot) {
		table.Append(pair[0], pair[1])
	}
	fmt.Fprintln(w)
	return root.print(cmd, table)
}
