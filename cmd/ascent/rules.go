package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ascent/pkg/cli"
	"mercator-hq/ascent/pkg/rules"
	"mercator-hq/ascent/pkg/tier"
)

func newRulesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage tiers and upgrade rules",
	}
	cmd.AddCommand(newRulesValidateCmd(root), newRulesApplyCmd(root))
	return cmd
}

// ruleCheck is the validation outcome of one rule.
type ruleCheck struct {
	kind    tier.RuleKind
	id      int64
	target  string
	enabled bool
	err     error
}

func newRulesValidateCmd(root *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored rules or a rules file",
		Long: `Validate every regular and direct rule and print one row per rule.

Without --file the rules currently in storage are checked. With --file the
file is checked as a whole, including tier references and the
one-enabled-rule-per-tier constraint, without touching storage.

The command exits with status 1 if any rule is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				return validateRulesFile(cmd, root, file)
			}
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				checks, err := checkStoredRules(ctx, a)
				if err != nil {
					return cli.NewCommandError("rules validate", err)
				}
				return reportRuleChecks(cmd, root, checks, nil)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "rules file to validate instead of storage")
	return cmd
}

func validateRulesFile(cmd *cobra.Command, root *rootOptions, path string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	f, err := rules.Load(path)
	if err != nil {
		return cli.NewConfigError(path, err.Error())
	}
	v := newEvaluator(cfg)

	regular, direct, resolveErr := f.Resolve()
	checks := make([]ruleCheck, 0, len(regular)+len(direct))
	for _, r := range regular {
		checks = append(checks, ruleCheck{tier.RuleKindRegular, r.ID, tierName(r.TargetTier), r.Enabled, r.Validate(v)})
	}
	for _, r := range direct {
		checks = append(checks, ruleCheck{tier.RuleKindDirect, r.ID, tierName(r.TargetTier), r.Enabled, r.Validate(v)})
	}

	fileErr := f.Validate(v)
	if fileErr == nil {
		fileErr = resolveErr
	}
	return reportRuleChecks(cmd, root, checks, fileErr)
}

func checkStoredRules(ctx context.Context, a *app) ([]ruleCheck, error) {
	regular, err := a.store.ListRegularRules(ctx)
	if err != nil {
		return nil, err
	}
	direct, err := a.store.ListDirectRules(ctx)
	if err != nil {
		return nil, err
	}
	checks := make([]ruleCheck, 0, len(regular)+len(direct))
	for _, r := range regular {
		checks = append(checks, ruleCheck{tier.RuleKindRegular, r.ID, tierName(r.TargetTier), r.Enabled, r.Validate(a.evaluator)})
	}
	for _, r := range direct {
		checks = append(checks, ruleCheck{tier.RuleKindDirect, r.ID, tierName(r.TargetTier), r.Enabled, r.Validate(a.evaluator)})
	}
	return checks, nil
}

// reportRuleChecks prints the checks and turns any failure into exit
// status 1. fileErr carries problems that belong to no single rule.
func reportRuleChecks(cmd *cobra.Command, root *rootOptions, checks []ruleCheck, fileErr error) error {
	table := &cli.Table{Headers: []string{"Kind", "ID", "Target", "Enabled", "Status", "Error"}}
	invalid := 0
	for _, c := range checks {
		status, msg := "ok", ""
		if c.err != nil {
			status, msg = "invalid", c.err.Error()
			invalid++
		}
		table.Append(string(c.kind), fmt.Sprint(c.id), c.target, fmt.Sprint(c.enabled), status, msg)
	}
	if err := root.print(cmd, table); err != nil {
		return err
	}

	switch {
	case invalid > 0:
		return &cli.ExitError{Code: 1, Message: fmt.Sprintf("%d of %d rules are invalid", invalid, len(checks))}
	case fileErr != nil:
		return &cli.ExitError{Code: 1, Message: fileErr.Error()}
	}
	if !root.jsonOutput() {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ %d rules valid\n", len(checks))
	}
	return nil
}

func newRulesApplyCmd(root *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Write tiers and rules from a file to storage",
		Long: `Validate a rules file and write its tiers and rules to storage.

Rules are matched by ID, so applying the same file twice is a no-op. Rules
in storage that the file does not mention are left unchanged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				loader := rules.NewLoader(file, a.store, a.evaluator, a.collector, a.logger)
				summary, err := loader.Reload(ctx)
				if err != nil {
					return cli.NewCommandError("rules apply", err)
				}
				if root.jsonOutput() {
					return root.print(cmd, summary)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Applied %d tiers, %d regular rules, %d direct rules\n",
					summary.Tiers, summary.RegularRules, summary.DirectRules)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "rules file to apply")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func tierName(t tier.Tier) string {
	if t.Name == "" {
		return fmt.Sprint(t.ID)
	}
	return t.Name
}
