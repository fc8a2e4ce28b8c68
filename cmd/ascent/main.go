// Ascent decides and executes distributor tier upgrades.
//
// It resolves each distributor against regular (one step) and direct
// (tier skipping) upgrade rules, writes the tier change and its audit
// record atomically, and exposes manual check-then-confirm upgrades to
// operators.
//
// Usage:
//
//	# Start the engine: admin API, trigger consumer, scheduled sweep
//	ascent run --config ascent.yaml
//
//	# Seed tiers and rules, then validate what is stored
//	ascent rules apply --file rules.yaml
//	ascent rules validate
//
//	# Dry-run or execute one distributor
//	ascent check 42
//	ascent check 42 --execute
//
//	# Place every distributor on its correct tier
//	ascent init-levels --dry-run
//	ascent init-levels --batch-size 500
package main

import (
	"fmt"
	"os"

	"mercator-hq/ascent/pkg/cli"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
