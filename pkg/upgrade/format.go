package upgrade

import (
	"fmt"
	"strconv"
	"strings"

	"mercator-hq/ascent/pkg/expr"
	"mercator-hq/ascent/pkg/tier"
)

// FormatSummary renders a one-line, operator-facing description of res.
func FormatSummary(res *Resolution) string {
	d := res.Distributor
	if res.Matched() {
		return fmt.Sprintf("Distributor #%d is at %s and qualifies for %s (%s rule #%d)",
			d.ID, tierLabel(d.Tier), tierLabel(res.Candidate.TargetTier), res.Candidate.RuleKind, res.Candidate.RuleID)
	}
	reason := res.Reason
	if reason == "" {
		reason = ReasonNotSatisfied
	}
	return fmt.Sprintf("Distributor #%d is at %s: %s", d.ID, tierLabel(d.Tier), reason)
}

// FormatSnapshot renders snapshot values as label/value pairs, whitelisted
// variables first in their canonical order, values with two decimals.
func FormatSnapshot(s tier.Snapshot) [][2]string {
	seen := make(map[string]bool)
	var out [][2]string
	for _, name := range expr.Variables {
		v, ok := s.Lookup(name)
		if !ok {
			continue
		}
		seen[name] = true
		out = append(out, [2]string{name, formatValue(v)})
	}
	for _, name := range s.Names() {
		if !seen[name] {
			out = append(out, [2]string{name, formatValue(s.Get(name))})
		}
	}
	return out
}

// FormatSnapshotInline renders the snapshot as "name=value, ...".
func FormatSnapshotInline(s tier.Snapshot) string {
	pairs := FormatSnapshot(s)
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p[0] + "=" + p[1]
	}
	return strings.Join(parts, ", ")
}

func tierLabel(t tier.Tier) string {
	if t.Name == "" {
		return fmt.Sprintf("tier %d", t.ID)
	}
	return fmt.Sprintf("%s (rank %d)", t.Name, t.Rank)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
