// Package upgrade implements the tier-upgrade decision engine.
//
// A Resolver decides whether a distributor qualifies for a higher tier:
//
//  1. one metric snapshot is built for the whole resolution
//  2. eligible direct rules are tried in priority order; the first whose
//     condition holds wins, and evaluation failures skip to the next rule
//  3. otherwise the regular rule for the current tier is tried; a failure
//     or a false condition means no match
//
// An Executor commits a match: the distributor's tier and a history record
// are written atomically, guarded by the distributor version. A lost race
// is reported as a *tier.TransitionError of kind TransitionConflict, after
// which callers re-resolve from scratch. Since an upgraded distributor no
// longer matches the rule that moved it, re-resolution is idempotent.
//
// Service ties both together for automatic triggers. ManualFlow provides
// the operator check-then-confirm path, which re-validates eligibility
// before executing and then marks the history record as manual.
package upgrade
