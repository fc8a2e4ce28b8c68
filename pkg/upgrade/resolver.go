package upgrade

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/ascent/pkg/expr"
	"mercator-hq/ascent/pkg/tier"
)

// State is a step of one resolution.
type State string

const (
	StateStart        State = "start"
	StateDirectCheck  State = "direct_check"
	StateDirectMatch  State = "direct_match"
	StateRegularCheck State = "regular_check"
	StateRegularMatch State = "regular_match"
	StateNoMatch      State = "no_match"
)

// Evaluator evaluates a rule condition against a snapshot.
type Evaluator interface {
	Evaluate(expression string, env expr.Env) (bool, error)
}

// Candidate is the rule selected by a resolution.
type Candidate struct {
	RuleKind   tier.RuleKind `json:"rule_kind"`
	RuleID     int64         `json:"rule_id"`
	TargetTier tier.Tier     `json:"target_tier"`
	Expression string        `json:"expression"`
	Priority   int           `json:"priority,omitempty"`
}

// RuleFailure records a rule whose condition could not be evaluated.
type RuleFailure struct {
	RuleKind tier.RuleKind `json:"rule_kind"`
	RuleID   int64         `json:"rule_id"`
	Error    string        `json:"error"`
}

// Resolution is the result of resolving one distributor.
type Resolution struct {
	Distributor tier.Distributor `json:"distributor"`
	Snapshot    tier.Snapshot    `json:"snapshot"`
	Candidate   *Candidate       `json:"candidate,omitempty"`
	Path        []State          `json:"path"`
	Failures    []RuleFailure    `json:"failures,omitempty"`

	// Reason explains a non-match.
	Reason string `json:"reason,omitempty"`
}

// Reasons reported on a non-matching resolution.
const (
	ReasonNoPath       = "no upgrade path is configured for the current tier"
	ReasonNotSatisfied = "upgrade conditions are not met"
)

// Matched reports whether a rule was selected.
func (r *Resolution) Matched() bool {
	return r != nil && r.Candidate != nil
}

// Final returns the terminal state.
func (r *Resolution) Final() State {
	if r == nil || len(r.Path) == 0 {
		return StateStart
	}
	return r.Path[len(r.Path)-1]
}

// Transition converts a matched resolution into a transition request.
func (r *Resolution) Transition(ref *string) tier.Transition {
	return tier.Transition{
		DistributorID:       r.Distributor.ID,
		ExpectedVersion:     r.Distributor.Version,
		PreviousTier:        r.Distributor.Tier,
		NewTier:             r.Candidate.TargetTier,
		RuleKind:            r.Candidate.RuleKind,
		RuleID:              r.Candidate.RuleID,
		Expression:          r.Candidate.Expression,
		Snapshot:            r.Snapshot,
		TriggeringReference: ref,
	}
}

// Resolver selects the upgrade rule a distributor currently satisfies.
type Resolver struct {
	rules     tier.RuleStore
	metrics   tier.MetricsProvider
	evaluator Evaluator
	recorder  Recorder
	logger    *slog.Logger
}

// NewResolver creates a resolver. A nil logger uses slog.Default().
func NewResolver(rules tier.RuleStore, metrics tier.MetricsProvider, evaluator Evaluator, recorder Recorder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		rules:     rules,
		metrics:   metrics,
		evaluator: evaluator,
		recorder:  recorderOrNop(recorder),
		logger:    logger.With("component", "upgrade.resolver"),
	}
}

// Resolve runs the two-phase rule selection for d. Rule evaluation
// failures never produce an error; only snapshot or rule lookups do.
func (r *Resolver) Resolve(ctx context.Context, d tier.Distributor) (*Resolution, error) {
	res := &Resolution{Distributor: d, Path: []State{StateStart}}

	snapshot, err := r.metrics.BuildSnapshot(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("build snapshot for distributor %d: %w", d.ID, err)
	}
	res.Snapshot = snapshot

	res.Path = append(res.Path, StateDirectCheck)
	direct, err := r.rules.EligibleDirectRulesFor(ctx, d.Tier)
	if err != nil {
		return nil, fmt.Errorf("load direct rules for tier %d: %w", d.Tier.ID, err)
	}
	tier.SortDirectRules(direct)

	for _, rule := range direct {
		if !rule.Enabled || !rule.EligibleFor(d.Tier) {
			continue
		}
		ok, err := r.evaluator.Evaluate(rule.Expression, snapshot)
		if err != nil {
			r.evaluationFailed(ctx, res, tier.RuleKindDirect, rule.ID, rule.Expression, err)
			continue
		}
		if ok {
			res.Candidate = &Candidate{
				RuleKind:   tier.RuleKindDirect,
				RuleID:     rule.ID,
				TargetTier: rule.TargetTier,
				Expression: rule.Expression,
				Priority:   rule.Priority,
			}
			res.Path = append(res.Path, StateDirectMatch)
			return res, nil
		}
	}

	res.Path = append(res.Path, StateRegularCheck)
	regular, err := r.rules.RegularRuleFor(ctx, d.Tier.ID)
	if err != nil {
		return nil, fmt.Errorf("load regular rule for tier %d: %w", d.Tier.ID, err)
	}
	if regular == nil || !regular.Enabled {
		res.Reason = ReasonNotSatisfied
		if len(direct) == 0 {
			res.Reason = ReasonNoPath
		}
		res.Path = append(res.Path, StateNoMatch)
		return res, nil
	}

	ok, err := r.evaluator.Evaluate(regular.Expression, snapshot)
	if err != nil {
		r.evaluationFailed(ctx, res, tier.RuleKindRegular, regular.ID, regular.Expression, err)
		ok = false
	}
	if !ok {
		res.Reason = ReasonNotSatisfied
		res.Path = append(res.Path, StateNoMatch)
		return res, nil
	}

	res.Candidate = &Candidate{
		RuleKind:   tier.RuleKindRegular,
		RuleID:     regular.ID,
		TargetTier: regular.TargetTier,
		Expression: regular.Expression,
	}
	res.Path = append(res.Path, StateRegularMatch)
	return res, nil
}

func (r *Resolver) evaluationFailed(ctx context.Context, res *Resolution, kind tier.RuleKind, ruleID int64, expression string, err error) {
	res.Failures = append(res.Failures, RuleFailure{RuleKind: kind, RuleID: ruleID, Error: err.Error()})
	r.recorder.RecordEvaluationFailure(string(kind))
	r.logger.WarnContext(ctx, "rule evaluation failed, treating as not satisfied",
		"distributor_id", res.Distributor.ID,
		"rule_kind", kind,
		"rule_id", ruleID,
		"expression", expression,
		"snapshot", res.Snapshot.Values(),
		"error", err,
	)
}
