package upgrade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mercator-hq/ascent/pkg/expr"
	"mercator-hq/ascent/pkg/metricsource"
	"mercator-hq/ascent/pkg/store"
	"mercator-hq/ascent/pkg/tier"
)

var (
	rank1 = tier.Tier{ID: 1, Rank: 1, Name: "Member"}
	rank2 = tier.Tier{ID: 2, Rank: 2, Name: "Agent"}
	rank3 = tier.Tier{ID: 3, Rank: 3, Name: "Partner"}
)

const actor int64 = 100

type countingRecorder struct {
	mu          sync.Mutex
	resolutions map[string]int
	failures    map[string]int
	transitions map[string]int
	errors      map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		resolutions: make(map[string]int),
		failures:    make(map[string]int),
		transitions: make(map[string]int),
		errors:      make(map[string]int),
	}
}

func (c *countingRecorder) RecordResolution(outcome string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolutions[outcome]++
}

func (c *countingRecorder) RecordEvaluationFailure(ruleKind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ruleKind]++
}

func (c *countingRecorder) RecordTransition(ruleKind, triggerKind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions[ruleKind+"/"+triggerKind]++
}

func (c *countingRecorder) RecordTransitionError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[kind]++
}

type fixture struct {
	store    *store.Memory
	recorder *countingRecorder
	resolver *Resolver
	executor *Executor
	service  *Service
	nextID   int
}

// newFixture seeds three tiers and one distributor at rank 1 with all
// metrics at zero.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	ev := expr.NewEvaluator(expr.DefaultConfig())

	f := &fixture{store: store.NewMemory(ev), recorder: newCountingRecorder()}
	for _, tr := range []tier.Tier{rank1, rank2, rank3} {
		if err := f.store.SaveTier(ctx, tr); err != nil {
			t.Fatalf("SaveTier failed: %v", err)
		}
	}
	if err := f.store.CreateDistributor(ctx, actor, rank1.ID); err != nil {
		t.Fatalf("CreateDistributor failed: %v", err)
	}

	f.resolver = NewResolver(f.store, metricsource.NewProvider(f.store), ev, f.recorder, nil)
	f.executor = NewExecutor(f.store, f.store, f.recorder, nil, WithIDGenerator(func() string {
		f.nextID++
		return fmt.Sprintf("h-%d", f.nextID)
	}))
	f.service = NewService(f.store, f.resolver, f.executor, f.recorder, nil)
	return f
}

func (f *fixture) metrics(t *testing.T, values map[string]float64) {
	t.Helper()
	if err := f.store.PutMetrics(context.Background(), actor, values); err != nil {
		t.Fatalf("PutMetrics failed: %v", err)
	}
}

func (f *fixture) regular(t *testing.T, from, to tier.Tier, expression string) int64 {
	t.Helper()
	id, err := f.store.SaveRegularRule(context.Background(), tier.RegularRule{
		SourceTier: from, TargetTier: to, Expression: expression, Enabled: true,
	})
	if err != nil {
		t.Fatalf("SaveRegularRule failed: %v", err)
	}
	return id
}

func (f *fixture) direct(t *testing.T, to tier.Tier, priority int, expression string) int64 {
	t.Helper()
	id, err := f.store.SaveDirectRule(context.Background(), tier.DirectRule{
		TargetTier: to, Priority: priority, Expression: expression, Enabled: true,
	})
	if err != nil {
		t.Fatalf("SaveDirectRule failed: %v", err)
	}
	return id
}

func (f *fixture) distributor(t *testing.T) *tier.Distributor {
	t.Helper()
	d, err := f.store.GetDistributor(context.Background(), actor)
	if err != nil {
		t.Fatalf("GetDistributor failed: %v", err)
	}
	return d
}

func (f *fixture) historyCount(t *testing.T) int {
	t.Helper()
	recs, err := f.store.HistoryByDistributor(context.Background(), actor, 100)
	if err != nil {
		t.Fatalf("HistoryByDistributor failed: %v", err)
	}
	return len(recs)
}

func assertPath(t *testing.T, res *Resolution, want ...State) {
	t.Helper()
	if len(res.Path) != len(want) {
		t.Fatalf("path = %v, want %v", res.Path, want)
	}
	for i := range want {
		if res.Path[i] != want[i] {
			t.Fatalf("path = %v, want %v", res.Path, want)
		}
	}
}

func TestResolve_DirectPrecedence(t *testing.T) {
	f := newFixture(t)
	f.direct(t, rank3, 200, "inviteeCount >= 20")
	toRank2 := f.direct(t, rank2, 150, "inviteeCount >= 5")
	f.regular(t, rank1, rank2, "inviteeCount >= 1")
	f.metrics(t, map[string]float64{expr.VarInviteeCount: 10})

	res, err := f.service.CheckEligibility(context.Background(), actor)
	if err != nil {
		t.Fatalf("CheckEligibility failed: %v", err)
	}
	if !res.Matched() {
		t.Fatalf("no match, reason %q", res.Reason)
	}
	if res.Candidate.RuleKind != tier.RuleKindDirect || res.Candidate.RuleID != toRank2 {
		t.Errorf("candidate = %+v, want direct rule %d", res.Candidate, toRank2)
	}
	if res.Candidate.TargetTier != rank2 {
		t.Errorf("target = %v, want %v", res.Candidate.TargetTier, rank2)
	}
	assertPath(t, res, StateStart, StateDirectCheck, StateDirectMatch)
	if res.Final() != StateDirectMatch {
		t.Errorf("Final() = %s", res.Final())
	}
}

func TestResolve_DirectSkipsTiers(t *testing.T) {
	f := newFixture(t)
	toRank3 := f.direct(t, rank3, 10, "withdrawnAmount >= 5000")
	f.regular(t, rank1, rank2, "withdrawnAmount >= 100")
	f.metrics(t, map[string]float64{expr.VarWithdrawnAmount: 5000})

	res, err := f.service.CheckEligibility(context.Background(), actor)
	if err != nil {
		t.Fatalf("CheckEligibility failed: %v", err)
	}
	if !res.Matched() || res.Candidate.RuleID != toRank3 || res.Candidate.TargetTier != rank3 {
		t.Errorf("candidate = %+v, want direct rule %d to rank 3", res.Candidate, toRank3)
	}
}

func TestResolve_RegularFallback(t *testing.T) {
	f := newFixture(t)
	f.direct(t, rank3, 10, "withdrawnAmount >= 5000")
	reg := f.regular(t, rank1, rank2, "withdrawnAmount >= 5000 or orderCount > 2")
	f.metrics(t, map[string]float64{expr.VarWithdrawnAmount: 4999.99, expr.VarOrderCount: 3})

	res, err := f.service.CheckEligibility(context.Background(), actor)
	if err != nil {
		t.Fatalf("CheckEligibility failed: %v", err)
	}
	if !res.Matched() || res.Candidate.RuleKind != tier.RuleKindRegular || res.Candidate.RuleID != reg {
		t.Fatalf("candidate = %+v, want regular rule %d", res.Candidate, reg)
	}
	assertPath(t, res, StateStart, StateDirectCheck, StateRegularCheck, StateRegularMatch)
}

func TestResolve_NoMatch(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, f *fixture)
		wantReason string
	}{
		{
			name:       "no rules configured",
			setup:      func(t *testing.T, f *fixture) {},
			wantReason: ReasonNoPath,
		},
		{
			name: "regular rule not satisfied",
			setup: func(t *testing.T, f *fixture) {
				f.regular(t, rank1, rank2, "withdrawnAmount >= 5000")
			},
			wantReason: ReasonNotSatisfied,
		},
		{
			name: "regular rule fails at runtime",
			setup: func(t *testing.T, f *fixture) {
				f.regular(t, rank1, rank2, "withdrawnAmount / orderCount > 1")
			},
			wantReason: ReasonNotSatisfied,
		},
		{
			name: "direct rules only, none satisfied",
			setup: func(t *testing.T, f *fixture) {
				f.direct(t, rank3, 1, "inviteeCount >= 20")
			},
			wantReason: ReasonNotSatisfied,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			res, err := f.service.CheckEligibility(context.Background(), actor)
			if err != nil {
				t.Fatalf("CheckEligibility failed: %v", err)
			}
			if res.Matched() {
				t.Fatalf("unexpected candidate %+v", res.Candidate)
			}
			if res.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", res.Reason, tt.wantReason)
			}
			if res.Final() != StateNoMatch {
				t.Errorf("Final() = %s, want %s", res.Final(), StateNoMatch)
			}
		})
	}
}

func TestResolve_RuntimeFailureContinues(t *testing.T) {
	f := newFixture(t)
	broken := f.direct(t, rank3, 200, "withdrawnAmount / 0 > 1")
	working := f.direct(t, rank2, 100, "inviteeCount >= 0")

	res, err := f.service.CheckEligibility(context.Background(), actor)
	if err != nil {
		t.Fatalf("CheckEligibility failed: %v", err)
	}
	if !res.Matched() || res.Candidate.RuleID != working {
		t.Fatalf("candidate = %+v, want rule %d", res.Candidate, working)
	}
	if len(res.Failures) != 1 || res.Failures[0].RuleID != broken {
		t.Errorf("Failures = %+v, want one for rule %d", res.Failures, broken)
	}
	if f.recorder.failures["direct"] != 1 {
		t.Errorf("evaluation failures recorded = %v", f.recorder.failures)
	}
}

// stubRules returns fixed rules in the given order.
type stubRules struct {
	direct  []tier.DirectRule
	regular *tier.RegularRule
}

func (s stubRules) RegularRuleFor(context.Context, int64) (*tier.RegularRule, error) {
	return s.regular, nil
}

func (s stubRules) EligibleDirectRulesFor(context.Context, tier.Tier) ([]tier.DirectRule, error) {
	out := make([]tier.DirectRule, len(s.direct))
	copy(out, s.direct)
	return out, nil
}

func TestResolve_DeterministicTieBreak(t *testing.T) {
	otherRank3 := tier.Tier{ID: 30, Rank: 3, Name: "Partner B"}
	rules := stubRules{direct: []tier.DirectRule{
		{ID: 9, TargetTier: rank3, Expression: "inviteeCount >= 0", Priority: 50, Enabled: true},
		{ID: 5, TargetTier: rank2, Expression: "inviteeCount >= 0", Priority: 50, Enabled: true},
		{ID: 4, TargetTier: otherRank3, Expression: "inviteeCount >= 0", Priority: 50, Enabled: true},
		{ID: 1, TargetTier: rank2, Expression: "inviteeCount >= 0", Priority: 10, Enabled: true},
		{ID: 2, TargetTier: rank3, Expression: "inviteeCount >= 0", Priority: 999},
	}}
	r := NewResolver(rules, metricsource.NewProvider(metricsource.Static{}), expr.NewEvaluator(expr.DefaultConfig()), nil, nil)
	d := tier.Distributor{ID: actor, Tier: rank1, Version: 1}

	for i := 0; i < 20; i++ {
		res, err := r.Resolve(context.Background(), d)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if !res.Matched() || res.Candidate.RuleID != 4 {
			t.Fatalf("run %d selected %+v, want rule 4", i, res.Candidate)
		}
	}
}

func TestResolve_IgnoresIneligibleFromStore(t *testing.T) {
	minRank := 2
	rules := stubRules{direct: []tier.DirectRule{
		{ID: 1, TargetTier: rank3, Expression: "inviteeCount >= 0", Priority: 10, Enabled: true, MinTierRequirement: &minRank},
		{ID: 2, TargetTier: rank1, Expression: "inviteeCount >= 0", Priority: 5, Enabled: true},
	}}
	r := NewResolver(rules, metricsource.NewProvider(metricsource.Static{}), expr.NewEvaluator(expr.DefaultConfig()), nil, nil)

	res, err := r.Resolve(context.Background(), tier.Distributor{ID: actor, Tier: rank1, Version: 1})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Matched() {
		t.Errorf("ineligible rule selected: %+v", res.Candidate)
	}
}

// countingProvider counts snapshot builds.
type countingProvider struct {
	calls int
}

func (c *countingProvider) BuildSnapshot(context.Context, int64) (tier.Snapshot, error) {
	c.calls++
	return tier.NewSnapshot(map[string]float64{expr.VarInviteeCount: 1}, time.Now()), nil
}

func TestResolve_OneSnapshotPerResolution(t *testing.T) {
	rules := stubRules{
		direct: []tier.DirectRule{
			{ID: 1, TargetTier: rank3, Expression: "inviteeCount > 5", Priority: 10, Enabled: true},
			{ID: 2, TargetTier: rank2, Expression: "inviteeCount > 5", Priority: 5, Enabled: true},
		},
		regular: &tier.RegularRule{ID: 3, SourceTier: rank1, TargetTier: rank2, Expression: "inviteeCount > 5", Enabled: true},
	}
	p := &countingProvider{}
	r := NewResolver(rules, p, expr.NewEvaluator(expr.DefaultConfig()), nil, nil)
	if _, err := r.Resolve(context.Background(), tier.Distributor{ID: actor, Tier: rank1}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("BuildSnapshot called %d times, want 1", p.calls)
	}
}

func TestCheckAndUpgrade_IdempotentUnderRetry(t *testing.T) {
	f := newFixture(t)
	f.regular(t, rank1, rank2, "withdrawnAmount >= 5000")
	f.metrics(t, map[string]float64{expr.VarWithdrawnAmount: 5000})
	ctx := context.Background()

	first, err := f.service.CheckAndUpgrade(ctx, actor, WithTriggeringReference("withdrawal-1"))
	if err != nil {
		t.Fatalf("first CheckAndUpgrade failed: %v", err)
	}
	if first.Outcome != OutcomeUpgraded || first.Record == nil {
		t.Fatalf("first outcome = %s", first.Outcome)
	}
	rec := first.Record
	if rec.TriggerKind != tier.TriggerAuto || rec.Operator != nil {
		t.Errorf("record trigger = %s, operator = %v", rec.TriggerKind, rec.Operator)
	}
	if rec.TriggeringReference == nil || *rec.TriggeringReference != "withdrawal-1" {
		t.Errorf("TriggeringReference = %v", rec.TriggeringReference)
	}
	if rec.PreviousTier != rank1 || rec.NewTier != rank2 || rec.SatisfiedExpression != "withdrawnAmount >= 5000" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Snapshot.Get(expr.VarWithdrawnAmount) != 5000 {
		t.Errorf("record snapshot = %v", rec.Snapshot.Values())
	}

	second, err := f.service.CheckAndUpgrade(ctx, actor, WithTriggeringReference("withdrawal-1"))
	if err != nil {
		t.Fatalf("second CheckAndUpgrade failed: %v", err)
	}
	if second.Outcome != OutcomeNoMatch {
		t.Errorf("second outcome = %s, want no_match", second.Outcome)
	}
	if n := f.historyCount(t); n != 1 {
		t.Errorf("history count = %d, want 1", n)
	}
	if d := f.distributor(t); d.Tier != rank2 || d.Version != 2 {
		t.Errorf("distributor = %+v", d)
	}
	if f.recorder.resolutions["upgraded"] != 1 || f.recorder.resolutions["no_match"] != 1 {
		t.Errorf("resolutions = %v", f.recorder.resolutions)
	}
	if f.recorder.transitions["regular/auto"] != 1 {
		t.Errorf("transitions = %v", f.recorder.transitions)
	}
}

func TestCheckAndUpgrade_ConflictThenReresolve(t *testing.T) {
	f := newFixture(t)
	f.regular(t, rank1, rank2, "withdrawnAmount >= 5000")
	f.metrics(t, map[string]float64{expr.VarWithdrawnAmount: 5000})
	ctx := context.Background()

	res, err := f.service.CheckEligibility(ctx, actor)
	if err != nil || !res.Matched() {
		t.Fatalf("CheckEligibility = %+v, %v", res, err)
	}

	// A concurrent writer wins the race.
	if _, err := f.executor.Execute(ctx, res.Transition(nil)); err != nil {
		t.Fatalf("winning Execute failed: %v", err)
	}

	_, err = f.executor.Execute(ctx, res.Transition(nil))
	var terr *tier.TransitionError
	if !errors.As(err, &terr) || terr.Kind != tier.TransitionConflict {
		t.Fatalf("losing Execute error = %v, want conflict TransitionError", err)
	}
	if !tier.IsConflict(err) {
		t.Error("IsConflict = false")
	}
	if n := f.historyCount(t); n != 1 {
		t.Errorf("history count = %d, want 1", n)
	}
	if f.recorder.errors[string(tier.TransitionConflict)] != 1 {
		t.Errorf("transition errors = %v", f.recorder.errors)
	}

	// Re-resolving from scratch finds nothing further to do.
	again, err := f.service.CheckAndUpgrade(ctx, actor)
	if err != nil || again.Outcome != OutcomeNoMatch {
		t.Errorf("re-resolve = %v, %v; want no_match", again.Outcome, err)
	}
}

// racingStore lets a competing writer commit just before the first
// ApplyTransition call.
type racingStore struct {
	*store.Memory
	race func()
}

func (r *racingStore) ApplyTransition(ctx context.Context, t tier.Transition, record *tier.HistoryRecord) error {
	if r.race != nil {
		race := r.race
		r.race = nil
		race()
	}
	return r.Memory.ApplyTransition(ctx, t, record)
}

func TestCheckAndUpgrade_ConflictOutcome(t *testing.T) {
	f := newFixture(t)
	f.regular(t, rank1, rank2, "withdrawnAmount >= 5000")
	f.metrics(t, map[string]float64{expr.VarWithdrawnAmount: 5000})
	ctx := context.Background()

	rs := &racingStore{Memory: f.store}
	rs.race = func() {
		d := f.distributor(t)
		err := f.store.ApplyTransition(ctx, tier.Transition{
			DistributorID: actor, ExpectedVersion: d.Version, PreviousTier: d.Tier, NewTier: rank2,
		}, &tier.HistoryRecord{ID: "competitor", DistributorID: actor, PreviousTier: rank1, NewTier: rank2, TriggerKind: tier.TriggerAuto})
		if err != nil {
			t.Errorf("competing transition failed: %v", err)
		}
	}
	exec := NewExecutor(rs, rs, f.recorder, nil)
	svc := NewService(f.store, f.resolver, exec, f.recorder, nil)

	result, err := svc.CheckAndUpgrade(ctx, actor)
	if result.Outcome != OutcomeConflict || !tier.IsConflict(err) {
		t.Fatalf("CheckAndUpgrade = %s, %v; want conflict", result.Outcome, err)
	}
	if result.Record != nil {
		t.Error("conflict result carries a record")
	}
}

func TestCheckAndUpgrade_StorageFailureIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.regular(t, rank1, rank2, "withdrawnAmount >= 5000")
	f.regular(t, rank2, rank3, "withdrawnAmount >= 5000")
	f.metrics(t, map[string]float64{expr.VarWithdrawnAmount: 5000})
	ctx := context.Background()

	if _, err := f.service.CheckAndUpgrade(ctx, actor); err != nil {
		t.Fatalf("first upgrade failed: %v", err)
	}
	before := f.distributor(t)
	beforeHistory := f.historyCount(t)

	// Reusing the history ID makes the history insert fail inside the unit.
	f.nextID = 0
	result, err := f.service.CheckAndUpgrade(ctx, actor)
	if err == nil {
		t.Fatal("expected storage failure")
	}
	var terr *tier.TransitionError
	if !errors.As(err, &terr) || terr.Kind != tier.TransitionStorage {
		t.Errorf("error = %v, want storage TransitionError", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want failed", result.Outcome)
	}

	after := f.distributor(t)
	if after.Tier != before.Tier || after.Version != before.Version {
		t.Errorf("distributor changed: before %+v, after %+v", before, after)
	}
	if n := f.historyCount(t); n != beforeHistory {
		t.Errorf("history count = %d, want %d", n, beforeHistory)
	}
}

func TestCheckAndUpgrade_UnknownDistributor(t *testing.T) {
	f := newFixture(t)
	result, err := f.service.CheckAndUpgrade(context.Background(), 404)
	if !IsNotFound(err) {
		t.Errorf("error = %v, want not found", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s", result.Outcome)
	}
}

func TestExecute_RejectsSameTier(t *testing.T) {
	f := newFixture(t)
	d := f.distributor(t)
	_, err := f.executor.Execute(context.Background(), tier.Transition{
		DistributorID: actor, ExpectedVersion: d.Version, PreviousTier: rank1, NewTier: rank1,
	})
	if err == nil {
		t.Fatal("same-tier transition accepted")
	}
	if n := f.historyCount(t); n != 0 {
		t.Errorf("history count = %d", n)
	}
}

func TestUpgradeUntilStable(t *testing.T) {
	f := newFixture(t)
	f.regular(t, rank1, rank2, "orderCount >= 1")
	f.regular(t, rank2, rank3, "orderCount >= 1")
	f.metrics(t, map[string]float64{expr.VarOrderCount: 1})

	records, err := f.service.UpgradeUntilStable(context.Background(), actor, 10)
	if err != nil {
		t.Fatalf("UpgradeUntilStable failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].NewTier != rank2 || records[1].NewTier != rank3 {
		t.Errorf("path = %v -> %v", records[0].NewTier, records[1].NewTier)
	}
	if d := f.distributor(t); d.Tier != rank3 {
		t.Errorf("final tier = %v", d.Tier)
	}

	capped := newFixture(t)
	capped.regular(t, rank1, rank2, "orderCount >= 0")
	capped.regular(t, rank2, rank3, "orderCount >= 0")
	records, err = capped.service.UpgradeUntilStable(context.Background(), actor, 1)
	if err != nil || len(records) != 1 {
		t.Errorf("capped UpgradeUntilStable = %d records, %v", len(records), err)
	}
}

func TestReclassify(t *testing.T) {
	f := newFixture(t)
	f.regular(t, rank1, rank2, "orderCount >= 0")
	ctx := context.Background()

	result, err := f.service.CheckAndUpgrade(ctx, actor)
	if err != nil {
		t.Fatalf("CheckAndUpgrade failed: %v", err)
	}
	rec, err := f.service.Reclassify(ctx, result.Record.ID, "ops-7")
	if err != nil {
		t.Fatalf("Reclassify failed: %v", err)
	}
	if rec.TriggerKind != tier.TriggerManual || rec.Operator == nil || *rec.Operator != "ops-7" {
		t.Errorf("reclassified record = %+v", rec)
	}
	if d := f.distributor(t); d.Version != 2 {
		t.Errorf("Reclassify touched the distributor: %+v", d)
	}
	if _, err := f.service.Reclassify(ctx, result.Record.ID, "  "); err == nil {
		t.Error("blank operator accepted")
	}
	if _, err := f.service.Reclassify(ctx, "missing", "ops-7"); !errors.Is(err, tier.ErrNotFound) {
		t.Errorf("missing record error = %v", err)
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	f.regular(t, rank1, rank2, "orderCount >= 0")
	res, err := f.service.CheckEligibility(context.Background(), actor)
	if err != nil {
		t.Fatalf("CheckEligibility failed: %v", err)
	}
	want := "distributor 100: Member -> Agent (regular rule 1)"
	if got := Preview(res); got != want {
		t.Errorf("Preview = %q, want %q", got, want)
	}
}
