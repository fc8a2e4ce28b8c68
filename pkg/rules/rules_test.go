package rules

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/ascent/pkg/expr"
	"mercator-hq/ascent/pkg/store"
)

const sample = `
tiers:
  - {id: 1, rank: 1, name: Member}
  - {id: 2, rank: 2, name: Agent}
  - {id: 3, rank: 3, name: Partner}
regular_rules:
  - id: 1
    source_tier: 1
    target_tier: 2
    expression: "withdrawnAmount >= 1000 && inviteeCount >= 5"
  - id: 2
    source_tier: 2
    target_tier: 3
    expression: "orderCount >= 100"
    enabled: false
direct_rules:
  - id: 10
    target_tier: 3
    priority: 100
    min_tier_requirement: 1
    expression: "settledCommissionAmount >= 50000"
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEvaluator() *expr.Evaluator {
	return expr.NewEvaluator(expr.DefaultConfig())
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.Tiers) != 3 || len(f.RegularRules) != 2 || len(f.DirectRules) != 1 {
		t.Fatalf("unexpected file %+v", f)
	}
	if !enabled(f.RegularRules[0].Enabled) || enabled(f.RegularRules[1].Enabled) {
		t.Error("expected enabled to default to true and honor false")
	}
	if err := f.Validate(newEvaluator()); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse([]byte("tiers: [")); err == nil {
		t.Error("expected syntax error")
	}
	if _, err := Parse([]byte("levels: []")); err == nil {
		t.Error("expected unknown field error")
	}
	f, err := Parse(nil)
	if err != nil || len(f.Tiers) != 0 {
		t.Errorf("expected empty file, got %+v, %v", f, err)
	}
}

func TestValidate(t *testing.T) {
	tiers := "tiers:\n  - {id: 1, rank: 1, name: A}\n  - {id: 2, rank: 2, name: B}\n"
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "duplicate rank",
			doc:     "tiers:\n  - {id: 1, rank: 1, name: A}\n  - {id: 2, rank: 1, name: B}\n",
			wantErr: "rank 1 already used",
		},
		{
			name:    "unknown tier",
			doc:     tiers + "regular_rules:\n  - {id: 1, source_tier: 1, target_tier: 9, expression: \"orderCount > 1\"}\n",
			wantErr: "unknown tier 9",
		},
		{
			name:    "missing rule id",
			doc:     tiers + "regular_rules:\n  - {source_tier: 1, target_tier: 2, expression: \"orderCount > 1\"}\n",
			wantErr: "id must be positive",
		},
		{
			name:    "downgrade",
			doc:     tiers + "regular_rules:\n  - {id: 1, source_tier: 2, target_tier: 1, expression: \"orderCount > 1\"}\n",
			wantErr: "must exceed source rank",
		},
		{
			name:    "unknown variable",
			doc:     tiers + "direct_rules:\n  - {id: 1, target_tier: 2, expression: \"balance > 1\"}\n",
			wantErr: "expression",
		},
		{
			name: "two enabled for one tier",
			doc: tiers + "direct_rules:\n" +
				"  - {id: 1, target_tier: 2, expression: \"orderCount > 1\"}\n" +
				"  - {id: 2, target_tier: 2, expression: \"orderCount > 2\"}\n",
			wantErr: "both enabled",
		},
		{
			name:    "disabled draft may be invalid",
			doc:     tiers + "direct_rules:\n  - {id: 1, target_tier: 2, expression: \"((\", enabled: false}\n",
			wantErr: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			err = f.Validate(newEvaluator())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	ev := newEvaluator()
	st := store.NewMemory(ev)
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	sum, err := Apply(ctx, st, ev, f)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if sum != (Summary{Tiers: 3, RegularRules: 2, DirectRules: 1}) {
		t.Errorf("unexpected summary %+v", sum)
	}

	// Applying again updates in place.
	if _, err := Apply(ctx, st, ev, f); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	regular, _ := st.ListRegularRules(ctx)
	if len(regular) != 2 {
		t.Errorf("expected 2 regular rules after reapply, got %d", len(regular))
	}
	rule, err := st.RegularRuleFor(ctx, 1)
	if err != nil || rule == nil || rule.ID != 1 || rule.TargetTier.Name != "Agent" {
		t.Errorf("unexpected rule for tier 1: %+v, %v", rule, err)
	}
}

func TestApply_MovesEnabledFlag(t *testing.T) {
	ctx := context.Background()
	ev := newEvaluator()
	st := store.NewMemory(ev)

	first := `
tiers:
  - {id: 1, rank: 1, name: A}
  - {id: 2, rank: 2, name: B}
direct_rules:
  - {id: 1, target_tier: 2, expression: "orderCount > 1"}
  - {id: 2, target_tier: 2, expression: "orderCount > 2", enabled: false}
`
	second := strings.Replace(strings.Replace(first,
		`"orderCount > 1"}`, `"orderCount > 1", enabled: false}`, 1),
		`"orderCount > 2", enabled: false}`, `"orderCount > 2"}`, 1)

	for _, doc := range []string{first, second} {
		f, err := Parse([]byte(doc))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := Apply(ctx, st, ev, f); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	rules, _ := st.ListDirectRules(ctx)
	for _, r := range rules {
		if r.Enabled != (r.ID == 2) {
			t.Errorf("rule %d enabled = %v", r.ID, r.Enabled)
		}
	}
}

func TestApply_InvalidWritesNothing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(nil)
	f, _ := Parse([]byte("tiers:\n  - {id: 1, rank: 1, name: A}\nregular_rules:\n  - {id: 1, source_tier: 1, target_tier: 5, expression: x}\n"))

	if _, err := Apply(ctx, st, nil, f); err == nil {
		t.Fatal("expected error")
	}
	if tiers, _ := st.ListTiers(ctx); len(tiers) != 0 {
		t.Errorf("expected no tiers written, got %v", tiers)
	}
}

type reloadRecorder struct {
	mu   sync.Mutex
	ok   int
	errs int
}

func (r *reloadRecorder) RecordRulesReload(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs++
		return
	}
	r.ok++
}

func (r *reloadRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ok, r.errs
}

func TestLoader_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	rec := &reloadRecorder{}
	st := store.NewMemory(nil)
	l := NewLoader(path, st, newEvaluator(), rec, discardLogger())

	if _, err := l.Reload(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if ok, errs := rec.counts(); ok != 1 || errs != 1 {
		t.Errorf("expected 1 ok and 1 failed reload, got %d/%d", ok, errs)
	}
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher(nil, 0, discardLogger()); err == nil {
		t.Error("expected error for nil loader")
	}
	l := NewLoader("", store.NewMemory(nil), nil, nil, discardLogger())
	if _, err := NewWatcher(l, 0, discardLogger()); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("tiers:\n  - {id: 1, rank: 1, name: A}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &reloadRecorder{}
	st := store.NewMemory(nil)
	w, err := NewWatcher(NewLoader(path, st, newEvaluator(), rec, discardLogger()), 20*time.Millisecond, discardLogger())
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	}()

	// Let the watcher register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if tiers, _ := st.ListTiers(context.Background()); len(tiers) == 3 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	tiers, _ := st.ListTiers(context.Background())
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers after reload, got %d", len(tiers))
	}
	if _, errs := rec.counts(); errs != 0 {
		t.Errorf("expected no failed reloads, got %d", errs)
	}
}

func TestWatcher_RejectsSecondWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(NewLoader(path, store.NewMemory(nil), nil, nil, discardLogger()), 0, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	var second error
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		w.mu.Lock()
		running := w.running
		w.mu.Unlock()
		if running {
			second = w.Watch(ctx)
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if second == nil || errors.Is(second, context.Canceled) {
		t.Errorf("expected already running error, got %v", second)
	}
}
