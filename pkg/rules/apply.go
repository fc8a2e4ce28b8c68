package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"mercator-hq/ascent/pkg/tier"
)

// Writer is the part of the store a rules file is applied to.
type Writer interface {
	SaveTier(ctx context.Context, t tier.Tier) error
	SaveRegularRule(ctx context.Context, r tier.RegularRule) (int64, error)
	SaveDirectRule(ctx context.Context, r tier.DirectRule) (int64, error)
}

// Summary counts what Apply wrote.
type Summary struct {
	Tiers        int `json:"tiers"`
	RegularRules int `json:"regular_rules"`
	DirectRules  int `json:"direct_rules"`
}

// Apply validates f and writes it to w. Tiers are written first, then
// disabled rules, then enabled rules, so that moving the enabled flag from
// one rule to another within a tier never trips the store's uniqueness
// check. Rules in the store but absent from the file are left alone.
func Apply(ctx context.Context, w Writer, v tier.ExpressionValidator, f *File) (Summary, error) {
	var sum Summary
	if err := f.Validate(v); err != nil {
		return sum, fmt.Errorf("invalid rules file: %w", err)
	}
	regular, direct, err := f.Resolve()
	if err != nil {
		return sum, err
	}

	tiers := append([]tier.Tier(nil), f.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Rank < tiers[j].Rank })
	for _, t := range tiers {
		if err := w.SaveTier(ctx, t); err != nil {
			return sum, fmt.Errorf("save tier %d: %w", t.ID, err)
		}
		sum.Tiers++
	}

	for _, pass := range []bool{false, true} {
		for _, r := range regular {
			if r.Enabled != pass {
				continue
			}
			if _, err := w.SaveRegularRule(ctx, r); err != nil {
				return sum, fmt.Errorf("save regular rule %d: %w", r.ID, err)
			}
			sum.RegularRules++
		}
		for _, r := range direct {
			if r.Enabled != pass {
				continue
			}
			if _, err := w.SaveDirectRule(ctx, r); err != nil {
				return sum, fmt.Errorf("save direct rule %d: %w", r.ID, err)
			}
			sum.DirectRules++
		}
	}
	return sum, nil
}

// Recorder receives reload metrics.
type Recorder interface {
	RecordRulesReload(err error)
}

// Loader applies one rules file path on demand.
type Loader struct {
	path      string
	writer    Writer
	validator tier.ExpressionValidator
	recorder  Recorder
	logger    *slog.Logger
}

// NewLoader creates a loader for path. recorder may be nil.
func NewLoader(path string, w Writer, v tier.ExpressionValidator, recorder Recorder, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		path:      path,
		writer:    w,
		validator: v,
		recorder:  recorder,
		logger:    logger.With("component", "rules.loader"),
	}
}

// Path returns the rules file path.
func (l *Loader) Path() string { return l.path }

// Reload reads, validates and applies the file.
func (l *Loader) Reload(ctx context.Context) (Summary, error) {
	sum, err := l.reload(ctx)
	if l.recorder != nil {
		l.recorder.RecordRulesReload(err)
	}
	if err != nil {
		l.logger.ErrorContext(ctx, "rules reload failed", "path", l.path, "error", err)
		return sum, err
	}
	l.logger.InfoContext(ctx, "rules applied",
		"path", l.path,
		"tiers", sum.Tiers,
		"regular_rules", sum.RegularRules,
		"direct_rules", sum.DirectRules,
	)
	return sum, nil
}

func (l *Loader) reload(ctx context.Context) (Summary, error) {
	f, err := Load(l.path)
	if err != nil {
		return Summary{}, err
	}
	return Apply(ctx, l.writer, l.validator, f)
}
