package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"mercator-hq/ascent/pkg/tier"
)

// File is the parsed rules file.
type File struct {
	Tiers        []tier.Tier  `yaml:"tiers"`
	RegularRules []RegularDef `yaml:"regular_rules"`
	DirectRules  []DirectDef  `yaml:"direct_rules"`
}

// RegularDef declares a regular rule. Enabled defaults to true.
type RegularDef struct {
	ID          int64  `yaml:"id"`
	SourceTier  int64  `yaml:"source_tier"`
	TargetTier  int64  `yaml:"target_tier"`
	Expression  string `yaml:"expression"`
	Enabled     *bool  `yaml:"enabled"`
	Description string `yaml:"description"`
}

// DirectDef declares a direct rule. Enabled defaults to true.
type DirectDef struct {
	ID                 int64  `yaml:"id"`
	TargetTier         int64  `yaml:"target_tier"`
	Priority           int    `yaml:"priority"`
	MinTierRequirement *int   `yaml:"min_tier_requirement"`
	Expression         string `yaml:"expression"`
	Enabled            *bool  `yaml:"enabled"`
	Description        string `yaml:"description"`
}

func enabled(b *bool) bool { return b == nil || *b }

// Load reads and parses a rules file. It does not validate.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a rules document. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return &f, nil
}

// Resolve converts the definitions into store rules with tier details
// filled in. Unknown tier references are reported.
func (f *File) Resolve() ([]tier.RegularRule, []tier.DirectRule, error) {
	tiers := make(map[int64]tier.Tier, len(f.Tiers))
	for _, t := range f.Tiers {
		tiers[t.ID] = t
	}

	var errs []error
	lookup := func(kind tier.RuleKind, ruleID int64, field string, id int64) tier.Tier {
		t, ok := tiers[id]
		if !ok {
			errs = append(errs, &tier.RuleError{Kind: kind, RuleID: ruleID, Field: field, Cause: fmt.Errorf("unknown tier %d", id)})
		}
		return t
	}

	regular := make([]tier.RegularRule, 0, len(f.RegularRules))
	for _, d := range f.RegularRules {
		regular = append(regular, tier.RegularRule{
			ID:          d.ID,
			SourceTier:  lookup(tier.RuleKindRegular, d.ID, "source_tier", d.SourceTier),
			TargetTier:  lookup(tier.RuleKindRegular, d.ID, "target_tier", d.TargetTier),
			Expression:  d.Expression,
			Enabled:     enabled(d.Enabled),
			Description: d.Description,
		})
	}
	direct := make([]tier.DirectRule, 0, len(f.DirectRules))
	for _, d := range f.DirectRules {
		direct = append(direct, tier.DirectRule{
			ID:                 d.ID,
			TargetTier:         lookup(tier.RuleKindDirect, d.ID, "target_tier", d.TargetTier),
			Expression:         d.Expression,
			Priority:           d.Priority,
			Enabled:            enabled(d.Enabled),
			MinTierRequirement: d.MinTierRequirement,
			Description:        d.Description,
		})
	}
	return regular, direct, errors.Join(errs...)
}

// Validate checks the file as a whole: tier IDs and ranks are unique, rule
// IDs are present and unique, every rule passes its authoring checks, and
// at most one enabled rule exists per tier of each kind. All problems are
// returned joined.
func (f *File) Validate(v tier.ExpressionValidator) error {
	var errs []error

	ids := make(map[int64]bool)
	ranks := make(map[int]int64)
	for _, t := range f.Tiers {
		if t.ID <= 0 {
			errs = append(errs, fmt.Errorf("tier %q: id must be positive", t.Name))
			continue
		}
		if ids[t.ID] {
			errs = append(errs, fmt.Errorf("tier %d: duplicate id", t.ID))
		}
		ids[t.ID] = true
		if other, ok := ranks[t.Rank]; ok {
			errs = append(errs, fmt.Errorf("tier %d: rank %d already used by tier %d", t.ID, t.Rank, other))
		}
		ranks[t.Rank] = t.ID
	}

	regular, direct, err := f.Resolve()
	if err != nil {
		errs = append(errs, err)
	}

	seen := make(map[int64]bool)
	enabledBySource := make(map[int64]int64)
	for _, r := range regular {
		errs = append(errs, checkID(tier.RuleKindRegular, r.ID, seen)...)
		if r.SourceTier.ID == 0 || r.TargetTier.ID == 0 {
			continue
		}
		if err := r.Validate(v); err != nil {
			errs = append(errs, err)
		}
		if r.Enabled {
			if other, ok := enabledBySource[r.SourceTier.ID]; ok {
				errs = append(errs, fmt.Errorf("regular rules %d and %d are both enabled for source tier %d", other, r.ID, r.SourceTier.ID))
			}
			enabledBySource[r.SourceTier.ID] = r.ID
		}
	}

	seen = make(map[int64]bool)
	enabledByTarget := make(map[int64]int64)
	for _, r := range direct {
		errs = append(errs, checkID(tier.RuleKindDirect, r.ID, seen)...)
		if r.TargetTier.ID == 0 {
			continue
		}
		if err := r.Validate(v); err != nil {
			errs = append(errs, err)
		}
		if r.Enabled {
			if other, ok := enabledByTarget[r.TargetTier.ID]; ok {
				errs = append(errs, fmt.Errorf("direct rules %d and %d are both enabled for target tier %d", other, r.ID, r.TargetTier.ID))
			}
			enabledByTarget[r.TargetTier.ID] = r.ID
		}
	}

	return errors.Join(errs...)
}

func checkID(kind tier.RuleKind, id int64, seen map[int64]bool) []error {
	if id <= 0 {
		return []error{fmt.Errorf("%s rule: id must be positive, got %d", kind, id)}
	}
	if seen[id] {
		return []error{fmt.Errorf("%s rule %d: duplicate id", kind, id)}
	}
	seen[id] = true
	return nil
}
