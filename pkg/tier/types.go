package tier

import (
	"sort"
	"time"
)

// Limits applied when rules are authored.
const (
	MaxPriority         = 999
	MaxExpressionLength = 5000
)

// Tier is one rank in the distributor ladder. Ranks are strictly increasing.
type Tier struct {
	ID   int64  `json:"id" yaml:"id"`
	Rank int    `json:"rank" yaml:"rank"`
	Name string `json:"name" yaml:"name"`
}

// RuleKind identifies which rule family produced a transition.
type RuleKind string

const (
	RuleKindRegular RuleKind = "regular"
	RuleKindDirect  RuleKind = "direct"
)

// TriggerKind records whether a transition was automatic or operator-driven.
type TriggerKind string

const (
	TriggerAuto   TriggerKind = "auto"
	TriggerManual TriggerKind = "manual"
)

// RegularRule moves a distributor from SourceTier to the next TargetTier.
// At most one enabled rule exists per source tier.
type RegularRule struct {
	ID          int64  `json:"id"`
	SourceTier  Tier   `json:"source_tier"`
	TargetTier  Tier   `json:"target_tier"`
	Expression  string `json:"expression"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// DirectRule moves a distributor straight to TargetTier, possibly skipping
// intermediate tiers. At most one enabled rule exists per target tier.
type DirectRule struct {
	ID         int64  `json:"id"`
	TargetTier Tier   `json:"target_tier"`
	Expression string `json:"expression"`
	Priority   int    `json:"priority"`
	Enabled    bool   `json:"enabled"`

	// MinTierRequirement is the lowest current rank allowed to use this
	// rule. Nil means any rank below the target.
	MinTierRequirement *int   `json:"min_tier_requirement,omitempty"`
	Description        string `json:"description,omitempty"`
}

// EligibleFor reports whether a distributor at current may use the rule.
// Enabled is not consulted.
func (r DirectRule) EligibleFor(current Tier) bool {
	if current.Rank >= r.TargetTier.Rank {
		return false
	}
	if r.MinTierRequirement != nil && current.Rank < *r.MinTierRequirement {
		return false
	}
	return true
}

// SortDirectRules orders rules by priority desc, then target rank desc,
// then ID asc. The order is total, so selection is deterministic.
func SortDirectRules(rules []DirectRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.TargetTier.Rank != b.TargetTier.Rank {
			return a.TargetTier.Rank > b.TargetTier.Rank
		}
		return a.ID < b.ID
	})
}

// Distributor is the actor whose tier is managed.
// Version increases by one on every tier write.
type Distributor struct {
	ID        int64     `json:"id"`
	Tier      Tier      `json:"tier"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryRecord is the audit entry written for a successful transition.
// Only TriggerKind and Operator change after creation.
type HistoryRecord struct {
	ID                  string      `json:"id"`
	DistributorID       int64       `json:"distributor_id"`
	PreviousTier        Tier        `json:"previous_tier"`
	NewTier             Tier        `json:"new_tier"`
	RuleKind            RuleKind    `json:"rule_kind"`
	RuleID              int64       `json:"rule_id"`
	SatisfiedExpression string      `json:"satisfied_expression"`
	Snapshot            Snapshot    `json:"context_snapshot"`
	OccurredAt          time.Time   `json:"occurred_at"`
	TriggerKind         TriggerKind `json:"trigger_kind"`
	TriggeringReference *string     `json:"triggering_reference,omitempty"`
	Operator            *string     `json:"operator,omitempty"`
}

// Clone returns a deep copy of the record.
func (h *HistoryRecord) Clone() *HistoryRecord {
	if h == nil {
		return nil
	}
	c := *h
	c.Snapshot = h.Snapshot.Clone()
	if h.TriggeringReference != nil {
		ref := *h.TriggeringReference
		c.TriggeringReference = &ref
	}
	if h.Operator != nil {
		op := *h.Operator
		c.Operator = &op
	}
	return &c
}

// Transition is a decided tier change awaiting execution.
type Transition struct {
	DistributorID int64
	// ExpectedVersion is the distributor version seen at resolution time.
	ExpectedVersion     int64
	PreviousTier        Tier
	NewTier             Tier
	RuleKind            RuleKind
	RuleID              int64
	Expression          string
	Snapshot            Snapshot
	TriggeringReference *string
}

// HistoryQuery selects history records by time range.
type HistoryQuery struct {
	// Inclusive bounds. A nil bound is open.
	StartTime *time.Time
	EndTime   *time.Time

	DistributorID int64 // Zero means any distributor
	TriggerKind   TriggerKind

	Limit  int
	Offset int
}

// DistributorQuery pages through distributor IDs for batch work.
type DistributorQuery struct {
	TierID  int64 // Zero means any tier
	AfterID int64 // Return IDs strictly greater than this
	Limit   int
}
