package tier

import (
	"errors"
	"fmt"
	"strings"
)

// ExpressionValidator checks a rule condition.
type ExpressionValidator interface {
	Validate(expression string) error
}

// Validate applies authoring checks to a regular rule. An enabled rule must
// carry a valid expression and point to a higher-ranked tier.
func (r RegularRule) Validate(v ExpressionValidator) error {
	if r.SourceTier.ID == r.TargetTier.ID {
		return &RuleError{Kind: RuleKindRegular, RuleID: r.ID, Field: "target_tier", Cause: errors.New("target tier must differ from source tier")}
	}
	if r.TargetTier.Rank <= r.SourceTier.Rank {
		return &RuleError{Kind: RuleKindRegular, RuleID: r.ID, Field: "target_tier",
			Cause: fmt.Errorf("target rank %d must exceed source rank %d", r.TargetTier.Rank, r.SourceTier.Rank)}
	}
	return checkExpression(RuleKindRegular, r.ID, r.Expression, r.Enabled, v)
}

// Validate applies authoring checks to a direct rule.
func (r DirectRule) Validate(v ExpressionValidator) error {
	if r.Priority < 0 || r.Priority > MaxPriority {
		return &RuleError{Kind: RuleKindDirect, RuleID: r.ID, Field: "priority",
			Cause: fmt.Errorf("must be between 0 and %d, got %d", MaxPriority, r.Priority)}
	}
	if r.MinTierRequirement != nil && *r.MinTierRequirement >= r.TargetTier.Rank {
		return &RuleError{Kind: RuleKindDirect, RuleID: r.ID, Field: "min_tier_requirement",
			Cause: fmt.Errorf("rank %d can never reach target rank %d", *r.MinTierRequirement, r.TargetTier.Rank)}
	}
	return checkExpression(RuleKindDirect, r.ID, r.Expression, r.Enabled, v)
}

// checkExpression enforces length always and validity for enabled rules.
// Disabled drafts may hold an invalid expression.
func checkExpression(kind RuleKind, id int64, expression string, enabled bool, v ExpressionValidator) error {
	if len(expression) > MaxExpressionLength {
		return &RuleError{Kind: kind, RuleID: id, Field: "expression",
			Cause: fmt.Errorf("longer than %d characters", MaxExpressionLength)}
	}
	if !enabled {
		return nil
	}
	if v == nil {
		if strings.TrimSpace(expression) == "" {
			return &RuleError{Kind: kind, RuleID: id, Field: "expression", Cause: errors.New("expression is empty")}
		}
		return nil
	}
	if err := v.Validate(expression); err != nil {
		return &RuleError{Kind: kind, RuleID: id, Field: "expression", Cause: err}
	}
	return nil
}
