// Package expr validates and evaluates the boolean conditions attached to
// tier-upgrade rules.
//
// A condition is a small arithmetic/boolean expression over a fixed set of
// numeric metrics:
//
//	withdrawnAmount >= 5000 and inviteeCount >= 10
//	settledCommissionAmount / 2 > 300 or not orderCount < 5
//
// The language exposes no function calls, member access or string values.
// Only the five names in Variables may appear.
//
// # Basic Usage
//
//	ev := expr.NewEvaluator(expr.DefaultConfig())
//
//	// At authoring time
//	if err := ev.Validate(rule.Expression); err != nil {
//	    return err // surfaced verbatim to the rule author
//	}
//
//	// At resolution time
//	ok, err := ev.Evaluate(rule.Expression, snapshot)
//	if err != nil {
//	    // runtime failure: treat the rule as not satisfied
//	}
//
// # Errors
//
// All errors are from package mercator-hq/ascent/pkg/expr/errors. Validate
// returns KindEmpty, KindSyntax or KindUnknownVariable. Evaluate may also
// return KindRuntime for division by zero, a variable missing from the
// supplied environment, or an operand of the wrong type. Evaluate never
// panics.
package expr
