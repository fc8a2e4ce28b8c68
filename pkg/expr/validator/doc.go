// Package validator checks a parsed condition expression before it is
// allowed to be stored as an enabled rule.
//
// Two passes run in order:
//
//  1. Variable pass: every identifier anywhere in the tree must be one of
//     the allowed names. All offenders are reported, each with a
//     "did you mean" suggestion.
//  2. Type pass: operands must have the type their operator expects and the
//     whole expression must be boolean. Type problems are reported as
//     syntax errors, since the expression is not a well-formed condition.
//
// The type pass only runs when the variable pass is clean.
package validator
