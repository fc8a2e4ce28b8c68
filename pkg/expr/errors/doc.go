// Package errors provides the error types reported while validating and
// evaluating upgrade condition expressions.
//
// Every failure is an *Error carrying a Kind:
//
//   - KindEmpty: the expression is blank after trimming
//   - KindSyntax: the expression cannot be parsed as a boolean condition
//   - KindUnknownVariable: an identifier is outside the variable whitelist
//   - KindRuntime: evaluation failed (division by zero, missing variable,
//     operand of the wrong type)
//
// Validation may find several problems at once; they are collected in a
// List, which unwraps to its members so errors.As and KindOf work on either.
package errors
