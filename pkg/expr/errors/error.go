package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"mercator-hq/ascent/pkg/expr/ast"
)

// Kind categorizes an expression error.
type Kind string

const (
	KindEmpty           Kind = "empty_expression"
	KindSyntax          Kind = "syntax_error"
	KindUnknownVariable Kind = "unknown_variable"
	KindRuntime         Kind = "runtime_failure"
)

// Error is a single expression problem.
type Error struct {
	Kind       Kind
	Message    string       // Human readable detail
	Name       string       // Offending identifier (KindUnknownVariable only)
	Position   ast.Position // Location in the source expression, if known
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Kind, e.Message))
	if e.Position.IsValid() {
		sb.WriteString(fmt.Sprintf(" (%s)", e.Position))
	}
	if e.Suggestion != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Suggestion)
	}
	return sb.String()
}

// NewEmptyError reports a blank expression.
func NewEmptyError() *Error {
	return &Error{Kind: KindEmpty, Message: "expression is empty"}
}

// NewSyntaxError reports a parse or typing problem at pos.
func NewSyntaxError(pos ast.Position, format string, args ...any) *Error {
	return &Error{Kind: KindSyntax, Message: fmt.Sprintf(format, args...), Position: pos}
}

// NewUnknownVariableError reports a reference to name, which is not allowed.
func NewUnknownVariableError(name string, pos ast.Position, suggestion string) *Error {
	return &Error{
		Kind:       KindUnknownVariable,
		Message:    fmt.Sprintf("unknown variable %q", name),
		Name:       name,
		Position:   pos,
		Suggestion: suggestion,
	}
}

// NewRuntimeError reports an evaluation failure.
func NewRuntimeError(pos ast.Position, format string, args ...any) *Error {
	return &Error{Kind: KindRuntime, Message: fmt.Sprintf(format, args...), Position: pos}
}

// List accumulates several errors found in one pass.
type List struct {
	Errors []*Error
}

// NewList creates an empty list.
func NewList() *List {
	return &List{Errors: make([]*Error, 0)}
}

// Add appends err to the list.
func (l *List) Add(err *Error) {
	l.Errors = append(l.Errors, err)
}

// HasErrors returns true if the list is non-empty.
func (l *List) HasErrors() bool {
	return len(l.Errors) > 0
}

// HasKind returns true if at least one error has the given kind.
func (l *List) HasKind(kind Kind) bool {
	for _, err := range l.Errors {
		if err.Kind == kind {
			return true
		}
	}
	return false
}

// Error joins the members with "; ".
func (l *List) Error() string {
	if len(l.Errors) == 1 {
		return l.Errors[0].Error()
	}
	parts := make([]string, len(l.Errors))
	for i, err := range l.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(l.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes the members to errors.Is and errors.As.
func (l *List) Unwrap() []error {
	errs := make([]error, len(l.Errors))
	for i, err := range l.Errors {
		errs[i] = err
	}
	return errs
}

// ToError returns nil for an empty list, the sole member for a list of one,
// and the list itself otherwise.
func (l *List) ToError() error {
	switch len(l.Errors) {
	case 0:
		return nil
	case 1:
		return l.Errors[0]
	}
	return l
}

// KindOf returns the kind of the first *Error found in err's chain,
// or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var l *List
	if stderrors.As(err, &l) {
		return l.HasKind(kind)
	}
	return KindOf(err) == kind
}
