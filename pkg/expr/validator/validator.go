package validator

import (
	"mercator-hq/ascent/pkg/expr/ast"
	exprerrors "mercator-hq/ascent/pkg/expr/errors"
)

// Validator runs the variable and type passes over an expression tree.
type Validator struct {
	allowed map[string]struct{}
	names   []string
}

// New creates a validator that accepts only the given variable names.
func New(allowed []string) *Validator {
	v := &Validator{
		allowed: make(map[string]struct{}, len(allowed)),
		names:   append([]string(nil), allowed...),
	}
	for _, name := range allowed {
		v.allowed[name] = struct{}{}
	}
	return v
}

// Validate runs every pass and returns nil, a single *exprerrors.Error,
// or an *exprerrors.List.
func (v *Validator) Validate(node ast.Node) error {
	if err := v.CheckVariables(node); err != nil {
		return err
	}
	return CheckTypes(node)
}

// CheckVariables reports every identifier outside the allowed set.
func (v *Validator) CheckVariables(node ast.Node) error {
	w := &variableVisitor{v: v, errs: exprerrors.NewList()}
	if err := ast.Walk(node, w); err != nil {
		return err
	}
	return w.errs.ToError()
}

// Allows reports whether name is an allowed variable.
func (v *Validator) Allows(name string) bool {
	_, ok := v.allowed[name]
	return ok
}

type variableVisitor struct {
	ast.BaseVisitor
	v    *Validator
	errs *exprerrors.List
}

func (w *variableVisitor) VisitIdent(n *ast.Ident) error {
	if !w.v.Allows(n.Name) {
		w.errs.Add(exprerrors.NewUnknownVariableError(n.Name, n.Position, exprerrors.SuggestVariable(n.Name, w.v.names)))
	}
	return nil
}
