package validator

import (
	"mercator-hq/ascent/pkg/expr/ast"
	exprerrors "mercator-hq/ascent/pkg/expr/errors"
)

// Type is the static type of an expression node.
type Type string

const (
	TypeNumber Type = "number"
	TypeBool   Type = "boolean"
)

// CheckTypes verifies operand types bottom-up and requires a boolean result.
func CheckTypes(node ast.Node) error {
	typ, err := TypeOf(node)
	if err != nil {
		return err
	}
	if typ != TypeBool {
		return exprerrors.NewSyntaxError(node.Pos(), "expression must be a boolean condition, got a %s", typ)
	}
	return nil
}

// TypeOf infers the type of node.
func TypeOf(node ast.Node) (Type, error) {
	switch n := node.(type) {
	case *ast.NumberLit, *ast.Ident:
		return TypeNumber, nil

	case *ast.Unary:
		operand, err := TypeOf(n.Operand)
		if err != nil {
			return "", err
		}
		want := TypeNumber
		if n.Op == ast.OpNot {
			want = TypeBool
		}
		if operand != want {
			return "", exprerrors.NewSyntaxError(n.Position, "operand of %q must be a %s, got a %s", describeOp(n.Op), want, operand)
		}
		return want, nil

	case *ast.Binary:
		left, err := TypeOf(n.Left)
		if err != nil {
			return "", err
		}
		right, err := TypeOf(n.Right)
		if err != nil {
			return "", err
		}
		switch {
		case n.Op.IsArithmetic():
			if left != TypeNumber || right != TypeNumber {
				return "", mismatch(n, TypeNumber, left, right)
			}
			return TypeNumber, nil
		case n.Op == ast.OpEQ || n.Op == ast.OpNE:
			if left != right {
				return "", exprerrors.NewSyntaxError(n.Position, "cannot compare a %s with a %s using %q", left, right, n.Op)
			}
			return TypeBool, nil
		case n.Op.IsComparison():
			if left != TypeNumber || right != TypeNumber {
				return "", mismatch(n, TypeNumber, left, right)
			}
			return TypeBool, nil
		case n.Op.IsLogical():
			if left != TypeBool || right != TypeBool {
				return "", mismatch(n, TypeBool, left, right)
			}
			return TypeBool, nil
		}
		return "", exprerrors.NewSyntaxError(n.Position, "unsupported operator %q", n.Op)
	}
	return "", exprerrors.NewSyntaxError(ast.Position{}, "unsupported node %T", node)
}

func mismatch(n *ast.Binary, want, left, right Type) error {
	got := left
	if left == want {
		got = right
	}
	return exprerrors.NewSyntaxError(n.Position, "operands of %q must be %s values, got a %s", n.Op, want, got)
}

func describeOp(op ast.Op) string {
	if op == ast.OpNeg {
		return "-"
	}
	return string(op)
}
