package expr

import (
	stderrors "errors"
	"math"

	"mercator-hq/ascent/pkg/expr/ast"
	exprerrors "mercator-hq/ascent/pkg/expr/errors"
)

// value is the dynamic result of evaluating a node.
type value struct {
	num    float64
	b      bool
	isBool bool
}

func (v value) kind() string {
	if v.isBool {
		return "boolean"
	}
	return "number"
}

func numberValue(f float64) value { return value{num: f} }
func boolValue(b bool) value      { return value{b: b, isBool: true} }

// run evaluates root against env, converting any panic into a runtime error.
func run(root ast.Node, env Env) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = false
			err = exprerrors.NewRuntimeError(ast.Position{}, "evaluation aborted: %v", r)
		}
	}()

	if env == nil {
		env = Vars{}
	}
	v, err := eval(root, env)
	if err != nil {
		return false, err
	}
	if !v.isBool {
		return false, exprerrors.NewRuntimeError(root.Pos(), "expression produced a number, not a boolean")
	}
	return v.b, nil
}

func eval(node ast.Node, env Env) (value, error) {
	switch n := node.(type) {
	case *ast.NumberLit:
		return numberValue(n.Value), nil

	case *ast.Ident:
		f, ok := env.Lookup(n.Name)
		if !ok {
			return value{}, exprerrors.NewRuntimeError(n.Position, "variable %q is missing from the evaluation context", n.Name)
		}
		return numberValue(f), nil

	case *ast.Unary:
		operand, err := eval(n.Operand, env)
		if err != nil {
			return value{}, err
		}
		switch n.Op {
		case ast.OpNot:
			if !operand.isBool {
				return value{}, typeError(n.Position, "not", "boolean", operand)
			}
			return boolValue(!operand.b), nil
		case ast.OpNeg:
			if operand.isBool {
				return value{}, typeError(n.Position, "-", "number", operand)
			}
			return numberValue(-operand.num), nil
		}

	case *ast.Binary:
		return evalBinary(n, env)
	}
	return value{}, exprerrors.NewRuntimeError(ast.Position{}, "unsupported node %T", node)
}

func evalBinary(n *ast.Binary, env Env) (value, error) {
	left, err := eval(n.Left, env)
	if err != nil {
		return value{}, err
	}

	// and/or short-circuit; the right operand is only type-checked when reached.
	if n.Op.IsLogical() {
		if !left.isBool {
			return value{}, typeError(n.Position, string(n.Op), "boolean", left)
		}
		if n.Op == ast.OpAnd && !left.b {
			return boolValue(false), nil
		}
		if n.Op == ast.OpOr && left.b {
			return boolValue(true), nil
		}
		right, err := eval(n.Right, env)
		if err != nil {
			return value{}, err
		}
		if !right.isBool {
			return value{}, typeError(n.Position, string(n.Op), "boolean", right)
		}
		return boolValue(right.b), nil
	}

	right, err := eval(n.Right, env)
	if err != nil {
		return value{}, err
	}

	if n.Op == ast.OpEQ || n.Op == ast.OpNE {
		if left.isBool != right.isBool {
			return value{}, exprerrors.NewRuntimeError(n.Position, "cannot compare a %s with a %s", left.kind(), right.kind())
		}
		eq := left.num == right.num
		if left.isBool {
			eq = left.b == right.b
		}
		return boolValue(eq == (n.Op == ast.OpEQ)), nil
	}

	if left.isBool {
		return value{}, typeError(n.Position, string(n.Op), "number", left)
	}
	if right.isBool {
		return value{}, typeError(n.Position, string(n.Op), "number", right)
	}
	a, b := left.num, right.num

	switch n.Op {
	case ast.OpAdd:
		return checked(n, a+b)
	case ast.OpSub:
		return checked(n, a-b)
	case ast.OpMul:
		return checked(n, a*b)
	case ast.OpDiv:
		if b == 0 {
			return value{}, exprerrors.NewRuntimeError(n.Position, "division by zero")
		}
		return checked(n, a/b)
	case ast.OpGE:
		return boolValue(a >= b), nil
	case ast.OpLE:
		return boolValue(a <= b), nil
	case ast.OpGT:
		return boolValue(a > b), nil
	case ast.OpLT:
		return boolValue(a < b), nil
	}
	return value{}, exprerrors.NewRuntimeError(n.Position, "unsupported operator %q", n.Op)
}

// checked rejects non-finite arithmetic results.
func checked(n *ast.Binary, f float64) (value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return value{}, exprerrors.NewRuntimeError(n.Position, "arithmetic overflow in %q", n.Op)
	}
	return numberValue(f), nil
}

// asRuntime re-labels a static type error as a runtime failure.
func asRuntime(err error) error {
	var e *exprerrors.Error
	if stderrors.As(err, &e) {
		return exprerrors.NewRuntimeError(e.Position, "%s", e.Message)
	}
	return exprerrors.NewRuntimeError(ast.Position{}, "%v", err)
}

func typeError(pos ast.Position, op, want string, got value) error {
	return exprerrors.NewRuntimeError(pos, "operand of %q must be a %s, got a %s", op, want, got.kind())
}
