package ast

import (
	"strconv"
	"strings"
)

// Op identifies a unary or binary operator.
type Op string

const (
	OpAdd Op = "+"
	OpSub Op = "-"
	OpMul Op = "*"
	OpDiv Op = "/"

	OpGE Op = ">="
	OpLE Op = "<="
	OpGT Op = ">"
	OpLT Op = "<"
	OpEQ Op = "=="
	OpNE Op = "!="

	OpAnd Op = "and"
	OpOr  Op = "or"
	OpNot Op = "not"
	OpNeg Op = "neg"
)

// IsArithmetic reports whether op produces a number from numbers.
func (op Op) IsArithmetic() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return true
	}
	return false
}

// IsComparison reports whether op compares two operands.
func (op Op) IsComparison() bool {
	switch op {
	case OpGE, OpLE, OpGT, OpLT, OpEQ, OpNE:
		return true
	}
	return false
}

// IsLogical reports whether op combines booleans.
func (op Op) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// Node is implemented by every expression node.
// The unexported marker method keeps the set of node kinds closed.
type Node interface {
	Pos() Position
	String() string
	node()
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value    float64
	Raw      string
	Position Position
}

// Ident is a reference to a named variable.
type Ident struct {
	Name     string
	Position Position
}

// Unary applies Op (OpNot or OpNeg) to Operand.
type Unary struct {
	Op       Op
	Operand  Node
	Position Position
}

// Binary applies Op to Left and Right.
type Binary struct {
	Op       Op
	Left     Node
	Right    Node
	Position Position
}

func (*NumberLit) node() {}
func (*Ident) node()     {}
func (*Unary) node()     {}
func (*Binary) node()    {}

func (n *NumberLit) Pos() Position { return n.Position }
func (n *Ident) Pos() Position     { return n.Position }
func (n *Unary) Pos() Position     { return n.Position }
func (n *Binary) Pos() Position    { return n.Position }

func (n *NumberLit) String() string {
	if n.Raw != "" {
		return n.Raw
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

func (n *Ident) String() string { return n.Name }

func (n *Unary) String() string {
	if n.Op == OpNeg {
		return "-" + n.Operand.String()
	}
	return "not " + n.Operand.String()
}

// String renders the node fully parenthesized so precedence is explicit.
func (n *Binary) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(n.Left.String())
	sb.WriteString(" ")
	sb.WriteString(string(n.Op))
	sb.WriteString(" ")
	sb.WriteString(n.Right.String())
	sb.WriteString(")")
	return sb.String()
}
