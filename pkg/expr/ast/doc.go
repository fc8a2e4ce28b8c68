// Package ast defines the syntax tree for upgrade condition expressions.
//
// The tree is a closed tagged union: every node is one of NumberLit, Ident,
// Unary or Binary. Consumers either switch on the concrete type or implement
// Visitor and call Walk, which visits every node in the tree depth first.
//
// # Core Types
//
// NumberLit: numeric literal such as 5000 or 0.5
//
// Ident: bare variable reference such as withdrawnAmount
//
// Unary: "not" or arithmetic negation applied to one operand
//
// Binary: arithmetic, comparison or logical operator applied to two operands
//
// Position: byte offset and column of a node in the source expression
package ast
