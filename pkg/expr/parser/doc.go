// Package parser turns an upgrade condition string into an ast.Node.
//
// The grammar, from lowest to highest precedence:
//
//	expr       = or
//	or         = and { ("or" | "||") and }
//	and        = not { ("and" | "&&") not }
//	not        = ("not" | "!") not | comparison
//	comparison = additive [ (">=" | "<=" | ">" | "<" | "==" | "!=") additive ]
//	additive   = term { ("+" | "-") term }
//	term       = unary { ("*" | "/") unary }
//	unary      = "-" unary | primary
//	primary    = number | identifier | "(" expr ")"
//
// There are no strings, function calls or member access. Comparisons do not
// chain: "a < b < c" is a syntax error.
package parser
