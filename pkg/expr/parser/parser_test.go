package parser

import (
	"strings"
	"testing"

	"mercator-hq/ascent/pkg/expr/ast"
	exprerrors "mercator-hq/ascent/pkg/expr/errors"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"simple comparison", "withdrawnAmount >= 5000", "(withdrawnAmount >= 5000)"},
		{"decimal literal", "withdrawnAmount < 4999.99", "(withdrawnAmount < 4999.99)"},
		{"leading dot literal", "orderCount > .5", "(orderCount > .5)"},
		{"and binds tighter than or", "a > 1 or b > 2 and c > 3", "((a > 1) or ((b > 2) and (c > 3)))"},
		{"parentheses override", "(a > 1 or b > 2) and c > 3", "(((a > 1) or (b > 2)) and (c > 3))"},
		{"not applies to comparison", "not a > 1", "not (a > 1)"},
		{"double not", "not not a > 1", "not not (a > 1)"},
		{"symbolic aliases", "!(a > 1) && b < 2 || c == 3", "((not (a > 1) and (b < 2)) or (c == 3))"},
		{"arithmetic precedence", "a + b * 2 >= 10", "((a + (b * 2)) >= 10)"},
		{"left associative division", "a / b / 2 > 1", "(((a / b) / 2) > 1)"},
		{"unary minus", "-a < -1", "(-a < -1)"},
		{"not equal", "inviteeCount != 0", "(inviteeCount != 0)"},
		{"whitespace tolerant", "  \twithdrawnAmount\n>=\r\n5000 ", "(withdrawnAmount >= 5000)"},
		{"bare identifier", "orderCount", "orderCount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.src, err)
			}
			if got := node.String(); got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.src, got, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		wantKind   exprerrors.Kind
		wantDetail string
	}{
		{"empty", "", exprerrors.KindEmpty, "empty"},
		{"blank", "   \t ", exprerrors.KindEmpty, "empty"},
		{"doubled operator", "amt >= >= 100", exprerrors.KindSyntax, `">="`},
		{"dangling operator", "withdrawnAmount >=", exprerrors.KindSyntax, "end of expression"},
		{"unclosed paren", "(a > 1", exprerrors.KindSyntax, "expected ')'"},
		{"stray close paren", "a > 1)", exprerrors.KindSyntax, "after complete expression"},
		{"chained comparison", "1 < a < 3", exprerrors.KindSyntax, "cannot be chained"},
		{"single equals", "a = 1", exprerrors.KindSyntax, "use '=='"},
		{"function call", "max(a) > 1", exprerrors.KindSyntax, "function calls"},
		{"member access", "user.amount > 1", exprerrors.KindSyntax, "member access"},
		{"string literal", `a == "x"`, exprerrors.KindSyntax, "string literals"},
		{"unknown character", "a > 1 ; b", exprerrors.KindSyntax, "unexpected character"},
		{"non-ascii operator", "withdrawnAmount ≥ 1", exprerrors.KindSyntax, "unexpected character '≥'"},
		{"malformed number", "a > 12abc", exprerrors.KindSyntax, "malformed number"},
		{"missing operand", "and a > 1", exprerrors.KindSyntax, `"and"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", tt.src)
			}
			if got := exprerrors.KindOf(err); got != tt.wantKind {
				t.Errorf("kind = %q, want %q (err: %v)", got, tt.wantKind, err)
			}
			if !strings.Contains(err.Error(), tt.wantDetail) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantDetail)
			}
		})
	}
}

func TestParse_Positions(t *testing.T) {
	node, err := Parse("orderCount >= 10")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	bin, ok := node.(*ast.Binary)
	if !ok {
		t.Fatalf("expected *ast.Binary, got %T", node)
	}
	if bin.Position.Column != 12 {
		t.Errorf("operator column = %d, want 12", bin.Position.Column)
	}
	if bin.Right.Pos().Column != 15 {
		t.Errorf("literal column = %d, want 15", bin.Right.Pos().Column)
	}

	_, err = Parse("a >= >= 1")
	var perr *exprerrors.Error
	if e, ok := err.(*exprerrors.Error); ok {
		perr = e
	}
	if perr == nil || perr.Position.Column != 6 {
		t.Errorf("syntax error position = %+v, want column 6", perr)
	}
}

func TestParse_DepthLimit(t *testing.T) {
	src := strings.Repeat("(", maxDepth+1) + "a > 1" + strings.Repeat(")", maxDepth+1)
	if _, err := Parse(src); err == nil || !strings.Contains(err.Error(), "nested deeper") {
		t.Fatalf("expected depth error, got %v", err)
	}

	ok := strings.Repeat("(", 10) + "a > 1" + strings.Repeat(")", 10)
	if _, err := Parse(ok); err != nil {
		t.Fatalf("moderate nesting should parse: %v", err)
	}
}
