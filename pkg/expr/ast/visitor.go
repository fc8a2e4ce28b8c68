package ast

// Visitor is called for every node reached by Walk.
// Returning an error stops the traversal.
type Visitor interface {
	VisitNumber(*NumberLit) error
	VisitIdent(*Ident) error
	VisitUnary(*Unary) error
	VisitBinary(*Binary) error
}

// Walk traverses the tree rooted at node depth first, visiting a parent
// before its children. It returns the first error returned by the visitor.
func Walk(node Node, visitor Visitor) error {
	switch n := node.(type) {
	case nil:
		return nil
	case *NumberLit:
		return visitor.VisitNumber(n)
	case *Ident:
		return visitor.VisitIdent(n)
	case *Unary:
		if err := visitor.VisitUnary(n); err != nil {
			return err
		}
		return Walk(n.Operand, visitor)
	case *Binary:
		if err := visitor.VisitBinary(n); err != nil {
			return err
		}
		if err := Walk(n.Left, visitor); err != nil {
			return err
		}
		return Walk(n.Right, visitor)
	}
	return nil
}

// Identifiers returns the names referenced anywhere under node,
// in source order and with duplicates preserved.
func Identifiers(node Node) []string {
	c := &identCollector{}
	_ = Walk(node, c)
	return c.names
}

type identCollector struct {
	BaseVisitor
	names []string
}

func (c *identCollector) VisitIdent(n *Ident) error {
	c.names = append(c.names, n.Name)
	return nil
}

// BaseVisitor implements Visitor with no-op methods so implementations
// only override the node kinds they care about.
type BaseVisitor struct{}

func (BaseVisitor) VisitNumber(*NumberLit) error { return nil }
func (BaseVisitor) VisitIdent(*Ident) error      { return nil }
func (BaseVisitor) VisitUnary(*Unary) error      { return nil }
func (BaseVisitor) VisitBinary(*Binary) error    { return nil }
