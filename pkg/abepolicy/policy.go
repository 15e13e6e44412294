// Package abepolicy builds and parses disclosure policy expressions for the
// attribute-based encryption authority.
//
// An expression is a boolean formula over attributes:
//
//	(Role:Doctor AND Dept:Cardiology) OR Consent:CONSENT_ab12cd34
//
// AND binds tighter than OR. The top-level expression is written without
// enclosing parentheses; every nested gate is parenthesised, so the output
// always balances.
package abepolicy

import (
	"fmt"
	"strings"
)

// Attributes is the set of attribute values held by a principal, keyed by
// attribute name (e.g. "Role" → ["Doctor"]).
type Attributes map[string][]string

// Has reports whether the principal holds name:value.
func (a Attributes) Has(name, value string) bool {
	for _, v := range a[name] {
		if v == value {
			return true
		}
	}
	return false
}

// Node is a policy expression.
type Node interface {
	// String renders the expression in the authority's textual grammar.
	String() string
	// Satisfied evaluates the expression against attrs.
	Satisfied(attrs Attributes) bool

	render(nested bool) string
}

// ── Leaf ─────────────────────────────────────────────────────────────────

type attr struct {
	name  string
	value string
}

// NewAttr returns a leaf requiring name:value. Both parts must be non-empty
// and free of whitespace and parentheses; the name may not contain ':'.
func NewAttr(name, value string) (Node, error) {
	if err := validToken(name); err != nil {
		return nil, fmt.Errorf("attribute name %q: %w", name, err)
	}
	if strings.Contains(name, ":") {
		return nil, fmt.Errorf("attribute name %q: contains ':'", name)
	}
	if err := validToken(value); err != nil {
		return nil, fmt.Errorf("attribute value %q: %w", value, err)
	}
	return attr{name: name, value: value}, nil
}

// Attr is like NewAttr but panics on an invalid attribute.
func Attr(name, value string) Node {
	n, err := NewAttr(name, value)
	if err != nil {
		panic("abepolicy: " + err.Error())
	}
	return n
}

func (a attr) String() string               { return a.render(false) }
func (a attr) render(bool) string           { return a.name + ":" + a.value }
func (a attr) Satisfied(at Attributes) bool { return at.Has(a.name, a.value) }

// ── Gates ────────────────────────────────────────────────────────────────

type gate struct {
	op       string // "AND" | "OR"
	children []Node
}

// And requires every child. A single child collapses to itself.
func And(children ...Node) Node { return newGate("AND", children) }

// Or requires at least one child. A single child collapses to itself.
func Or(children ...Node) Node { return newGate("OR", children) }

func newGate(op string, children []Node) Node {
	switch len(children) {
	case 0:
		panic("abepolicy: " + op + " with no children")
	case 1:
		return children[0]
	}
	cp := make([]Node, len(children))
	copy(cp, children)
	return gate{op: op, children: cp}
}

func (g gate) String() string { return g.render(false) }

func (g gate) render(nested bool) string {
	parts := make([]string, len(g.children))
	for i, c := range g.children {
		parts[i] = c.render(true)
	}
	s := strings.Join(parts, " "+g.op+" ")
	if nested {
		return "(" + s + ")"
	}
	return s
}

func (g gate) Satisfied(at Attributes) bool {
	for _, c := range g.children {
		ok := c.Satisfied(at)
		if g.op == "OR" && ok {
			return true
		}
		if g.op == "AND" && !ok {
			return false
		}
	}
	return g.op == "AND"
}

func validToken(s string) error {
	if s == "" {
		return fmt.Errorf("empty")
	}
	if strings.ContainsAny(s, " \t\r\n()") {
		return fmt.Errorf("contains whitespace or parentheses")
	}
	return nil
}
