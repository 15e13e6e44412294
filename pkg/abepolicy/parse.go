package abepolicy

import (
	"fmt"
	"strings"
)

// Parse reads an expression written in the grammar produced by Node.String:
//
//	expr   = term { "OR" term }
//	term   = factor { "AND" factor }
//	factor = "(" expr ")" | name ":" value
//
// Keywords are case-insensitive.
func Parse(s string) (Node, error) {
	p := &parser{toks: tokenize(s)}
	if len(p.toks) == 0 {
		return nil, fmt.Errorf("empty policy")
	}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("unexpected %q at token %d", p.toks[p.pos], p.pos)
	}
	return n, nil
}

type parser struct {
	toks []string
	pos  int
}

func (p *parser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *parser) expr() (Node, error) {
	return p.chain("OR", p.term)
}

func (p *parser) term() (Node, error) {
	return p.chain("AND", p.factor)
}

func (p *parser) chain(op string, next func() (Node, error)) (Node, error) {
	first, err := next()
	if err != nil {
		return nil, err
	}
	nodes := []Node{first}
	for strings.EqualFold(p.peek(), op) {
		p.pos++
		n, err := next()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return newGate(op, nodes), nil
}

func (p *parser) factor() (Node, error) {
	tok := p.peek()
	switch {
	case tok == "":
		return nil, fmt.Errorf("unexpected end of policy")
	case tok == "(":
		p.pos++
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("missing ')' at token %d", p.pos)
		}
		p.pos++
		return n, nil
	case tok == ")" || strings.EqualFold(tok, "AND") || strings.EqualFold(tok, "OR"):
		return nil, fmt.Errorf("unexpected %q at token %d", tok, p.pos)
	}

	p.pos++
	name, value, ok := strings.Cut(tok, ":")
	if !ok {
		return nil, fmt.Errorf("attribute %q: missing ':'", tok)
	}
	return NewAttr(name, value)
}

func tokenize(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch r {
		case '(', ')':
			flush()
			toks = append(toks, string(r))
		case ' ', '\t', '\r', '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}
