package kicadsexp

// parser builds the expression tree one token ahead of the scanner.
type parser struct {
	s   *scanner
	tok token
}

func (p *parser) advance() error {
	tok, err := p.s.scan()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// all parses every top-level expression up to the end of the input.
func (p *parser) all() ([]Sexp, error) {
	var out []Sexp
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokEOF {
			return out, nil
		}
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
}

func (p *parser) expr() (Sexp, error) {
	switch p.tok.kind {
	case tokAtom:
		return Symbol(p.tok.text), nil
	case tokOpen:
		return p.list(p.tok.pos)
	case tokClose:
		return nil, &SyntaxError{Pos: p.tok.pos, Msg: "unbalanced ')'"}
	default:
		return nil, &SyntaxError{Pos: p.tok.pos, Msg: "unexpected end of input"}
	}
}

// list reads the items of a list whose '(' sits at open.
func (p *parser) list(open Pos) (Sexp, error) {
	var items []Sexp
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch p.tok.kind {
		case tokClose:
			return &List{elements: items}, nil
		case tokEOF:
			return nil, &SyntaxError{Pos: open, Msg: "list never closed"}
		}
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		items = append(items, x)
	}
}
