package kicadsexp

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Pos is a position in the input. Lines and columns count runes from 1.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("line %d col %d", p.Line, p.Col)
}

// SyntaxError reports malformed input. Readers built on this package wrap
// it, so errors.As recovers the position from their errors.
type SyntaxError struct {
	Pos Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return e.Pos.String() + ": " + e.Msg
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokOpen
	tokClose
	tokAtom // bare symbol or quoted string
)

type token struct {
	kind tokenKind
	text string
	pos  Pos
}

// scanner splits input into tokens and tracks the position of the next rune.
type scanner struct {
	r    *bufio.Reader
	pos  Pos
	prev Pos
}

func newScanner(r io.Reader) *scanner {
	return &scanner{r: bufio.NewReader(r), pos: Pos{Line: 1, Col: 1}}
}

func (s *scanner) next() (rune, error) {
	ch, _, err := s.r.ReadRune()
	if err != nil {
		return 0, err
	}
	s.prev = s.pos
	if ch == '\n' {
		s.pos.Line++
		s.pos.Col = 1
	} else {
		s.pos.Col++
	}
	return ch, nil
}

// back returns the rune just read to the input.
func (s *scanner) back() {
	_ = s.r.UnreadRune()
	s.pos = s.prev
}

func (s *scanner) scan() (token, error) {
	for {
		at := s.pos
		ch, err := s.next()
		if err == io.EOF {
			return token{kind: tokEOF, pos: at}, nil
		}
		if err != nil {
			return token{}, err
		}
		switch {
		case unicode.IsSpace(ch):
		case ch == '(':
			return token{kind: tokOpen, text: "(", pos: at}, nil
		case ch == ')':
			return token{kind: tokClose, text: ")", pos: at}, nil
		case ch == '"':
			return s.quoted(at)
		default:
			s.back()
			return s.atom(at)
		}
	}
}

var escapes = map[rune]rune{'n': '\n', 't': '\t', 'r': '\r'}

// quoted reads the rest of a string whose opening quote sits at at.
func (s *scanner) quoted(at Pos) (token, error) {
	var b strings.Builder
	for {
		ch, err := s.next()
		if err == io.EOF {
			return token{}, &SyntaxError{Pos: at, Msg: "string never closed"}
		}
		if err != nil {
			return token{}, err
		}
		switch ch {
		case '"':
			return token{kind: tokAtom, text: b.String(), pos: at}, nil
		case '\\':
			esc := s.prev
			ch, err = s.next()
			if err == io.EOF {
				return token{}, &SyntaxError{Pos: esc, Msg: "input ends inside an escape"}
			}
			if err != nil {
				return token{}, err
			}
			if r, ok := escapes[ch]; ok {
				ch = r
			}
		}
		b.WriteRune(ch)
	}
}

func (s *scanner) atom(at Pos) (token, error) {
	var b strings.Builder
	for {
		ch, err := s.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return token{}, err
		}
		if unicode.IsSpace(ch) || ch == '(' || ch == ')' || ch == '"' {
			s.back()
			break
		}
		b.WriteRune(ch)
	}
	return token{kind: tokAtom, text: b.String(), pos: at}, nil
}
