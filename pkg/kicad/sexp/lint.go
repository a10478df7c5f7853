package sexp

import (
	"fmt"
	"strings"

	chewsexp "github.com/chewxy/sexp"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp/kicadsexp"
)

// Lint checks that text is one well-formed S-expression list.
//
// The text goes through both the kicadsexp reader and the independent
// chewxy/sexp parser, so a writer bug that only one of them tolerates is
// still caught. The expected root keyword is checked when root is not empty.
func Lint(text, root string) error {
	exprs, err := kicadsexp.ParseString(text)
	if err != nil {
		return fmt.Errorf("sexp: %w", err)
	}
	if len(exprs) != 1 {
		return fmt.Errorf("sexp: expected one top-level expression, got %d", len(exprs))
	}
	if exprs[0].IsLeaf() {
		return fmt.Errorf("sexp: top-level expression is an atom")
	}
	if root != "" {
		name, err := GetNodeName(exprs[0])
		if err != nil {
			return fmt.Errorf("sexp: %w", err)
		}
		if name != root {
			return fmt.Errorf("sexp: expected root %q, got %q", root, name)
		}
	}

	// chewxy/sexp splits quoted strings on whitespace, which is harmless for
	// a structural check, but it needs the parentheses inside strings gone.
	independent, err := chewsexp.ParseString(stripStrings(text))
	if err != nil {
		return fmt.Errorf("sexp: %w", err)
	}
	if len(independent) != 1 || independent[0].IsLeaf() {
		return fmt.Errorf("sexp: independent parse found %d top-level expressions", len(independent))
	}

	return nil
}

// stripStrings replaces the body of every quoted string with a placeholder
// so that parentheses and comment characters inside strings cannot confuse
// a parser that does not understand KiCad quoting.
func stripStrings(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for _, r := range text {
		switch {
		case inString && escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case inString && r == '"':
			inString = false
			b.WriteString(`s"`)
		case inString:
		case r == '"':
			inString = true
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
