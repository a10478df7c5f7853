package sexp

import (
	"io"
	"math"
	"strconv"
	"strings"
)

type layout int

const (
	layoutAuto layout = iota
	layoutInline
)

// Node is a node of an S-expression tree being built for output.
// A Node is either an atom (already rendered: bare symbol, quoted string or
// number) or a list whose first item is its keyword.
type Node struct {
	atom   string
	isList bool
	items  []Node
	layout layout
	keep   int
}

// Sym returns a bare symbol atom, e.g. yes, passive, input.
func Sym(s string) Node {
	return Node{atom: s}
}

// Str returns a quoted string atom.
func Str(s string) Node {
	return Node{atom: Quote(s)}
}

// Num returns a numeric atom formatted the way KiCad writes coordinates.
func Num(f float64) Node {
	return Node{atom: FormatFloat(f)}
}

// Int returns an integer atom.
func Int(i int) Node {
	return Node{atom: strconv.Itoa(i)}
}

// YesNo returns the yes/no symbol KiCad uses for booleans.
func YesNo(b bool) Node {
	if b {
		return Sym("yes")
	}
	return Sym("no")
}

// List returns a list node starting with the given keyword.
func List(name string, items ...Node) Node {
	all := make([]Node, 0, len(items)+1)
	all = append(all, Sym(name))
	all = append(all, items...)
	return Node{isList: true, items: all}
}

// Inline forces the whole subtree onto a single line.
func (n Node) Inline() Node {
	n.layout = layoutInline
	return n
}

// Keep keeps the first k list children on the opening line; the remaining
// children are written one per line.
func (n Node) Keep(k int) Node {
	n.keep = k
	return n
}

// Append adds items to a list node.
func (n *Node) Append(items ...Node) {
	n.items = append(n.items, items...)
}

// IsList reports whether n is a list.
func (n Node) IsList() bool {
	return n.isList
}

// Name returns the keyword of a list node, or the atom text.
func (n Node) Name() string {
	if n.isList && len(n.items) > 0 {
		return n.items[0].atom
	}
	return n.atom
}

// Len returns the number of items in a list, keyword included.
func (n Node) Len() int {
	return len(n.items)
}

// String renders n on a single line.
func (n Node) String() string {
	var b strings.Builder
	writeInline(&b, n)
	return b.String()
}

// Writer renders Node trees.
//
// Lists made only of atoms are written on one line. Otherwise atoms and
// kept children follow the keyword on the opening line and every other child
// goes on its own line, indented one level deeper. With CloseOnOwnLine the
// closing parenthesis of a broken list sits on its own line at the list's
// indentation (kicad_sch style); otherwise it trails the last child
// (netlist style).
type Writer struct {
	Indent         string
	CloseOnOwnLine bool
}

// SchematicWriter matches the layout of KiCad 7/8 .kicad_sch files.
var SchematicWriter = Writer{Indent: "\t", CloseOnOwnLine: true}

// NetlistWriter matches the layout of KiCad .net files.
var NetlistWriter = Writer{Indent: "  ", CloseOnOwnLine: false}

// Format renders the tree and terminates it with a newline.
func (w Writer) Format(n Node) string {
	var b strings.Builder
	w.write(&b, n, 0)
	b.WriteByte('\n')
	return b.String()
}

// WriteTo writes the rendered tree to out.
func (w Writer) WriteTo(out io.Writer, n Node) (int64, error) {
	c, err := io.WriteString(out, w.Format(n))
	return int64(c), err
}

func (w Writer) write(b *strings.Builder, n Node, depth int) {
	if !n.isList {
		b.WriteString(n.atom)
		return
	}
	if n.layout == layoutInline {
		writeInline(b, n)
		return
	}

	b.WriteByte('(')
	broken := false
	kept := 0
	for i, item := range n.items {
		if i == 0 {
			b.WriteString(item.atom)
			continue
		}
		if !broken && !item.isList {
			b.WriteByte(' ')
			b.WriteString(item.atom)
			continue
		}
		if !broken && kept < n.keep {
			kept++
			b.WriteByte(' ')
			writeInline(b, item)
			continue
		}
		broken = true
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(w.Indent, depth+1))
		w.write(b, item, depth+1)
	}
	if broken && w.CloseOnOwnLine {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(w.Indent, depth))
	}
	b.WriteByte(')')
}

func writeInline(b *strings.Builder, n Node) {
	if !n.isList {
		b.WriteString(n.atom)
		return
	}
	b.WriteByte('(')
	for i, item := range n.items {
		if i > 0 {
			b.WriteByte(' ')
		}
		writeInline(b, item)
	}
	b.WriteByte(')')
}

// FormatFloat writes at most four decimals without trailing zeros.
// Negative zero prints as 0.
func FormatFloat(f float64) string {
	r := math.Round(f*10000) / 10000
	if r == 0 {
		return "0"
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// Quote returns s as a KiCad quoted string.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
