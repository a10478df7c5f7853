package netlist

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// netlistLexer tokenizes KiCad S-expressions.
var netlistLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[\s\t\n\r]+`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Symbol", Pattern: `[^\s()"]+`},
})

// file is the grammar root: a single list.
type file struct {
	Root *expr `@@`
}

// expr is a keyword list such as (ref "R1") or (net (code "1") ...).
type expr struct {
	Pos     lexer.Position
	Keyword string  `LParen @Symbol`
	Items   []*item `@@* RParen`
}

type item struct {
	Str  *string `  @String`
	Atom *string `| @Symbol`
	List *expr   `| @@`
}

var parser = participle.MustBuild[file](
	participle.Lexer(netlistLexer),
	participle.Elide("Whitespace"),
)

// Parse reads a netlist.
func Parse(r io.Reader) (*Export, error) {
	f, err := parser.Parse("", r)
	if err != nil {
		return nil, fmt.Errorf("netlist: parse error: %w", err)
	}
	return decode(f.Root)
}

// ParseString reads a netlist from a string.
func ParseString(s string) (*Export, error) {
	return Parse(strings.NewReader(s))
}

// ParseFile reads a netlist file.
func ParseFile(filename string) (*Export, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("netlist: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func decode(root *expr) (*Export, error) {
	if root.Keyword != "export" {
		return nil, fmt.Errorf("netlist: %s: expected export, got %q", root.Pos, root.Keyword)
	}
	e := &Export{Version: root.child("version").text(0)}

	if d := root.child("design"); d != nil {
		e.Design = Design{
			Source: d.child("source").text(0),
			Date:   d.child("date").text(0),
			Tool:   d.child("tool").text(0),
		}
		for _, s := range d.children("sheet") {
			number, err := s.child("number").number()
			if err != nil {
				return nil, err
			}
			tb := s.child("title_block")
			e.Design.Sheets = append(e.Design.Sheets, Sheet{
				Number:  number,
				Name:    s.child("name").text(0),
				TStamps: s.child("tstamps").text(0),
				Title:   tb.child("title").text(0),
				Source:  tb.child("source").text(0),
			})
		}
	}

	for _, c := range root.child("components").children("comp") {
		e.Components = append(e.Components, decodeComponent(c))
	}
	for _, p := range root.child("libparts").children("libpart") {
		part := LibPart{
			Lib:         p.child("lib").text(0),
			Part:        p.child("part").text(0),
			Description: p.child("description").text(0),
			Docs:        p.child("docs").text(0),
			Fields:      decodeFields(p.child("fields")),
		}
		for _, pin := range p.child("pins").children("pin") {
			part.Pins = append(part.Pins, LibPin{
				Num:  pin.child("num").text(0),
				Name: pin.child("name").text(0),
				Type: pin.child("type").text(0),
			})
		}
		e.LibParts = append(e.LibParts, part)
	}
	for _, l := range root.child("libraries").children("library") {
		e.Libraries = append(e.Libraries, Library{
			Logical: l.child("logical").text(0),
			URI:     l.child("uri").text(0),
		})
	}
	for _, n := range root.child("nets").children("net") {
		code, err := n.child("code").number()
		if err != nil {
			return nil, err
		}
		net := Net{Code: code, Name: n.child("name").text(0)}
		for _, node := range n.children("node") {
			net.Nodes = append(net.Nodes, Node{
				Ref:         node.child("ref").text(0),
				Pin:         node.child("pin").text(0),
				PinType:     node.child("pintype").text(0),
				PinFunction: node.child("pinfunction").text(0),
			})
		}
		e.Nets = append(e.Nets, net)
	}
	return e, nil
}

func decodeComponent(c *expr) Component {
	out := Component{
		Ref:         c.child("ref").text(0),
		Value:       c.child("value").text(0),
		Footprint:   c.child("footprint").text(0),
		Datasheet:   c.child("datasheet").text(0),
		Description: c.child("description").text(0),
		Fields:      decodeFields(c.child("fields")),
		TStamps:     c.child("tstamps").text(0),
	}
	if src := c.child("libsource"); src != nil {
		out.Lib = src.child("lib").text(0)
		out.Part = src.child("part").text(0)
	}
	for _, p := range c.children("property") {
		out.Properties = append(out.Properties, Field{
			Name:  p.child("name").text(0),
			Value: p.child("value").text(0),
		})
	}
	if sp := c.child("sheetpath"); sp != nil {
		out.SheetNames = sp.child("names").text(0)
		out.SheetTStamps = sp.child("tstamps").text(0)
	}
	return out
}

// decodeFields reads (field (name "N") "V") entries.
func decodeFields(fields *expr) []Field {
	var out []Field
	for _, f := range fields.children("field") {
		out = append(out, Field{Name: f.child("name").text(0), Value: f.text(0)})
	}
	return out
}

// child returns the first list child with the keyword, nil when absent.
// It is safe on a nil receiver so lookups can be chained.
func (e *expr) child(keyword string) *expr {
	if e == nil {
		return nil
	}
	for _, it := range e.Items {
		if it.List != nil && it.List.Keyword == keyword {
			return it.List
		}
	}
	return nil
}

func (e *expr) children(keyword string) []*expr {
	if e == nil {
		return nil
	}
	var out []*expr
	for _, it := range e.Items {
		if it.List != nil && it.List.Keyword == keyword {
			out = append(out, it.List)
		}
	}
	return out
}

// text returns the i-th atom of the list, unquoted, or "" when missing.
func (e *expr) text(i int) string {
	if e == nil {
		return ""
	}
	for _, it := range e.Items {
		switch {
		case it.List != nil:
			continue
		case i > 0:
			i--
		case it.Str != nil:
			return unquote(*it.Str)
		case it.Atom != nil:
			return *it.Atom
		}
	}
	return ""
}

func (e *expr) number() (int, error) {
	if e == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(e.text(0))
	if err != nil {
		return 0, fmt.Errorf("netlist: %s: (%s): %w", e.Pos, e.Keyword, err)
	}
	return n, nil
}

// unquote strips the quotes of a KiCad string and resolves \\, \" and \n.
// Other escapes are kept as written.
func unquote(s string) string {
	s = strings.TrimPrefix(strings.TrimSuffix(s, `"`), `"`)
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case '\\', '"':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
