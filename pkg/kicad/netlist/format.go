package netlist

import (
	"io"
	"strconv"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
)

// Format renders the netlist in the layout Eeschema writes.
func (e *Export) Format() string {
	return sexp.NetlistWriter.Format(e.Tree())
}

// WriteTo writes the formatted netlist to w.
func (e *Export) WriteTo(w io.Writer) (int64, error) {
	return sexp.NetlistWriter.WriteTo(w, e.Tree())
}

// Tree returns the netlist as an S-expression tree.
func (e *Export) Tree() sexp.Node {
	version := e.Version
	if version == "" {
		version = Version
	}

	root := sexp.List("export", sexp.List("version", sexp.Str(version))).Keep(1)
	root.Append(e.Design.tree())

	components := sexp.List("components")
	for _, c := range e.Components {
		components.Append(c.tree())
	}
	root.Append(components)

	libparts := sexp.List("libparts")
	for _, p := range e.LibParts {
		libparts.Append(p.tree())
	}
	root.Append(libparts)

	libraries := sexp.List("libraries")
	for _, l := range e.Libraries {
		libraries.Append(sexp.List("library",
			sexp.List("logical", sexp.Str(l.Logical)),
			sexp.List("uri", sexp.Str(l.URI)),
		).Keep(1))
	}
	root.Append(libraries)

	nets := sexp.List("nets")
	for _, n := range e.Nets {
		nets.Append(n.tree())
	}
	root.Append(nets)
	return root
}

func quoted(keyword, value string) sexp.Node {
	return sexp.List(keyword, sexp.Str(value))
}

func (d Design) tree() sexp.Node {
	n := sexp.List("design",
		quoted("source", d.Source),
		quoted("date", d.Date),
		quoted("tool", d.Tool),
	)
	for _, s := range d.Sheets {
		n.Append(sexp.List("sheet",
			quoted("number", strconv.Itoa(s.Number)),
			quoted("name", s.Name),
			quoted("tstamps", s.TStamps),
			sexp.List("title_block",
				quoted("title", s.Title),
				sexp.List("company"),
				sexp.List("rev"),
				sexp.List("date"),
				quoted("source", s.Source),
			),
		).Keep(3))
	}
	return n
}

func fieldNode(f Field) sexp.Node {
	return sexp.List("field", quoted("name", f.Name), sexp.Str(f.Value)).Inline()
}

func (c Component) tree() sexp.Node {
	n := sexp.List("comp", quoted("ref", c.Ref)).Keep(1)
	n.Append(quoted("value", c.Value))
	if c.Footprint != "" {
		n.Append(quoted("footprint", c.Footprint))
	}
	if c.Datasheet != "" {
		n.Append(quoted("datasheet", c.Datasheet))
	}
	if c.Description != "" {
		n.Append(quoted("description", c.Description))
	}
	if len(c.Fields) > 0 {
		fields := sexp.List("fields")
		for _, f := range c.Fields {
			fields.Append(fieldNode(f))
		}
		n.Append(fields)
	}
	if c.Part != "" {
		n.Append(sexp.List("libsource", quoted("lib", c.Lib), quoted("part", c.Part)).Inline())
	}
	for _, p := range c.Properties {
		n.Append(sexp.List("property", quoted("name", p.Name), quoted("value", p.Value)).Inline())
	}
	n.Append(
		sexp.List("sheetpath", quoted("names", c.SheetNames), quoted("tstamps", c.SheetTStamps)).Inline(),
		quoted("tstamps", c.TStamps),
	)
	return n
}

func (p LibPart) tree() sexp.Node {
	n := sexp.List("libpart", quoted("lib", p.Lib), quoted("part", p.Part)).Keep(2)
	if p.Description != "" {
		n.Append(quoted("description", p.Description))
	}
	if p.Docs != "" {
		n.Append(quoted("docs", p.Docs))
	}
	if len(p.Fields) > 0 {
		fields := sexp.List("fields")
		for _, f := range p.Fields {
			fields.Append(fieldNode(f))
		}
		n.Append(fields)
	}
	if len(p.Pins) > 0 {
		pins := sexp.List("pins")
		for _, pin := range p.Pins {
			pins.Append(sexp.List("pin",
				quoted("num", pin.Num),
				quoted("name", pin.Name),
				quoted("type", pin.Type),
			).Inline())
		}
		n.Append(pins)
	}
	return n
}

func (n Net) tree() sexp.Node {
	out := sexp.List("net", quoted("code", strconv.Itoa(n.Code)), quoted("name", n.Name)).Keep(2)
	for _, node := range n.Nodes {
		item := sexp.List("node",
			quoted("ref", node.Ref),
			quoted("pin", node.Pin),
			quoted("pintype", node.PinType),
		)
		if node.PinFunction != "" {
			item.Append(quoted("pinfunction", node.PinFunction))
		}
		out.Append(item.Inline())
	}
	return out
}
