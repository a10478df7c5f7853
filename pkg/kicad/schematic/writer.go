package schematic

import (
	"errors"
	"fmt"
	"io"
	"strings"

	version "github.com/mcuadros/go-version"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
)

// ErrUnsupportedVersion is returned for KiCad releases older than 6.0.
var ErrUnsupportedVersion = errors.New("schematic: unsupported KiCad version")

// DefaultKiCad is the release targeted when Writer.KiCad is empty.
const DefaultKiCad = "8.0"

// DefaultGenerator is written when Writer.Generator is empty.
const DefaultGenerator = "opentracesynth"

// formatVersions maps KiCad releases to schematic file format versions,
// newest first.
var formatVersions = []struct {
	kicad  string
	format int
}{
	{"8.0", 20231120},
	{"7.0", 20230121},
	{"6.0", 20211123},
}

// FormatVersion returns the file format version written for a KiCad
// release ("6.0", "7.0.11", "8"). Newer releases get the newest format
// known here.
func FormatVersion(kicad string) (int, error) {
	if kicad == "" {
		kicad = DefaultKiCad
	}
	for _, fv := range formatVersions {
		if version.Compare(kicad, fv.kicad, ">=") {
			return fv.format, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedVersion, kicad)
}

// Writer renders Schematic values as .kicad_sch text. Coordinates and
// angles are written as given, in KiCad's convention.
type Writer struct {
	KiCad     string // Target release; DefaultKiCad when empty
	Generator string
}

// features are the format differences between releases.
type features struct {
	format int
	v7     bool // per-symbol instances, dnp, Sheetname/Sheetfile
	v8     bool // generator_version, exclude_from_sim, (hide yes), embedded_fonts, no property ids
}

func (w Writer) features() (features, error) {
	format, err := FormatVersion(w.KiCad)
	if err != nil {
		return features{}, err
	}
	return features{
		format: format,
		v7:     format >= 20230121,
		v8:     format >= 20231120,
	}, nil
}

// Format renders s.
func (w Writer) Format(s *Schematic) (string, error) {
	tree, err := w.Tree(s)
	if err != nil {
		return "", err
	}
	return sexp.SchematicWriter.Format(tree), nil
}

// Write renders s to out.
func (w Writer) Write(out io.Writer, s *Schematic) error {
	tree, err := w.Tree(s)
	if err != nil {
		return err
	}
	if _, err := sexp.SchematicWriter.WriteTo(out, tree); err != nil {
		return fmt.Errorf("schematic: write: %w", err)
	}
	return nil
}

// Tree returns s as an S-expression tree.
func (w Writer) Tree(s *Schematic) (sexp.Node, error) {
	f, err := w.features()
	if err != nil {
		return sexp.Node{}, err
	}
	generator := w.Generator
	if generator == "" {
		generator = DefaultGenerator
	}

	root := sexp.List("kicad_sch", sexp.List("version", sexp.Int(f.format)))
	if f.v8 {
		root.Append(
			sexp.List("generator", sexp.Str(generator)),
			sexp.List("generator_version", sexp.Str(majorMinor(w.KiCad))),
		)
	} else {
		root.Append(sexp.List("generator", sexp.Sym(generator)))
	}
	if s.UUID != "" {
		root.Append(f.uuid(s.UUID))
	}
	paper := s.Paper
	if paper == "" {
		paper = "A4"
	}
	root.Append(sexp.List("paper", sexp.Str(paper)))
	if s.Title != "" {
		root.Append(sexp.List("title_block", sexp.List("title", sexp.Str(s.Title))))
	}

	libs := sexp.List("lib_symbols")
	for _, ls := range s.LibSymbols {
		libs.Append(f.libSymbol(ls))
	}
	root.Append(libs)

	for _, nc := range s.NoConnects {
		n := sexp.List("no_connect", at(nc.Position))
		if nc.UUID != "" {
			n.Append(f.uuid(nc.UUID))
		}
		root.Append(n)
	}
	for _, wire := range s.Wires {
		n := sexp.List("wire",
			sexp.List("pts", xy(wire.Start), xy(wire.End)).Inline(),
			sexp.List("stroke", sexp.List("width", sexp.Int(0)), sexp.List("type", sexp.Sym("default"))).Inline(),
		)
		if wire.UUID != "" {
			n.Append(f.uuid(wire.UUID))
		}
		root.Append(n)
	}
	for _, l := range s.Labels {
		root.Append(f.label("label", l))
	}
	for _, l := range s.GlobalLabels {
		root.Append(f.label("global_label", l))
	}
	for _, l := range s.HierLabels {
		root.Append(f.label("hierarchical_label", l))
	}
	for _, sym := range s.Symbols {
		root.Append(f.symbol(sym, s.Project))
	}
	for _, sheet := range s.Sheets {
		root.Append(f.sheet(sheet, s.Project))
	}

	if len(s.SheetInstances) > 0 {
		instances := sexp.List("sheet_instances")
		for _, inst := range s.SheetInstances {
			instances.Append(sexp.List("path", sexp.Str(inst.Path), sexp.List("page", sexp.Str(inst.Page))))
		}
		root.Append(instances)
	}
	if !f.v7 {
		if instances, ok := legacySymbolInstances(s.Symbols); ok {
			root.Append(instances)
		}
	}
	if f.v8 {
		root.Append(sexp.List("embedded_fonts", sexp.YesNo(false)))
	}
	return root, nil
}

// majorMinor trims a release to "major.minor".
func majorMinor(kicad string) string {
	if kicad == "" {
		kicad = DefaultKiCad
	}
	parts := strings.SplitN(kicad, ".", 3)
	if len(parts) == 1 {
		return parts[0] + ".0"
	}
	return parts[0] + "." + parts[1]
}

func (f features) uuid(id UUID) sexp.Node {
	if f.v8 {
		return sexp.List("uuid", sexp.Str(string(id)))
	}
	return sexp.List("uuid", sexp.Sym(string(id)))
}

func at(p Position) sexp.Node {
	return sexp.List("at", sexp.Num(p.X), sexp.Num(p.Y))
}

func atAngle(p Position, a Angle) sexp.Node {
	return sexp.List("at", sexp.Num(p.X), sexp.Num(p.Y), sexp.Num(float64(a)))
}

func xy(p Position) sexp.Node {
	return sexp.List("xy", sexp.Num(p.X), sexp.Num(p.Y))
}

const defaultFontSize = 1.27

func (f features) effects(e Effects) sexp.Node {
	w, h := e.Font.Size.Width, e.Font.Size.Height
	if w == 0 || h == 0 {
		w, h = defaultFontSize, defaultFontSize
	}
	font := sexp.List("font", sexp.List("size", sexp.Num(w), sexp.Num(h)))
	for _, flag := range []struct {
		name string
		on   bool
	}{{"bold", e.Font.Bold}, {"italic", e.Font.Italic}} {
		switch {
		case !flag.on:
		case f.v8:
			font.Append(sexp.List(flag.name, sexp.YesNo(true)))
		default:
			font.Append(sexp.Sym(flag.name))
		}
	}
	n := sexp.List("effects", font)

	var justify []sexp.Node
	if hz := e.Justify.Horizontal; hz != "" && hz != "center" {
		justify = append(justify, sexp.Sym(hz))
	}
	if v := e.Justify.Vertical; v != "" && v != "center" {
		justify = append(justify, sexp.Sym(v))
	}
	if e.Justify.Mirror {
		justify = append(justify, sexp.Sym("mirror"))
	}
	if len(justify) > 0 {
		n.Append(sexp.List("justify", justify...))
	}
	if e.Hide {
		if f.v8 {
			n.Append(sexp.List("hide", sexp.YesNo(true)))
		} else {
			n.Append(sexp.Sym("hide"))
		}
	}
	return n.Inline()
}

func (f features) property(p Property, id int) sexp.Node {
	n := sexp.List("property", sexp.Str(p.Key), sexp.Str(p.Value))
	if !f.v8 {
		n.Append(sexp.List("id", sexp.Int(id)))
	}
	n.Append(atAngle(p.Position.Position, p.Position.Angle), f.effects(p.Effects))
	return n
}

// unitPrefix is the symbol name KiCad uses for unit sub-symbols: the part
// name without its library.
func unitPrefix(name string) string {
	if i := strings.LastIndex(name, ":"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func (f features) libSymbol(ls LibSymbol) sexp.Node {
	n := sexp.List("symbol", sexp.Str(ls.Name))
	if f.v8 {
		n.Append(sexp.List("exclude_from_sim", sexp.YesNo(false)))
	}
	n.Append(
		sexp.List("in_bom", sexp.YesNo(ls.InBom)),
		sexp.List("on_board", sexp.YesNo(ls.OnBoard)),
	)
	for i, p := range ls.Properties {
		n.Append(f.property(p, i))
	}

	part := unitPrefix(ls.Name)
	if len(ls.Body) > 0 {
		body := sexp.List("symbol", sexp.Str(part+"_0_1"))
		for _, r := range ls.Body {
			body.Append(sexp.List("rectangle",
				sexp.List("start", sexp.Num(r.Start.X), sexp.Num(r.Start.Y)),
				sexp.List("end", sexp.Num(r.End.X), sexp.Num(r.End.Y)),
				sexp.List("stroke", sexp.List("width", sexp.Num(0.254)), sexp.List("type", sexp.Sym("default"))).Inline(),
				sexp.List("fill", sexp.List("type", sexp.Sym("background"))).Inline(),
			))
		}
		n.Append(body)
	}
	if len(ls.Pins) > 0 {
		unit := sexp.List("symbol", sexp.Str(part+"_1_1"))
		for _, p := range ls.Pins {
			unit.Append(f.libPin(p))
		}
		n.Append(unit)
	}
	return n
}

func (f features) libPin(p Pin) sexp.Node {
	style := p.Style
	if style == "" {
		style = "line"
	}
	pinType := p.Type
	if pinType == "" {
		pinType = "passive"
	}
	n := sexp.List("pin", sexp.Sym(pinType), sexp.Sym(style))
	if p.Hide && !f.v8 {
		n.Append(sexp.Sym("hide"))
	}
	n.Append(
		atAngle(p.Position, p.Angle),
		sexp.List("length", sexp.Num(p.Length)),
	)
	if p.Hide && f.v8 {
		n.Append(sexp.List("hide", sexp.YesNo(true)))
	}
	name := p.Name
	if name == "" {
		name = "~"
	}
	n.Append(
		sexp.List("name", sexp.Str(name), f.effects(Effects{})).Keep(1),
		sexp.List("number", sexp.Str(p.Number), f.effects(Effects{})).Keep(1),
	)
	return n
}

func (f features) label(kind string, l Label) sexp.Node {
	n := sexp.List(kind, sexp.Str(l.Text))
	if kind != "label" {
		shape := l.Shape
		if shape == "" {
			shape = "passive"
		}
		n.Append(sexp.List("shape", sexp.Sym(shape)))
	}
	n.Append(atAngle(l.Position, l.Angle), f.effects(l.Effects))
	if l.UUID != "" {
		n.Append(f.uuid(l.UUID))
	}
	return n
}

func (f features) symbol(sym Symbol, project string) sexp.Node {
	unit := sym.Unit
	if unit == 0 {
		unit = 1
	}
	n := sexp.List("symbol",
		sexp.List("lib_id", sexp.Str(sym.LibID)),
		atAngle(sym.Position, sym.Angle),
	)
	if sym.Mirror != "" {
		n.Append(sexp.List("mirror", sexp.Sym(sym.Mirror)))
	}
	n.Append(sexp.List("unit", sexp.Int(unit)))
	if f.v8 {
		n.Append(sexp.List("exclude_from_sim", sexp.YesNo(false)))
	}
	n.Append(
		sexp.List("in_bom", sexp.YesNo(sym.InBom)),
		sexp.List("on_board", sexp.YesNo(sym.OnBoard)),
	)
	if f.v7 {
		n.Append(sexp.List("dnp", sexp.YesNo(false)))
	}
	if sym.UUID != "" {
		n.Append(f.uuid(sym.UUID))
	}
	for i, p := range sym.Properties {
		n.Append(f.property(p, i))
	}
	for _, pin := range sym.Pins {
		pn := sexp.List("pin", sexp.Str(pin.Number))
		if pin.UUID != "" {
			pn.Append(f.uuid(pin.UUID))
		}
		n.Append(pn.Keep(1))
	}
	if f.v7 && len(sym.Instances) > 0 {
		proj := sexp.List("project", sexp.Str(project))
		for _, inst := range sym.Instances {
			proj.Append(sexp.List("path", sexp.Str(inst.Path),
				sexp.List("reference", sexp.Str(inst.Reference)),
				sexp.List("unit", sexp.Int(instanceUnit(inst))),
			))
		}
		n.Append(sexp.List("instances", proj))
	}
	return n
}

func instanceUnit(inst SymbolInstance) int {
	if inst.Unit == 0 {
		return 1
	}
	return inst.Unit
}

// legacySymbolInstances builds the KiCad 6 root symbol_instances block.
func legacySymbolInstances(symbols []Symbol) (sexp.Node, bool) {
	n := sexp.List("symbol_instances")
	for _, sym := range symbols {
		for _, inst := range sym.Instances {
			p := strings.TrimSuffix(inst.Path, "/") + "/" + string(sym.UUID)
			n.Append(sexp.List("path", sexp.Str(p),
				sexp.List("reference", sexp.Str(inst.Reference)),
				sexp.List("unit", sexp.Int(instanceUnit(inst))),
			))
		}
	}
	return n, n.Len() > 1
}

func (f features) sheet(sh Sheet, project string) sexp.Node {
	n := sexp.List("sheet",
		at(sh.Position),
		sexp.List("size", sexp.Num(sh.Size.Width), sexp.Num(sh.Size.Height)),
		sexp.List("stroke", sexp.List("width", sexp.Num(0.1524)), sexp.List("type", sexp.Sym("solid"))).Inline(),
		sexp.List("fill", sexp.List("color", sexp.Int(0), sexp.Int(0), sexp.Int(0), sexp.Num(0))).Inline(),
	)
	if sh.UUID != "" {
		n.Append(f.uuid(sh.UUID))
	}

	nameKey, fileKey := "Sheetname", "Sheetfile"
	if !f.v7 {
		nameKey, fileKey = "Sheet name", "Sheet file"
	}
	props := []Property{
		{
			Key: nameKey, Value: sh.Name,
			Position: PositionAngle{Position: Position{X: sh.Position.X, Y: sh.Position.Y - 0.7116}},
			Effects:  Effects{Justify: sexp.Justify{Horizontal: "left", Vertical: "bottom"}},
		},
		{
			Key: fileKey, Value: sh.FileName,
			Position: PositionAngle{Position: Position{X: sh.Position.X, Y: sh.Position.Y + sh.Size.Height + 0.5846}},
			Effects:  Effects{Justify: sexp.Justify{Horizontal: "left", Vertical: "top"}},
		},
	}
	props = append(props, sh.Properties...)
	for i, p := range props {
		n.Append(f.property(p, i))
	}

	for _, pin := range sh.Pins {
		shape := pin.Shape
		if shape == "" {
			shape = "passive"
		}
		justify := "left"
		if pin.Angle == 0 {
			justify = "right"
		}
		pn := sexp.List("pin", sexp.Str(pin.Name), sexp.Sym(shape),
			atAngle(pin.Position, pin.Angle),
			f.effects(Effects{Justify: sexp.Justify{Horizontal: justify}}),
		)
		if pin.UUID != "" {
			pn.Append(f.uuid(pin.UUID))
		}
		n.Append(pn)
	}

	if f.v7 && len(sh.Instances) > 0 {
		proj := sexp.List("project", sexp.Str(project))
		for _, inst := range sh.Instances {
			proj.Append(sexp.List("path", sexp.Str(inst.Path), sexp.List("page", sexp.Str(inst.Page))))
		}
		n.Append(sexp.List("instances", proj))
	}
	return n
}
