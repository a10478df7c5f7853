package synth

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/library"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/netproc"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/refs"
)

const (
	pinLength = 2.54
	textGap   = 1.27
)

// Landscape ISO sizes in millimetres, smallest first.
var papers = []struct {
	name string
	w, h float64
}{
	{"A4", 297, 210},
	{"A3", 420, 297},
	{"A2", 594, 420},
	{"A1", 841, 594},
	{"A0", 1189, 841},
}

// paperFor picks the smallest paper that holds bounds plus a margin.
func paperFor(bounds sexp.BoundingBox) string {
	if bounds.IsEmpty() {
		return papers[0].name
	}
	w, h := bounds.Max.X+sheetMargin, bounds.Max.Y+sheetMargin
	for _, p := range papers {
		if w <= p.w && h <= p.h {
			return p.name
		}
	}
	return papers[len(papers)-1].name
}

// kicadAngle converts a counter-clockwise sheet angle into the angle KiCad
// stores.
func kicadAngle(deg float64) schematic.Angle {
	return schematic.Angle(geometry.NormalizeAngle(360 - geometry.SnapOrientation(deg)))
}

// labelJustify returns the horizontal justification that keeps local and
// global label text on the far side of its anchor. Hierarchical labels
// carry their own justification from netproc.
func labelJustify(a schematic.Angle) string {
	if a == 180 || a == 270 {
		return "right"
	}
	return "left"
}

// instancePath returns the path symbol and sheet instances placed on h
// refer to. KiCad 6 paths leave out the root sheet.
func (r *run) instancePath(h circuit.Handle) string {
	ts := r.arena.TimestampPath(h)
	if r.legacy {
		ts = strings.TrimPrefix(ts, "/"+r.sheets[r.root].circuit.UUID)
	}
	return strings.TrimSuffix(ts, "/")
}

// renderSheets builds and formats one schematic per sheet.
func (r *run) renderSheets() error {
	w := schematic.Writer{KiCad: r.KiCad, Generator: r.Tool}
	project := strings.TrimSuffix(r.sheets[r.root].file, ".kicad_sch")
	for _, h := range r.order {
		s := r.sheets[h]
		sch, err := r.render(s, project)
		if err != nil {
			return fmt.Errorf("synth: render %s: %w", s.path, err)
		}
		text, err := w.Format(sch)
		if err != nil {
			return fmt.Errorf("synth: render %s: %w", s.path, err)
		}
		r.out.Sheets = append(r.out.Sheets, Sheet{
			Path:      s.path,
			File:      s.file,
			Page:      s.page,
			Schematic: sch,
			Text:      text,
		})
		r.log.Debug("sheet rendered", "sheet", s.path, "file", s.file,
			"symbols", len(sch.Symbols), "labels", len(sch.Labels)+len(sch.GlobalLabels)+len(sch.HierLabels))
	}
	return nil
}

// sheetBuilder assembles one schematic. The first UUID error sticks and is
// returned by render.
type sheetBuilder struct {
	r    *run
	s    *sheetState
	sch  *schematic.Schematic
	libs *libSymbols
	err  error
}

func (b *sheetBuilder) uuid() schematic.UUID {
	if b.err != nil {
		return ""
	}
	id, err := b.r.newUUID()
	if err != nil {
		b.err = err
		return ""
	}
	return schematic.UUID(id)
}

func (r *run) render(s *sheetState, project string) (*schematic.Schematic, error) {
	b := &sheetBuilder{
		r: r,
		s: s,
		sch: &schematic.Schematic{
			UUID:    schematic.UUID(s.circuit.UUID),
			Title:   s.circuit.Name,
			Project: project,
		},
		libs: newLibSymbols(r.Provider),
	}
	b.symbols()
	b.connectivity()
	b.noConnects()
	b.hierLabels()
	b.childSheets()
	if s.isRoot {
		b.sheetInstances()
	}
	b.sch.LibSymbols = b.libs.list
	b.sch.Paper = paperFor(b.sch.GetBoundingBox())
	return b.sch, b.err
}

func (b *sheetBuilder) symbols() {
	path := b.r.instancePath(b.s.handle)
	for _, comp := range b.s.circuit.Components {
		sym := schematic.Symbol{
			LibID:      b.libs.idFor(comp),
			Position:   comp.Position,
			Angle:      kicadAngle(comp.Rotation),
			Unit:       1,
			InBom:      true,
			OnBoard:    true,
			UUID:       schematic.UUID(comp.UUID),
			Properties: symbolProperties(comp),
			Instances:  []schematic.SymbolInstance{{Path: path, Reference: comp.Reference, Unit: 1}},
		}
		for _, pin := range comp.Pins {
			sym.Pins = append(sym.Pins, schematic.PinRef{Number: pin.ID(), UUID: b.uuid()})
		}
		b.sch.Symbols = append(b.sch.Symbols, sym)
	}
}

// symbolProperties places Reference above the body and Value below it;
// the other fields are hidden on the symbol origin.
func symbolProperties(comp *circuit.Component) []schematic.Property {
	h := comp.Height
	if r := geometry.SnapOrientation(comp.Rotation); r == 90 || r == 270 {
		h = comp.Width
	}
	field := func(key, value string, dy float64, hide bool) schematic.Property {
		return schematic.Property{
			Key:      key,
			Value:    value,
			Position: schematic.PositionAngle{Position: comp.Position.Add(geometry.Position{Y: dy})},
			Effects:  schematic.Effects{Hide: hide},
		}
	}
	datasheet := comp.Datasheet
	if datasheet == "" {
		datasheet = "~"
	}
	props := []schematic.Property{
		field("Reference", comp.Reference, -(h/2 + textGap), false),
		field("Value", comp.Value, h/2+textGap, false),
		field("Footprint", comp.Footprint, 0, true),
		field("Datasheet", datasheet, 0, true),
	}
	if comp.Description != "" {
		props = append(props, field("Description", comp.Description, 0, true))
	}
	keys := make([]string, 0, len(comp.Fields))
	for k := range comp.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		props = append(props, field(k, comp.Fields[k], 0, true))
	}
	return props
}

// connectivity attaches a label to every connected pin end. The pin that
// anchors a hierarchical label is wired to it instead.
func (b *sheetBuilder) connectivity() {
	anchors := make(map[string]netproc.HierarchicalLabel, len(b.s.labels))
	for _, l := range b.s.labels {
		anchors[l.Name] = l
	}
	for _, n := range b.s.circuit.Nets {
		class := netproc.Classify(n.Name, n.Hierarchical)
		if class == netproc.ClassHierarchical && b.s.isRoot {
			class = netproc.ClassLocal
		}
		anchor, labelled := anchors[n.Name]
		for _, conn := range n.Connections {
			comp, pin, ok := resolvePin(b.s.circuit, conn)
			if !ok || pin.IsNoConnect() {
				continue
			}
			end := pinWorld(comp, *pin)
			angle := kicadAngle(geometry.LabelOrientation(pin.Orientation, comp.Rotation))
			switch {
			case class == netproc.ClassGlobal:
				b.sch.GlobalLabels = append(b.sch.GlobalLabels, b.label(n.Name, netproc.ShapeForPin(pin.Type), end, angle))
			case class == netproc.ClassHierarchical && labelled && anchor.Ref == comp.Reference && anchor.Pin == pin.ID():
				b.sch.Wires = append(b.sch.Wires, schematic.Wire{Start: end, End: anchor.Position, UUID: b.uuid()})
			default:
				b.sch.Labels = append(b.sch.Labels, b.label(n.Name, "", end, angle))
			}
		}
	}
}

func (b *sheetBuilder) label(text, shape string, at geometry.Position, angle schematic.Angle) schematic.Label {
	return schematic.Label{
		Text:     text,
		Shape:    shape,
		Position: at,
		Angle:    angle,
		Effects:  schematic.Effects{Justify: sexp.Justify{Horizontal: labelJustify(angle)}},
		UUID:     b.uuid(),
	}
}

func (b *sheetBuilder) noConnects() {
	for _, comp := range b.s.circuit.Components {
		for _, pin := range comp.Pins {
			if pin.IsNoConnect() {
				b.sch.NoConnects = append(b.sch.NoConnects, schematic.NoConnect{Position: pinWorld(comp, pin), UUID: b.uuid()})
			}
		}
	}
}

func (b *sheetBuilder) hierLabels() {
	for _, l := range b.s.labels {
		angle := kicadAngle(l.Orientation)
		b.sch.HierLabels = append(b.sch.HierLabels, schematic.Label{
			Text:     l.Name,
			Shape:    l.Shape,
			Position: l.Position,
			Angle:    angle,
			Effects: schematic.Effects{
				Font:    sexp.Font{Size: sexp.Size{Width: l.FontSize, Height: l.FontSize}},
				Justify: sexp.Justify{Horizontal: l.Justify},
			},
			UUID: schematic.UUID(l.UUID),
		})
	}
}

// childSheets draws a sheet symbol per child with one pin per hierarchical
// label of the child, each joined to the parent net by a local label.
func (b *sheetBuilder) childSheets() {
	parent := b.r.instancePath(b.s.handle)
	for _, child := range b.s.children(b.r) {
		shapes := make(map[string]string, len(child.labels))
		for _, l := range child.labels {
			shapes[l.Name] = l.Shape
		}
		sheet := schematic.Sheet{
			Position:  child.origin,
			Size:      child.size,
			UUID:      schematic.UUID(child.circuit.UUID),
			Name:      child.circuit.Name,
			FileName:  child.file,
			Instances: []schematic.SheetInstance{{Path: parent, Page: fmt.Sprint(child.page)}},
		}
		for i, name := range child.pins {
			shape, ok := shapes[name]
			if !ok {
				continue
			}
			at := child.origin.Add(child.pinOffset(i))
			sheet.Pins = append(sheet.Pins, schematic.SheetPin{
				Name:     name,
				Shape:    shape,
				Position: at,
				Angle:    180,
				UUID:     b.uuid(),
			})
			b.sch.Labels = append(b.sch.Labels, b.label(name, "", at, 180))
		}
		b.sch.Sheets = append(b.sch.Sheets, sheet)
	}
}

// sheetInstances lists the pages of the design on the root sheet. KiCad 6
// keeps every sheet there; later releases only the root.
func (b *sheetBuilder) sheetInstances() {
	b.sch.SheetInstances = []schematic.SheetInstance{{Path: "/", Page: "1"}}
	if !b.r.legacy {
		return
	}
	for _, h := range b.r.order[1:] {
		s := b.r.sheets[h]
		b.sch.SheetInstances = append(b.sch.SheetInstances, schematic.SheetInstance{
			Path: b.r.instancePath(h) + "/",
			Page: fmt.Sprint(s.page),
		})
	}
}

// libSymbols collects the embedded symbol definitions of a sheet. A library
// definition is used when its pins match the component; otherwise one is
// drawn from the component pins. Components sharing a symbol with different
// pins get numbered variants.
type libSymbols struct {
	source library.SymbolSource
	ids    map[string]string // symbol and pin signature to lib id
	count  map[string]int
	list   []schematic.LibSymbol
}

func newLibSymbols(p library.Provider) *libSymbols {
	src, _ := p.(library.SymbolSource)
	return &libSymbols{
		source: src,
		ids:    make(map[string]string),
		count:  make(map[string]int),
	}
}

func (ls *libSymbols) idFor(comp *circuit.Component) string {
	k := comp.Symbol + "\x00" + pinSignature(comp)
	if id, ok := ls.ids[k]; ok {
		return id
	}
	id := comp.Symbol
	if n := ls.count[comp.Symbol]; n > 0 {
		id = fmt.Sprintf("%s_%d", comp.Symbol, n)
	}
	ls.count[comp.Symbol]++
	ls.ids[k] = id
	ls.list = append(ls.list, ls.definition(id, comp))
	return id
}

func pinSignature(comp *circuit.Component) string {
	var b strings.Builder
	for _, p := range comp.Pins {
		fmt.Fprintf(&b, "%s/%s/%s@%.4f,%.4f,%g;", p.Number, p.Name, p.Type, p.Position.X, p.Position.Y, p.Orientation)
	}
	return b.String()
}

func (ls *libSymbols) definition(id string, comp *circuit.Component) schematic.LibSymbol {
	if ls.source != nil {
		lib, part := library.SplitID(comp.Symbol)
		if sym, ok := ls.source.Symbol(lib, part); ok && pinsMatch(sym, comp) {
			sym.Name = id
			return sym
		}
	}
	return drawSymbol(id, comp)
}

// pinsMatch reports whether every component pin sits where the library
// definition draws it.
func pinsMatch(sym schematic.LibSymbol, comp *circuit.Component) bool {
	defs := make(map[string]library.PinDef)
	for _, d := range library.PinsFromSymbol(sym) {
		id := d.Number
		if id == "" {
			id = d.Name
		}
		defs[id] = d
	}
	if len(defs) != len(comp.Pins) {
		return false
	}
	for _, p := range comp.Pins {
		d, ok := defs[p.ID()]
		if !ok || p.Position.Distance(d.Position) > 1e-6 {
			return false
		}
		if turn := geometry.NormalizeAngle(p.Orientation - d.Orientation); math.Min(turn, 360-turn) > 1e-6 {
			return false
		}
	}
	return true
}

// drawSymbol builds a box symbol around the component pins. Library
// symbols are drawn with Y up.
func drawSymbol(id string, comp *circuit.Component) schematic.LibSymbol {
	body := sexp.NewBoundingBox()
	for _, p := range comp.Pins {
		body.Expand(p.Position.Add(geometry.Direction(p.Orientation).Scale(pinLength)))
	}
	if body.IsEmpty() {
		body = sexp.BoxAround(geometry.Position{}, 2*pinLength, 2*pinLength)
	}
	c := body.Center()
	if body.Width() < pinLength {
		body.Min.X, body.Max.X = c.X-pinLength/2, c.X+pinLength/2
	}
	if body.Height() < pinLength {
		body.Min.Y, body.Max.Y = c.Y-pinLength/2, c.Y+pinLength/2
	}

	prefix := refs.ExtractPrefix(comp.Reference)
	if prefix == "" {
		prefix = refs.DefaultPrefix(comp.Symbol)
	}
	prop := func(key, value string, y float64, hide bool) schematic.Property {
		return schematic.Property{
			Key:      key,
			Value:    value,
			Position: schematic.PositionAngle{Position: geometry.Position{Y: y}},
			Effects:  schematic.Effects{Hide: hide},
		}
	}
	ls := schematic.LibSymbol{
		Name:    id,
		InBom:   true,
		OnBoard: true,
		Properties: []schematic.Property{
			prop("Reference", prefix, -body.Min.Y+textGap, false),
			prop("Value", comp.Part(), -body.Max.Y-textGap, false),
			prop("Footprint", "", 0, true),
			prop("Datasheet", "~", 0, true),
		},
		Body: []schematic.Rectangle{{
			Start: geometry.Position{X: body.Min.X, Y: -body.Min.Y},
			End:   geometry.Position{X: body.Max.X, Y: -body.Max.Y},
		}},
	}
	for _, p := range comp.Pins {
		ls.Pins = append(ls.Pins, schematic.Pin{
			Type:     p.Type.String(),
			Style:    "line",
			Position: geometry.Position{X: p.Position.X, Y: -p.Position.Y},
			Angle:    kicadAngle(p.Orientation),
			Length:   pinLength,
			Name:     p.Name,
			Number:   p.Number,
		})
	}
	return ls
}
