package synth

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/netlist"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/library"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/netproc"
)

func testProvider() *library.MemoryProvider {
	p := library.NewMemoryProvider()
	passive := []library.PinDef{
		{Number: "1", Name: "~", Type: circuit.PinPassive},
		{Number: "2", Name: "~", Type: circuit.PinPassive},
	}
	p.Add("Device", "R", passive)
	p.Add("Device", "C", passive)
	p.Add("MCU", "Chip", []library.PinDef{
		{Number: "10", Name: "PA0", Type: circuit.PinBidirectional},
		{Number: "2", Name: "VDD", Type: circuit.PinPowerIn},
		{Number: "3", Name: "NC", Type: circuit.PinNoConnect},
		{Number: "4", Name: "GND", Type: circuit.PinPowerIn},
	})
	return p
}

// design is a pull-up and a decoupling capacitor on the root sheet and a
// microcontroller on an MCU subsheet, joined by the hierarchical DATA net.
func design(t *testing.T) (*circuit.Arena, circuit.Handle) {
	t.Helper()
	a := circuit.NewArena()
	root := a.NewCircuit("board")
	mcu, err := a.AddSubcircuit(root, "MCU")
	require.NoError(t, err)

	r1 := &circuit.Component{Symbol: "Device:R", Value: "10k", Footprint: "Resistor_SMD:R_0603_1608Metric"}
	c1 := &circuit.Component{Symbol: "Device:C", Value: "100n"}
	u1 := &circuit.Component{Reference: "U1", Symbol: "MCU:Chip", Value: "Chip"}
	require.NoError(t, a.AddComponent(root, r1))
	require.NoError(t, a.AddComponent(root, c1))
	require.NoError(t, a.AddComponent(mcu, u1))

	vcc := &circuit.Net{Name: "VCC"}
	vcc.Connect(r1, "1")
	vcc.Connect(c1, "1")
	data := &circuit.Net{Name: "DATA"}
	data.Connect(r1, "2")
	gnd := &circuit.Net{Name: "GND"}
	gnd.Connect(c1, "2")
	for _, n := range []*circuit.Net{vcc, data, gnd} {
		require.NoError(t, a.AddNet(root, n))
	}

	sub := &circuit.Net{Name: "DATA", Hierarchical: true}
	sub.Connect(u1, "PA0")
	subVCC := &circuit.Net{Name: "VCC"}
	subVCC.Connect(u1, "VDD")
	subGND := &circuit.Net{Name: "GND"}
	subGND.Connect(u1, "GND")
	for _, n := range []*circuit.Net{sub, subVCC, subGND} {
		require.NoError(t, a.AddNet(mcu, n))
	}
	return a, root
}

func generator(seed int64) *Generator {
	return &Generator{
		Provider:   testProvider(),
		Date:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		UUIDSource: rand.New(rand.NewSource(seed)),
	}
}

func runDesign(t *testing.T, g *Generator) *Output {
	t.Helper()
	a, root := design(t)
	out, err := g.Run(a, root)
	require.NoError(t, err)
	return out
}

func parseSheet(t *testing.T, out *Output, path string) *schematic.Schematic {
	t.Helper()
	s, ok := out.Sheet(path)
	require.True(t, ok, "sheet %s missing", path)
	sch, err := schematic.Parse(strings.NewReader(s.Text))
	require.NoError(t, err, "parse %s", s.File)
	return sch
}

func TestRun(t *testing.T) {
	out := runDesign(t, generator(1))

	require.Len(t, out.Sheets, 2)
	assert.Equal(t, []string{"board.kicad_sch", "MCU.kicad_sch"}, []string{out.Sheets[0].File, out.Sheets[1].File})
	assert.Equal(t, []int{1, 2}, []int{out.Sheets[0].Page, out.Sheets[1].Page})
	for _, s := range out.Sheets {
		assert.NoError(t, sexp.Lint(s.Text, "kicad_sch"), s.File)
	}
	assert.NoError(t, sexp.Lint(out.Netlist, "export"))
	assert.Empty(t, out.LabelFailures)

	e, err := netlist.ParseString(out.Netlist)
	require.NoError(t, err)
	data, ok := e.Net("DATA")
	require.True(t, ok, "DATA joins both sheets")
	var nodes []string
	for _, n := range data.Nodes {
		nodes = append(nodes, n.Ref+"."+n.Pin)
	}
	assert.ElementsMatch(t, []string{"R1.2", "U1.10"}, nodes)
	_, ok = e.Net("unconnected-U1-3")
	assert.True(t, ok, "no-connect pin gets its own net")
}

func TestRunRootSheet(t *testing.T) {
	out := runDesign(t, generator(1))
	sch := parseSheet(t, out, "/")

	assert.Equal(t, "A4", sch.Paper)
	assert.ElementsMatch(t, []string{"C1", "R1"}, sch.GetAllReferences())
	require.Len(t, sch.Sheets, 1)
	sheet := sch.Sheets[0]
	assert.Equal(t, "MCU", sheet.Name)
	assert.Equal(t, "MCU.kicad_sch", sheet.FileName)
	require.Len(t, sheet.Pins, 1)
	pin := sheet.Pins[0]
	assert.Equal(t, "DATA", pin.Name)
	assert.Equal(t, "bidirectional", pin.Shape)
	assert.Equal(t, schematic.Angle(180), pin.Angle)
	assert.Equal(t, sheet.Position.X, pin.Position.X, "pin on the left edge")

	var dataLabels []schematic.Position
	for _, l := range sch.Labels {
		if l.Text == "DATA" {
			dataLabels = append(dataLabels, l.Position)
		}
	}
	require.Len(t, dataLabels, 2, "one on R1, one on the sheet pin")
	assert.Contains(t, dataLabels, pin.Position)

	var globals []string
	for _, l := range sch.GlobalLabels {
		globals = append(globals, l.Text)
	}
	assert.ElementsMatch(t, []string{"VCC", "VCC", "GND"}, globals)
	assert.Empty(t, sch.HierLabels, "the root has no parent to talk to")

	root, _ := out.Sheet("/")
	rootUUID := string(root.Schematic.UUID)
	for _, sym := range sch.Symbols {
		require.Len(t, sym.Instances, 1)
		assert.Equal(t, "/"+rootUUID, sym.Instances[0].Path)
		assert.True(t, geometry.OnGrid(sym.Position, geometry.GridSize, 1e-6), "%s at %v", sym.Reference(), sym.Position)
	}
	require.Len(t, sheet.Instances, 1)
	assert.Equal(t, schematic.SheetInstance{Path: "/" + rootUUID, Page: "2"}, sheet.Instances[0])
	assert.True(t, geometry.OnGrid(sheet.Position, 2.54, 1e-6))
}

func TestRunSubsheet(t *testing.T) {
	out := runDesign(t, generator(1))
	sch := parseSheet(t, out, "/MCU")

	require.Len(t, sch.HierLabels, 1)
	hl := sch.HierLabels[0]
	assert.Equal(t, "DATA", hl.Text)
	assert.Equal(t, "bidirectional", hl.Shape)
	require.Len(t, out.Labels["/MCU"], 1)
	placed := out.Labels["/MCU"][0]
	assert.Equal(t, "U1", placed.Ref)
	want := netproc.Justification(placed.Orientation)
	mcuSheet, _ := out.Sheet("/MCU")
	require.Len(t, mcuSheet.Schematic.HierLabels, 1)
	assert.Equal(t, want, mcuSheet.Schematic.HierLabels[0].Effects.Justify.Horizontal)
	if want == "center" {
		assert.NotEqual(t, "left", hl.Effects.Justify.Horizontal)
		assert.NotEqual(t, "right", hl.Effects.Justify.Horizontal)
	} else {
		assert.Equal(t, want, hl.Effects.Justify.Horizontal)
	}

	require.Len(t, sch.Wires, 1, "anchor pin wired to its label")
	assert.Equal(t, hl.Position, sch.Wires[0].End)
	assert.Empty(t, sch.Labels)
	require.Len(t, sch.NoConnects, 1)
	assert.Len(t, sch.GlobalLabels, 2)

	u1 := sch.GetSymbol("U1")
	require.NotNil(t, u1)
	assert.Len(t, u1.Pins, 4)
	lib := sch.GetLibSymbol("MCU:Chip")
	require.NotNil(t, lib, "pins drawn into an embedded symbol")
	assert.Len(t, lib.Pins, 4)
	assert.NotEmpty(t, lib.Body)

	mcu, _ := out.Sheet("/MCU")
	root, _ := out.Sheet("/")
	want = "/" + string(root.Schematic.UUID) + "/" + string(mcu.Schematic.UUID)
	require.Len(t, u1.Instances, 1)
	assert.Equal(t, want, u1.Instances[0].Path)

	for _, w := range sch.Wires {
		assert.True(t, geometry.OnGrid(w.Start, geometry.GridSize, 1e-6), "wire start %v", w.Start)
	}
}

func TestRunDeterministic(t *testing.T) {
	first := runDesign(t, generator(7))
	second := runDesign(t, generator(7))
	if diff := cmp.Diff(first.Files(), second.Files()); diff != "" {
		t.Errorf("schematics differ between runs (-first +second):\n%s", diff)
	}
	if first.Netlist != second.Netlist {
		t.Errorf("netlists differ between runs")
	}
}

func TestRunLegacy(t *testing.T) {
	g := generator(3)
	g.KiCad = "6.0"
	out := runDesign(t, g)

	root, _ := out.Sheet("/")
	mcu, _ := out.Sheet("/MCU")
	assert.Contains(t, root.Text, "(version 20211123)")
	assert.Contains(t, root.Text, "(symbol_instances")
	assert.Equal(t, []schematic.SheetInstance{
		{Path: "/", Page: "1"},
		{Path: "/" + string(mcu.Schematic.UUID) + "/", Page: "2"},
	}, root.Schematic.SheetInstances)

	u1 := mcu.Schematic.GetSymbol("U1")
	require.NotNil(t, u1)
	assert.Equal(t, "/"+string(mcu.Schematic.UUID), u1.Instances[0].Path)
	r1 := root.Schematic.GetSymbol("R1")
	require.NotNil(t, r1)
	assert.Equal(t, "", r1.Instances[0].Path)
}

func TestRunErrors(t *testing.T) {
	t.Run("unsupported version", func(t *testing.T) {
		g := generator(1)
		g.KiCad = "5.1"
		a, root := design(t)
		_, err := g.Run(a, root)
		assert.ErrorIs(t, err, schematic.ErrUnsupportedVersion)
	})

	t.Run("invalid circuit", func(t *testing.T) {
		a, root := design(t)
		require.NoError(t, a.AddComponent(root, &circuit.Component{Reference: "X1"}))
		out, err := generator(1).Run(a, root)
		assert.ErrorIs(t, err, ErrInvalidCircuit)
		require.NotNil(t, out)
		assert.True(t, circuit.HasErrors(out.Issues))
		assert.Empty(t, out.Sheets)
	})

	t.Run("duplicate sheet file", func(t *testing.T) {
		a, root := design(t)
		_, err := a.AddSubcircuit(root, "io port")
		require.NoError(t, err)
		_, err = a.AddSubcircuit(root, "io_port")
		require.NoError(t, err)
		_, err = generator(1).Run(a, root)
		assert.True(t, errors.Is(err, ErrDuplicateSheet), "got %v", err)
	})
}

func TestRunInfersUnknownSymbols(t *testing.T) {
	a, root := design(t)
	y1 := &circuit.Component{Reference: "Y1", Symbol: "Crystal:XTAL", Value: "8MHz"}
	require.NoError(t, a.AddComponent(root, y1))
	n := &circuit.Net{Name: "XIN"}
	n.Connect(y1, "1")
	n2 := &circuit.Net{Name: "XOUT"}
	n2.Connect(y1, "2")
	require.NoError(t, a.AddNet(root, n))
	require.NoError(t, a.AddNet(root, n2))

	out, err := generator(1).Run(a, root)
	require.NoError(t, err)

	require.Len(t, y1.Pins, 2)
	assert.Equal(t, circuit.PinPassive, y1.Pins[0].Type)
	assert.NotEqual(t, y1.Pins[0].Position, y1.Pins[1].Position, "pins laid out")

	var warned bool
	for _, is := range out.Issues {
		if is.Severity == circuit.SeverityWarning && strings.Contains(is.Message, "Crystal:XTAL") {
			warned = true
		}
	}
	assert.True(t, warned, "issues: %+v", out.Issues)

	sch := parseSheet(t, out, "/")
	assert.NotNil(t, sch.GetLibSymbol("Crystal:XTAL"))
}

func TestLibSymbolVariants(t *testing.T) {
	ls := newLibSymbols(nil)
	pins := func(x float64) []circuit.Pin {
		return []circuit.Pin{
			{Number: "1", Position: geometry.Position{X: -x}, Orientation: 0},
			{Number: "2", Position: geometry.Position{X: x}, Orientation: 180},
		}
	}
	a := &circuit.Component{Reference: "R1", Symbol: "Device:R", Pins: pins(5.08)}
	b := &circuit.Component{Reference: "R2", Symbol: "Device:R", Pins: pins(5.08)}
	c := &circuit.Component{Reference: "R3", Symbol: "Device:R", Pins: pins(7.62)}

	assert.Equal(t, "Device:R", ls.idFor(a))
	assert.Equal(t, "Device:R", ls.idFor(b))
	assert.Equal(t, "Device:R_1", ls.idFor(c))
	require.Len(t, ls.list, 2)

	r := ls.list[0]
	assert.Equal(t, "R", r.Properties[0].Value)
	require.Len(t, r.Pins, 2)
	assert.Equal(t, schematic.Position{X: -5.08}, r.Pins[0].Position)
	assert.Equal(t, schematic.Angle(0), r.Pins[0].Angle)
	assert.Equal(t, schematic.Angle(180), r.Pins[1].Angle)
	assert.Equal(t, []schematic.Rectangle{{
		Start: schematic.Position{X: -2.54, Y: 1.27},
		End:   schematic.Position{X: 2.54, Y: -1.27},
	}}, r.Body)
}

func TestLibSymbolFromLibrary(t *testing.T) {
	lib := schematic.LibSymbol{
		Name: "Device:R",
		Pins: []schematic.Pin{
			{Type: "passive", Position: schematic.Position{Y: 3.81}, Angle: 270, Length: 1.27, Number: "1"},
			{Type: "passive", Position: schematic.Position{Y: -3.81}, Angle: 90, Length: 1.27, Number: "2"},
		},
	}
	src := library.NewSchematicProvider([]schematic.LibSymbol{lib})
	ls := newLibSymbols(src)

	comp := &circuit.Component{Symbol: "Device:R"}
	library.ApplyPins(comp, library.PinsFromSymbol(lib))
	ls.idFor(comp)
	require.Len(t, ls.list, 1)
	assert.Equal(t, 1.27, ls.list[0].Pins[0].Length, "library drawing kept")

	moved := &circuit.Component{Symbol: "Device:R", Pins: append([]circuit.Pin(nil), comp.Pins...)}
	moved.Pins[0].Position.Y = -7.62
	assert.Equal(t, "Device:R_1", ls.idFor(moved))
	assert.Equal(t, pinLength, ls.list[1].Pins[0].Length, "redrawn from the component")
}

func TestKiCadAngles(t *testing.T) {
	tests := []struct {
		in   float64
		want schematic.Angle
	}{
		{0, 0},
		{90, 270},
		{180, 180},
		{270, 90},
		{-90, 90},
		{450, 270},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, kicadAngle(tt.in), "kicadAngle(%v)", tt.in)
	}
	assert.Equal(t, "left", labelJustify(0))
	assert.Equal(t, "left", labelJustify(90))
	assert.Equal(t, "right", labelJustify(180))
	assert.Equal(t, "right", labelJustify(270))
}

func TestHierLabelJustify(t *testing.T) {
	var labels []netproc.HierarchicalLabel
	for _, o := range []float64{0, 90, 180, 270} {
		labels = append(labels, netproc.HierarchicalLabel{
			Name:        fmt.Sprintf("N%.0f", o),
			Shape:       "input",
			Orientation: o,
			FontSize:    netproc.DefaultFontSize,
			Justify:     netproc.Justification(o),
		})
	}
	b := &sheetBuilder{s: &sheetState{labels: labels}, sch: &schematic.Schematic{}}
	b.hierLabels()

	require.Len(t, b.sch.HierLabels, 4)
	want := []string{"center", "left", "center", "right"}
	for i, l := range b.sch.HierLabels {
		assert.Equal(t, want[i], l.Effects.Justify.Horizontal, l.Text)
	}
}

func TestPaperFor(t *testing.T) {
	box := func(w, h float64) sexp.BoundingBox {
		return sexp.BoundingBox{Max: sexp.Position{X: w, Y: h}}
	}
	assert.Equal(t, "A4", paperFor(sexp.NewBoundingBox()))
	assert.Equal(t, "A4", paperFor(box(200, 150)))
	assert.Equal(t, "A3", paperFor(box(300, 150)))
	assert.Equal(t, "A2", paperFor(box(500, 300)))
	assert.Equal(t, "A0", paperFor(box(5000, 5000)))
}
