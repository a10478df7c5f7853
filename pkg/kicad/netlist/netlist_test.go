package netlist

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/netproc"
)

var testDate = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// blinky returns a resistor and an LED between VCC and GND.
func blinky(t *testing.T) (*circuit.Arena, circuit.Handle) {
	t.Helper()
	a := circuit.NewArena()
	root := a.NewCircuit("blinky")
	c, _ := a.Circuit(root)
	c.UUID = "root"

	r1 := &circuit.Component{
		Reference: "R1",
		Symbol:    "Device:R",
		Value:     "10k",
		Footprint: "Resistor_SMD:R_0603_1608Metric",
		Fields:    map[string]string{"LCSC": "C25804"},
		UUID:      "r1",
		Pins: []circuit.Pin{
			{Number: "1", Name: "~", Type: circuit.PinPassive},
			{Number: "2", Name: "~", Type: circuit.PinPassive},
		},
	}
	d1 := &circuit.Component{
		Reference: "D1",
		Symbol:    "Device:LED",
		Value:     "LED",
		UUID:      "d1",
		Pins: []circuit.Pin{
			{Number: "1", Name: "K", Type: circuit.PinPassive},
			{Number: "2", Name: "A", Type: circuit.PinPassive},
		},
	}
	for _, comp := range []*circuit.Component{r1, d1} {
		if err := a.AddComponent(root, comp); err != nil {
			t.Fatal(err)
		}
	}

	vcc := &circuit.Net{Name: "VCC"}
	vcc.Connect(r1, "1")
	mid := &circuit.Net{}
	mid.Connect(r1, "2")
	mid.Connect(d1, "A")
	gnd := &circuit.Net{Name: "GND"}
	gnd.Connect(d1, "K")
	for _, n := range []*circuit.Net{vcc, mid, gnd} {
		if err := a.AddNet(root, n); err != nil {
			t.Fatal(err)
		}
	}
	return a, root
}

func build(t *testing.T, a *circuit.Arena, root circuit.Handle) *Export {
	t.Helper()
	nets, err := netproc.Collect(a, root, netproc.CollectOptions{})
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	e, err := Build(a, root, nets, Options{Date: testDate})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return e
}

const blinkyNetlist = `(export (version "E")
  (design
    (source "blinky.kicad_sch")
    (date "2024-01-02T03:04:05Z")
    (tool "OpenTraceSynth")
    (sheet (number "1") (name "/") (tstamps "/root/")
      (title_block
        (title "blinky")
        (company)
        (rev)
        (date)
        (source "blinky.kicad_sch"))))
  (components
    (comp (ref "D1")
      (value "LED")
      (libsource (lib "Device") (part "LED"))
      (property (name "Sheetname") (value "/"))
      (property (name "Sheetfile") (value "blinky.kicad_sch"))
      (sheetpath (names "/") (tstamps "/root/"))
      (tstamps "d1"))
    (comp (ref "R1")
      (value "10k")
      (footprint "Resistor_SMD:R_0603_1608Metric")
      (fields
        (field (name "Footprint") "Resistor_SMD:R_0603_1608Metric")
        (field (name "LCSC") "C25804"))
      (libsource (lib "Device") (part "R"))
      (property (name "Sheetname") (value "/"))
      (property (name "Sheetfile") (value "blinky.kicad_sch"))
      (sheetpath (names "/") (tstamps "/root/"))
      (tstamps "r1")))
  (libparts
    (libpart (lib "Device") (part "LED")
      (fields
        (field (name "Reference") "D")
        (field (name "Value") "LED"))
      (pins
        (pin (num "1") (name "K") (type "passive"))
        (pin (num "2") (name "A") (type "passive"))))
    (libpart (lib "Device") (part "R")
      (fields
        (field (name "Reference") "R")
        (field (name "Value") "10k")
        (field (name "Footprint") "Resistor_SMD:R_0603_1608Metric"))
      (pins
        (pin (num "1") (name "~") (type "passive"))
        (pin (num "2") (name "~") (type "passive")))))
  (libraries
    (library (logical "Device")
      (uri "Device.kicad_sym")))
  (nets
    (net (code "1") (name "GND")
      (node (ref "D1") (pin "1") (pintype "passive") (pinfunction "K")))
    (net (code "2") (name "N$1")
      (node (ref "D1") (pin "2") (pintype "passive") (pinfunction "A"))
      (node (ref "R1") (pin "2") (pintype "passive")))
    (net (code "3") (name "VCC")
      (node (ref "R1") (pin "1") (pintype "passive")))))
`

func TestFormatLayout(t *testing.T) {
	a, root := blinky(t)
	got := build(t, a, root).Format()
	if diff := cmp.Diff(blinkyNetlist, got); diff != "" {
		t.Errorf("netlist mismatch (-want +got):\n%s", diff)
	}
	if err := sexp.Lint(got, "export"); err != nil {
		t.Errorf("Lint() error: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	a, root := blinky(t)
	r1, _ := a.FindComponent(root, "R1")
	r1.Value = `10"k \ 1%`
	want := build(t, a, root)

	got, err := ParseString(want.Format())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if got.Format() != want.Format() {
		t.Errorf("formatting the parsed netlist changed it")
	}
}

func TestBuildHierarchy(t *testing.T) {
	a, root := blinky(t)
	mcu, err := a.AddSubcircuit(root, "MCU")
	if err != nil {
		t.Fatal(err)
	}
	u1 := &circuit.Component{Reference: "U1", Symbol: "MCU:Chip", UUID: "u1", Pins: []circuit.Pin{
		{Number: "10", Name: "PA0", Type: circuit.PinBidirectional},
		{Number: "2", Name: "VDD", Type: circuit.PinPowerIn},
	}}
	if err := a.AddComponent(mcu, u1); err != nil {
		t.Fatal(err)
	}
	c, _ := a.Circuit(mcu)
	c.UUID = "mcu"
	data := &circuit.Net{Name: "DATA", Hierarchical: true}
	data.Connect(u1, "PA0")
	if err := a.AddNet(mcu, data); err != nil {
		t.Fatal(err)
	}

	e := build(t, a, root)

	wantSheets := []Sheet{
		{Number: 1, Name: "/", TStamps: "/root/", Title: "blinky", Source: "blinky.kicad_sch"},
		{Number: 2, Name: "/MCU/", TStamps: "/root/mcu/", Title: "MCU", Source: "MCU.kicad_sch"},
	}
	if diff := cmp.Diff(wantSheets, e.Design.Sheets); diff != "" {
		t.Errorf("sheets mismatch (-want +got):\n%s", diff)
	}

	comp, ok := e.Component("U1")
	if !ok {
		t.Fatal("U1 missing")
	}
	wantProps := []Field{{Name: "Sheetname", Value: "MCU"}, {Name: "Sheetfile", Value: "MCU.kicad_sch"}}
	if diff := cmp.Diff(wantProps, comp.Properties); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
	if comp.SheetNames != "/MCU/" || comp.SheetTStamps != "/root/mcu/" || comp.TStamps != "u1" {
		t.Errorf("sheetpath = %q %q, tstamps %q", comp.SheetNames, comp.SheetTStamps, comp.TStamps)
	}

	var order []string
	for _, c := range e.Components {
		order = append(order, c.Ref)
	}
	if diff := cmp.Diff([]string{"D1", "R1", "U1"}, order); diff != "" {
		t.Errorf("component order (-want +got):\n%s", diff)
	}

	net, ok := e.Net("/MCU/DATA")
	if !ok {
		t.Fatal("/MCU/DATA missing")
	}
	if diff := cmp.Diff([]Node{{Ref: "U1", Pin: "10", PinType: "bidirectional", PinFunction: "PA0"}}, net.Nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
	for i, n := range e.Nets {
		if n.Code != i+1 {
			t.Errorf("net %s has code %d, want %d", n.Name, n.Code, i+1)
		}
		if i > 0 && e.Nets[i-1].Name >= n.Name {
			t.Errorf("nets not sorted: %q before %q", e.Nets[i-1].Name, n.Name)
		}
	}

	var chip *LibPart
	for i := range e.LibParts {
		if e.LibParts[i].Part == "Chip" {
			chip = &e.LibParts[i]
		}
	}
	if chip == nil {
		t.Fatal("MCU:Chip libpart missing")
	}
	if chip.Pins[0].Num != "2" || chip.Pins[1].Num != "10" {
		t.Errorf("libpart pins not in natural order: %+v", chip.Pins)
	}
	if len(e.Libraries) != 2 || e.Libraries[0].Logical != "Device" || e.Libraries[1].Logical != "MCU" {
		t.Errorf("libraries = %+v", e.Libraries)
	}
}

func TestBuildAssignsMissingUUIDs(t *testing.T) {
	a, root := blinky(t)
	d1, _ := a.FindComponent(root, "D1")
	d1.UUID = ""
	e := build(t, a, root)
	comp, _ := e.Component("D1")
	if comp.TStamps == "" || comp.TStamps != d1.UUID {
		t.Errorf("D1 tstamps %q, component uuid %q", comp.TStamps, d1.UUID)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unbalanced", `(export (version "E")`},
		{"wrong root", `(kicad_sch (version 20231120))`},
		{"bad code", `(export (nets (net (code "x") (name "A"))))`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseString(tt.input); err == nil {
				t.Errorf("ParseString(%q) succeeded", tt.input)
			}
		})
	}
}

func TestParseKiCadOutput(t *testing.T) {
	// as written by Eeschema, pinfunction before pintype
	input := `(export (version "E")
  (components
    (comp (ref "C1")
      (value "100n")
      (libsource (lib "Device") (part "C") (description "Unpolarized capacitor"))
      (sheetpath (names "/") (tstamps "/"))
      (tstamps "5f2c")))
  (nets
    (net (code "7") (name "Net-(C1-Pad1)")
      (node (ref "C1") (pin "1") (pinfunction "A") (pintype "passive")))))`
	e, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	want := &Export{
		Version: "E",
		Components: []Component{{
			Ref: "C1", Value: "100n", Lib: "Device", Part: "C",
			SheetNames: "/", SheetTStamps: "/", TStamps: "5f2c",
		}},
		Nets: []Net{{Code: 7, Name: "Net-(C1-Pad1)", Nodes: []Node{
			{Ref: "C1", Pin: "1", PinType: "passive", PinFunction: "A"},
		}}},
	}
	if diff := cmp.Diff(want, e, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("parsed netlist mismatch (-want +got):\n%s", diff)
	}
}
