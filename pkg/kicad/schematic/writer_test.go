package schematic

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
)

func sampleSchematic() *Schematic {
	textProp := func(key, value string, x, y float64, hide bool) Property {
		return Property{
			Key:      key,
			Value:    value,
			Position: PositionAngle{Position: Position{X: x, Y: y}},
			Effects:  Effects{Hide: hide},
		}
	}
	return &Schematic{
		UUID:    "root-uuid",
		Title:   "blinky",
		Project: "blinky",
		LibSymbols: []LibSymbol{{
			Name:    "Device:R",
			InBom:   true,
			OnBoard: true,
			Properties: []Property{
				textProp("Reference", "R", 2.032, 0, false),
				textProp("Value", "R", 0, 0, false),
			},
			Body: []Rectangle{{Start: Position{X: -1.016, Y: -2.54}, End: Position{X: 1.016, Y: 2.54}}},
			Pins: []Pin{
				{Type: "passive", Style: "line", Position: Position{X: 0, Y: 3.81}, Angle: 270, Length: 1.27, Name: "~", Number: "1"},
				{Type: "passive", Style: "line", Position: Position{X: 0, Y: -3.81}, Angle: 90, Length: 1.27, Name: "~", Number: "2"},
			},
		}},
		Symbols: []Symbol{{
			LibID:    "Device:R",
			Position: Position{X: 101.6, Y: 50.8},
			Angle:    90,
			InBom:    true,
			OnBoard:  true,
			UUID:     "r1-uuid",
			Properties: []Property{
				textProp("Reference", "R1", 104.14, 50.8, false),
				textProp("Value", "10k", 99.06, 50.8, false),
				textProp("Footprint", "Resistor_SMD:R_0603_1608Metric", 101.6, 50.8, true),
			},
			Pins:      []PinRef{{Number: "1", UUID: "p1"}, {Number: "2", UUID: "p2"}},
			Instances: []SymbolInstance{{Path: "/root-uuid", Reference: "R1", Unit: 1}},
		}},
		Wires:      []Wire{{Start: Position{X: 97.79, Y: 50.8}, End: Position{X: 93.98, Y: 50.8}, UUID: "w1"}},
		NoConnects: []NoConnect{{Position: Position{X: 110, Y: 60}, UUID: "nc1"}},
		HierLabels: []Label{{
			Text:     "DATA",
			Shape:    "input",
			Position: Position{X: 93.98, Y: 50.8},
			Angle:    180,
			Effects:  Effects{Justify: sexp.Justify{Horizontal: "right"}},
			UUID:     "l1",
		}},
		Sheets: []Sheet{{
			Position:  Position{X: 150, Y: 50},
			Size:      Size{Width: 25.4, Height: 10.16},
			UUID:      "mcu-uuid",
			Name:      "MCU",
			FileName:  "MCU.kicad_sch",
			Pins:      []SheetPin{{Name: "DATA", Shape: "bidirectional", Position: Position{X: 150, Y: 52.54}, Angle: 180, UUID: "sp1"}},
			Instances: []SheetInstance{{Path: "/root-uuid", Page: "2"}},
		}},
		SheetInstances: []SheetInstance{{Path: "/", Page: "1"}},
	}
}

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		kicad   string
		want    int
		wantErr bool
	}{
		{"", 20231120, false},
		{"8.0", 20231120, false},
		{"8", 20231120, false},
		{"9.0.1", 20231120, false},
		{"7.0", 20230121, false},
		{"7.0.11", 20230121, false},
		{"6.0", 20211123, false},
		{"5.1", 0, true},
	}
	for _, tt := range tests {
		got, err := FormatVersion(tt.kicad)
		if (err != nil) != tt.wantErr {
			t.Errorf("FormatVersion(%q) error = %v", tt.kicad, err)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("FormatVersion(%q) error = %v, want ErrUnsupportedVersion", tt.kicad, err)
		}
		if got != tt.want {
			t.Errorf("FormatVersion(%q) = %d, want %d", tt.kicad, got, tt.want)
		}
	}
}

func TestWriteKiCad8(t *testing.T) {
	text, err := Writer{KiCad: "8.0"}.Format(sampleSchematic())
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	if err := sexp.Lint(text, "kicad_sch"); err != nil {
		t.Fatalf("Lint() error: %v\n%s", err, text)
	}

	for _, want := range []string{
		"(kicad_sch\n\t(version 20231120)\n\t(generator \"opentracesynth\")\n\t(generator_version \"8.0\")\n",
		"\t(uuid \"root-uuid\")\n",
		"\t(embedded_fonts no)\n)\n",
		"(hierarchical_label \"DATA\"\n\t\t(shape input)\n\t\t(at 93.98 50.8 180)\n\t\t(effects (font (size 1.27 1.27)) (justify right))\n",
		"(property \"Footprint\" \"Resistor_SMD:R_0603_1608Metric\"\n\t\t\t(at 101.6 50.8 0)\n\t\t\t(effects (font (size 1.27 1.27)) (hide yes))\n\t\t)",
		"(pin \"1\" (uuid \"p1\"))",
		"(wire\n\t\t(pts (xy 97.79 50.8) (xy 93.98 50.8))\n",
		"(exclude_from_sim no)",
		"(dnp no)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output lacks %q\n%s", want, text)
		}
	}
	if strings.Contains(text, "(id ") {
		t.Errorf("KiCad 8 output must not carry property ids")
	}

	got, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	checkReadBack(t, got)
	if got.GeneratorVer != "8.0" {
		t.Errorf("generator version = %q", got.GeneratorVer)
	}
}

func TestWriteKiCad6(t *testing.T) {
	text, err := Writer{KiCad: "6.0", Generator: "ots"}.Format(sampleSchematic())
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	if err := sexp.Lint(text, "kicad_sch"); err != nil {
		t.Fatalf("Lint() error: %v", err)
	}
	for _, want := range []string{
		"(version 20211123)",
		"(generator ots)",
		"(uuid root-uuid)",
		"(id 0)",
		"(effects (font (size 1.27 1.27)) hide)",
		"(property \"Sheet name\" \"MCU\"",
		"(symbol_instances\n\t\t(path \"/root-uuid/r1-uuid\"\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output lacks %q\n%s", want, text)
		}
	}
	for _, unwanted := range []string{"embedded_fonts", "generator_version", "(instances", "(dnp"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("KiCad 6 output contains %q", unwanted)
		}
	}

	got, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	checkReadBack(t, got)
}

func TestWriteLabelJustify(t *testing.T) {
	sch := sampleSchematic()
	base := sch.HierLabels[0]
	sch.HierLabels = nil
	for i, hz := range []string{"center", "left", "right"} {
		l := base
		l.Text = strings.ToUpper(hz)
		l.Position.Y += float64(i) * 2.54
		l.Effects.Justify = sexp.Justify{Horizontal: hz}
		l.UUID = UUID("j-" + hz)
		sch.HierLabels = append(sch.HierLabels, l)
	}

	text, err := Writer{KiCad: "8.0"}.Format(sch)
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	got, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(got.HierLabels) != 3 {
		t.Fatalf("got %d hierarchical labels", len(got.HierLabels))
	}
	// A centred label has no justify node, which KiCad reads as centred.
	for _, l := range got.HierLabels {
		want := strings.ToLower(l.Text)
		if want == "center" {
			want = ""
		}
		if l.Effects.Justify.Horizontal != want {
			t.Errorf("label %s justify = %q, want %q", l.Text, l.Effects.Justify.Horizontal, want)
		}
	}
	if strings.Contains(text, "(justify center") {
		t.Errorf("output carries a center justify KiCad rejects\n%s", text)
	}
}

func TestWriteUnsupportedVersion(t *testing.T) {
	if _, err := (Writer{KiCad: "5.1"}).Format(sampleSchematic()); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Format() error = %v, want ErrUnsupportedVersion", err)
	}
}

// checkReadBack compares what the reader recovers with sampleSchematic.
func checkReadBack(t *testing.T, got *Schematic) {
	t.Helper()
	want := sampleSchematic()

	if got.UUID != want.UUID || got.Title != want.Title || got.Paper != "A4" {
		t.Errorf("header = %q %q %q", got.UUID, got.Title, got.Paper)
	}

	if len(got.LibSymbols) != 1 {
		t.Fatalf("got %d lib symbols", len(got.LibSymbols))
	}
	if diff := cmp.Diff(want.LibSymbols[0].Pins, got.LibSymbols[0].Pins); diff != "" {
		t.Errorf("lib pins mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.LibSymbols[0].Body, got.LibSymbols[0].Body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}

	if len(got.Symbols) != 1 {
		t.Fatalf("got %d symbols", len(got.Symbols))
	}
	sym := got.Symbols[0]
	if sym.LibID != "Device:R" || sym.Position != want.Symbols[0].Position || sym.Angle != 90 || sym.UUID != "r1-uuid" {
		t.Errorf("symbol = %+v", sym)
	}
	if sym.Reference() != "R1" || sym.Property("Value") != "10k" {
		t.Errorf("symbol properties = %+v", sym.Properties)
	}
	if diff := cmp.Diff(want.Symbols[0].Pins, sym.Pins); diff != "" {
		t.Errorf("pin refs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Symbols[0].Instances, sym.Instances); diff != "" {
		t.Errorf("instances mismatch (-want +got):\n%s", diff)
	}
	for _, p := range sym.Properties {
		if p.Key == "Footprint" && !p.Effects.Hide {
			t.Errorf("footprint property lost its hide flag")
		}
	}

	if diff := cmp.Diff(want.Wires, got.Wires); diff != "" {
		t.Errorf("wires mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.NoConnects, got.NoConnects); diff != "" {
		t.Errorf("no-connects mismatch (-want +got):\n%s", diff)
	}

	if len(got.HierLabels) != 1 {
		t.Fatalf("got %d hierarchical labels", len(got.HierLabels))
	}
	l := got.HierLabels[0]
	if l.Text != "DATA" || l.Shape != "input" || l.Angle != 180 || l.Effects.Justify.Horizontal != "right" || l.UUID != "l1" {
		t.Errorf("label = %+v", l)
	}

	if len(got.Sheets) != 1 {
		t.Fatalf("got %d sheets", len(got.Sheets))
	}
	sheet := got.Sheets[0]
	if sheet.Name != "MCU" || sheet.FileName != "MCU.kicad_sch" || sheet.Size != want.Sheets[0].Size {
		t.Errorf("sheet = %+v", sheet)
	}
	if diff := cmp.Diff(want.Sheets[0].Pins, sheet.Pins); diff != "" {
		t.Errorf("sheet pins mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.SheetInstances, got.SheetInstances); diff != "" {
		t.Errorf("sheet instances mismatch (-want +got):\n%s", diff)
	}
}
