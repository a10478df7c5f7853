package schematic

import (
	"errors"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp/kicadsexp"
)

func TestParseMinimalSchematic(t *testing.T) {
	input := `(kicad_sch
		(version 20250114)
		(generator "eeschema")
		(generator_version "9.0")
		(uuid 862335ee-c981-4fe1-9eb9-84db19301dd4)
		(paper "A4")
		(title_block (title "blinky"))
		(lib_symbols)
		(sheet_instances
			(path "/"
				(page "1")
			)
		)
	)`

	sch, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Failed to parse schematic: %v", err)
	}

	if sch.Version != 20250114 {
		t.Errorf("Expected version 20250114, got %d", sch.Version)
	}
	if sch.Generator != "eeschema" {
		t.Errorf("Expected generator 'eeschema', got '%s'", sch.Generator)
	}
	if sch.GeneratorVer != "9.0" {
		t.Errorf("Expected generator version '9.0', got '%s'", sch.GeneratorVer)
	}
	if sch.Paper != "A4" {
		t.Errorf("Expected paper 'A4', got '%s'", sch.Paper)
	}
	if sch.Title != "blinky" {
		t.Errorf("Expected title 'blinky', got '%s'", sch.Title)
	}
	if len(sch.SheetInstances) != 1 || sch.SheetInstances[0].Page != "1" {
		t.Errorf("Expected 1 sheet instance, got %+v", sch.SheetInstances)
	}
}

func TestParseSchematicWithSymbol(t *testing.T) {
	input := `(kicad_sch
		(version 20231120)
		(generator "eeschema")
		(uuid test-uuid)
		(paper "A4")
		(lib_symbols
			(symbol "Device:R"
				(property "Reference" "R" (at 0 0 0))
				(property "Value" "R" (at 0 0 0))
				(symbol "R_1_1"
					(pin passive line (at 0 3.81 270) (length 1.27)
						(name "~")
						(number "1")
					)
					(pin passive line (at 0 -3.81 90) (length 1.27)
						(name "~")
						(number "2")
					)
				)
			)
		)
		(symbol (lib_id "Device:R")
			(at 100 50 90)
			(unit 1)
			(uuid sym-uuid-1)
			(property "Reference" "R1" (at 100 45 0))
			(property "Value" "10k" (at 100 55 0))
			(pin "1" (uuid pin-1))
			(pin "2" (uuid pin-2))
		)
	)`

	sch, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Failed to parse schematic: %v", err)
	}

	if len(sch.LibSymbols) != 1 {
		t.Fatalf("Expected 1 lib symbol, got %d", len(sch.LibSymbols))
	}
	lib := sch.GetLibSymbol("Device:R")
	if lib == nil || len(lib.Pins) != 2 {
		t.Fatalf("Expected Device:R with 2 pins, got %+v", lib)
	}
	if lib.Pins[0].Number != "1" || lib.Pins[0].Angle != 270 || lib.Pins[0].Position.Y != 3.81 {
		t.Errorf("pin 1 = %+v", lib.Pins[0])
	}

	if len(sch.Symbols) != 1 {
		t.Fatalf("Expected 1 symbol instance, got %d", len(sch.Symbols))
	}
	sym := sch.Symbols[0]
	if sym.LibID != "Device:R" || sym.Angle != 90 || len(sym.Pins) != 2 {
		t.Errorf("symbol = %+v", sym)
	}
	if sym.Property("Value") != "10k" {
		t.Errorf("Value = %q", sym.Property("Value"))
	}

	if r1 := sch.GetSymbol("R1"); r1 == nil {
		t.Error("GetSymbol('R1') returned nil")
	}
	refs := sch.GetAllReferences()
	if len(refs) != 1 || refs[0] != "R1" {
		t.Errorf("Expected refs ['R1'], got %v", refs)
	}
}

func TestParseSchematicWithLabelsAndSheets(t *testing.T) {
	input := `(kicad_sch
		(version 20231120)
		(generator "eeschema")
		(uuid test-uuid)
		(paper "A4")
		(lib_symbols)
		(no_connect (at 120 60) (uuid nc-1))
		(label "VCC" (at 100 50 0)
			(effects (font (size 1.27 1.27)))
			(uuid label-1)
		)
		(global_label "GND" (shape input) (at 100 100 0)
			(effects (font (size 1.27 1.27)))
			(uuid glabel-1)
		)
		(hierarchical_label "DATA" (shape bidirectional) (at 106.68 50.8 180)
			(effects (font (size 1.27 1.27)) (justify right))
			(uuid hlabel-1)
		)
		(sheet (at 50 50) (size 30 20)
			(uuid sheet-1)
			(property "Sheetname" "MCU" (at 50 49 0))
			(property "Sheetfile" "mcu.kicad_sch" (at 50 71 0))
			(pin "DATA" bidirectional (at 80 55 0)
				(effects (font (size 1.27 1.27)) (justify right))
				(uuid spin-1)
			)
		)
	)`

	sch, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Failed to parse schematic: %v", err)
	}

	if len(sch.NoConnects) != 1 || sch.NoConnects[0].Position.X != 120 {
		t.Errorf("no connects = %+v", sch.NoConnects)
	}
	if len(sch.Labels) != 1 || sch.Labels[0].Text != "VCC" {
		t.Errorf("labels = %+v", sch.Labels)
	}
	if len(sch.GlobalLabels) != 1 || sch.GlobalLabels[0].Shape != "input" {
		t.Errorf("global labels = %+v", sch.GlobalLabels)
	}

	if len(sch.HierLabels) != 1 {
		t.Fatalf("Expected 1 hierarchical label, got %d", len(sch.HierLabels))
	}
	hl := sch.HierLabels[0]
	if hl.Text != "DATA" || hl.Angle != 180 || hl.Effects.Justify.Horizontal != "right" {
		t.Errorf("hierarchical label = %+v", hl)
	}

	if len(sch.Sheets) != 1 {
		t.Fatalf("Expected 1 sheet, got %d", len(sch.Sheets))
	}
	sheet := sch.Sheets[0]
	if sheet.Name != "MCU" || sheet.FileName != "mcu.kicad_sch" || len(sheet.Pins) != 1 {
		t.Errorf("sheet = %+v", sheet)
	}
	if sheet.Pins[0].Shape != "bidirectional" {
		t.Errorf("sheet pin = %+v", sheet.Pins[0])
	}

	if labels := sch.GetLabels(); len(labels) != 3 {
		t.Errorf("Expected 3 total labels, got %v", labels)
	}
	bbox := sch.GetBoundingBox()
	if bbox.Min.X != 50 || bbox.Max.X != 120 || bbox.Max.Y != 100 {
		t.Errorf("bbox = %+v", bbox)
	}
}

func TestParseLibrary(t *testing.T) {
	input := `(kicad_symbol_lib (version 20231120) (generator "kicad_symbol_editor")
		(symbol "LED"
			(property "Reference" "D" (at 0 2.54 0))
			(symbol "LED_1_1"
				(pin passive line (at -3.81 0 0) (length 2.54) (name "K") (number "1"))
				(pin passive line (at 3.81 0 180) (length 2.54) (name "A") (number "2"))
			)
		)
	)`

	symbols, err := ParseLibrary(strings.NewReader(input), "Device")
	if err != nil {
		t.Fatalf("ParseLibrary() error: %v", err)
	}
	if len(symbols) != 1 || symbols[0].Name != "Device:LED" || len(symbols[0].Pins) != 2 {
		t.Fatalf("symbols = %+v", symbols)
	}
	if symbols[0].Pins[1].Name != "A" {
		t.Errorf("pin 2 = %+v", symbols[0].Pins[1])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrong root", `(kicad_pcb (version 20231120))`},
		{"old version", `(kicad_sch (version 20200101))`},
		{"missing version", `(kicad_sch (paper "A4"))`},
		{"unbalanced", `(kicad_sch (version 20231120)`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseSyntaxErrorPosition(t *testing.T) {
	input := "(kicad_sch\n\t(version 20231120)\n\t(paper \"A4)\n)"
	_, err := Parse(strings.NewReader(input))
	var syn *kicadsexp.SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("error = %v, want a *kicadsexp.SyntaxError", err)
	}
	if want := (kicadsexp.Pos{Line: 3, Col: 9}); syn.Pos != want {
		t.Errorf("position = %v, want %v", syn.Pos, want)
	}
	if !strings.Contains(err.Error(), "line 3 col 9: string never closed") {
		t.Errorf("error = %v", err)
	}
}
