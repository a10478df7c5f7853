package bom

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
)

func part(ref, symbol, value, footprint string, fields map[string]string) *circuit.Component {
	return &circuit.Component{Reference: ref, Symbol: symbol, Value: value, Footprint: footprint, Fields: fields}
}

func sampleComponents() []*circuit.Component {
	r10 := part("R10", "Device:R", "10k", "R_0603", nil)
	r2 := part("R2", "Device:R", "10k", "R_0603", map[string]string{"LCSC": "C25804"})
	r1 := part("R1", "Device:R", "1k", "R_0603", nil)
	c1 := part("C1", "Device:C", "100n", "C_0402", nil)
	c2 := part("C2", "Device:C", "100n", "C_0402", map[string]string{"DNP": "yes"})
	pending := part("", "Device:R", "10k", "R_0603", nil)

	r10.Position = geometry.Position{X: 12.7, Y: 25.4}
	r10.Rotation = 90
	r1.Position = geometry.Position{X: 1.000004, Y: 2}
	return []*circuit.Component{r10, r2, r1, c1, c2, pending}
}

func TestGroup(t *testing.T) {
	got := Group(sampleComponents())
	want := []Entry{
		{Comment: "100n", Footprint: "C_0402", Symbol: "Device:C", Designators: []string{"C1"}},
		{Comment: "1k", Footprint: "R_0603", Symbol: "Device:R", Designators: []string{"R1"}},
		{Comment: "10k", Footprint: "R_0603", Symbol: "Device:R", Part: "C25804", Designators: []string{"R2", "R10"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Group() mismatch (-want +got):\n%s", diff)
	}
	if got[2].Quantity() != 2 {
		t.Errorf("Quantity() = %d, want 2", got[2].Quantity())
	}
}

func TestPlacements(t *testing.T) {
	got := Placements(sampleComponents())
	want := []Placement{
		{Designator: "C1", Layer: "Top"},
		{Designator: "R1", X: 1, Y: 2, Layer: "Top"},
		{Designator: "R2", Layer: "Top"},
		{Designator: "R10", X: 12.7, Y: 25.4, Rotation: 90, Layer: "Top"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Placements() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteXLSX(t *testing.T) {
	components := sampleComponents()
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, Group(components), Placements(components)); err != nil {
		t.Fatalf("WriteXLSX() error: %v", err)
	}
	data := buf.Bytes()

	bomRows, err := ReadXLSX(bytes.NewReader(data), BOMSheet)
	if err != nil {
		t.Fatalf("ReadXLSX(BOM) error: %v", err)
	}
	wantBOM := [][]string{
		{"Comment", "Designator", "Footprint", "LCSC Part", "Quantity", "Symbol"},
		{"100n", "C1", "C_0402", "", "1", "Device:C"},
		{"1k", "R1", "R_0603", "", "1", "Device:R"},
		{"10k", "R2,R10", "R_0603", "C25804", "2", "Device:R"},
	}
	if diff := cmp.Diff(wantBOM, bomRows); diff != "" {
		t.Errorf("BOM rows mismatch (-want +got):\n%s", diff)
	}

	cplRows, err := ReadXLSX(bytes.NewReader(data), CPLSheet)
	if err != nil {
		t.Fatalf("ReadXLSX(CPL) error: %v", err)
	}
	if len(cplRows) != 5 {
		t.Fatalf("got %d CPL rows, want 5", len(cplRows))
	}
	if diff := cmp.Diff([]string{"R10", "12.7", "25.4", "Top", "90"}, cplRows[4]); diff != "" {
		t.Errorf("CPL row mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteXLSXWithoutPlacements(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, Group(sampleComponents()), nil); err != nil {
		t.Fatalf("WriteXLSX() error: %v", err)
	}
	if _, err := ReadXLSX(bytes.NewReader(buf.Bytes()), CPLSheet); err == nil {
		t.Error("CPL sheet written without placements")
	}
}
