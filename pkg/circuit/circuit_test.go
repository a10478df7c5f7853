package circuit

import (
	"errors"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/refs"
)

func resistor(ref string) *Component {
	return &Component{
		Reference: ref,
		Symbol:    "Device:R",
		Value:     "10k",
		Pins: []Pin{
			{Number: "1", Name: "~", Type: PinPassive},
			{Number: "2", Name: "~", Type: PinPassive},
		},
	}
}

func TestReferenceCollision(t *testing.T) {
	a := NewArena()
	root := a.NewCircuit("top")

	if err := a.AddComponent(root, resistor("R1")); err != nil {
		t.Fatalf("AddComponent() error: %v", err)
	}
	err := a.AddComponent(root, resistor("R1"))
	if !errors.Is(err, ErrReferenceCollision) {
		t.Fatalf("expected ErrReferenceCollision, got %v", err)
	}
	if !errors.Is(err, refs.ErrAlreadyExists) {
		t.Errorf("collision should also match refs.ErrAlreadyExists")
	}

	c, _ := a.Circuit(root)
	if len(c.Components) != 1 {
		t.Errorf("rejected component was added")
	}
}

func TestCollisionAcrossSheets(t *testing.T) {
	a := NewArena()
	root := a.NewCircuit("top")
	mcu, _ := a.AddSubcircuit(root, "MCU")
	power, _ := a.AddSubcircuit(root, "POWER")

	if err := a.AddComponent(mcu, resistor("R5")); err != nil {
		t.Fatal(err)
	}
	if err := a.AddComponent(power, resistor("R5")); !errors.Is(err, ErrReferenceCollision) {
		t.Errorf("sibling sheets must not reuse R5, got %v", err)
	}
	if err := a.AddComponent(root, resistor("R5")); !errors.Is(err, ErrReferenceCollision) {
		t.Errorf("parent must not reuse R5, got %v", err)
	}
}

func TestInvalidReference(t *testing.T) {
	a := NewArena()
	root := a.NewCircuit("top")
	if err := a.AddComponent(root, resistor("1R1")); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("expected ErrInvalidReference, got %v", err)
	}
}

func TestUnnamedNetNaming(t *testing.T) {
	a := NewArena()
	root := a.NewCircuit("top")

	first := &Net{}
	second := &Net{Name: UnnamedNet}
	named := &Net{Name: "VCC"}
	for _, n := range []*Net{first, named, second} {
		if err := a.AddNet(root, n); err != nil {
			t.Fatal(err)
		}
	}
	if first.Name != "N$1" || second.Name != "N$2" {
		t.Errorf("got %q and %q, want N$1 and N$2", first.Name, second.Name)
	}
	if named.Name != "VCC" {
		t.Errorf("named net renamed to %q", named.Name)
	}
}

func TestFinalizeReferences(t *testing.T) {
	a := NewArena()
	root := a.NewCircuit("top")
	sub, _ := a.AddSubcircuit(root, "FILTER")

	explicit := resistor("R1")
	noRef := resistor("")
	prefixOnly := resistor("R")
	capacitor := &Component{Symbol: "Device:C", Pins: []Pin{{Number: "1"}, {Number: "2"}}}
	subPart := resistor("")

	for _, comp := range []*Component{explicit, noRef, prefixOnly, capacitor} {
		if err := a.AddComponent(root, comp); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.AddComponent(sub, subPart); err != nil {
		t.Fatal(err)
	}
	if !noRef.Pending() || noRef.PendingPrefix() != "R" || !prefixOnly.Pending() {
		t.Fatalf("components without numbers must be deferred")
	}

	net := &Net{Name: "SIG"}
	net.Connect(noRef, "1")
	net.Connect(subPart, "2")
	if err := a.AddNet(root, net); err != nil {
		t.Fatal(err)
	}

	if err := a.FinalizeReferences(root); err != nil {
		t.Fatalf("FinalizeReferences() error: %v", err)
	}

	got := []string{explicit.Reference, noRef.Reference, prefixOnly.Reference, capacitor.Reference, subPart.Reference}
	want := []string{"R1", "R2", "R3", "C1", "R4"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("references = %v, want %v", got, want)
		}
	}
	if noRef.Pending() {
		t.Errorf("component still pending")
	}
	if net.Connections[0].ComponentRef != "R2" || net.Connections[1].Ref() != "R4" {
		t.Errorf("connections not updated: %+v", net.Connections)
	}

	c, _ := a.Circuit(root)
	if comp, ok := c.Lookup("R3"); !ok || comp != prefixOnly {
		t.Errorf("Lookup(R3) failed")
	}
	if comp, err := a.FindComponent(root, "R4"); err != nil || comp != subPart {
		t.Errorf("FindComponent(R4) = %v, %v", comp, err)
	}
	if _, err := a.FindComponent(root, "Q9"); !errors.Is(err, ErrComponentNotFound) {
		t.Errorf("expected ErrComponentNotFound, got %v", err)
	}
}

func TestPathsAndFlattening(t *testing.T) {
	a := NewArena()
	root := a.NewCircuit("top")
	mcu, _ := a.AddSubcircuit(root, "MCU")
	adc, _ := a.AddSubcircuit(mcu, "ADC")
	power, _ := a.AddSubcircuit(root, "POWER")

	tests := map[Handle]string{root: "/", mcu: "/MCU", adc: "/MCU/ADC", power: "/POWER"}
	for h, want := range tests {
		if got := a.Path(h); got != want {
			t.Errorf("Path(%d) = %q, want %q", h, got, want)
		}
	}

	_ = a.AddComponent(root, resistor("R1"))
	_ = a.AddComponent(adc, resistor("R2"))
	_ = a.AddComponent(power, resistor("R3"))
	_ = a.AddNet(adc, &Net{Name: "AIN"})
	_ = a.AddNet(root, &Net{Name: "GND"})

	var got []string
	for _, comp := range a.AllComponents(root) {
		got = append(got, comp.Reference)
	}
	if strings.Join(got, ",") != "R1,R2,R3" {
		t.Errorf("AllComponents order = %v", got)
	}
	if len(a.AllNets(root)) != 2 || len(a.AllNets(mcu)) != 1 {
		t.Errorf("AllNets mismatch")
	}

	if _, err := a.AddSubcircuit(Handle(42), "X"); !errors.Is(err, ErrUnknownCircuit) {
		t.Errorf("expected ErrUnknownCircuit, got %v", err)
	}
	c1, _ := a.Circuit(root)
	c2, _ := a.Circuit(mcu)
	if c1.ID == c2.ID {
		t.Errorf("circuit ids must differ")
	}
}

func TestComponentPinLookup(t *testing.T) {
	comp := &Component{
		Symbol: "MCU:ATtiny85",
		Pins: []Pin{
			{Number: "1", Name: "PB5"},
			{Number: "4", Name: "GND", Type: PinPowerIn},
			{Number: "8", Name: "VCC", Type: PinPowerIn},
		},
	}
	if p, ok := comp.Pin("4"); !ok || p.Name != "GND" {
		t.Errorf("Pin(4) = %+v, %v", p, ok)
	}
	if p, ok := comp.Pin("VCC"); !ok || p.Number != "8" {
		t.Errorf("Pin(VCC) = %+v, %v", p, ok)
	}
	if _, ok := comp.Pin("9"); ok {
		t.Errorf("Pin(9) should not exist")
	}
	if comp.Library() != "MCU" || comp.Part() != "ATtiny85" {
		t.Errorf("Library/Part = %q/%q", comp.Library(), comp.Part())
	}
}

func TestParsePinType(t *testing.T) {
	tests := map[string]PinType{
		"input":          PinInput,
		"OUTPUT":         PinOutput,
		"Bidirectional":  PinBidirectional,
		"power_in":       PinPowerIn,
		"Power-Out":      PinPowerOut,
		"open_collector": PinOpenCollector,
		"open_emitter":   PinOpenEmitter,
		"no_connect":     PinNoConnect,
		"unspecified":    PinUnspecified,
		"tri_state":      PinBidirectional,
		"free":           PinUnspecified,
		"passive":        PinPassive,
		"analog":         PinPassive,
		"":               PinPassive,
	}
	for in, want := range tests {
		if got := ParsePinType(in); got != want {
			t.Errorf("ParsePinType(%q) = %v, want %v", in, got, want)
		}
	}
	if PinPowerIn.String() != "power_in" || PinType(99).String() != "passive" {
		t.Errorf("String() mismatch")
	}
}

func TestPinNoConnect(t *testing.T) {
	tests := []struct {
		pin  Pin
		want bool
	}{
		{Pin{Number: "3", Type: PinNoConnect}, true},
		{Pin{Number: "3", Name: "NC"}, true},
		{Pin{Number: "3", Name: "nc"}, true},
		{Pin{Number: "3", Name: "SDA", Type: PinBidirectional}, false},
	}
	for _, tt := range tests {
		if got := tt.pin.IsNoConnect(); got != tt.want {
			t.Errorf("IsNoConnect(%+v) = %v", tt.pin, got)
		}
	}
}
