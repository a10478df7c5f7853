package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/schematic"
)

// SchematicProvider serves pins from KiCad symbol definitions, either the
// lib_symbols block of a schematic or a .kicad_sym library.
type SchematicProvider struct {
	mem     *MemoryProvider
	symbols map[string]schematic.LibSymbol
}

// NewSchematicProvider indexes the given symbols by their "Lib:Part" name.
func NewSchematicProvider(symbols []schematic.LibSymbol) *SchematicProvider {
	p := &SchematicProvider{
		mem:     NewMemoryProvider(),
		symbols: make(map[string]schematic.LibSymbol, len(symbols)),
	}
	for _, sym := range symbols {
		p.add(sym)
	}
	return p
}

func (p *SchematicProvider) add(sym schematic.LibSymbol) {
	lib, part := SplitID(sym.Name)
	p.symbols[key(lib, part)] = sym
	p.mem.Add(lib, part, PinsFromSymbol(sym))
}

// LoadFiles reads .kicad_sym libraries (named after the file) and the
// embedded symbols of .kicad_sch files.
func LoadFiles(paths ...string) (*SchematicProvider, error) {
	p := NewSchematicProvider(nil)
	for _, path := range paths {
		if err := p.LoadFile(path); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// LoadFile adds the symbols of one file.
func (p *SchematicProvider) LoadFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".kicad_sch":
		sch, err := schematic.ParseFile(path)
		if err != nil {
			return fmt.Errorf("library: %s: %w", path, err)
		}
		for _, sym := range sch.LibSymbols {
			p.add(sym)
		}
	case ".kicad_sym":
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("library: open: %w", err)
		}
		defer f.Close()
		lib := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		symbols, err := schematic.ParseLibrary(f, lib)
		if err != nil {
			return fmt.Errorf("library: %s: %w", path, err)
		}
		for _, sym := range symbols {
			p.add(sym)
		}
	default:
		return fmt.Errorf("library: %s: unsupported file type", path)
	}
	return nil
}

// Pins implements Provider.
func (p *SchematicProvider) Pins(library, symbol string) ([]PinDef, error) {
	return p.mem.Pins(library, symbol)
}

// Symbol returns the raw symbol definition.
func (p *SchematicProvider) Symbol(library, symbol string) (schematic.LibSymbol, bool) {
	sym, ok := p.symbols[key(library, symbol)]
	return sym, ok
}

// Symbols returns every known symbol identifier, sorted.
func (p *SchematicProvider) Symbols() []string {
	return p.mem.Symbols()
}

// PinsFromSymbol converts KiCad library pins into pin definitions.
// Library symbols are drawn with Y up; positions and orientations are
// mirrored into the Y-down sheet frame. Pins repeated across units or body
// styles are reported once.
func PinsFromSymbol(sym schematic.LibSymbol) []PinDef {
	seen := make(map[string]bool, len(sym.Pins))
	defs := make([]PinDef, 0, len(sym.Pins))
	for _, pin := range sym.Pins {
		id := pin.Number
		if id == "" {
			id = pin.Name
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		defs = append(defs, PinDef{
			Number:      pin.Number,
			Name:        pin.Name,
			Type:        circuit.ParsePinType(pin.Type),
			Position:    geometry.Position{X: pin.Position.X, Y: -pin.Position.Y},
			Orientation: geometry.NormalizeAngle(-float64(pin.Angle)),
			HasGeometry: true,
		})
	}
	return defs
}

// LibSymbols returns the raw definitions, sorted by name.
func (p *SchematicProvider) LibSymbols() []schematic.LibSymbol {
	ids := p.Symbols()
	out := make([]schematic.LibSymbol, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.symbols[id])
	}
	return out
}
