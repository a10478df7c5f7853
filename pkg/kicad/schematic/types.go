// Package schematic reads and writes KiCad schematic files (.kicad_sch).
package schematic

import (
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
)

// Re-export shared types from sexp package for convenience
type Position = sexp.Position
type Angle = sexp.Angle
type PositionAngle = sexp.PositionAngle
type Size = sexp.Size
type UUID = sexp.UUID
type Effects = sexp.Effects
type Property = sexp.Property

// Schematic is a parsed KiCad schematic file
type Schematic struct {
	Version        int             // File format version
	Generator      string          // Generator info (e.g., "eeschema")
	GeneratorVer   string          // Generator version
	UUID           UUID            // Schematic UUID
	Paper          string          // Paper size (e.g., "A4")
	Title          string          // Title block title
	Project        string          // Project name used by instance paths
	LibSymbols     []LibSymbol     // Embedded library symbols
	Symbols        []Symbol        // Symbol instances on the schematic
	Wires          []Wire          // Wire segments
	NoConnects     []NoConnect     // No-connect markers
	Labels         []Label         // Local labels
	GlobalLabels   []Label         // Global labels
	HierLabels     []Label         // Hierarchical labels
	Sheets         []Sheet         // Hierarchical sheet references
	SheetInstances []SheetInstance // Sheet instance paths
}

// LibSymbol is an embedded library symbol definition
type LibSymbol struct {
	Name       string      // Symbol name (e.g., "Device:R")
	InBom      bool        // Include in BOM
	OnBoard    bool        // Place on board
	Properties []Property  // Symbol properties
	Body       []Rectangle // Body outline
	Pins       []Pin       // Pins of every unit
}

// Rectangle is a rectangle of a symbol body
type Rectangle struct {
	Start Position
	End   Position
}

// Pin is a library symbol pin
type Pin struct {
	Type     string   // Pin type (input, output, bidirectional, etc.)
	Style    string   // Pin style (line, inverted, clock, etc.)
	Position Position // Pin end position
	Angle    Angle    // Pin angle (0, 90, 180, 270)
	Length   float64  // Pin length
	Name     string   // Pin name
	Number   string   // Pin number
	Hide     bool     // Hidden pin
}

// Symbol is a symbol instance placed on the schematic
type Symbol struct {
	LibID      string           // Library identifier (e.g., "Device:R")
	Position   Position         // Position on schematic
	Angle      Angle            // Rotation angle
	Mirror     string           // Mirror mode (x, y, or empty)
	Unit       int              // Unit number (for multi-unit symbols)
	InBom      bool             // Include in BOM
	OnBoard    bool             // Place on board
	UUID       UUID             // Instance UUID
	Properties []Property       // Instance properties (Reference, Value, etc.)
	Pins       []PinRef         // Pin references
	Instances  []SymbolInstance // Per-project references
}

// SymbolInstance is the reference of a symbol along one sheet path
type SymbolInstance struct {
	Path      string // Sheet UUID path ("/<root>/<sheet>")
	Reference string
	Unit      int
}

// PinRef is a pin reference in a symbol instance
type PinRef struct {
	Number string // Pin number
	UUID   UUID   // Pin UUID
}

// Wire is a wire segment
type Wire struct {
	Start Position
	End   Position
	UUID  UUID
}

// NoConnect is a no-connect marker
type NoConnect struct {
	Position Position // Marker position
	UUID     UUID     // Marker UUID
}

// Label is a local, global or hierarchical label
type Label struct {
	Text     string   // Label text
	Shape    string   // Label shape, empty for local labels
	Position Position // Label position
	Angle    Angle    // Label rotation
	Effects  Effects  // Text effects
	UUID     UUID     // Label UUID
}

// Sheet is a hierarchical sheet reference
type Sheet struct {
	Position   Position        // Sheet position
	Size       Size            // Sheet size
	UUID       UUID            // Sheet UUID
	Name       string          // Sheetname property
	FileName   string          // Sheetfile property
	Pins       []SheetPin      // Hierarchical pins
	Properties []Property      // Other properties
	Instances  []SheetInstance // Page of the sheet along each parent path
}

// SheetPin is a hierarchical pin on a sheet
type SheetPin struct {
	Name     string   // Pin name
	Shape    string   // Pin shape
	Position Position // Pin position
	Angle    Angle    // Pin side
	UUID     UUID     // Pin UUID
}

// SheetInstance is a sheet instance path
type SheetInstance struct {
	Path string // Instance path
	Page string // Page number
}

// Property returns the value of a symbol property.
func (s *Symbol) Property(key string) string {
	for _, prop := range s.Properties {
		if prop.Key == key {
			return prop.Value
		}
	}
	return ""
}

// Reference returns the Reference property.
func (s *Symbol) Reference() string {
	return s.Property("Reference")
}

// GetSymbol returns a symbol by reference designator
func (s *Schematic) GetSymbol(ref string) *Symbol {
	for i := range s.Symbols {
		if s.Symbols[i].Reference() == ref {
			return &s.Symbols[i]
		}
	}
	return nil
}

// GetLibSymbol returns an embedded library symbol by name
func (s *Schematic) GetLibSymbol(name string) *LibSymbol {
	for i := range s.LibSymbols {
		if s.LibSymbols[i].Name == name {
			return &s.LibSymbols[i]
		}
	}
	return nil
}

// GetAllReferences returns all reference designators
func (s *Schematic) GetAllReferences() []string {
	var refs []string
	for i := range s.Symbols {
		if ref := s.Symbols[i].Reference(); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// GetLabels returns all label names (local + global + hierarchical)
func (s *Schematic) GetLabels() []string {
	seen := make(map[string]bool)
	var labels []string

	for _, group := range [][]Label{s.Labels, s.GlobalLabels, s.HierLabels} {
		for _, l := range group {
			if !seen[l.Text] {
				seen[l.Text] = true
				labels = append(labels, l.Text)
			}
		}
	}

	return labels
}

// GetBoundingBox calculates the bounding box of the placed elements
func (s *Schematic) GetBoundingBox() sexp.BoundingBox {
	bbox := sexp.NewBoundingBox()

	for _, sym := range s.Symbols {
		bbox.Expand(sym.Position)
	}
	for _, group := range [][]Label{s.Labels, s.GlobalLabels, s.HierLabels} {
		for _, l := range group {
			bbox.Expand(l.Position)
		}
	}
	for _, sheet := range s.Sheets {
		bbox.Expand(sheet.Position)
		bbox.Expand(Position{
			X: sheet.Position.X + sheet.Size.Width,
			Y: sheet.Position.Y + sheet.Size.Height,
		})
	}
	for _, nc := range s.NoConnects {
		bbox.Expand(nc.Position)
	}

	return bbox
}
