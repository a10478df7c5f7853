package circuit

import (
	"strings"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
)

// Component is a symbol instance in a circuit.
type Component struct {
	Reference   string            // Reference designator ("R1"); empty until assigned
	Symbol      string            // Library identifier ("Device:R")
	Value       string            // Value ("10k")
	Footprint   string            // Footprint ("Resistor_SMD:R_0603_1608Metric")
	Datasheet   string            // Datasheet URL
	Description string            // Free text description
	Position    geometry.Position // Symbol origin on the sheet
	Rotation    float64           // Degrees, counter-clockwise
	Width       float64           // Body width in mm, 0 if unknown
	Height      float64           // Body height in mm, 0 if unknown
	Pins        []Pin             // Pins in symbol order
	Fields      map[string]string // Extra properties (MPN, LCSC, ...)
	UUID        string            // Symbol instance identity; see AssignUUIDs

	prefix string // pending prefix, set while the reference is deferred
}

// Library returns the library part of Symbol ("Device" for "Device:R").
func (c *Component) Library() string {
	lib, _, ok := strings.Cut(c.Symbol, ":")
	if !ok {
		return ""
	}
	return lib
}

// Part returns the symbol name part of Symbol ("R" for "Device:R").
func (c *Component) Part() string {
	_, part, ok := strings.Cut(c.Symbol, ":")
	if !ok {
		return c.Symbol
	}
	return part
}

// Pin looks a pin up by number, then by name.
func (c *Component) Pin(id string) (*Pin, bool) {
	for i := range c.Pins {
		if c.Pins[i].Number == id {
			return &c.Pins[i], true
		}
	}
	for i := range c.Pins {
		if c.Pins[i].Name == id {
			return &c.Pins[i], true
		}
	}
	return nil, false
}

// Pending reports whether the reference is still waiting for
// FinalizeReferences.
func (c *Component) Pending() bool {
	return c.prefix != ""
}

// PendingPrefix returns the prefix a deferred reference will be built from.
func (c *Component) PendingPrefix() string {
	return c.prefix
}

// Field returns an extra property value.
func (c *Component) Field(key string) string {
	if c.Fields == nil {
		return ""
	}
	return c.Fields[key]
}

// PinConnection is one net node.
type PinConnection struct {
	ComponentRef string // Reference of the connected component
	PinID        string // Pin number or name

	component *Component
}

// Ref returns the reference of the connected component, following the
// component itself when the connection was made before its reference was
// assigned.
func (pc PinConnection) Ref() string {
	if pc.component != nil && pc.component.Reference != "" {
		return pc.component.Reference
	}
	return pc.ComponentRef
}

// Component returns the connected component when the connection was made
// with Net.Connect.
func (pc PinConnection) Component() *Component {
	return pc.component
}

// UnnamedNet marks a net whose name is generated.
const UnnamedNet = "~"

// IsUnnamed reports whether name is empty or the unnamed marker.
func IsUnnamed(name string) bool {
	return strings.TrimSpace(name) == "" || name == UnnamedNet
}

// Net is a named set of pin connections.
type Net struct {
	Name         string          // Net name, generated for unnamed nets
	Hierarchical bool            // Crosses the sheet boundary through a hierarchical label
	Connections  []PinConnection // Connected pins
}

// Connect adds a node for pin of c.
func (n *Net) Connect(c *Component, pin string) {
	n.Connections = append(n.Connections, PinConnection{
		ComponentRef: c.Reference,
		PinID:        pin,
		component:    c,
	})
}

// Add adds a node by reference.
func (n *Net) Add(ref, pin string) {
	n.Connections = append(n.Connections, PinConnection{ComponentRef: ref, PinID: pin})
}
