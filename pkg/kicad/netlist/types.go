// Package netlist models KiCad S-expression netlists (the "E" export
// version Eeschema writes). An Export can be built from a circuit design,
// formatted with KiCad's exact layout and parsed back.
package netlist

// Version is the netlist export version written by Format.
const Version = "E"

// Export is a complete netlist.
type Export struct {
	Version    string
	Design     Design
	Components []Component
	LibParts   []LibPart
	Libraries  []Library
	Nets       []Net
}

// Design is the header of a netlist.
type Design struct {
	Source string
	Date   string
	Tool   string
	Sheets []Sheet
}

// Sheet is one schematic sheet of the design.
type Sheet struct {
	Number  int
	Name    string // Sheet path ("/", "/MCU/")
	TStamps string // Sheet UUID path
	Title   string
	Source  string // Sheet file
}

// Component is a placed symbol.
type Component struct {
	Ref          string
	Value        string
	Footprint    string
	Datasheet    string
	Description  string
	Fields       []Field
	Lib          string
	Part         string
	Properties   []Field
	SheetNames   string
	SheetTStamps string
	TStamps      string
}

// Field is a name/value pair.
type Field struct {
	Name  string
	Value string
}

// LibPart describes a library symbol used by the design.
type LibPart struct {
	Lib         string
	Part        string
	Description string
	Docs        string
	Fields      []Field
	Pins        []LibPin
}

// LibPin is a pin of a LibPart.
type LibPin struct {
	Num  string
	Name string
	Type string
}

// Library is a symbol library referenced by the design.
type Library struct {
	Logical string
	URI     string
}

// Net is one electrical net.
type Net struct {
	Code  int
	Name  string
	Nodes []Node
}

// Node is a pin on a net.
type Node struct {
	Ref         string
	Pin         string
	PinType     string
	PinFunction string
}

// Net returns the net called name.
func (e *Export) Net(name string) (*Net, bool) {
	for i := range e.Nets {
		if e.Nets[i].Name == name {
			return &e.Nets[i], true
		}
	}
	return nil, false
}

// Component returns the component with reference ref.
func (e *Export) Component(ref string) (*Component, bool) {
	for i := range e.Components {
		if e.Components[i].Ref == ref {
			return &e.Components[i], true
		}
	}
	return nil, false
}
