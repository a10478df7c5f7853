package netlist

import (
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/netproc"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/refs"
)

// DefaultTool is written to the design header when Options.Tool is empty.
const DefaultTool = "OpenTraceSynth"

// Options tunes Build.
type Options struct {
	Source     string    // Root schematic file; the root sheet file when empty
	Date       time.Time // Export date; now when zero
	Tool       string
	LibraryDir string // Directory prefix of library URIs

	// UUIDSource feeds sheet and symbol UUIDs that are still missing.
	UUIDSource io.Reader
}

type placedComponent struct {
	comp    *circuit.Component
	sheet   *circuit.Circuit
	root    bool
	names   string
	tstamps string
}

// Build assembles the netlist of the design below root from the nets
// collected by netproc.Collect. Components are sorted by reference, nets by
// name with codes assigned in that order, and nodes by reference then pin.
// Sheets and components without a UUID get one first.
func Build(arena *circuit.Arena, root circuit.Handle, nets *netproc.NetSet, opts Options) (*Export, error) {
	if err := arena.AssignUUIDs(root, opts.UUIDSource); err != nil {
		return nil, fmt.Errorf("netlist: %w", err)
	}

	e := &Export{Version: Version}
	var placed []placedComponent
	err := arena.Walk(root, func(h circuit.Handle, c *circuit.Circuit, p string) error {
		isRoot := h == root
		names := sheetNames(p)
		tstamps := arena.TimestampPath(h)
		e.Design.Sheets = append(e.Design.Sheets, Sheet{
			Number:  len(e.Design.Sheets) + 1,
			Name:    names,
			TStamps: tstamps,
			Title:   c.Name,
			Source:  c.SheetFile(),
		})
		for _, comp := range c.Components {
			placed = append(placed, placedComponent{comp: comp, sheet: c, root: isRoot, names: names, tstamps: tstamps})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("netlist: %w", err)
	}

	e.Design.Source = opts.Source
	if e.Design.Source == "" && len(e.Design.Sheets) > 0 {
		e.Design.Source = e.Design.Sheets[0].Source
	}
	date := opts.Date
	if date.IsZero() {
		date = time.Now()
	}
	e.Design.Date = date.Format(time.RFC3339)
	e.Design.Tool = opts.Tool
	if e.Design.Tool == "" {
		e.Design.Tool = DefaultTool
	}

	sort.SliceStable(placed, func(i, j int) bool {
		return refs.Less(placed[i].comp.Reference, placed[j].comp.Reference)
	})
	for _, p := range placed {
		e.Components = append(e.Components, buildComponent(p))
	}
	e.LibParts = buildLibParts(placed)
	e.Libraries = buildLibraries(e.LibParts, opts.LibraryDir)

	if nets != nil {
		for i, n := range nets.Sorted() {
			net := Net{Code: i + 1, Name: n.Name}
			for _, node := range n.SortedNodes() {
				net.Nodes = append(net.Nodes, Node{
					Ref:         node.Ref,
					Pin:         node.Pin,
					PinType:     node.PinType,
					PinFunction: node.PinFunction,
				})
			}
			e.Nets = append(e.Nets, net)
		}
	}
	return e, nil
}

// sheetNames turns an arena path into KiCad's sheet path form: "/" for the
// root and "/MCU/" below it.
func sheetNames(p string) string {
	if p == "/" {
		return p
	}
	return p + "/"
}

func buildComponent(p placedComponent) Component {
	comp := p.comp
	out := Component{
		Ref:          comp.Reference,
		Value:        comp.Value,
		Footprint:    comp.Footprint,
		Datasheet:    comp.Datasheet,
		Description:  comp.Description,
		Lib:          comp.Library(),
		Part:         comp.Part(),
		SheetNames:   p.names,
		SheetTStamps: p.tstamps,
		TStamps:      comp.UUID,
	}

	if comp.Footprint != "" {
		out.Fields = append(out.Fields, Field{Name: "Footprint", Value: comp.Footprint})
	}
	if comp.Datasheet != "" {
		out.Fields = append(out.Fields, Field{Name: "Datasheet", Value: comp.Datasheet})
	}
	if comp.Description != "" {
		out.Fields = append(out.Fields, Field{Name: "Description", Value: comp.Description})
	}
	for name, value := range comp.Fields {
		out.Fields = append(out.Fields, Field{Name: name, Value: value})
	}
	sort.Slice(out.Fields, func(i, j int) bool { return out.Fields[i].Name < out.Fields[j].Name })

	sheetName := p.sheet.Name
	if p.root {
		sheetName = "/"
	}
	out.Properties = []Field{
		{Name: "Sheetname", Value: sheetName},
		{Name: "Sheetfile", Value: p.sheet.SheetFile()},
	}
	return out
}

// buildLibParts describes every distinct symbol once, from its first
// component in reference order.
func buildLibParts(placed []placedComponent) []LibPart {
	seen := make(map[string]int)
	var parts []LibPart
	for _, p := range placed {
		comp := p.comp
		if comp.Part() == "" {
			continue
		}
		if i, ok := seen[comp.Symbol]; ok {
			// a later instance may carry the pin data the first one lacked
			if len(parts[i].Pins) == 0 {
				parts[i].Pins = libPins(comp)
			}
			continue
		}
		seen[comp.Symbol] = len(parts)

		part := LibPart{
			Lib:         comp.Library(),
			Part:        comp.Part(),
			Description: comp.Description,
			Docs:        comp.Datasheet,
			Pins:        libPins(comp),
		}
		part.Fields = append(part.Fields, Field{Name: "Reference", Value: refs.ExtractPrefix(comp.Reference)})
		value := comp.Value
		if value == "" {
			value = comp.Part()
		}
		part.Fields = append(part.Fields, Field{Name: "Value", Value: value})
		if comp.Footprint != "" {
			part.Fields = append(part.Fields, Field{Name: "Footprint", Value: comp.Footprint})
		}
		if comp.Datasheet != "" {
			part.Fields = append(part.Fields, Field{Name: "Datasheet", Value: comp.Datasheet})
		}
		parts = append(parts, part)
	}
	sort.Slice(parts, func(i, j int) bool {
		if parts[i].Lib != parts[j].Lib {
			return parts[i].Lib < parts[j].Lib
		}
		return parts[i].Part < parts[j].Part
	})
	return parts
}

func libPins(comp *circuit.Component) []LibPin {
	pins := make([]LibPin, 0, len(comp.Pins))
	for _, pin := range comp.Pins {
		name := pin.Name
		if name == "" {
			name = "~"
		}
		pins = append(pins, LibPin{Num: pin.ID(), Name: name, Type: pin.Type.String()})
	}
	sort.SliceStable(pins, func(i, j int) bool { return refs.Less(pins[i].Num, pins[j].Num) })
	return pins
}

func buildLibraries(parts []LibPart, dir string) []Library {
	seen := make(map[string]bool)
	var libs []Library
	for _, part := range parts {
		if part.Lib == "" || seen[part.Lib] {
			continue
		}
		seen[part.Lib] = true
		libs = append(libs, Library{Logical: part.Lib, URI: path.Join(dir, part.Lib+".kicad_sym")})
	}
	return libs
}
