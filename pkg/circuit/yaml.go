package circuit

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
)

// Document is the YAML circuit description.
type Document struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Components  []DocPart   `yaml:"components"`
	Nets        []DocNet    `yaml:"nets"`
	Subcircuits []*Document `yaml:"subcircuits"`
}

// DocPart describes one component. ID is a document-wide handle nets may use
// instead of a reference that is not assigned yet.
type DocPart struct {
	ID          string            `yaml:"id"`
	Ref         string            `yaml:"ref"`
	Symbol      string            `yaml:"symbol"`
	Value       string            `yaml:"value"`
	Footprint   string            `yaml:"footprint"`
	Datasheet   string            `yaml:"datasheet"`
	Description string            `yaml:"description"`
	X           float64           `yaml:"x"`
	Y           float64           `yaml:"y"`
	Rotation    float64           `yaml:"rotation"`
	Width       float64           `yaml:"width"`
	Height      float64           `yaml:"height"`
	Fields      map[string]string `yaml:"fields"`
	Pins        []DocPin          `yaml:"pins"`
}

// DocPin describes one pin. Frame is "local", "world" or "auto" (default).
type DocPin struct {
	Number      string  `yaml:"number"`
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type"`
	X           float64 `yaml:"x"`
	Y           float64 `yaml:"y"`
	Orientation float64 `yaml:"orientation"`
	Frame       string  `yaml:"frame"`
}

// DocNet describes one net. Connect entries are "REF.PIN" or "ID.PIN".
type DocNet struct {
	Name         string   `yaml:"name"`
	Hierarchical bool     `yaml:"hierarchical"`
	Connect      []string `yaml:"connect"`
}

// LoadFile reads a YAML circuit description from path.
func LoadFile(path string) (*Arena, Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NoHandle, fmt.Errorf("circuit: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadYAML(f)
}

// LoadYAML builds an arena from a YAML circuit description and returns it
// with the handle of the root circuit.
func LoadYAML(r io.Reader) (*Arena, Handle, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, NoHandle, fmt.Errorf("circuit: decode yaml: %w", err)
	}
	return Build(&doc)
}

// Build turns a decoded document into an arena. Components are added first
// for the whole tree so nets may connect to parts declared in any sheet.
func Build(doc *Document) (*Arena, Handle, error) {
	a := NewArena()
	root := a.NewCircuit(doc.Name)
	b := &builder{arena: a, root: root, ids: make(map[string]*Component)}

	type pending struct {
		h    Handle
		nets []DocNet
	}
	var nets []pending

	var addTree func(h Handle, d *Document) error
	addTree = func(h Handle, d *Document) error {
		c, _ := a.Circuit(h)
		c.Description = d.Description
		for i, p := range d.Components {
			comp, err := p.component()
			if err != nil {
				return fmt.Errorf("circuit: %s components[%d]: %w", a.Path(h), i, err)
			}
			if err := a.AddComponent(h, comp); err != nil {
				return err
			}
			if p.ID != "" {
				if _, dup := b.ids[p.ID]; dup {
					return fmt.Errorf("circuit: duplicate component id %q", p.ID)
				}
				b.ids[p.ID] = comp
			}
		}
		nets = append(nets, pending{h: h, nets: d.Nets})
		for _, sub := range d.Subcircuits {
			if sub == nil {
				continue
			}
			ch, err := a.AddSubcircuit(h, sub.Name)
			if err != nil {
				return err
			}
			if err := addTree(ch, sub); err != nil {
				return err
			}
		}
		return nil
	}
	if err := addTree(root, doc); err != nil {
		return nil, NoHandle, err
	}

	for _, p := range nets {
		for _, dn := range p.nets {
			net := &Net{Name: dn.Name, Hierarchical: dn.Hierarchical}
			for _, spec := range dn.Connect {
				if err := b.connect(net, spec); err != nil {
					return nil, NoHandle, fmt.Errorf("circuit: %s net %q: %w", a.Path(p.h), dn.Name, err)
				}
			}
			if err := a.AddNet(p.h, net); err != nil {
				return nil, NoHandle, err
			}
		}
	}
	return a, root, nil
}

type builder struct {
	arena *Arena
	root  Handle
	ids   map[string]*Component
}

func (b *builder) connect(net *Net, spec string) error {
	target, pin, ok := strings.Cut(strings.TrimSpace(spec), ".")
	if !ok || target == "" || pin == "" {
		return fmt.Errorf("connection %q is not REF.PIN", spec)
	}
	if comp, ok := b.ids[target]; ok {
		net.Connect(comp, pin)
		return nil
	}
	for _, comp := range b.arena.AllComponents(b.root) {
		if comp.Reference == target {
			net.Connect(comp, pin)
			return nil
		}
	}
	// left unresolved, Validate reports it
	net.Add(target, pin)
	return nil
}

func (p DocPart) component() (*Component, error) {
	comp := &Component{
		Reference:   p.Ref,
		Symbol:      p.Symbol,
		Value:       p.Value,
		Footprint:   p.Footprint,
		Datasheet:   p.Datasheet,
		Description: p.Description,
		Position:    geometry.Position{X: p.X, Y: p.Y},
		Rotation:    p.Rotation,
		Width:       p.Width,
		Height:      p.Height,
		Fields:      p.Fields,
	}
	for _, dp := range p.Pins {
		frame, err := ParseFrame(dp.Frame)
		if err != nil {
			return nil, err
		}
		comp.Pins = append(comp.Pins, Pin{
			Number:      dp.Number,
			Name:        dp.Name,
			Type:        ParsePinType(dp.Type),
			Position:    geometry.Position{X: dp.X, Y: dp.Y},
			Orientation: dp.Orientation,
			Frame:       frame,
		})
	}
	return comp, nil
}

// ParseFrame parses "auto", "local" or "world". Empty means auto.
func ParseFrame(s string) (geometry.Frame, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return geometry.FrameAuto, nil
	case "local":
		return geometry.FrameLocal, nil
	case "world":
		return geometry.FrameWorld, nil
	}
	return geometry.FrameAuto, fmt.Errorf("unknown pin frame %q", s)
}
