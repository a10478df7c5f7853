// Package circuit holds the hierarchical circuit description the synthesis
// pipeline consumes. Every circuit of a design lives in one Arena and is
// addressed by a Handle; parent and child links are handles, never copies.
package circuit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/refs"
)

var (
	// ErrReferenceCollision is returned when an explicit reference is already used.
	ErrReferenceCollision = fmt.Errorf("circuit: reference collision: %w", refs.ErrAlreadyExists)
	// ErrInvalidReference is returned for explicit references that are malformed.
	ErrInvalidReference = errors.New("circuit: invalid reference")
	// ErrUnknownCircuit is returned for handles the arena does not own.
	ErrUnknownCircuit = errors.New("circuit: unknown circuit")
	// ErrComponentNotFound is returned when a reference does not resolve.
	ErrComponentNotFound = errors.New("circuit: component not found")
)

// Handle addresses a circuit inside an Arena.
type Handle int

// NoHandle is the parent of a root circuit.
const NoHandle Handle = -1

// Circuit is one sheet of the design.
type Circuit struct {
	ID          int      // Arena sequence number
	Name        string   // Sheet name ("MCU")
	UUID        string   // Sheet identity in generated files; see AssignUUIDs
	Description string   // Free text
	Parent      Handle   // NoHandle for the root
	Children    []Handle // Subcircuits in insertion order
	Components  []*Component
	Nets        []*Net

	index    map[string]*Component
	deferred []*Component
	refs     *refs.Manager
}

// Lookup returns the component registered under ref in this circuit.
func (c *Circuit) Lookup(ref string) (*Component, bool) {
	comp, ok := c.index[ref]
	return comp, ok
}

// References returns the reference manager scope of the circuit.
func (c *Circuit) References() *refs.Manager {
	return c.refs
}

// Arena owns every circuit of one design.
type Arena struct {
	circuits []*Circuit
	refs     *refs.Manager
	nextID   int
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{refs: refs.NewManager()}
}

// NewCircuit creates a root circuit.
func (a *Arena) NewCircuit(name string) Handle {
	return a.add(name, NoHandle, a.refs)
}

func (a *Arena) add(name string, parent Handle, scope *refs.Manager) Handle {
	a.nextID++
	a.circuits = append(a.circuits, &Circuit{
		ID:     a.nextID,
		Name:   name,
		Parent: parent,
		index:  make(map[string]*Component),
		refs:   scope,
	})
	return Handle(len(a.circuits) - 1)
}

// AddSubcircuit creates a child of parent.
func (a *Arena) AddSubcircuit(parent Handle, name string) (Handle, error) {
	p, err := a.Circuit(parent)
	if err != nil {
		return NoHandle, err
	}
	h := a.add(name, parent, p.refs.NewChild())
	p.Children = append(p.Children, h)
	return h, nil
}

// Circuit returns the circuit addressed by h.
func (a *Arena) Circuit(h Handle) (*Circuit, error) {
	if h < 0 || int(h) >= len(a.circuits) {
		return nil, fmt.Errorf("%w: handle %d", ErrUnknownCircuit, h)
	}
	return a.circuits[h], nil
}

// Len returns the number of circuits in the arena.
func (a *Arena) Len() int {
	return len(a.circuits)
}

// AddComponent adds comp to the circuit h. An explicit reference is
// registered immediately. A missing reference, or one without a trailing
// number, is deferred until FinalizeReferences.
func (a *Arena) AddComponent(h Handle, comp *Component) error {
	c, err := a.Circuit(h)
	if err != nil {
		return err
	}

	ref := strings.TrimSpace(comp.Reference)
	switch {
	case ref == "":
		comp.prefix = refs.DefaultPrefix(comp.Symbol)
		comp.Reference = ""
		c.deferred = append(c.deferred, comp)
	case !refs.IsValidFormat(ref):
		return fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	case !refs.HasNumber(ref):
		comp.prefix = ref
		comp.Reference = ""
		c.deferred = append(c.deferred, comp)
	default:
		if err := c.refs.RegisterReference(ref); err != nil {
			return fmt.Errorf("%w: %q in %s", ErrReferenceCollision, ref, a.Path(h))
		}
		comp.Reference = ref
		c.index[ref] = comp
	}

	c.Components = append(c.Components, comp)
	return nil
}

// AddNet adds net to the circuit h. Unnamed nets get the next "N$<n>" name
// of the design.
func (a *Arena) AddNet(h Handle, net *Net) error {
	c, err := a.Circuit(h)
	if err != nil {
		return err
	}
	if IsUnnamed(net.Name) {
		net.Name = a.refs.GenerateNextUnnamedNetName()
	}
	c.Nets = append(c.Nets, net)
	return nil
}

// NextUnnamedNetName returns the next generated net name of the design.
func (a *Arena) NextUnnamedNetName() string {
	return a.refs.GenerateNextUnnamedNetName()
}

// FinalizeReferences assigns references to every deferred component of h in
// insertion order, then does the same for each subcircuit, depth first.
func (a *Arena) FinalizeReferences(h Handle) error {
	c, err := a.Circuit(h)
	if err != nil {
		return err
	}

	for _, comp := range c.deferred {
		ref, err := c.refs.GenerateNextReference(comp.prefix)
		if err != nil {
			return fmt.Errorf("circuit: finalize %s: %w", a.Path(h), err)
		}
		comp.Reference = ref
		comp.prefix = ""
		c.index[ref] = comp
	}
	c.deferred = nil

	for _, child := range c.Children {
		if err := a.FinalizeReferences(child); err != nil {
			return err
		}
	}

	a.syncConnections(c)
	return nil
}

// syncConnections copies assigned references into connections made before
// the reference existed.
func (a *Arena) syncConnections(c *Circuit) {
	for _, net := range c.Nets {
		for i := range net.Connections {
			net.Connections[i].ComponentRef = net.Connections[i].Ref()
		}
	}
}

// Path returns the sheet path of h: "/" for a root, "/MCU/ADC" below it.
func (a *Arena) Path(h Handle) string {
	var names []string
	for cur := h; cur != NoHandle; {
		c, err := a.Circuit(cur)
		if err != nil {
			break
		}
		if c.Parent == NoHandle {
			break
		}
		names = append(names, c.Name)
		cur = c.Parent
	}
	if len(names) == 0 {
		return "/"
	}
	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(names[i])
	}
	return b.String()
}

// WalkFunc is called for every circuit visited by Walk.
type WalkFunc func(h Handle, c *Circuit, path string) error

// Walk visits h and its subcircuits depth first, parents before children.
func (a *Arena) Walk(h Handle, fn WalkFunc) error {
	c, err := a.Circuit(h)
	if err != nil {
		return err
	}
	if err := fn(h, c, a.Path(h)); err != nil {
		return err
	}
	for _, child := range c.Children {
		if err := a.Walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// AllComponents returns the components of h and every subcircuit.
func (a *Arena) AllComponents(h Handle) []*Component {
	var out []*Component
	_ = a.Walk(h, func(_ Handle, c *Circuit, _ string) error {
		out = append(out, c.Components...)
		return nil
	})
	return out
}

// AllNets returns the nets of h and every subcircuit.
func (a *Arena) AllNets(h Handle) []*Net {
	var out []*Net
	_ = a.Walk(h, func(_ Handle, c *Circuit, _ string) error {
		out = append(out, c.Nets...)
		return nil
	})
	return out
}

// FindComponent resolves ref anywhere below h.
func (a *Arena) FindComponent(h Handle, ref string) (*Component, error) {
	var found *Component
	_ = a.Walk(h, func(_ Handle, c *Circuit, _ string) error {
		if comp, ok := c.index[ref]; ok {
			found = comp
			return errStop
		}
		return nil
	})
	if found == nil {
		return nil, fmt.Errorf("%w: %q", ErrComponentNotFound, ref)
	}
	return found, nil
}

var errStop = errors.New("stop")
