package netproc

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/OpenTraceLab/OpenTraceSynth/internal/logging"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/refs"
)

// Node is one pin of a collected net.
type Node struct {
	Ref         string
	Pin         string
	PinType     string
	PinFunction string

	Component *circuit.Component
}

// Net is a flattened net with its final name.
type Net struct {
	Name  string
	Class NetClass
	Owner string // Sheet path of the first circuit that declared it
	Nodes []Node

	seen map[nodeKey]bool
}

type nodeKey struct {
	ref string
	pin string
}

func (n *Net) add(node Node) bool {
	key := nodeKey{ref: node.Ref, pin: node.Pin}
	if n.seen[key] {
		return false
	}
	n.seen[key] = true
	n.Nodes = append(n.Nodes, node)
	return true
}

// SortedNodes returns the nodes ordered by reference, then pin.
func (n *Net) SortedNodes() []Node {
	out := append([]Node(nil), n.Nodes...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ref != out[j].Ref {
			return refs.Less(out[i].Ref, out[j].Ref)
		}
		return refs.Less(out[i].Pin, out[j].Pin)
	})
	return out
}

// NetSet is the result of Collect.
type NetSet struct {
	Nets []*Net // In order of first declaration

	byName map[string]*Net
}

func newNetSet() *NetSet {
	return &NetSet{byName: make(map[string]*Net)}
}

// Get returns the net with the given final name.
func (s *NetSet) Get(name string) (*Net, bool) {
	n, ok := s.byName[name]
	return n, ok
}

// Len returns the number of nets.
func (s *NetSet) Len() int {
	return len(s.Nets)
}

// Sorted returns the nets ordered by name.
func (s *NetSet) Sorted() []*Net {
	out := append([]*Net(nil), s.Nets...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ensure returns the net called name, creating it on first use. The first
// writer decides class and owner.
func (s *NetSet) ensure(name string, class NetClass, owner string) *Net {
	if n, ok := s.byName[name]; ok {
		return n
	}
	n := &Net{Name: name, Class: class, Owner: owner, seen: make(map[nodeKey]bool)}
	s.byName[name] = n
	s.Nets = append(s.Nets, n)
	return n
}

// CollectOptions tunes Collect.
type CollectOptions struct {
	Logger *slog.Logger
}

// Collect walks the hierarchy below root, parents first, and merges its
// nets into uniquely named netlist nets:
//
//   - unnamed nets are named "N$<n>" as they are collected
//   - global nets merge by literal name across every sheet
//   - a hierarchical net joins the same-named net of the nearest ancestor
//     sheet, or is owned by its own sheet and prefixed with its path
//   - local nets keep and merge by their bare name
//   - no-connect pins are moved to their own "unconnected-<ref>-<pin>" net,
//     including no-connect pins no net mentions
//
// Nodes are deduplicated by (reference, pin number) within each net.
// Connections to unknown components or pins are logged and skipped;
// Validate reports them. Components without any pin data accept every pin
// as passive.
func Collect(arena *circuit.Arena, root circuit.Handle, opts CollectOptions) (*NetSet, error) {
	log := logging.OrDiscard(opts.Logger)
	if _, err := arena.Circuit(root); err != nil {
		return nil, fmt.Errorf("netproc: collect: %w", err)
	}

	byRef := make(map[string]*circuit.Component)
	for _, c := range arena.AllComponents(root) {
		if c.Reference != "" {
			byRef[c.Reference] = c
		}
	}

	set := newNetSet()
	scopes := make(map[circuit.Handle]map[string]string)
	placed := make(map[nodeKey]bool)

	err := arena.Walk(root, func(h circuit.Handle, c *circuit.Circuit, path string) error {
		scope := make(map[string]string)
		scopes[h] = scope

		for _, cn := range c.Nets {
			if circuit.IsUnnamed(cn.Name) {
				cn.Name = arena.NextUnnamedNetName()
			}
			class := Classify(cn.Name, cn.Hierarchical)
			name := ResolveName(cn.Name, class, path)
			if class == ClassHierarchical {
				if joined, ok := ancestorNet(arena, c.Parent, scopes, cn.Name); ok {
					name = joined
				}
			}
			if _, ok := scope[cn.Name]; !ok {
				scope[cn.Name] = name
			}

			net := set.ensure(name, class, path)
			for _, conn := range cn.Connections {
				node, pin, ok := resolveNode(conn, byRef)
				if !ok {
					log.Warn("net connection skipped", "net", name, "ref", conn.Ref(), "pin", conn.PinID)
					continue
				}
				if pin.IsNoConnect() {
					addUnconnected(set, node, path, placed)
					continue
				}
				net.add(node)
				placed[nodeKey{ref: node.Ref, pin: node.Pin}] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("netproc: collect: %w", err)
	}

	// no-connect pins that no net mentions
	err = arena.Walk(root, func(_ circuit.Handle, c *circuit.Circuit, path string) error {
		for _, comp := range c.Components {
			for i := range comp.Pins {
				if !comp.Pins[i].IsNoConnect() {
					continue
				}
				addUnconnected(set, newNode(comp, &comp.Pins[i]), path, placed)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("netproc: collect: %w", err)
	}
	return set, nil
}

// ancestorNet looks for name among the nets already collected for the
// ancestors of a sheet, nearest first.
func ancestorNet(arena *circuit.Arena, parent circuit.Handle, scopes map[circuit.Handle]map[string]string, name string) (string, bool) {
	for h := parent; h != circuit.NoHandle; {
		if resolved, ok := scopes[h][name]; ok {
			return resolved, true
		}
		c, err := arena.Circuit(h)
		if err != nil {
			break
		}
		h = c.Parent
	}
	return "", false
}

func addUnconnected(set *NetSet, node Node, path string, placed map[nodeKey]bool) {
	key := nodeKey{ref: node.Ref, pin: node.Pin}
	if placed[key] {
		return
	}
	placed[key] = true
	set.ensure(UnconnectedName(node.Ref, node.Pin), ClassUnconnected, path).add(node)
}

func resolveNode(conn circuit.PinConnection, byRef map[string]*circuit.Component) (Node, *circuit.Pin, bool) {
	comp := conn.Component()
	if comp == nil {
		comp = byRef[conn.Ref()]
	}
	if comp == nil || comp.Reference == "" {
		return Node{}, nil, false
	}
	pin, ok := comp.Pin(conn.PinID)
	if !ok {
		if len(comp.Pins) > 0 || conn.PinID == "" {
			return Node{}, nil, false
		}
		// no pin data for the symbol: trust the connection
		pin = &circuit.Pin{Number: conn.PinID}
	}
	return newNode(comp, pin), pin, true
}

func newNode(comp *circuit.Component, pin *circuit.Pin) Node {
	node := Node{
		Ref:       comp.Reference,
		Pin:       pin.ID(),
		PinType:   pin.Type.String(),
		Component: comp,
	}
	if pin.Name != "" && pin.Name != "~" && pin.Name != pin.Number {
		node.PinFunction = pin.Name
	}
	return node
}
