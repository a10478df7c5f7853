package synth

import (
	"errors"
	"fmt"
	"math"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/library"
)

// applyPins fills component pins from the provider. Components whose symbol
// is unknown keep their own pins; without any they get one passive pin per
// pin id their nets use. Pins without geometry are laid out as a box.
func (r *run) applyPins() error {
	used := r.usedPins()
	return r.arena.Walk(r.root, func(_ circuit.Handle, c *circuit.Circuit, path string) error {
		for i, comp := range c.Components {
			if r.Provider != nil && comp.Symbol != "" {
				lib, part := library.SplitID(comp.Symbol)
				defs, err := r.Provider.Pins(lib, part)
				switch {
				case err == nil:
					library.ApplyPins(comp, defs)
				case errors.Is(err, library.ErrSymbolNotFound):
					r.out.Issues = append(r.out.Issues, circuit.Issue{
						Severity:   circuit.SeverityWarning,
						Category:   "component",
						Message:    fmt.Sprintf("symbol %q not found in the libraries", comp.Symbol),
						FieldPath:  componentField(path, comp, i),
						Suggestion: "load the symbol library with --lib",
					})
				default:
					return fmt.Errorf("synth: pins of %s: %w", comp.Symbol, err)
				}
			}
			if len(comp.Pins) == 0 {
				library.ApplyPins(comp, inferPins(used[comp]))
				continue
			}
			layoutIfFlat(comp)
		}
		return nil
	})
}

func componentField(path string, comp *circuit.Component, i int) string {
	id := comp.Reference
	if id == "" {
		id = fmt.Sprintf("#%d", i)
	}
	return fmt.Sprintf("%s.components[%s]", path, id)
}

// usedPins lists, per component, the pin ids nets connect to in first-use
// order.
func (r *run) usedPins() map[*circuit.Component][]string {
	byRef := make(map[string]*circuit.Component)
	for _, comp := range r.arena.AllComponents(r.root) {
		if comp.Reference != "" {
			byRef[comp.Reference] = comp
		}
	}
	used := make(map[*circuit.Component][]string)
	seen := make(map[*circuit.Component]map[string]bool)
	for _, n := range r.arena.AllNets(r.root) {
		for _, conn := range n.Connections {
			comp := conn.Component()
			if comp == nil {
				comp = byRef[conn.Ref()]
			}
			if comp == nil || conn.PinID == "" {
				continue
			}
			if seen[comp] == nil {
				seen[comp] = make(map[string]bool)
			}
			if seen[comp][conn.PinID] {
				continue
			}
			seen[comp][conn.PinID] = true
			used[comp] = append(used[comp], conn.PinID)
		}
	}
	return used
}

// inferPins builds passive pin definitions for pin ids.
func inferPins(ids []string) []library.PinDef {
	defs := make([]library.PinDef, 0, len(ids))
	for _, id := range ids {
		defs = append(defs, library.PinDef{Number: id, Type: circuit.PinPassive})
	}
	return defs
}

// layoutIfFlat gives pins a box layout when more than one pin sits on the
// component origin, which means no geometry was supplied.
func layoutIfFlat(comp *circuit.Component) {
	if len(comp.Pins) < 2 {
		return
	}
	for _, p := range comp.Pins {
		if p.Position != (geometry.Position{}) {
			return
		}
	}
	defs := make([]library.PinDef, len(comp.Pins))
	for i, p := range comp.Pins {
		defs[i] = library.PinDef{Number: p.Number, Name: p.Name, Type: p.Type}
	}
	laid, w, h := library.DefaultLayout(defs)
	for i := range comp.Pins {
		comp.Pins[i].Position = laid[i].Position
		comp.Pins[i].Orientation = laid[i].Orientation
		comp.Pins[i].Frame = geometry.FrameLocal
	}
	if comp.Width == 0 {
		comp.Width = w
	}
	if comp.Height == 0 {
		comp.Height = h
	}
}

// normalisePins rewrites every pin into the component's local frame so that
// moving the component carries its pins along.
func (r *run) normalisePins() {
	threshold := r.Labels.Threshold
	if threshold <= 0 {
		threshold = geometry.WorldFrameThreshold
	}
	for _, comp := range r.arena.AllComponents(r.root) {
		for i := range comp.Pins {
			pin := &comp.Pins[i]
			if pin.Frame == geometry.FrameLocal {
				continue
			}
			world, assumed := geometry.ResolvePinWorld(comp.Position, pin.Position, comp.Rotation, pin.Frame, threshold)
			if assumed {
				r.log.Debug("pin taken as world coordinates", "ref", comp.Reference, "pin", pin.ID())
			}
			pin.Position = geometry.InverseTransformPinPosition(comp.Position, world, comp.Rotation)
			pin.Frame = geometry.FrameLocal
		}
		if comp.Width == 0 || comp.Height == 0 {
			w, h := pinExtent(comp)
			if comp.Width == 0 {
				comp.Width = w
			}
			if comp.Height == 0 {
				comp.Height = h
			}
		}
	}
}

// minBody is the smallest body side used for sizing.
const minBody = 5.08

// pinExtent returns the box spanned by the local pin ends.
func pinExtent(comp *circuit.Component) (float64, float64) {
	var hx, hy float64
	for _, p := range comp.Pins {
		hx = max(hx, math.Abs(p.Position.X))
		hy = max(hy, math.Abs(p.Position.Y))
	}
	return max(2*hx, minBody), max(2*hy, minBody)
}
