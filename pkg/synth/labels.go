package synth

import (
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/netproc"
)

// generateLabels places the hierarchical labels of every subsheet. Each
// sheet has its own generator; pin ends and child sheet pins are occupied
// first so labels do not land on them.
func (r *run) generateLabels() {
	for _, h := range r.order {
		s := r.sheets[h]
		nets := s.hierarchicalNets()
		if len(nets) == 0 {
			continue
		}

		opts := r.Labels
		if opts.UUIDSource == nil {
			opts.UUIDSource = r.UUIDSource
		}
		if opts.Logger == nil {
			opts.Logger = r.Logger
		}
		gen := netproc.NewLabelGenerator(opts)
		for _, comp := range s.circuit.Components {
			for _, pin := range comp.Pins {
				gen.Occupy(pinWorld(comp, pin))
			}
		}
		for _, child := range s.children(r) {
			for i := range child.pins {
				gen.Occupy(child.origin.Add(child.pinOffset(i)))
			}
		}

		labels, failures := gen.Generate(s.circuit.Components, nets)
		s.labels = labels
		r.out.Labels[s.path] = labels
		r.out.LabelFailures = append(r.out.LabelFailures, failures...)
	}
}

// pinWorld returns the sheet position of a pin normalised to the local
// frame.
func pinWorld(comp *circuit.Component, pin circuit.Pin) geometry.Position {
	return geometry.TransformPinPosition(comp.Position, pin.Position, comp.Rotation)
}
