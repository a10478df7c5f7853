package synth

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/netproc"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/placement"
)

// Sheet symbol geometry, in millimetres.
const (
	sheetPitch    = 2.54
	sheetMinWidth = 25.4
	sheetMinH     = 10.16
	sheetMargin   = 25.4
)

// sheetState is the per-circuit working data of a run.
type sheetState struct {
	handle  circuit.Handle
	circuit *circuit.Circuit
	path    string
	file    string
	page    int
	isRoot  bool

	// the symbol of this sheet on its parent
	pins   []string // hierarchical net names, one sheet pin each
	origin geometry.Position
	size   sexp.Size

	labels []netproc.HierarchicalLabel
}

// hierarchicalNets returns the nets of a non-root sheet that leave it
// through a hierarchical label.
func (s *sheetState) hierarchicalNets() []*circuit.Net {
	if s.isRoot {
		return nil
	}
	var out []*circuit.Net
	for _, n := range s.circuit.Nets {
		if netproc.Classify(n.Name, n.Hierarchical) == netproc.ClassHierarchical {
			out = append(out, n)
		}
	}
	return out
}

// sizeSymbol fixes the sheet pins and the size of the sheet symbol.
func (s *sheetState) sizeSymbol() {
	seen := make(map[string]bool)
	s.pins = s.pins[:0]
	longest := len(s.circuit.Name)
	for _, n := range s.hierarchicalNets() {
		if seen[n.Name] {
			continue
		}
		seen[n.Name] = true
		s.pins = append(s.pins, n.Name)
		longest = max(longest, len(n.Name))
	}
	width := math.Ceil((float64(longest)*1.27+2*sheetPitch)/sheetPitch) * sheetPitch
	height := float64(len(s.pins)+1) * sheetPitch
	s.size = sexp.Size{Width: max(width, sheetMinWidth), Height: max(height, sheetMinH)}
}

// pinOffset is the position of sheet pin i relative to the sheet origin.
// Pins run down the left edge.
func (s *sheetState) pinOffset(i int) geometry.Position {
	return geometry.Position{X: 0, Y: float64(i+1) * sheetPitch}
}

func (s *sheetState) pinIndex(name string) int {
	for i, p := range s.pins {
		if p == name {
			return i
		}
	}
	return -1
}

func (s *sheetState) children(r *run) []*sheetState {
	out := make([]*sheetState, 0, len(s.circuit.Children))
	for _, h := range s.circuit.Children {
		out = append(out, r.sheets[h])
	}
	return out
}

// layout is the placement input and output of one sheet.
type layout struct {
	sheet      *sheetState
	components []*placement.Component
	conns      []placement.Connection
	result     placement.Result
}

// place lays out every sheet. Sheets are independent and run in parallel.
func (r *run) place(cfg placement.Config) error {
	for _, h := range r.order {
		r.sheets[h].sizeSymbol()
	}

	layouts := make([]*layout, len(r.order))
	for i, h := range r.order {
		layouts[i] = r.layoutInput(r.sheets[h])
	}

	limit := cfg.Workers
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	var eg errgroup.Group
	eg.SetLimit(limit)
	for _, l := range layouts {
		eg.Go(func() error {
			placer, err := placement.NewPlacer(cfg)
			if err != nil {
				return err
			}
			res, err := placer.Place(l.components, l.conns, r.Board)
			if err != nil {
				return err
			}
			l.result = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, l := range layouts {
		r.applyLayout(l)
		r.out.Placement[l.sheet.path] = l.result
		if l.result.Collisions > 0 {
			r.log.Warn("overlapping components left", "sheet", l.sheet.path, "pairs", l.result.Collisions)
		}
		r.log.Debug("sheet placed", "sheet", l.sheet.path,
			"components", len(l.components), "energy", l.result.Energy, "iterations", l.result.Iterations)
	}
	return nil
}

// endpoint is one pin of a net on a sheet, in placement terms.
type endpoint struct {
	ref    string
	offset geometry.Position
}

// layoutInput builds the placement problem of a sheet: its components plus
// one fixed-rotation box per child sheet, linked along every net.
func (r *run) layoutInput(s *sheetState) *layout {
	l := &layout{sheet: s}
	for _, comp := range s.circuit.Components {
		l.components = append(l.components, &placement.Component{
			Reference:     comp.Reference,
			FootprintKind: comp.Footprint,
			Value:         comp.Value,
			Position:      comp.Position,
			Rotation:      comp.Rotation,
			Width:         comp.Width,
			Height:        comp.Height,
			Path:          s.path,
		})
	}
	children := s.children(r)
	for _, child := range children {
		l.components = append(l.components, &placement.Component{
			Reference:     child.path,
			FootprintKind: "sheet",
			Value:         child.circuit.Name,
			Width:         child.size.Width,
			Height:        child.size.Height,
			Path:          s.path,
			FixedRotation: true,
		})
	}

	for _, n := range s.circuit.Nets {
		var ends []endpoint
		for _, conn := range n.Connections {
			comp, pin, ok := resolvePin(s.circuit, conn)
			if !ok {
				continue
			}
			ends = append(ends, endpoint{ref: comp.Reference, offset: pin.Position})
		}
		for _, child := range children {
			if i := child.pinIndex(n.Name); i >= 0 {
				centre := geometry.Position{X: child.size.Width / 2, Y: child.size.Height / 2}
				ends = append(ends, endpoint{ref: child.path, offset: child.pinOffset(i).Sub(centre)})
			}
		}
		for i := 1; i < len(ends); i++ {
			a, b := ends[i-1], ends[i]
			if a.ref == b.ref {
				continue
			}
			l.conns = append(l.conns, placement.Connection{Ref1: a.ref, Ref2: b.ref, Offset1: a.offset, Offset2: b.offset})
		}
	}
	return l
}

// resolvePin finds the component and pin a connection names on sheet c.
func resolvePin(c *circuit.Circuit, conn circuit.PinConnection) (*circuit.Component, *circuit.Pin, bool) {
	comp := conn.Component()
	if comp == nil {
		var ok bool
		if comp, ok = c.Lookup(conn.Ref()); !ok {
			return nil, nil, false
		}
	}
	pin, ok := comp.Pin(conn.PinID)
	if !ok {
		return nil, nil, false
	}
	return comp, pin, true
}

// applyLayout snaps the placed sheet to the grid, moves it onto the paper
// when no board was given, and writes the positions back.
func (r *run) applyLayout(l *layout) {
	s := l.sheet
	byRef := make(map[string]*placement.Component, len(l.components))
	for _, pc := range l.components {
		pc.Position = geometry.SnapToGrid(pc.Position, geometry.GridSize)
		pc.Rotation = geometry.SnapOrientation(pc.Rotation)
		byRef[pc.Reference] = pc
	}

	if r.Board.IsZero() {
		bounds := sexp.NewBoundingBox()
		for _, pc := range l.components {
			bounds.ExpandBox(pc.Bounds(0))
		}
		if !bounds.IsEmpty() {
			shift := geometry.Position{X: sheetMargin - bounds.Min.X, Y: sheetMargin - bounds.Min.Y}
			shift = geometry.SnapToGrid(shift, sheetPitch)
			for _, pc := range l.components {
				pc.Position = pc.Position.Add(shift)
			}
		}
	}

	for _, comp := range s.circuit.Components {
		if pc, ok := byRef[comp.Reference]; ok {
			comp.Position = pc.Position
			comp.Rotation = pc.Rotation
		}
	}
	for _, child := range s.children(r) {
		pc, ok := byRef[child.path]
		if !ok {
			continue
		}
		pc.Rotation = 0
		corner := pc.Position.Sub(geometry.Position{X: child.size.Width / 2, Y: child.size.Height / 2})
		child.origin = geometry.SnapToGrid(corner, sheetPitch)
	}
}
