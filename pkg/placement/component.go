package placement

import (
	"math"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
)

// Component is the placement view of a schematic part. Position is the
// body centre; Rotation is in degrees.
type Component struct {
	Reference     string
	FootprintKind string
	Value         string
	Position      geometry.Position
	Rotation      float64
	Width         float64
	Height        float64
	Path          string
	FixedRotation bool // OptimizeRotations leaves Rotation alone
}

// Extent returns the width and height of the rotated body.
func (c *Component) Extent() (float64, float64) {
	switch geometry.NormalizeAngle(c.Rotation) {
	case 0, 180:
		return c.Width, c.Height
	case 90, 270:
		return c.Height, c.Width
	}
	rad := c.Rotation * math.Pi / 180
	sin, cos := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
	return c.Width*cos + c.Height*sin, c.Width*sin + c.Height*cos
}

// Bounds returns the rotated body box grown by margin on every side.
func (c *Component) Bounds(margin float64) sexp.BoundingBox {
	w, h := c.Extent()
	return sexp.BoxAround(c.Position, w+2*margin, h+2*margin)
}

// Connection is an undirected link between two components. The optional
// offsets locate the connected pins relative to each body centre in the
// unrotated frame; zero offsets attach to the centre.
type Connection struct {
	Ref1    string
	Ref2    string
	Offset1 geometry.Position
	Offset2 geometry.Position
}

// Adjacency maps a reference to the references it is connected to.
type Adjacency map[string][]string

// BuildAdjacency inserts every connection in both directions. Self links
// and repeated pairs are dropped.
func BuildAdjacency(conns []Connection) Adjacency {
	adj := make(Adjacency)
	seen := make(map[[2]string]bool)
	for _, c := range conns {
		if c.Ref1 == c.Ref2 || c.Ref1 == "" || c.Ref2 == "" {
			continue
		}
		key := [2]string{c.Ref1, c.Ref2}
		if c.Ref2 < c.Ref1 {
			key = [2]string{c.Ref2, c.Ref1}
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		adj[c.Ref1] = append(adj[c.Ref1], c.Ref2)
		adj[c.Ref2] = append(adj[c.Ref2], c.Ref1)
	}
	return adj
}

// Board is the placement area. A zero-sized board disables the boundary
// force and centres the layout on the origin.
type Board struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// BoardFromBox converts an outline box into a Board.
func BoardFromBox(bb sexp.BoundingBox) Board {
	if bb.IsEmpty() {
		return Board{}
	}
	return Board{X: bb.Min.X, Y: bb.Min.Y, Width: bb.Width(), Height: bb.Height()}
}

// IsZero reports whether the board has no area.
func (b Board) IsZero() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Center returns the middle of the board.
func (b Board) Center() geometry.Position {
	return geometry.Position{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Result is the outcome of one placement run. Collisions is the number of
// overlapping pairs left after collision resolution. Reverted is set when
// the optimised layout was worse than the seed grid and the seed grid was
// returned instead.
type Result struct {
	Components    []*Component
	Energy        float64
	InitialEnergy float64
	Collisions    int
	Iterations    int
	Converged     bool
	Reverted      bool
}

// Positions returns the final position of every component by reference.
func (r Result) Positions() map[string]geometry.Position {
	out := make(map[string]geometry.Position, len(r.Components))
	for _, c := range r.Components {
		out[c.Reference] = c.Position
	}
	return out
}

// Find returns the component with the given reference, or nil.
func (r Result) Find(ref string) *Component {
	for _, c := range r.Components {
		if c.Reference == ref {
			return c
		}
	}
	return nil
}
