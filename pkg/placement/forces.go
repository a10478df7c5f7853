package placement

import (
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
)

const (
	// BoundaryMargin is the distance from each board edge at which the
	// boundary force starts pushing inward.
	BoundaryMargin = 10.0

	// attraction below this squared distance is dropped
	minAttractionDistanceSq = 0.01

	// closer than this, two bodies are treated as coincident
	coincidentDistance = 1e-6
)

// ForceCalculator evaluates the placement force primitives for one
// configuration and board.
type ForceCalculator struct {
	cfg   Config
	board Board
}

// NewForceCalculator returns a calculator for cfg and board. cfg is assumed
// to be valid.
func NewForceCalculator(cfg Config, board Board) *ForceCalculator {
	return &ForceCalculator{cfg: cfg, board: board}
}

// Attraction is the spring force pulling from towards to. Its magnitude is
// strength * distance / spacing; sameGroup applies the internal multiplier.
func (f *ForceCalculator) Attraction(from, to geometry.Position, sameGroup bool) geometry.Position {
	d := to.Sub(from)
	if d.X*d.X+d.Y*d.Y < minAttractionDistanceSq {
		return geometry.Position{}
	}
	k := f.cfg.AttractionStrength
	if sameGroup {
		k *= f.cfg.InternalForceMultiplier
	}
	return d.Scale(k / f.cfg.ComponentSpacing)
}

// Repulsion pushes from away from other with an inverse-square law clamped
// at the component spacing. Coincident bodies get a full-strength push in
// the direction returned by tiebreak (radians); a nil tiebreak pushes
// along +X.
func (f *ForceCalculator) Repulsion(from, other geometry.Position, tiebreak func() float64) geometry.Position {
	return f.repel(from, other, f.cfg.ComponentSpacing, tiebreak)
}

func (f *ForceCalculator) repel(from, other geometry.Position, minDist float64, tiebreak func() float64) geometry.Position {
	d := from.Sub(other)
	dist := d.Length()
	if dist < coincidentDistance {
		angle := 0.0
		if tiebreak != nil {
			angle = tiebreak()
		}
		sin, cos := math.Sincos(angle)
		return geometry.Position{X: cos, Y: sin}.Scale(f.cfg.RepulsionStrength)
	}
	r := minDist / math.Max(dist, minDist)
	return d.Scale(f.cfg.RepulsionStrength * r * r / dist)
}

// Boundary pushes p back inside the board once it comes within
// BoundaryMargin of an edge, linearly in the penetration depth.
func (f *ForceCalculator) Boundary(p geometry.Position) geometry.Position {
	if f.board.IsZero() {
		return geometry.Position{}
	}
	k := f.boundaryStiffness()
	var out geometry.Position
	if left := f.board.X + BoundaryMargin; p.X < left {
		out.X += k * (left - p.X)
	}
	if right := f.board.X + f.board.Width - BoundaryMargin; p.X > right {
		out.X -= k * (p.X - right)
	}
	if top := f.board.Y + BoundaryMargin; p.Y < top {
		out.Y += k * (top - p.Y)
	}
	if bottom := f.board.Y + f.board.Height - BoundaryMargin; p.Y > bottom {
		out.Y -= k * (p.Y - bottom)
	}
	return out
}

// boundaryStiffness makes a full-margin penetration as strong as a
// contact repulsion.
func (f *ForceCalculator) boundaryStiffness() float64 {
	return f.cfg.RepulsionStrength / BoundaryMargin
}

// GroupAttraction is Attraction between group centroids, scaled by
// ln(connections+1). Unconnected groups do not attract.
func (f *ForceCalculator) GroupAttraction(from, to geometry.Position, connections int) geometry.Position {
	if connections <= 0 {
		return geometry.Position{}
	}
	d := to.Sub(from)
	if d.X*d.X+d.Y*d.Y < minAttractionDistanceSq {
		return geometry.Position{}
	}
	k := f.cfg.AttractionStrength * math.Log(float64(connections)+1)
	return d.Scale(k / f.cfg.ComponentSpacing)
}

// GroupRepulsion is Repulsion between group centroids with the clamp
// distance raised to minDistance, derived from the two group footprints.
func (f *ForceCalculator) GroupRepulsion(from, other geometry.Position, minDistance float64, tiebreak func() float64) geometry.Position {
	return f.repel(from, other, math.Max(minDistance, f.cfg.ComponentSpacing), tiebreak)
}

// SystemEnergy is the spring potential of every connection plus the
// pairwise repulsion potential. The repulsion term is strength*s²/d past the
// spacing s and continues linearly below it, so it matches Repulsion and
// stays finite for coincident bodies.
func (f *ForceCalculator) SystemEnergy(components []*Component, adj Adjacency) float64 {
	s := f.cfg.ComponentSpacing
	index := indexByRef(components)

	var energy float64
	for i, c := range components {
		for _, ref := range adj[c.Reference] {
			j, ok := index[ref]
			if !ok || j <= i {
				continue
			}
			k := f.cfg.AttractionStrength / s
			if groupPath(c.Path) == groupPath(components[j].Path) {
				k *= f.cfg.InternalForceMultiplier
			}
			energy += 0.5 * k * c.Position.DistanceSquared(components[j].Position)
		}
	}

	strength := f.cfg.RepulsionStrength
	for i := 0; i < len(components); i++ {
		for j := i + 1; j < len(components); j++ {
			d := components[i].Position.Distance(components[j].Position)
			if d >= s {
				energy += strength * s * s / d
			} else {
				energy += strength * (2*s - d)
			}
		}
	}
	return energy
}

// Forces returns the net force on every component for one iteration. Each
// component is evaluated by the worker pool against a read-only snapshot of
// the positions; references outside components are ignored.
func (f *ForceCalculator) Forces(components []*Component, adj Adjacency, iteration int) []geometry.Position {
	snapshot := make([]geometry.Position, len(components))
	for i, c := range components {
		snapshot[i] = c.Position
	}
	index := indexByRef(components)
	forces := make([]geometry.Position, len(components))

	var g errgroup.Group
	g.SetLimit(f.cfg.workers())
	for i := range components {
		g.Go(func() error {
			forces[i] = f.forceOn(i, components, snapshot, index, adj, iteration)
			return nil
		})
	}
	_ = g.Wait()
	return forces
}

func (f *ForceCalculator) forceOn(i int, components []*Component, snapshot []geometry.Position, index map[string]int, adj Adjacency, iteration int) geometry.Position {
	pos := snapshot[i]
	var rng *rand.Rand
	tiebreak := func() float64 {
		if rng == nil {
			rng = rand.New(rand.NewSource(f.cfg.Seed + int64(iteration)*1000003 + int64(i)))
		}
		return rng.Float64() * 2 * math.Pi
	}

	var total geometry.Position
	for _, ref := range adj[components[i].Reference] {
		j, ok := index[ref]
		if !ok || j == i {
			continue
		}
		same := groupPath(components[i].Path) == groupPath(components[j].Path)
		total = total.Add(f.Attraction(pos, snapshot[j], same))
	}
	for j := range snapshot {
		if j == i {
			continue
		}
		total = total.Add(f.Repulsion(pos, snapshot[j], tiebreak))
	}
	return total.Add(f.Boundary(pos))
}

// ApplyForces moves every component by its damped force, capped at
// temperature * spacing (and MaxMoveDistance when set), and keeps bodies on
// the board. It returns the summed displacement.
func (f *ForceCalculator) ApplyForces(components []*Component, forces []geometry.Position, temperature float64) float64 {
	maxMove := f.maxMove(temperature)
	var total float64
	for i, c := range components {
		if i >= len(forces) {
			break
		}
		before := c.Position
		c.Position = c.Position.Add(capLength(forces[i].Scale(f.cfg.Damping), maxMove))
		f.clampToBoard(c)
		total += c.Position.Distance(before)
	}
	return total
}

func (f *ForceCalculator) maxMove(temperature float64) float64 {
	m := temperature * f.cfg.ComponentSpacing
	if f.cfg.MaxMoveDistance > 0 && f.cfg.MaxMoveDistance < m {
		m = f.cfg.MaxMoveDistance
	}
	return m
}

func (f *ForceCalculator) clampToBoard(c *Component) {
	if f.board.IsZero() {
		return
	}
	w, h := c.Extent()
	c.Position.X = clamp(c.Position.X, f.board.X+w/2, f.board.X+f.board.Width-w/2)
	c.Position.Y = clamp(c.Position.Y, f.board.Y+h/2, f.board.Y+f.board.Height-h/2)
}

// OptimizeRotations tries the four axis-aligned rotations of every
// connected component and keeps the one that minimises the summed distance
// between its connection points and their peers. Components with
// FixedRotation are skipped. It returns how many components changed
// rotation.
func (f *ForceCalculator) OptimizeRotations(components []*Component, conns []Connection) int {
	index := indexByRef(components)
	touching := make([][]int, len(components))
	for k, c := range conns {
		a, okA := index[c.Ref1]
		b, okB := index[c.Ref2]
		if !okA || !okB || a == b {
			continue
		}
		touching[a] = append(touching[a], k)
		touching[b] = append(touching[b], k)
	}

	changed := 0
	for i, c := range components {
		if len(touching[i]) == 0 || c.FixedRotation {
			continue
		}
		cost := func(rotation float64) float64 {
			var sum float64
			for _, k := range touching[i] {
				conn := conns[k]
				own, peerRef, peerOff := conn.Offset1, conn.Ref2, conn.Offset2
				if conn.Ref1 != c.Reference {
					own, peerRef, peerOff = conn.Offset2, conn.Ref1, conn.Offset1
				}
				peer := components[index[peerRef]]
				a := geometry.TransformPinPosition(c.Position, own, rotation)
				b := geometry.TransformPinPosition(peer.Position, peerOff, peer.Rotation)
				sum += a.Distance(b)
			}
			return sum
		}

		best, bestCost := c.Rotation, cost(c.Rotation)
		for _, r := range []float64{0, 90, 180, 270} {
			if got := cost(r); got < bestCost-1e-9 {
				best, bestCost = r, got
			}
		}
		if best != c.Rotation {
			c.Rotation = best
			changed++
		}
	}
	return changed
}

func indexByRef(components []*Component) map[string]int {
	index := make(map[string]int, len(components))
	for i, c := range components {
		index[c.Reference] = i
	}
	return index
}

func capLength(v geometry.Position, limit float64) geometry.Position {
	l := v.Length()
	if l <= limit || l == 0 {
		return v
	}
	return v.Scale(limit / l)
}

func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}
