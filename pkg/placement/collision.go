package placement

import (
	"math"
	"sort"

	"github.com/asim/quadtree"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
)

// Collision is a pair of overlapping components, by index, with A < B.
type Collision struct {
	A int
	B int
}

// bucketSize is the cell size below which body centres are treated as one
// tree point.
const bucketSize = 1e-6

// Detector finds components whose rotated bodies, each grown by Margin,
// overlap. With Margin at half the spacing, a collision is any pair closer
// than the spacing.
type Detector struct {
	Margin float64
}

// NewDetector returns a detector for the given component spacing.
func NewDetector(spacing float64) *Detector {
	return &Detector{Margin: spacing / 2}
}

// Detect returns every colliding pair, sorted. Candidate pairs come from a
// quadtree of body centres; the exact test is on the grown boxes.
func (d *Detector) Detect(components []*Component) []Collision {
	n := len(components)
	if n < 2 {
		return nil
	}

	boxes := make([]sexp.BoundingBox, n)
	area := sexp.NewBoundingBox()
	var maxHalfW, maxHalfH float64
	for i, c := range components {
		boxes[i] = c.Bounds(d.Margin)
		area.ExpandBox(boxes[i])
		maxHalfW = math.Max(maxHalfW, boxes[i].Width()/2)
		maxHalfH = math.Max(maxHalfH, boxes[i].Height()/2)
	}

	// One tree point per occupied cell: the tree splits forever on points
	// that share a position, so near-coincident centres share a bucket.
	buckets := make(map[geometry.GridKey][]int)
	var cells []geometry.GridKey
	for i := range components {
		k := geometry.KeyOf(boxes[i].Center(), bucketSize)
		if _, ok := buckets[k]; !ok {
			cells = append(cells, k)
		}
		buckets[k] = append(buckets[k], i)
	}

	mid := area.Center()
	tree := quadtree.New(quadtree.NewAABB(
		quadtree.NewPoint(mid.X, mid.Y, nil),
		quadtree.NewPoint(area.Width()/2+1, area.Height()/2+1, nil),
	), 0, nil)
	for _, k := range cells {
		members := buckets[k]
		c := boxes[members[0]].Center()
		tree.Insert(quadtree.NewPoint(c.X, c.Y, members))
	}

	const slack = 2 * bucketSize
	var out []Collision
	for i := range components {
		c := boxes[i].Center()
		near := tree.Search(quadtree.NewAABB(
			quadtree.NewPoint(c.X, c.Y, nil),
			quadtree.NewPoint(boxes[i].Width()/2+maxHalfW+slack, boxes[i].Height()/2+maxHalfH+slack, nil),
		))
		for _, p := range near {
			for _, j := range p.Data().([]int) {
				if j > i && boxes[i].Overlaps(boxes[j]) {
					out = append(out, Collision{A: i, B: j})
				}
			}
		}
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].A != out[b].A {
			return out[a].A < out[b].A
		}
		return out[a].B < out[b].B
	})
	return out
}

// Count returns the number of colliding pairs.
func (d *Detector) Count(components []*Component) int {
	return len(d.Detect(components))
}
