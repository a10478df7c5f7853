package placement

import (
	"math"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
)

// Group collects the components sharing one hierarchical path.
type Group struct {
	Path        string
	References  []string
	Center      geometry.Position
	Bounds      sexp.BoundingBox
	Connections map[string]int

	members []int
}

// BuildGroups partitions components by Path, in order of first appearance.
// An empty path is the root sheet.
func BuildGroups(components []*Component) []*Group {
	var groups []*Group
	byPath := make(map[string]*Group)
	for i, c := range components {
		path := groupPath(c.Path)
		g, ok := byPath[path]
		if !ok {
			g = &Group{Path: path, Connections: make(map[string]int)}
			byPath[path] = g
			groups = append(groups, g)
		}
		g.References = append(g.References, c.Reference)
		g.members = append(g.members, i)
	}
	for _, g := range groups {
		g.update(components)
	}
	return groups
}

func groupPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// update recomputes the centroid and footprint from the member positions.
func (g *Group) update(components []*Component) {
	g.Bounds = sexp.NewBoundingBox()
	var sum geometry.Position
	for _, i := range g.members {
		c := components[i]
		sum = sum.Add(c.Position)
		g.Bounds.ExpandBox(c.Bounds(0))
	}
	if len(g.members) > 0 {
		g.Center = sum.Scale(1 / float64(len(g.members)))
	}
}

// footprint is the larger side of the group bounds.
func (g *Group) footprint() float64 {
	return math.Max(g.Bounds.Width(), g.Bounds.Height())
}

// subset returns the member components in order.
func (g *Group) subset(components []*Component) []*Component {
	out := make([]*Component, len(g.members))
	for k, i := range g.members {
		out[k] = components[i]
	}
	return out
}

// countGroupConnections fills every group's Connections with the number of
// links to each other group.
func countGroupConnections(groups []*Group, components []*Component, adj Adjacency) {
	owner := make(map[string]*Group, len(components))
	for _, g := range groups {
		g.Connections = make(map[string]int)
		for _, ref := range g.References {
			owner[ref] = g
		}
	}
	for ref, peers := range adj {
		from, ok := owner[ref]
		if !ok {
			continue
		}
		for _, peer := range peers {
			to, ok := owner[peer]
			if !ok || to == from {
				continue
			}
			from.Connections[to.Path]++
		}
	}
}

// seedLayout places every group on its own square grid, and the groups on
// a coarser grid centred on origin, so that no two bodies start closer than
// the spacing.
func seedLayout(components []*Component, groups []*Group, spacing float64, origin geometry.Position) {
	if len(groups) == 0 {
		return
	}

	var maxDim float64
	for _, c := range components {
		w, h := c.Extent()
		maxDim = math.Max(maxDim, math.Max(w, h))
	}
	pitch := math.Max(3*spacing, maxDim+spacing)

	var maxBlock float64
	for _, g := range groups {
		cols := gridColumns(len(g.members))
		maxBlock = math.Max(maxBlock, float64(cols)*pitch)
	}
	blockPitch := maxBlock + pitch

	gcols := gridColumns(len(groups))
	grows := (len(groups) + gcols - 1) / gcols
	for gi, g := range groups {
		center := origin.Add(geometry.Position{
			X: (float64(gi%gcols) - float64(gcols-1)/2) * blockPitch,
			Y: (float64(gi/gcols) - float64(grows-1)/2) * blockPitch,
		})

		n := len(g.members)
		cols := gridColumns(n)
		rows := (n + cols - 1) / cols
		for k, i := range g.members {
			components[i].Position = center.Add(geometry.Position{
				X: (float64(k%cols) - float64(cols-1)/2) * pitch,
				Y: (float64(k/cols) - float64(rows-1)/2) * pitch,
			})
		}
		g.update(components)
	}
}

func gridColumns(n int) int {
	if n <= 1 {
		return 1
	}
	return int(math.Ceil(math.Sqrt(float64(n))))
}
