// Package board reads the parts of a KiCad board file that placement needs:
// the Edge.Cuts outline.
package board

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp/kicadsexp"
)

// Minimum supported KiCad version (6.0 = 20211014)
const MinSupportedVersion = 20211014

// EdgeLayer is the board outline layer.
const EdgeLayer = "Edge.Cuts"

// ErrNoOutline is returned when a board has no graphics on Edge.Cuts.
var ErrNoOutline = errors.New("board: no Edge.Cuts outline")

// Segment is one outline primitive reduced to the points that bound it.
type Segment struct {
	Kind   string // gr_line, gr_rect, gr_arc, gr_circle or gr_poly
	Points []sexp.Position
}

// Outline is the Edge.Cuts geometry of a board.
type Outline struct {
	Version   int
	Generator string
	Segments  []Segment
	Bounds    sexp.BoundingBox
}

// ReadOutlineFile reads the outline of a .kicad_pcb file.
func ReadOutlineFile(filename string) (*Outline, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("board: open: %w", err)
	}
	defer file.Close()

	return ReadOutline(file)
}

// ReadOutline reads the board graphics on Edge.Cuts and returns them with
// their bounding box. Footprint graphics are not considered.
func ReadOutline(r io.Reader) (*Outline, error) {
	sexps, err := kicadsexp.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("board: parse s-expression: %w", err)
	}
	if len(sexps) == 0 {
		return nil, fmt.Errorf("board: empty file or no valid s-expressions found")
	}

	root := sexps[0]
	rootName, err := sexp.GetNodeName(root)
	if err != nil {
		return nil, fmt.Errorf("board: root node: %w", err)
	}
	if rootName != "kicad_pcb" {
		return nil, fmt.Errorf("board: expected 'kicad_pcb', got '%s'", rootName)
	}

	out := &Outline{Bounds: sexp.NewBoundingBox()}
	if err := parseHeader(root, out); err != nil {
		return nil, fmt.Errorf("board: header: %w", err)
	}

	for _, item := range sexp.GetListItems(root) {
		kind, err := sexp.GetNodeName(item)
		if err != nil || item.IsLeaf() {
			continue
		}
		parse, ok := shapeParsers[kind]
		if !ok || layerOf(item) != EdgeLayer {
			continue
		}
		points, err := parse(item)
		if err != nil {
			return nil, fmt.Errorf("board: %s: %w", kind, err)
		}
		out.Segments = append(out.Segments, Segment{Kind: kind, Points: points})
		for _, p := range points {
			out.Bounds.Expand(p)
		}
	}

	if len(out.Segments) == 0 {
		return nil, ErrNoOutline
	}
	return out, nil
}

func parseHeader(root kicadsexp.Sexp, out *Outline) error {
	versionNode, found := sexp.FindNode(root, "version")
	if !found {
		return fmt.Errorf("missing required 'version' field")
	}
	ver, err := sexp.GetInt(versionNode, 1)
	if err != nil {
		return fmt.Errorf("failed to parse version: %w", err)
	}
	if ver < MinSupportedVersion {
		return fmt.Errorf("unsupported KiCad version: %d (minimum required: %d / KiCad 6.0)", ver, MinSupportedVersion)
	}
	out.Version = ver

	out.Generator = "unknown"
	if hostNode, found := sexp.FindNode(root, "host"); found {
		if name, err := sexp.GetString(hostNode, 1); err == nil {
			out.Generator = name
		}
	} else if genNode, found := sexp.FindNode(root, "generator"); found {
		if name, err := sexp.GetQuotedString(genNode, 1); err == nil {
			out.Generator = name
		}
	}
	return nil
}

func layerOf(node kicadsexp.Sexp) string {
	layerNode, found := sexp.FindNode(node, "layer")
	if !found {
		return ""
	}
	layer, _ := sexp.GetQuotedString(layerNode, 1)
	return layer
}

var shapeParsers = map[string]func(kicadsexp.Sexp) ([]sexp.Position, error){
	"gr_line":   parseStartEnd,
	"gr_rect":   parseStartEnd,
	"gr_arc":    parseArc,
	"gr_circle": parseCircle,
	"gr_poly":   parsePoly,
}

func point(node kicadsexp.Sexp, key string) (sexp.Position, error) {
	n, found := sexp.FindNode(node, key)
	if !found {
		return sexp.Position{}, fmt.Errorf("missing required '%s' position", key)
	}
	p, err := sexp.GetPositionXY(n)
	if err != nil {
		return sexp.Position{}, fmt.Errorf("failed to parse %s position: %w", key, err)
	}
	return p, nil
}

// parseStartEnd handles gr_line and gr_rect. A rectangle is bounded by its
// two corners.
func parseStartEnd(node kicadsexp.Sexp) ([]sexp.Position, error) {
	start, err := point(node, "start")
	if err != nil {
		return nil, err
	}
	end, err := point(node, "end")
	if err != nil {
		return nil, err
	}
	return []sexp.Position{start, end}, nil
}

// parseArc returns the arc end points plus every axis extreme the arc
// sweeps through.
func parseArc(node kicadsexp.Sexp) ([]sexp.Position, error) {
	start, err := point(node, "start")
	if err != nil {
		return nil, err
	}
	mid, err := point(node, "mid")
	if err != nil {
		return nil, err
	}
	end, err := point(node, "end")
	if err != nil {
		return nil, err
	}
	points := []sexp.Position{start, mid, end}

	center, ok := circumcenter(start, mid, end)
	if !ok {
		return points, nil
	}
	r := center.Distance(start)
	a0 := angleOf(center, start)
	am := angleOf(center, mid)
	a1 := angleOf(center, end)
	for _, q := range []float64{0, 90, 180, 270} {
		if sweeps(a0, am, a1, q) {
			rad := q * math.Pi / 180
			points = append(points, sexp.Position{X: center.X + r*math.Cos(rad), Y: center.Y + r*math.Sin(rad)})
		}
	}
	return points, nil
}

// parseCircle handles (gr_circle (center x y) (end x y)) where end lies on
// the circle.
func parseCircle(node kicadsexp.Sexp) ([]sexp.Position, error) {
	center, err := point(node, "center")
	if err != nil {
		return nil, err
	}
	end, err := point(node, "end")
	if err != nil {
		return nil, err
	}
	r := center.Distance(end)
	return []sexp.Position{
		{X: center.X - r, Y: center.Y - r},
		{X: center.X + r, Y: center.Y + r},
	}, nil
}

func parsePoly(node kicadsexp.Sexp) ([]sexp.Position, error) {
	pts, found := sexp.FindNode(node, "pts")
	if !found {
		return nil, fmt.Errorf("missing required 'pts' list")
	}
	var points []sexp.Position
	for _, xy := range sexp.FindAllNodes(pts, "xy") {
		p, err := sexp.GetPositionXY(xy)
		if err != nil {
			return nil, fmt.Errorf("failed to parse xy: %w", err)
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("polygon has no points")
	}
	return points, nil
}

// circumcenter returns the centre of the circle through a, b and c. It
// reports false for collinear points.
func circumcenter(a, b, c sexp.Position) (sexp.Position, bool) {
	d := 2 * (a.X*(b.Y-c.Y) + b.X*(c.Y-a.Y) + c.X*(a.Y-b.Y))
	if math.Abs(d) < 1e-12 {
		return sexp.Position{}, false
	}
	a2 := a.X*a.X + a.Y*a.Y
	b2 := b.X*b.X + b.Y*b.Y
	c2 := c.X*c.X + c.Y*c.Y
	return sexp.Position{
		X: (a2*(b.Y-c.Y) + b2*(c.Y-a.Y) + c2*(a.Y-b.Y)) / d,
		Y: (a2*(c.X-b.X) + b2*(a.X-c.X) + c2*(b.X-a.X)) / d,
	}, true
}

// angleOf returns the direction of p seen from c in degrees, [0, 360).
func angleOf(c, p sexp.Position) float64 {
	a := math.Atan2(p.Y-c.Y, p.X-c.X) * 180 / math.Pi
	if a < 0 {
		a += 360
	}
	return a
}

// sweeps reports whether the arc from a0 through am to a1 passes angle q.
func sweeps(a0, am, a1, q float64) bool {
	ccw := func(from, to float64) float64 {
		d := math.Mod(to-from, 360)
		if d < 0 {
			d += 360
		}
		return d
	}
	span := ccw(a0, a1)
	if ccw(a0, am) <= span {
		return ccw(a0, q) <= span
	}
	// the arc runs the other way round
	return ccw(a1, q) <= 360-span
}
