package netproc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/OpenTraceSynth/internal/logging"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
)

var (
	// ErrComponentNotFound is returned when a label's connection names a
	// component that is not on the sheet.
	ErrComponentNotFound = errors.New("netproc: component not found")
	// ErrPinNotFound is returned when the component has no such pin.
	ErrPinNotFound = errors.New("netproc: pin not found")
	// ErrNoConnections is returned for a net without any connection.
	ErrNoConnections = errors.New("netproc: net has no connections")
)

// Label defaults, in millimetres.
const (
	DefaultFontSize = 1.27
	DefaultAttempts = 20
)

// HierarchicalLabel is a placed sheet label.
type HierarchicalLabel struct {
	Name        string
	Shape       string
	Position    geometry.Position
	Orientation float64
	FontSize    float64
	Justify     string
	UUID        string

	Ref string // Component the label is attached to
	Pin string
}

// LabelFailure records a net that got no label.
type LabelFailure struct {
	Net string
	Err error
}

func (f LabelFailure) Error() string {
	return fmt.Sprintf("label %q: %v", f.Net, f.Err)
}

func (f LabelFailure) Unwrap() error {
	return f.Err
}

// LabelOptions tunes a LabelGenerator. Zero values select the defaults.
type LabelOptions struct {
	Shape     string  // Fixed label shape; derived from the pin type when empty
	FontSize  float64 // Text size
	Grid      float64 // Snap grid
	Offset    float64 // Distance from the pin end and between retries
	Attempts  int     // Relocation attempts for an occupied cell
	Threshold float64 // World-frame detection distance for FrameAuto pins
	Workers   int     // Geometry workers; 0 means GOMAXPROCS

	// UUIDSource feeds label UUIDs; crypto/rand when nil.
	UUIDSource io.Reader
	Logger     *slog.Logger
}

func (o LabelOptions) withDefaults() LabelOptions {
	if o.FontSize <= 0 {
		o.FontSize = DefaultFontSize
	}
	if o.Grid <= 0 {
		o.Grid = geometry.GridSize
	}
	if o.Offset <= 0 {
		o.Offset = geometry.LabelOffset
	}
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Threshold <= 0 {
		o.Threshold = geometry.WorldFrameThreshold
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// LabelGenerator places one hierarchical label per net. A generator keeps
// the occupied grid cells between calls, so the labels of one sheet should
// come from one generator.
type LabelGenerator struct {
	opts LabelOptions
	used map[geometry.GridKey]bool
	log  *slog.Logger
}

// NewLabelGenerator returns a generator with an empty sheet.
func NewLabelGenerator(opts LabelOptions) *LabelGenerator {
	opts = opts.withDefaults()
	return &LabelGenerator{
		opts: opts,
		used: make(map[geometry.GridKey]bool),
		log:  logging.OrDiscard(opts.Logger),
	}
}

// Occupy marks the grid cell at p as taken.
func (g *LabelGenerator) Occupy(p geometry.Position) {
	g.used[geometry.KeyOf(p, g.opts.Grid)] = true
}

// anchor is the per-net geometry computed before placement.
type anchor struct {
	net         string
	ref         string
	pin         string
	shape       string
	position    geometry.Position
	orientation float64
	err         error
}

// Generate returns a label for every net of components, in net order, and
// the nets that could not get one. The first connection of a net anchors
// its label; when its component or pin is missing the net fails with
// ErrComponentNotFound or ErrPinNotFound. A net name seen before is skipped.
// Anchors are computed in parallel; cells are claimed sequentially so later
// labels see earlier ones.
func (g *LabelGenerator) Generate(components []*circuit.Component, nets []*circuit.Net) ([]HierarchicalLabel, []LabelFailure) {
	byRef := make(map[string]*circuit.Component, len(components))
	for _, c := range components {
		byRef[c.Reference] = c
	}

	var unique []*circuit.Net
	seen := make(map[string]bool)
	for _, n := range nets {
		if seen[n.Name] {
			continue
		}
		seen[n.Name] = true
		unique = append(unique, n)
	}

	anchors := make([]anchor, len(unique))
	var eg errgroup.Group
	eg.SetLimit(g.opts.Workers)
	for i, n := range unique {
		eg.Go(func() error {
			anchors[i] = g.anchor(n, byRef)
			return nil
		})
	}
	_ = eg.Wait()

	var (
		labels   []HierarchicalLabel
		failures []LabelFailure
	)
	for _, a := range anchors {
		if a.err != nil {
			g.log.Warn("hierarchical label skipped", "net", a.net, "err", a.err)
			failures = append(failures, LabelFailure{Net: a.net, Err: a.err})
			continue
		}
		id, err := g.newUUID()
		if err != nil {
			failures = append(failures, LabelFailure{Net: a.net, Err: err})
			continue
		}
		pos := g.claim(a.position)
		labels = append(labels, HierarchicalLabel{
			Name:        a.net,
			Shape:       a.shape,
			Position:    pos,
			Orientation: a.orientation,
			FontSize:    g.opts.FontSize,
			Justify:     Justification(a.orientation),
			UUID:        id,
			Ref:         a.ref,
			Pin:         a.pin,
		})
	}
	return labels, failures
}

func (g *LabelGenerator) anchor(n *circuit.Net, byRef map[string]*circuit.Component) anchor {
	a := anchor{net: n.Name}
	if len(n.Connections) == 0 {
		a.err = ErrNoConnections
		return a
	}

	conn := n.Connections[0]
	comp, ok := byRef[conn.Ref()]
	if !ok {
		a.err = fmt.Errorf("%w: %q", ErrComponentNotFound, conn.Ref())
		return a
	}
	pin, ok := comp.Pin(conn.PinID)
	if !ok {
		a.err = fmt.Errorf("%w: %s.%s", ErrPinNotFound, comp.Reference, conn.PinID)
		return a
	}

	world, assumed := geometry.ResolvePinWorld(comp.Position, pin.Position, comp.Rotation, pin.Frame, g.opts.Threshold)
	if assumed {
		g.log.Debug("pin taken as world coordinates", "ref", comp.Reference, "pin", pin.ID())
	}
	a.ref, a.pin = comp.Reference, pin.ID()
	a.orientation = geometry.LabelOrientation(pin.Orientation, comp.Rotation)
	a.position = world.Add(geometry.Direction(a.orientation).Scale(g.opts.Offset))
	a.shape = g.opts.Shape
	if a.shape == "" {
		a.shape = ShapeForPin(pin.Type)
	}
	return a
}

// retry directions: up, right, down, left in sheet coordinates
var retryDirections = [4]geometry.Position{
	{X: 0, Y: -1},
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
}

// claim snaps p to the grid and moves it to a free cell when needed. When
// every attempt is taken the last candidate is used anyway.
func (g *LabelGenerator) claim(p geometry.Position) geometry.Position {
	pos := geometry.SnapToGrid(p, g.opts.Grid)
	key := geometry.KeyOf(pos, g.opts.Grid)
	for k := 1; g.used[key] && k <= g.opts.Attempts; k++ {
		step := retryDirections[(k-1)%len(retryDirections)].Scale(float64(k) * g.opts.Offset)
		pos = geometry.SnapToGrid(p.Add(step), g.opts.Grid)
		key = geometry.KeyOf(pos, g.opts.Grid)
	}
	g.used[key] = true
	return pos
}

func (g *LabelGenerator) newUUID() (string, error) {
	if g.opts.UUIDSource == nil {
		return uuid.NewString(), nil
	}
	id, err := uuid.NewRandomFromReader(g.opts.UUIDSource)
	if err != nil {
		return "", fmt.Errorf("netproc: label uuid: %w", err)
	}
	return id.String(), nil
}

// Justification returns the text justification for a label orientation.
func Justification(orientation float64) string {
	switch geometry.SnapOrientation(orientation) {
	case 90:
		return "left"
	case 270:
		return "right"
	default:
		return "center"
	}
}

// ShapeForPin returns the hierarchical label shape matching a pin type.
func ShapeForPin(t circuit.PinType) string {
	switch t {
	case circuit.PinInput, circuit.PinPowerIn:
		return "input"
	case circuit.PinOutput, circuit.PinPowerOut, circuit.PinOpenCollector, circuit.PinOpenEmitter:
		return "output"
	case circuit.PinBidirectional:
		return "bidirectional"
	default:
		return "passive"
	}
}
