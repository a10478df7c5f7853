package placement

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
)

const (
	// consecutive quiet iterations before a force loop stops early
	convergencePatience = 15

	// rotation search runs on every n-th iteration
	rotationInterval = 10

	// iteration bound for each collision resolution pass
	maxCollisionIterations = 25
)

// phase is a step of the placement state machine.
type phase int

const (
	phaseUngrouped phase = iota
	phaseSubcircuit
	phaseInterGroup
	phaseGentle
	phaseStrict
	phaseDone
)

var phaseNames = [...]string{"ungrouped", "subcircuit", "inter-group", "collision-gentle", "collision-strict", "done"}

func (p phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// push strengths, as fractions of the spacing, for one collision pass
type pushes struct {
	connected   float64
	unconnected float64
}

var (
	gentlePush = pushes{connected: 0.1, unconnected: 0.3}
	strictPush = pushes{connected: 0.3, unconnected: 0.6}
)

// Placer runs the force-directed layout.
type Placer struct {
	cfg      Config
	detector *Detector
	log      *slog.Logger
}

// NewPlacer validates cfg and returns a placer for it.
func NewPlacer(cfg Config) (*Placer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Placer{
		cfg:      cfg,
		detector: NewDetector(cfg.ComponentSpacing),
		log:      cfg.logger(),
	}, nil
}

// Place lays out components in place and returns them with the final
// energy and residual collision count. Residual collisions are reported,
// not returned as an error.
func (p *Placer) Place(components []*Component, conns []Connection, board Board) (Result, error) {
	seen := make(map[string]bool, len(components))
	for _, c := range components {
		if c == nil {
			return Result{}, fmt.Errorf("placement: nil component")
		}
		if seen[c.Reference] {
			return Result{}, fmt.Errorf("placement: duplicate reference %q", c.Reference)
		}
		seen[c.Reference] = true
	}

	res := Result{Components: components}
	switch len(components) {
	case 0:
		res.Converged = true
		return res, nil
	case 1:
		if !board.IsZero() {
			components[0].Position = board.Center()
		}
		res.Converged = true
		return res, nil
	}

	run := &placementRun{
		Placer:     p,
		forces:     NewForceCalculator(p.cfg, board),
		components: components,
		conns:      conns,
		adj:        BuildAdjacency(conns),
		rng:        rand.New(rand.NewSource(p.cfg.Seed)),
		converged:  true,
	}
	return run.execute(board), nil
}

// placementRun is the state of one Place call.
type placementRun struct {
	*Placer
	forces     *ForceCalculator
	components []*Component
	conns      []Connection
	adj        Adjacency
	groups     []*Group
	rng        *rand.Rand
	iterations int
	converged  bool
	residual   int
}

type snapshot struct {
	positions []geometry.Position
	rotations []float64
}

func (r *placementRun) save() snapshot {
	s := snapshot{
		positions: make([]geometry.Position, len(r.components)),
		rotations: make([]float64, len(r.components)),
	}
	for i, c := range r.components {
		s.positions[i] = c.Position
		s.rotations[i] = c.Rotation
	}
	return s
}

func (r *placementRun) restore(s snapshot) {
	for i, c := range r.components {
		c.Position = s.positions[i]
		c.Rotation = s.rotations[i]
	}
}

func (r *placementRun) execute(board Board) Result {
	var (
		initial          snapshot
		initialEnergy    float64
		initialCollision int
	)

	for ph := phaseUngrouped; ph != phaseDone; {
		r.log.Debug("placement phase", "phase", ph, "components", len(r.components))
		switch ph {
		case phaseUngrouped:
			r.groups = BuildGroups(r.components)
			origin := geometry.Position{}
			if !board.IsZero() {
				origin = board.Center()
			}
			seedLayout(r.components, r.groups, r.cfg.ComponentSpacing, origin)
			initial = r.save()
			initialEnergy = r.forces.SystemEnergy(r.components, r.adj)
			initialCollision = r.detector.Count(r.components)
			ph = phaseSubcircuit

		case phaseSubcircuit:
			for _, g := range r.groups {
				r.optimizeGroup(g)
			}
			ph = phaseInterGroup
			if len(r.groups) <= 1 {
				ph = phaseGentle
			}

		case phaseInterGroup:
			r.optimizeGroups()
			ph = phaseGentle

		case phaseGentle:
			r.residual = r.resolveCollisions(gentlePush)
			ph = phaseDone
			if r.residual > 0 {
				ph = phaseStrict
			}

		case phaseStrict:
			r.residual = r.resolveCollisions(strictPush)
			ph = phaseDone
		}
	}

	energy := r.forces.SystemEnergy(r.components, r.adj)
	reverted := worseThanSeed(r.residual, initialCollision, energy, initialEnergy)
	if reverted {
		r.log.Info("placement kept the seed layout",
			"energy", energy, "initial_energy", initialEnergy,
			"collisions", r.residual, "initial_collisions", initialCollision)
		r.restore(initial)
		energy = initialEnergy
		r.residual = initialCollision
	}
	if r.residual > 0 {
		r.log.Warn("placement left overlapping components", "collisions", r.residual)
	}

	return Result{
		Components:    r.components,
		Energy:        energy,
		InitialEnergy: initialEnergy,
		Collisions:    r.residual,
		Iterations:    r.iterations,
		Converged:     r.converged,
		Reverted:      reverted,
	}
}

// worseThanSeed reports whether an optimised layout should be dropped for
// the seed grid: more residual collisions, or as many with higher energy.
func worseThanSeed(collisions, seedCollisions int, energy, seedEnergy float64) bool {
	if collisions != seedCollisions {
		return collisions > seedCollisions
	}
	return energy > seedEnergy
}

// optimizeGroup runs the annealing loop over the members of one group.
func (r *placementRun) optimizeGroup(g *Group) {
	members := g.subset(r.components)
	if len(members) < 2 {
		return
	}

	temperature := r.cfg.InitialTemperature
	quiet := 0
	for iter := 0; iter < r.cfg.IterationsPerLevel; iter++ {
		r.iterations++
		forces := r.forces.Forces(members, r.adj, r.iterations)
		moved := r.forces.ApplyForces(members, forces, temperature)
		temperature *= r.cfg.CoolingRate

		if r.cfg.EnableRotation && (iter+1)%rotationInterval == 0 {
			if n := r.forces.OptimizeRotations(members, r.conns); n > 0 {
				r.log.Debug("rotations changed", "group", g.Path, "count", n)
			}
		}

		if moved < r.cfg.ConvergenceThreshold {
			quiet++
			if quiet >= convergencePatience {
				r.log.Debug("group converged", "group", g.Path, "iterations", iter+1)
				g.update(r.components)
				return
			}
		} else {
			quiet = 0
		}
	}
	r.converged = false
	g.update(r.components)
}

// optimizeGroups moves whole groups as rigid bodies, hotter and with a
// larger step than the per-group loop.
func (r *placementRun) optimizeGroups() {
	countGroupConnections(r.groups, r.components, r.adj)

	temperature := 2 * r.cfg.InitialTemperature
	quiet := 0
	tiebreak := func() float64 { return r.rng.Float64() * 2 * math.Pi }

	for iter := 0; iter < r.cfg.IterationsPerLevel; iter++ {
		r.iterations++
		for _, g := range r.groups {
			g.update(r.components)
		}

		forces := make([]geometry.Position, len(r.groups))
		for i, a := range r.groups {
			var f geometry.Position
			for j, b := range r.groups {
				if i == j {
					continue
				}
				f = f.Add(r.forces.GroupAttraction(a.Center, b.Center, a.Connections[b.Path]))
				minDist := (a.footprint()+b.footprint())/2 + r.cfg.ComponentSpacing
				f = f.Add(r.forces.GroupRepulsion(a.Center, b.Center, minDist, tiebreak))
			}
			forces[i] = f.Add(r.forces.Boundary(a.Center))
		}

		maxMove := 2 * r.forces.maxMove(temperature)
		var moved float64
		for i, g := range r.groups {
			step := capLength(forces[i].Scale(r.cfg.Damping), maxMove)
			for _, m := range g.members {
				r.components[m].Position = r.components[m].Position.Add(step)
			}
			moved += step.Length()
		}
		temperature *= r.cfg.CoolingRate

		if moved < r.cfg.ConvergenceThreshold {
			quiet++
			if quiet >= convergencePatience {
				r.log.Debug("groups converged", "iterations", iter+1)
				break
			}
		} else {
			quiet = 0
		}
		if iter == r.cfg.IterationsPerLevel-1 {
			r.converged = false
		}
	}
	for _, g := range r.groups {
		g.update(r.components)
	}
}

// resolveCollisions pushes overlapping pairs apart symmetrically along
// their centre line until none remain or the pass runs out of iterations.
// It returns the remaining collision count.
func (r *placementRun) resolveCollisions(push pushes) int {
	connected := make(map[[2]string]bool)
	for ref, peers := range r.adj {
		for _, peer := range peers {
			connected[[2]string{ref, peer}] = true
		}
	}

	for iter := 0; iter < maxCollisionIterations; iter++ {
		collisions := r.detector.Detect(r.components)
		if len(collisions) == 0 {
			return 0
		}
		for _, col := range collisions {
			a, b := r.components[col.A], r.components[col.B]
			strength := push.unconnected
			if connected[[2]string{a.Reference, b.Reference}] {
				strength = push.connected
			}
			step := strength * r.cfg.ComponentSpacing

			d := b.Position.Sub(a.Position)
			var dir geometry.Position
			if l := d.Length(); l < coincidentDistance {
				sin, cos := math.Sincos(r.rng.Float64() * 2 * math.Pi)
				dir = geometry.Position{X: cos, Y: sin}
			} else {
				dir = d.Scale(1 / l)
			}
			a.Position = a.Position.Sub(dir.Scale(step))
			b.Position = b.Position.Add(dir.Scale(step))
		}
	}
	return r.detector.Count(r.components)
}

// Place is a convenience wrapper around NewPlacer and Placer.Place.
func Place(cfg Config, components []*Component, conns []Connection, board Board) (Result, error) {
	p, err := NewPlacer(cfg)
	if err != nil {
		return Result{}, err
	}
	return p.Place(components, conns, board)
}
