package main

import (
	"github.com/TheBitDrifter/foreman"
	"github.com/TheBitDrifter/foreman/graph"
	"github.com/TheBitDrifter/foreman/jobs"
	"github.com/rotisserie/eris"
)

const (
	dt     = 1.0 / 60
	extent = 1000.0
)

type simulation struct {
	world  *foreman.World
	moving *foreman.Query
	all    *foreman.Query
	batch  int
	spawn  int
}

func newSimulation(world *foreman.World, batch, spawn int) (*simulation, error) {
	moving, err := world.RegisterQuery(foreman.Factory.NewQuery().And(position, velocity))
	if err != nil {
		return nil, eris.Wrap(err, "failed to register movement query")
	}
	all, err := world.RegisterQuery(foreman.Factory.NewQuery().Or(position, velocity))
	if err != nil {
		return nil, eris.Wrap(err, "failed to register summary query")
	}
	return &simulation{
		world:  world,
		moving: moving,
		all:    all,
		batch:  batch,
		spawn:  spawn,
	}, nil
}

// forEachRange fans fn out over every archetype the query matches, as children of the
// node's job
func (s *simulation) forEachRange(tc *graph.TickContext, fn jobs.Func) {
	for _, arch := range s.moving.Archetypes() {
		root := tc.Worker.CreateParallel(jobs.ParallelSpec{
			Fn:             fn,
			Archetype:      arch,
			MaxEntityCount: s.batch,
			Parent:         tc.Job,
		})
		tc.Worker.Run(root)
	}
}

type systemFunc func(tc *graph.TickContext) error

func (f systemFunc) Execute(tc *graph.TickContext) error {
	return f(tc)
}

func (s *simulation) movement() graph.System {
	return systemFunc(func(tc *graph.TickContext) error {
		s.forEachRange(tc, integrate)
		return nil
	})
}

func integrate(_ *jobs.Worker, j *jobs.Job) {
	r := j.Range()
	arch := r.Archetype()
	positions, err := position.Column(arch)
	if err != nil {
		return
	}
	velocities, err := velocity.Column(arch)
	if err != nil {
		return
	}
	pos, vel := positions.Values(), velocities.Values()
	for row := r.Start; row < r.End; row++ {
		pos[row].X += vel[row].X * dt
		pos[row].Y += vel[row].Y * dt
	}
}

func (s *simulation) bounds() graph.System {
	return systemFunc(func(tc *graph.TickContext) error {
		s.forEachRange(tc, wrap)
		return nil
	})
}

func wrap(_ *jobs.Worker, j *jobs.Job) {
	r := j.Range()
	positions, err := position.Column(r.Archetype())
	if err != nil {
		return
	}
	pos := positions.Values()
	for row := r.Start; row < r.End; row++ {
		pos[row].X = wrapAxis(pos[row].X)
		pos[row].Y = wrapAxis(pos[row].Y)
	}
}

func wrapAxis(v float64) float64 {
	switch {
	case v < 0:
		return v + extent
	case v >= extent:
		return v - extent
	}
	return v
}

func (s *simulation) spawner() graph.System {
	return systemFunc(func(tc *graph.TickContext) error {
		if s.spawn == 0 {
			return nil
		}
		// applied when the tick releases the world
		return tc.World.EnqueueCreateEntities(s.spawn, position, velocity)
	})
}

// frame is the summary renderer's command buffer
type frame struct {
	tick       uint64
	entities   int
	archetypes int
}

type summaryRenderer struct {
	sim     *simulation
	current frame
}

func (s *simulation) summary() graph.Renderer {
	return &summaryRenderer{sim: s}
}

func (r *summaryRenderer) StartFrame(tc *graph.TickContext) {
	r.current = frame{tick: tc.Tick}
}

func (r *summaryRenderer) Execute(tc *graph.TickContext) (graph.CommandBuffer, error) {
	r.current.entities = r.sim.all.Count()
	r.current.archetypes = len(r.sim.all.Archetypes())
	return r.current, nil
}
