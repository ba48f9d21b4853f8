package graph

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/TheBitDrifter/foreman"
	"github.com/TheBitDrifter/foreman/jobs"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Graph is an immutable node DAG that can be ticked repeatedly
type Graph struct {
	nodes     []*Node
	leaves    []*Node
	renderers []*Node
	registry  foreman.Cache[*Node]

	world          *foreman.World
	deferMutations bool
	tracer         trace.Tracer
	logger         *slog.Logger

	tickMu sync.Mutex
	ticks  atomic.Uint64
}

// TickResult reports one tick. CommandBuffers holds one entry per renderer in
// registration order; a renderer that failed or was skipped contributes nil.
type TickResult struct {
	Tick           uint64
	CommandBuffers []CommandBuffer
	Errors         []error
}

// Err joins every error of the tick, nil when there were none
func (r TickResult) Err() error {
	return errors.Join(r.Errors...)
}

// Nodes returns every node in registration order
func (g *Graph) Nodes() []*Node {
	return slices.Clone(g.nodes)
}

// Leaves returns the nodes without dependencies. They seed every tick.
func (g *Graph) Leaves() []*Node {
	return slices.Clone(g.leaves)
}

func (g *Graph) Node(name string) (*Node, bool) {
	idx, ok := g.registry.GetIndex(name)
	if !ok {
		return nil, false
	}
	return *g.registry.GetItem(idx), true
}

func (g *Graph) World() *foreman.World {
	return g.world
}

// Ticks returns how many ticks have started
func (g *Graph) Ticks() uint64 {
	return g.ticks.Load()
}

type tickState struct {
	graph *Graph
	ctx   context.Context
	tick  uint64
	root  *jobs.Job
	runs  []nodeRun
}

type nodeRun struct {
	state    *tickState
	node     *Node
	buffer   CommandBuffer
	frameErr error
	err      error
}

// Tick runs every node once. w must be owned by the calling goroutine, typically a
// dedicated worker; it executes jobs while the tick drains. Ticks on the same graph
// are serialized.
//
// When ctx ends mid-tick, jobs that have not started skip their bodies, dependents of
// skipped nodes are not scheduled, and Tick returns ctx.Err() once every job already
// scheduled has finished.
func (g *Graph) Tick(ctx context.Context, w *jobs.Worker) (TickResult, error) {
	g.tickMu.Lock()
	defer g.tickMu.Unlock()

	tick := g.ticks.Add(1)
	ctx, span := g.tracer.Start(ctx, "graph.tick", trace.WithAttributes(
		attribute.Int64("graph.tick", int64(tick)),
		attribute.Int("graph.nodes", len(g.nodes)),
	))
	defer span.End()

	var canceled atomic.Bool
	if ctx.Err() != nil {
		canceled.Store(true)
	}
	stop := context.AfterFunc(ctx, func() { canceled.Store(true) })
	defer stop()

	for _, n := range g.nodes {
		n.remaining.Store(int32(len(n.dependencies)))
	}
	if g.deferMutations && g.world != nil {
		g.world.Lock()
	}

	state := &tickState{graph: g, ctx: ctx, tick: tick, runs: make([]nodeRun, len(g.nodes))}
	for i, n := range g.nodes {
		state.runs[i] = nodeRun{state: state, node: n}
	}
	root := w.NewRootJob(nil, state).SetWorld(g.world).SetCancelFlag(&canceled)
	state.root = root

	for _, n := range g.renderers {
		if canceled.Load() {
			break
		}
		state.startFrame(w, n)
	}
	for _, n := range g.leaves {
		state.schedule(w, n)
	}
	w.Run(root)
	// never returns early: the context it waits on cannot end
	_ = w.Wait(context.WithoutCancel(ctx), root)

	result := TickResult{Tick: tick, CommandBuffers: make([]CommandBuffer, 0, len(g.renderers))}
	for i := range state.runs {
		run := &state.runs[i]
		if run.node.renderer != nil {
			result.CommandBuffers = append(result.CommandBuffers, run.buffer)
		}
		for _, err := range []error{run.frameErr, run.err} {
			if err != nil {
				result.Errors = append(result.Errors, NodeError{Node: run.node.name, Tick: tick, Err: err})
			}
		}
	}
	if g.deferMutations && g.world != nil {
		if err := g.world.Unlock(); err != nil {
			result.Errors = append(result.Errors, eris.Wrap(err, "failed to apply deferred mutations"))
		}
	}
	span.SetAttributes(attribute.Int("graph.errors", len(result.Errors)))

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "tick canceled")
		g.logger.Warn("Tick canceled.", "tick", tick, "error", err)
		return result, err
	}
	if len(result.Errors) > 0 {
		span.SetStatus(codes.Error, "node failures")
	}
	return result, nil
}

// startFrame runs on the ticking goroutine. A panic is recorded against the renderer,
// whose body is then skipped for the tick.
func (s *tickState) startFrame(w *jobs.Worker, n *Node) {
	run := &s.runs[n.index]
	defer func() {
		if r := recover(); r != nil {
			run.frameErr = PanicError{Value: r}
			s.graph.logger.Error("Renderer frame setup panicked.",
				"node", n.name,
				"tick", s.tick,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	n.renderer.StartFrame(&TickContext{Context: s.ctx, Tick: s.tick, World: s.graph.world, Worker: w, Job: s.root, Node: n})
}

// schedule pushes an execute job for n on w with a cascade job as its continuation.
// Both are children of the tick root, so the tick drains only after the cascade ran.
func (s *tickState) schedule(w *jobs.Worker, n *Node) {
	run := &s.runs[n.index]
	execute := w.NewKindJob(jobs.KindExecuteNode, s.root, executeNode, run)
	cascade := w.NewKindJob(jobs.KindCascade, s.root, cascadeDependents, run)
	// a fresh job has room for its first continuation
	_ = execute.AddContinuation(cascade)
	w.Push(execute)
}

func executeNode(w *jobs.Worker, j *jobs.Job) {
	run := j.Data().(*nodeRun)
	s, n := run.state, run.node
	g := s.graph
	if s.ctx.Err() != nil || run.frameErr != nil {
		return
	}

	ctx, span := g.tracer.Start(s.ctx, "graph.node", trace.WithAttributes(
		attribute.String("graph.node", n.name),
		attribute.Bool("graph.renderer", n.renderer != nil),
		attribute.Int("worker.id", w.ID()),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			run.err = PanicError{Value: r}
			span.RecordError(run.err)
			span.SetStatus(codes.Error, run.err.Error())
			g.logger.Error("Node panicked.",
				"node", n.name,
				"tick", s.tick,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	n.runs.Add(1)
	tc := &TickContext{Context: ctx, Tick: s.tick, World: j.World(), Worker: w, Job: j, Node: n}
	if n.renderer != nil {
		run.buffer, run.err = n.renderer.Execute(tc)
	} else {
		run.err = n.system.Execute(tc)
	}
	if run.err != nil {
		span.RecordError(run.err)
		span.SetStatus(codes.Error, run.err.Error())
		g.logger.Error("Node failed.", "node", n.name, "tick", s.tick, "error", run.err)
	}
}

// cascadeDependents runs once n and every job it forked finished
func cascadeDependents(w *jobs.Worker, j *jobs.Job) {
	run := j.Data().(*nodeRun)
	if run.state.ctx.Err() != nil {
		return
	}
	for _, dependent := range run.node.dependents {
		if dependent.remaining.Add(-1) == 0 {
			run.state.schedule(w, dependent)
		}
	}
}
