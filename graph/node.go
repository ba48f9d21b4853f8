package graph

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/TheBitDrifter/foreman"
	"github.com/TheBitDrifter/foreman/jobs"
)

// CommandBuffer is whatever a renderer records during a tick. The graph only collects it.
type CommandBuffer any

// System is a node body run once per tick
type System interface {
	Execute(tc *TickContext) error
}

// Renderer is a node body that also gets a StartFrame call on the ticking goroutine
// before any node of the tick executes
type Renderer interface {
	StartFrame(tc *TickContext)
	Execute(tc *TickContext) (CommandBuffer, error)
}

// PreInitializer is called once per node, serially in registration order, during Build
type PreInitializer interface {
	PreInit(w *foreman.World) error
}

// Initializer is called once per node during Build after every PreInit succeeded.
// Init calls run concurrently.
type Initializer interface {
	Init(w *foreman.World) error
}

// TickContext is passed to node bodies. Job is the node's execute job: children forked
// from it, for example with Worker.CreateParallel and Parent set to Job, finish before
// any dependent node starts.
type TickContext struct {
	context.Context
	Tick   uint64
	World  *foreman.World
	Worker *jobs.Worker
	Job    *jobs.Job
	Node   *Node
}

type Node struct {
	name     string
	index    int
	system   System
	renderer Renderer
	declared []string

	dependencies []*Node
	dependents   []*Node
	remaining    atomic.Int32
	runs         atomic.Uint64
}

func (n *Node) Name() string {
	return n.name
}

// Index is the registration position of the node
func (n *Node) Index() int {
	return n.index
}

func (n *Node) IsRenderer() bool {
	return n.renderer != nil
}

func (n *Node) Dependencies() []*Node {
	return slices.Clone(n.dependencies)
}

func (n *Node) Dependents() []*Node {
	return slices.Clone(n.dependents)
}

// Runs returns how many times the node body has been invoked
func (n *Node) Runs() uint64 {
	return n.runs.Load()
}

func (n *Node) body() any {
	if n.renderer != nil {
		return n.renderer
	}
	return n.system
}
