package graph

import (
	"errors"

	"github.com/TheBitDrifter/foreman"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Builder collects node declarations. Dependencies are resolved by name at Build, so
// nodes may be added in any order.
type Builder struct {
	nodes []*Node
}

func NewBuilder() *Builder {
	return &Builder{}
}

// AddSystem declares a system node that runs after every node named in deps
func (b *Builder) AddSystem(name string, s System, deps ...string) *Builder {
	b.nodes = append(b.nodes, &Node{name: name, system: s, declared: deps})
	return b
}

// AddRenderer declares a renderer node that runs after every node named in deps
func (b *Builder) AddRenderer(name string, r Renderer, deps ...string) *Builder {
	b.nodes = append(b.nodes, &Node{name: name, renderer: r, declared: deps})
	return b
}

// Build resolves edges, rejects cycles, then runs PreInit on every node in
// registration order followed by Init on every node concurrently
func (b *Builder) Build(opts ...Option) (*Graph, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.resolve()

	registry := foreman.FactoryNewCache[*Node](len(b.nodes))
	for i, n := range b.nodes {
		if n.system == nil && n.renderer == nil {
			return nil, NilNodeError{Name: n.name}
		}
		n.index = i
		n.dependencies = nil
		n.dependents = nil
		if _, err := registry.Register(n.name, n); err != nil {
			var exists foreman.CacheKeyExistsError
			if errors.As(err, &exists) {
				return nil, DuplicateNodeError{Name: n.name}
			}
			return nil, eris.Wrapf(err, "failed to register node %q", n.name)
		}
	}

	for _, n := range b.nodes {
		seen := make(map[int]struct{}, len(n.declared))
		for _, depName := range n.declared {
			idx, ok := registry.GetIndex(depName)
			if !ok {
				return nil, UnknownDependencyError{Node: n.name, Dependency: depName}
			}
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			dep := *registry.GetItem(idx)
			n.dependencies = append(n.dependencies, dep)
			dep.dependents = append(dep.dependents, n)
		}
	}

	if err := detectCycles(b.nodes); err != nil {
		return nil, err
	}

	g := &Graph{
		registry:       registry,
		world:          o.world,
		deferMutations: o.deferMutations,
		tracer:         o.tracer.Tracer(tracerName),
		logger:         o.logger,
	}
	for _, n := range b.nodes {
		g.nodes = append(g.nodes, n)
		if len(n.dependencies) == 0 {
			g.leaves = append(g.leaves, n)
		}
		if n.renderer != nil {
			g.renderers = append(g.renderers, n)
		}
	}

	if err := g.initialize(); err != nil {
		return nil, err
	}
	g.logger.Debug("Graph built.", "nodes", len(g.nodes), "leaves", len(g.leaves), "renderers", len(g.renderers))
	return g, nil
}

func (g *Graph) initialize() error {
	for _, n := range g.nodes {
		if pre, ok := n.body().(PreInitializer); ok {
			if err := pre.PreInit(g.world); err != nil {
				return eris.Wrapf(err, "failed to pre-initialize node %q", n.name)
			}
		}
	}

	var eg errgroup.Group
	for _, n := range g.nodes {
		initializer, ok := n.body().(Initializer)
		if !ok {
			continue
		}
		eg.Go(func() error {
			if err := initializer.Init(g.world); err != nil {
				return eris.Wrapf(err, "failed to initialize node %q", n.name)
			}
			return nil
		})
	}
	return eg.Wait()
}

// detectCycles is a depth-first search along dependent edges. A node found again while
// it is still on the search path closes a cycle.
func detectCycles(nodes []*Node) error {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]int, len(nodes))
	var path []*Node

	var visit func(n *Node) error
	visit = func(n *Node) error {
		switch state[n.index] {
		case done:
			return nil
		case onPath:
			return cycleFrom(path, n)
		}
		state[n.index] = onPath
		path = append(path, n)
		for _, dependent := range n.dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[n.index] = done
		return nil
	}

	for _, n := range nodes {
		if state[n.index] == unvisited {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func cycleFrom(path []*Node, closing *Node) CycleError {
	start := 0
	for i, n := range path {
		if n == closing {
			start = i
			break
		}
	}
	names := make([]string, 0, len(path)-start+1)
	for _, n := range path[start:] {
		names = append(names, n.name)
	}
	return CycleError{Path: append(names, closing.name)}
}
