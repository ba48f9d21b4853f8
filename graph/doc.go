/*
Package graph runs systems and renderers as nodes of a static dependency graph, once
per tick, on a jobs.Manager.

Nodes are declared on a Builder by name. A node runs only after every node it names as
a dependency has finished, including any child jobs those dependencies forked off their
own job. Nodes without a path between them run concurrently in no particular order.

	g, err := graph.NewBuilder().
		AddSystem("input", input).
		AddSystem("physics", physics, "input").
		AddRenderer("sprites", sprites, "physics").
		Build(graph.WithWorld(world))

	main := manager.NewDedicatedWorker()
	manager.SetActive(main)
	for {
		result, err := g.Tick(ctx, main)
		...
	}

Build rejects unknown dependencies, duplicate names and cycles. A cycle would otherwise
leave every node on it waiting forever with nothing reported.

Errors returned by node bodies do not stop the tick: dependents still run and the
errors are reported in TickResult. A panicking body is recovered and logged by the
worker that ran it.
*/
package graph
