/*
Package jobs implements the work-stealing scheduler: jobs with atomic completion
counting and continuations, a Chase-Lev deque per worker, workers that steal from
each other, and a Manager that owns the pool.

A Job starts with one unfinished unit (its own body). Each child created with
NewChildJob adds one. When the count reaches zero the job's continuations are pushed
onto the finishing worker and its parent is finished in turn, so a child always
completes before its parent, and a parent always completes before its continuations
are scheduled.

Each Worker owns two deques: a normal one for latency sensitive per-tick work and a
persistent one for background work. Only the owning goroutine may Push, Pop, Run or
Wait on a worker; any goroutine may steal from it. Goroutines outside the pool obtain a
worker of their own with Manager.NewDedicatedWorker.

	m := jobs.NewManager()
	m.Start(ctx)
	defer m.Stop()

	main := m.NewDedicatedWorker()
	m.SetActive(main)

	root := main.CreateParallel(jobs.ParallelSpec{
		Fn:             integrate,
		Archetype:      bodies,
		MaxEntityCount: 1000,
	})
	main.Run(root)
	main.Wait(ctx, root)

A full deque is not an error: the pushing worker runs the job inline. Pool exhaustion
is not an error either: jobs and ranges fall back to heap allocation. Panics inside job
bodies are recovered at the worker boundary, logged, and the job is still finished so
nothing waiting on it stalls.
*/
package jobs
