package jobs

import (
	"github.com/TheBitDrifter/foreman"
)

// ParallelSpec describes one logical job split across an archetype's rows
type ParallelSpec struct {
	Fn        Func
	Data      any
	Archetype *foreman.Archetype
	// MaxEntityCount caps the rows per sub-job; zero or less runs a single sub-job
	MaxEntityCount int
	// Start and End bound the row window; End zero or less means through the last row
	Start, End int
	// Parent, when set, waits for the returned root
	Parent     *Job
	Persistent bool
}

// CreateParallel partitions the archetype's rows into ceil(count/MaxEntityCount)
// parallel-range jobs and pushes them. The returned root holds one extra unfinished
// unit so callers can attach continuations; Run the root to release it. Each sub-job
// body runs under the archetype's shared lock. Owner only.
func (w *Worker) CreateParallel(spec ParallelSpec) *Job {
	arch := spec.Archetype
	arch.LockShared()
	count := arch.Len()
	arch.UnlockShared()

	start := max(spec.Start, 0)
	end := spec.End
	if end <= 0 || end > count {
		end = count
	}
	n := max(end-start, 0)
	batch := spec.MaxEntityCount
	if batch <= 0 {
		batch = max(n, 1)
	}
	subjobs := (n + batch - 1) / batch

	root := w.NewRootJob(nil, spec.Data)
	root.world = arch.World()
	if spec.Parent != nil {
		root.parent = spec.Parent
		root.cancel = spec.Parent.cancel
		spec.Parent.unfinished.Add(1)
	}
	root.persistent = spec.Persistent

	children := make([]*Job, subjobs)
	for i := range children {
		lo := start + i*batch
		hi := min(lo+batch, end)
		child := w.newJob(KindParallelRange, root, spec.Fn, spec.Data)
		child.rng = w.newRange(lo, hi, w.ranges.alloc())
		child.rng.archetype = arch
		child.persistent = spec.Persistent
		children[i] = child
	}
	for _, child := range children {
		w.Push(child)
	}
	return root
}
