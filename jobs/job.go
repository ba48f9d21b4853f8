package jobs

import (
	"sync/atomic"

	"github.com/TheBitDrifter/foreman"
)

// MaxContinuations bounds the continuation list of a single job
const MaxContinuations = 8

// Func is a job body. It runs on w, the worker executing j.
type Func func(w *Worker, j *Job)

// Kind tags what a job is for
type Kind uint8

const (
	KindPlain Kind = iota
	KindRoot
	KindExecuteNode
	KindCascade
	KindParallelRange
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindRoot:
		return "root"
	case KindExecuteNode:
		return "execute-node"
	case KindCascade:
		return "cascade"
	case KindParallelRange:
		return "parallel-range"
	}
	return "unknown"
}

// pool bookkeeping
const (
	slotFree uint32 = iota
	slotUsed
	slotHeap
)

type Job struct {
	fn     Func
	data   any
	world  *foreman.World
	parent *Job
	kind   Kind

	continuations     [MaxContinuations]*Job
	continuationCount atomic.Int32
	unfinished        atomic.Int32

	persistent bool
	rng        *ParallelRange
	cancel     *atomic.Bool
	state      atomic.Uint32
	done       chan struct{}
}

func (j *Job) reset(kind Kind, parent *Job, fn Func, data any) {
	j.fn = fn
	j.data = data
	j.kind = kind
	j.parent = parent
	j.world = nil
	j.persistent = false
	j.rng = nil
	j.cancel = nil
	j.done = nil
	j.continuations = [MaxContinuations]*Job{}
	j.continuationCount.Store(0)
	j.unfinished.Store(1)
	if parent != nil {
		parent.unfinished.Add(1)
		j.world = parent.world
		j.cancel = parent.cancel
	}
}

// Data returns the payload the job was created with
func (j *Job) Data() any {
	return j.data
}

// World returns the world the job operates on, if any
func (j *Job) World() *foreman.World {
	return j.world
}

// SetWorld attaches the world a job body operates on. Children inherit it.
func (j *Job) SetWorld(w *foreman.World) *Job {
	j.world = w
	return j
}

func (j *Job) Kind() Kind {
	return j.kind
}

func (j *Job) Parent() *Job {
	return j.parent
}

// Range returns the sub-range of a parallel job, nil for other kinds
func (j *Job) Range() *ParallelRange {
	return j.rng
}

func (j *Job) Persistent() bool {
	return j.persistent
}

// SetPersistent routes the job to the persistent deque when pushed
func (j *Job) SetPersistent(persistent bool) *Job {
	j.persistent = persistent
	return j
}

// SetCancelFlag attaches a cooperative cancellation flag. When the flag is set the body
// is skipped at execution time; the job still finishes. Children inherit the flag.
func (j *Job) SetCancelFlag(flag *atomic.Bool) *Job {
	j.cancel = flag
	return j
}

// Canceled reports whether the job's cancellation flag is set
func (j *Job) Canceled() bool {
	return j.cancel != nil && j.cancel.Load()
}

// Unfinished returns the outstanding count: the job's own body plus unfinished children
func (j *Job) Unfinished() int32 {
	return j.unfinished.Load()
}

// Done reports whether the job and all of its children finished. Only meaningful for
// jobs the caller still owns, such as roots; pooled jobs are recycled once done.
func (j *Job) Done() bool {
	return j.unfinished.Load() == 0
}

// AddContinuation schedules c once j and all its children finish. It must be called
// before j can complete, typically before j is run.
func (j *Job) AddContinuation(c *Job) error {
	idx := j.continuationCount.Add(1) - 1
	if idx >= MaxContinuations {
		j.continuationCount.Add(-1)
		return ContinuationLimitError{Limit: MaxContinuations}
	}
	j.continuations[idx] = c
	return nil
}
