package jobs

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Worker owns a normal and a persistent deque plus the job and range pools it
// allocates from. Pool workers run their loop on a goroutine started by the Manager;
// dedicated workers belong to whichever goroutine created them.
type Worker struct {
	id              int
	manager         *Manager
	queue           *Queue
	persistent      *Queue
	stealPersistent bool
	dedicated       bool
	jobs            jobPool
	ranges          rangePool
	rand            *rand.Rand
	slot            QueueSlot
	logger          *slog.Logger

	executed   atomic.Uint64
	stolen     atomic.Uint64
	inlined    atomic.Uint64
	heapAllocs atomic.Uint64
}

func newWorker(m *Manager, id int, dedicated bool) *Worker {
	return &Worker{
		id:         id,
		manager:    m,
		queue:      NewQueue(m.opts.queueCapacity),
		persistent: NewQueue(m.opts.queueCapacity),
		dedicated:  dedicated,
		jobs:       newJobPool(m.opts.jobPoolSize),
		ranges:     newRangePool(m.opts.rangePoolSize),
		rand:       rand.New(rand.NewPCG(uint64(id)+1, uint64(time.Now().UnixNano()))),
		logger:     m.logger.With("workerID", id),
	}
}

func (w *Worker) ID() int {
	return w.id
}

// Dedicated reports whether the worker is owned by a goroutine outside the pool
func (w *Worker) Dedicated() bool {
	return w.dedicated
}

// StealsPersistent reports whether the worker takes persistent jobs from peers
func (w *Worker) StealsPersistent() bool {
	return w.stealPersistent
}

// Slot returns the device queue slot assigned to the worker
func (w *Worker) Slot() QueueSlot {
	return w.slot
}

func (w *Worker) Manager() *Manager {
	return w.manager
}

// Stats returns counters for executed, stolen, inline-executed and heap-allocated jobs
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Executed:   w.executed.Load(),
		Stolen:     w.stolen.Load(),
		Inlined:    w.inlined.Load(),
		HeapAllocs: w.heapAllocs.Load(),
	}
}

type WorkerStats struct {
	Executed, Stolen, Inlined, HeapAllocs uint64
}

// NewJob allocates a parentless job. Owner only.
func (w *Worker) NewJob(fn Func, data any) *Job {
	return w.newJob(KindPlain, nil, fn, data)
}

// NewChildJob allocates a job whose completion parent waits for. Owner only.
func (w *Worker) NewChildJob(parent *Job, fn Func, data any) *Job {
	return w.newJob(KindPlain, parent, fn, data)
}

// NewKindJob allocates a job carrying a scheduler kind tag. Owner only.
func (w *Worker) NewKindJob(kind Kind, parent *Job, fn Func, data any) *Job {
	return w.newJob(kind, parent, fn, data)
}

// NewRootJob allocates a job on the heap so the caller may hold and Wait on it after
// it completes
func (w *Worker) NewRootJob(fn Func, data any) *Job {
	j := &Job{}
	j.reset(KindRoot, nil, fn, data)
	j.state.Store(slotHeap)
	j.done = make(chan struct{})
	return j
}

func (w *Worker) newJob(kind Kind, parent *Job, fn Func, data any) *Job {
	j := w.jobs.alloc()
	if j == nil {
		w.heapAllocs.Add(1)
		w.logger.Debug("Job pool exhausted, allocating on heap.")
		j = &Job{}
		j.state.Store(slotHeap)
	}
	j.reset(kind, parent, fn, data)
	return j
}

func (w *Worker) newRange(start, end int, r *ParallelRange) *ParallelRange {
	if r == nil {
		w.heapAllocs.Add(1)
		r = &ParallelRange{}
		r.inUse.Store(true)
	}
	r.Start = start
	r.End = end
	return r
}

// Push schedules j on this worker. Owner only. When the deque is full the job runs
// inline on the calling goroutine instead.
func (w *Worker) Push(j *Job) {
	q := w.queue
	if j.persistent {
		q = w.persistent
	}
	if !q.Push(j) {
		w.inlined.Add(1)
		w.logger.Debug("Queue full, executing job inline.", "kind", j.kind.String())
		w.execute(j)
		return
	}
	w.manager.notify()
}

// Run pushes j. For roots created by CreateParallel this releases the hold that lets
// callers attach continuations first.
func (w *Worker) Run(j *Job) {
	w.Push(j)
}

// Wait executes available work until j is done or ctx ends. Owner only.
func (w *Worker) Wait(ctx context.Context, j *Job) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for !j.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if next := w.findJob(); next != nil {
			w.execute(next)
			continue
		}
		if j.done == nil {
			runtime.Gosched()
			continue
		}
		if timer == nil {
			timer = time.NewTimer(waitPoll)
		} else {
			timer.Reset(waitPoll)
		}
		select {
		case <-j.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

const waitPoll = 50 * time.Microsecond

// getJob tries own normal, own persistent, one random peer, then the active and the
// loading dedicated workers
func (w *Worker) getJob() *Job {
	if j := w.queue.Pop(); j != nil {
		return j
	}
	if j := w.persistent.Pop(); j != nil {
		return j
	}
	m := w.manager
	if n := len(m.workers); n > 0 {
		if victim := m.workers[w.rand.IntN(n)]; victim != w {
			if j := w.stealFrom(victim); j != nil {
				return j
			}
		}
	}
	if active := m.active.Load(); active != nil && active != w {
		if j := w.stealFrom(active); j != nil {
			return j
		}
	}
	if loading := m.loading.Load(); loading != nil && loading != w {
		if j := w.stealFrom(loading); j != nil {
			return j
		}
	}
	return nil
}

// findJob is getJob followed by a sweep over every peer before giving up
func (w *Worker) findJob() *Job {
	if j := w.getJob(); j != nil {
		return j
	}
	workers := w.manager.workers
	n := len(workers)
	if n == 0 {
		return nil
	}
	offset := w.rand.IntN(n)
	for i := range n {
		victim := workers[(offset+i)%n]
		if victim == w {
			continue
		}
		if j := w.stealFrom(victim); j != nil {
			return j
		}
	}
	return nil
}

func (w *Worker) stealFrom(victim *Worker) *Job {
	if j := victim.queue.Steal(); j != nil {
		w.stolen.Add(1)
		return j
	}
	if w.stealPersistent {
		if j := victim.persistent.Steal(); j != nil {
			w.stolen.Add(1)
			return j
		}
	}
	return nil
}

func (w *Worker) run(ctx context.Context) {
	w.logger.Debug("Worker started.", "stealPersistent", w.stealPersistent)
	defer w.logger.Debug("Worker finished.")
	m := w.manager
	for {
		epoch := m.epoch.Load()
		if j := w.findJob(); j != nil {
			w.execute(j)
			continue
		}
		if ctx.Err() != nil || !m.sleep(epoch) {
			return
		}
	}
}

func (w *Worker) execute(j *Job) {
	if j.fn != nil && !j.Canceled() {
		w.invoke(j)
	}
	w.executed.Add(1)
	w.finish(j)
}

// invoke is the execution boundary: a panicking body is logged, never propagated
func (w *Worker) invoke(j *Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Job body panicked.",
				"kind", j.kind.String(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	if j.kind == KindParallelRange && j.rng != nil && j.rng.archetype != nil {
		arch := j.rng.archetype
		arch.LockShared()
		defer arch.UnlockShared()
	}
	j.fn(w, j)
}

// finish drops one unfinished unit. At zero the continuations are pushed here, the job
// is recycled and its parent is finished.
func (w *Worker) finish(j *Job) {
	for j != nil {
		if j.unfinished.Add(-1) > 0 {
			return
		}
		parent := j.parent
		n := min(int(j.continuationCount.Load()), MaxContinuations)
		for i := 0; i < n; i++ {
			c := j.continuations[i]
			j.continuations[i] = nil
			if c != nil {
				w.Push(c)
			}
		}
		if j.done != nil {
			close(j.done)
		}
		release(j)
		j = parent
	}
}

func release(j *Job) {
	if r := j.rng; r != nil {
		j.rng = nil
		if r.pooled {
			r.archetype = nil
			r.inUse.Store(false)
		}
	}
	if j.state.Load() == slotUsed {
		j.fn = nil
		j.data = nil
		j.parent = nil
		j.state.Store(slotFree)
	}
}
