package jobs

import (
	"sync/atomic"

	"github.com/TheBitDrifter/foreman"
)

// jobPool is a ring of preallocated jobs owned by one worker. Only the owner allocates;
// any worker may release. A slot still in use when the ring wraps onto it means the
// pool is exhausted and the caller falls back to the heap.
type jobPool struct {
	slots []Job
	next  uint32
	mask  uint32
}

func newJobPool(size int) jobPool {
	if size <= 0 {
		return jobPool{}
	}
	size = nextPowerOfTwo(size)
	return jobPool{
		slots: make([]Job, size),
		mask:  uint32(size - 1),
	}
}

func (p *jobPool) alloc() *Job {
	if len(p.slots) == 0 {
		return nil
	}
	j := &p.slots[p.next&p.mask]
	p.next++
	if !j.state.CompareAndSwap(slotFree, slotUsed) {
		return nil
	}
	return j
}

// ParallelRange is the [Start, End) row window of an archetype handled by one parallel job
type ParallelRange struct {
	Start, End int
	archetype  *foreman.Archetype
	inUse      atomic.Bool
	pooled     bool
}

// Len returns the number of rows in the range
func (r *ParallelRange) Len() int {
	return r.End - r.Start
}

// Archetype returns the archetype the range indexes
func (r *ParallelRange) Archetype() *foreman.Archetype {
	return r.archetype
}

// Entities returns the ids in the range. The parallel job holds the archetype's shared
// lock while its body runs, so the slice is stable for the body's duration.
func (r *ParallelRange) Entities() []foreman.Entity {
	return r.archetype.Entities()[r.Start:r.End]
}

type rangePool struct {
	slots []ParallelRange
	next  uint32
	mask  uint32
}

func newRangePool(size int) rangePool {
	if size <= 0 {
		return rangePool{}
	}
	size = nextPowerOfTwo(size)
	return rangePool{
		slots: make([]ParallelRange, size),
		mask:  uint32(size - 1),
	}
}

func (p *rangePool) alloc() *ParallelRange {
	if len(p.slots) == 0 {
		return nil
	}
	r := &p.slots[p.next&p.mask]
	p.next++
	if !r.inUse.CompareAndSwap(false, true) {
		return nil
	}
	r.pooled = true
	return r
}
