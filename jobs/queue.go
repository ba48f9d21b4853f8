package jobs

import (
	"sync/atomic"
)

// Queue is a fixed-capacity Chase-Lev work-stealing deque. The owner pushes and pops
// at the bottom; thieves steal from the top. Go's sync/atomic operations are
// sequentially consistent, which covers the store-load ordering the pop/steal race on
// the last item needs.
type Queue struct {
	top    atomic.Int64
	bottom atomic.Int64
	mask   int64
	buf    []atomic.Pointer[Job]
}

// NewQueue builds a deque whose capacity is capacity rounded up to a power of two
func NewQueue(capacity int) *Queue {
	size := nextPowerOfTwo(capacity)
	return &Queue{
		mask: int64(size - 1),
		buf:  make([]atomic.Pointer[Job], size),
	}
}

// Push appends j at the bottom. Owner only. It reports false when the ring is full.
func (q *Queue) Push(j *Job) bool {
	b := q.bottom.Load()
	t := q.top.Load()
	if b-t >= int64(len(q.buf)) {
		return false
	}
	q.buf[b&q.mask].Store(j)
	q.bottom.Store(b + 1)
	return true
}

// Pop takes the most recently pushed job. Owner only.
func (q *Queue) Pop() *Job {
	b := q.bottom.Load() - 1
	q.bottom.Store(b)
	t := q.top.Load()

	if t > b {
		// empty
		q.bottom.Store(t)
		return nil
	}

	j := q.buf[b&q.mask].Load()
	if t != b {
		return j
	}

	// last item: race any thief for it
	if !q.top.CompareAndSwap(t, t+1) {
		j = nil
	}
	q.bottom.Store(t + 1)
	return j
}

// Steal takes the oldest job. Safe from any goroutine. A nil result means the deque
// was empty or another pop/steal won the race.
func (q *Queue) Steal() *Job {
	t := q.top.Load()
	b := q.bottom.Load()
	if t >= b {
		return nil
	}
	j := q.buf[t&q.mask].Load()
	if !q.top.CompareAndSwap(t, t+1) {
		return nil
	}
	return j
}

// Len is an estimate; it is exact only when no other goroutine touches the deque
func (q *Queue) Len() int {
	n := q.bottom.Load() - q.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Cap returns the ring capacity
func (q *Queue) Cap() int {
	return len(q.buf)
}

func nextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
