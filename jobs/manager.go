package jobs

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Manager owns the worker pool, the sleep/wake condition and the device queue slots
type Manager struct {
	opts    options
	logger  *slog.Logger
	workers []*Worker

	active  atomic.Pointer[Worker]
	loading atomic.Pointer[Worker]

	mu       sync.Mutex
	cond     *sync.Cond
	epoch    atomic.Uint64
	sleepers atomic.Int32
	stopping atomic.Bool

	slots          []QueueSlot
	overlap        int
	nextDedicated  atomic.Int32
	dedicatedCount atomic.Int32

	runMu  sync.Mutex
	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewManager builds the pool. Workers do not run until Start.
func NewManager(opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	m := &Manager{
		opts:   o,
		logger: o.resolveLogger(),
	}
	m.cond = sync.NewCond(&m.mu)
	m.assignSlots()

	m.workers = make([]*Worker, o.workers)
	stealers := int(o.persistentStealRatio*float64(o.workers) + 0.5)
	for i := range m.workers {
		w := newWorker(m, i, false)
		w.stealPersistent = i < stealers
		w.slot = m.slots[o.reservedSlots+i]
		m.workers[i] = w
	}
	return m
}

// assignSlots maps every consumer (reserved slots first, then workers) onto a device
// queue index. Only indices shared by more than one consumer get a mutex.
func (m *Manager) assignSlots() {
	consumers := m.opts.reservedSlots + m.opts.workers
	queues := m.opts.deviceQueues
	if queues == 0 || queues > consumers {
		queues = consumers
	}
	m.overlap = consumers - queues

	counts := make([]int, queues)
	for i := range consumers {
		counts[i%queues]++
	}
	locks := make([]*sync.Mutex, queues)
	for idx, n := range counts {
		if n > 1 {
			locks[idx] = &sync.Mutex{}
		}
	}
	m.slots = make([]QueueSlot, consumers)
	for i := range consumers {
		idx := i % queues
		m.slots[i] = QueueSlot{index: idx, mu: locks[idx]}
	}
}

// Start launches one goroutine per pool worker. Cancelling ctx stops them like Stop.
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.group != nil {
		return
	}
	m.stopping.Store(false)
	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	for _, w := range m.workers {
		g.Go(func() error {
			w.run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		m.halt()
		return nil
	})
	m.group = g
	m.cancel = cancel
	m.logger.Debug("Job manager started.", "workers", len(m.workers), "deviceQueueOverlap", m.overlap)
}

// Stop wakes and joins every pool worker. Jobs still queued stay queued.
func (m *Manager) Stop() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.group == nil {
		return nil
	}
	m.cancel()
	err := m.group.Wait()
	m.group = nil
	m.cancel = nil
	m.logger.Debug("Job manager stopped.")
	return err
}

func (m *Manager) halt() {
	m.stopping.Store(true)
	m.mu.Lock()
	m.cond.Broadcast()
	m.mu.Unlock()
}

// notify wakes sleeping workers after a push
func (m *Manager) notify() {
	m.epoch.Add(1)
	if m.sleepers.Load() > 0 {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	}
}

// sleep blocks until a push happened after epoch was read, or the manager stops. It
// reports false on stop.
func (m *Manager) sleep(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleepers.Add(1)
	for m.epoch.Load() == epoch && !m.stopping.Load() {
		m.cond.Wait()
	}
	m.sleepers.Add(-1)
	return !m.stopping.Load()
}

// Workers returns the pool workers
func (m *Manager) Workers() []*Worker {
	return slices.Clone(m.workers)
}

// NewDedicatedWorker creates a worker owned by the calling goroutine. It is not part of
// the pool, but pool workers steal from it once it is made active or loading.
func (m *Manager) NewDedicatedWorker() *Worker {
	id := len(m.workers) + int(m.dedicatedCount.Add(1)) - 1
	w := newWorker(m, id, true)
	w.stealPersistent = true
	if reserved := m.opts.reservedSlots; reserved > 0 {
		w.slot = m.slots[int(m.nextDedicated.Add(1)-1)%reserved]
	} else {
		w.slot = QueueSlot{index: -1}
	}
	return w
}

// SetActive marks w as the running simulation's dedicated worker
func (m *Manager) SetActive(w *Worker) {
	m.active.Store(w)
}

// SetLoading marks w as the dedicated worker of a world being loaded
func (m *Manager) SetLoading(w *Worker) {
	m.loading.Store(w)
}

func (m *Manager) Active() *Worker {
	return m.active.Load()
}

func (m *Manager) Loading() *Worker {
	return m.loading.Load()
}

// ReservedSlot returns the device queue slot of reserved consumer i
func (m *Manager) ReservedSlot(i int) QueueSlot {
	return m.slots[i]
}

// Overlap returns how many consumers exceed the available device queues
func (m *Manager) Overlap() int {
	return m.overlap
}

// QueueSlot is a consumer's device queue index. When several consumers share an index
// the slot carries a mutex; otherwise Lock and Unlock are no-ops.
type QueueSlot struct {
	index int
	mu    *sync.Mutex
}

func (s QueueSlot) Index() int {
	return s.index
}

// Shared reports whether other consumers use the same index
func (s QueueSlot) Shared() bool {
	return s.mu != nil
}

func (s QueueSlot) Lock() {
	if s.mu != nil {
		s.mu.Lock()
	}
}

func (s QueueSlot) Unlock() {
	if s.mu != nil {
		s.mu.Unlock()
	}
}
