package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TheBitDrifter/foreman"
	"github.com/TheBitDrifter/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(append([]Option{WithLogger(discardLogger())}, opts...)...)
	m.Start(context.Background())
	t.Cleanup(func() {
		require.NoError(t, m.Stop())
	})
	return m
}

func waitFor(t *testing.T, w *Worker, j *Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx, j))
}

func TestContinuationAfterChildren(t *testing.T) {
	m := startManager(t, WithWorkers(4))
	w := m.NewDedicatedWorker()
	m.SetActive(w)

	const children = 200
	var finished atomic.Int32
	var seenAtContinuation atomic.Int32

	parent := w.NewRootJob(nil, nil)
	cont := w.NewRootJob(func(*Worker, *Job) {
		seenAtContinuation.Store(finished.Load())
	}, nil)
	require.NoError(t, parent.AddContinuation(cont))

	for range children {
		child := w.NewChildJob(parent, func(w *Worker, j *Job) {
			// a nested child also holds the parent open
			grandchild := w.NewChildJob(j, func(*Worker, *Job) {
				finished.Add(1)
			}, nil)
			w.Push(grandchild)
		}, nil)
		w.Push(child)
	}
	w.Run(parent)
	waitFor(t, w, cont)

	require.True(t, parent.Done())
	require.Equal(t, int32(children), seenAtContinuation.Load())
}

func TestStealFromActiveWorker(t *testing.T) {
	m := startManager(t, WithWorkers(3))
	w := m.NewDedicatedWorker()
	m.SetActive(w)
	require.Same(t, w, m.Active())

	var ran atomic.Int32
	root := w.NewRootJob(nil, nil)
	for range 64 {
		w.Push(w.NewChildJob(root, func(*Worker, *Job) {
			ran.Add(1)
		}, nil))
	}
	w.Run(root)

	// the owner never helps, so only pool workers can drain it
	require.Eventually(t, root.Done, 5*time.Second, time.Millisecond)
	require.Equal(t, int32(64), ran.Load())

	var stolen uint64
	for _, pw := range m.Workers() {
		stolen += pw.Stats().Stolen
	}
	require.NotZero(t, stolen)
}

func TestPanicRecovery(t *testing.T) {
	m := startManager(t, WithWorkers(2))
	w := m.NewDedicatedWorker()

	var after atomic.Bool
	root := w.NewRootJob(nil, nil)
	w.Push(w.NewChildJob(root, func(*Worker, *Job) {
		panic("boom")
	}, nil))
	cont := w.NewRootJob(func(*Worker, *Job) { after.Store(true) }, nil)
	require.NoError(t, root.AddContinuation(cont))
	w.Run(root)

	waitFor(t, w, cont)
	require.True(t, after.Load(), "a panicking child still finishes its parent")
}

func TestCancelFlagSkipsBodies(t *testing.T) {
	m := startManager(t, WithWorkers(2))
	w := m.NewDedicatedWorker()

	var flag atomic.Bool
	flag.Store(true)
	var ran atomic.Int32
	root := w.NewRootJob(nil, nil).SetCancelFlag(&flag)
	for range 10 {
		w.Push(w.NewChildJob(root, func(*Worker, *Job) { ran.Add(1) }, nil))
	}
	w.Run(root)

	waitFor(t, w, root)
	require.Zero(t, ran.Load())
}

func TestInlineWhenQueueFull(t *testing.T) {
	// not started: nothing drains the queue but the owner
	m := NewManager(WithWorkers(1), WithQueueCapacity(2), WithLogger(discardLogger()))
	w := m.NewDedicatedWorker()

	var ran atomic.Int32
	root := w.NewRootJob(nil, nil)
	for range 5 {
		w.Push(w.NewChildJob(root, func(*Worker, *Job) { ran.Add(1) }, nil))
	}
	require.Equal(t, int32(3), ran.Load(), "overflowing jobs run inline")
	require.Equal(t, uint64(3), w.Stats().Inlined)

	w.Run(root)
	waitFor(t, w, root)
	require.Equal(t, int32(5), ran.Load())
}

func TestJobPoolFallback(t *testing.T) {
	m := NewManager(WithWorkers(1), WithJobPoolSize(2), WithLogger(discardLogger()))
	w := m.NewDedicatedWorker()

	root := w.NewRootJob(nil, nil)
	held := []*Job{
		w.NewChildJob(root, nil, nil),
		w.NewChildJob(root, nil, nil),
		w.NewChildJob(root, nil, nil),
	}
	require.Equal(t, uint64(1), w.Stats().HeapAllocs, "the third job cannot take a pooled slot")
	require.Equal(t, slotHeap, held[2].state.Load())

	for _, j := range held {
		w.Push(j)
	}
	w.Run(root)
	waitFor(t, w, root)

	// released slots are reused
	w.NewJob(nil, nil)
	w.NewJob(nil, nil)
	require.Equal(t, uint64(1), w.Stats().HeapAllocs)

	disabled := NewManager(WithWorkers(1), WithJobPoolSize(0), WithLogger(discardLogger())).NewDedicatedWorker()
	disabled.NewJob(nil, nil)
	require.Equal(t, uint64(1), disabled.Stats().HeapAllocs)
}

func TestWaitContext(t *testing.T) {
	m := NewManager(WithWorkers(1), WithLogger(discardLogger()))
	w := m.NewDedicatedWorker()

	// never run, so never done
	root := w.NewRootJob(nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, w.Wait(ctx, root), context.DeadlineExceeded)
}

func TestManagerSlots(t *testing.T) {
	m := NewManager(WithWorkers(3), WithReservedSlots(2), WithDeviceQueues(2), WithLogger(discardLogger()))
	require.Equal(t, 3, m.Overlap())

	var indices []int
	for i := range 2 {
		indices = append(indices, m.ReservedSlot(i).Index())
		require.True(t, m.ReservedSlot(i).Shared())
	}
	for _, w := range m.Workers() {
		indices = append(indices, w.Slot().Index())
		require.True(t, w.Slot().Shared())
	}
	require.Equal(t, []int{0, 1, 0, 1, 0}, indices)

	dedicated := m.NewDedicatedWorker()
	require.True(t, dedicated.Dedicated())
	require.Equal(t, 0, dedicated.Slot().Index())
	require.Equal(t, 1, m.NewDedicatedWorker().Slot().Index())

	exclusive := NewManager(WithWorkers(3), WithReservedSlots(1), WithLogger(discardLogger()))
	require.Zero(t, exclusive.Overlap())
	for _, w := range exclusive.Workers() {
		require.False(t, w.Slot().Shared())
	}
	// Lock and Unlock are no-ops on an unshared slot
	slot := exclusive.ReservedSlot(0)
	slot.Lock()
	slot.Unlock()
}

func TestSharedSlotExclusion(t *testing.T) {
	m := NewManager(WithWorkers(4), WithDeviceQueues(1), WithLogger(discardLogger()))

	var inside atomic.Int32
	var wg sync.WaitGroup
	for _, w := range m.Workers() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot := w.Slot()
			for range 100 {
				slot.Lock()
				assert.Equal(t, int32(1), inside.Add(1))
				inside.Add(-1)
				slot.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestPersistentStealRatio(t *testing.T) {
	m := NewManager(WithWorkers(4), WithPersistentStealRatio(0.5), WithLogger(discardLogger()))
	stealers := 0
	for _, w := range m.Workers() {
		if w.StealsPersistent() {
			stealers++
		}
	}
	require.Equal(t, 2, stealers)

	none := NewManager(WithWorkers(4), WithPersistentStealRatio(0), WithLogger(discardLogger()))
	for _, w := range none.Workers() {
		require.False(t, w.StealsPersistent())
	}
}

func TestPersistentJobs(t *testing.T) {
	m := startManager(t, WithWorkers(2))
	w := m.NewDedicatedWorker()
	m.SetLoading(w)
	require.Same(t, w, m.Loading())

	var ran atomic.Int32
	root := w.NewRootJob(nil, nil)
	for range 16 {
		j := w.NewChildJob(root, func(*Worker, *Job) { ran.Add(1) }, nil).SetPersistent(true)
		w.Push(j)
	}
	w.Run(root)

	waitFor(t, w, root)
	require.Equal(t, int32(16), ran.Load())
}

func TestManagerRestart(t *testing.T) {
	m := NewManager(WithWorkers(2), WithLogger(discardLogger()))
	require.NoError(t, m.Stop(), "stopping an idle manager is a no-op")

	for range 2 {
		m.Start(context.Background())
		w := m.NewDedicatedWorker()
		root := w.NewRootJob(nil, nil)
		for range 32 {
			w.Push(w.NewChildJob(root, func(*Worker, *Job) {}, nil))
		}
		w.Run(root)
		waitFor(t, w, root)
		require.NoError(t, m.Stop())
	}
}

func TestManagerStopsWithContext(t *testing.T) {
	m := NewManager(WithWorkers(2), WithLogger(discardLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	stopped := make(chan error, 1)
	go func() { stopped <- m.Stop() }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop after its context ended")
	}
}

var counter = foreman.FactoryNewComponent[int]()

func newParallelWorld(t testing.TB, n int) (*foreman.World, *foreman.Archetype, foreman.AccessibleComponent[int]) {
	t.Helper()
	world := foreman.Factory.NewWorld(table.Factory.NewSchema())
	arch, err := world.Archetype([]foreman.Component{counter})
	require.NoError(t, err)
	_, err = arch.CreateEntities(n)
	require.NoError(t, err)
	return world, arch, counter
}
