package jobs

import (
	"log/slog"
	"runtime"

	"github.com/TheBitDrifter/foreman"
)

const (
	DefaultQueueCapacity = 4096
	DefaultPoolSize      = 4096
)

type options struct {
	workers              int
	queueCapacity        int
	jobPoolSize          int
	rangePoolSize        int
	deviceQueues         int
	reservedSlots        int
	persistentStealRatio float64
	logger               *slog.Logger
}

func defaultOptions() options {
	return options{
		workers:              max(1, runtime.NumCPU()-1),
		queueCapacity:        DefaultQueueCapacity,
		jobPoolSize:          DefaultPoolSize,
		rangePoolSize:        DefaultPoolSize,
		persistentStealRatio: 0.5,
	}
}

type Option func(*options)

// WithWorkers overrides the pool size (default: one fewer than the CPU count, at least one)
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = max(1, n)
	}
}

// WithQueueCapacity sets each deque's capacity, rounded up to a power of two
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		o.queueCapacity = max(1, n)
	}
}

// WithJobPoolSize sets each worker's job ring size; zero disables pooling
func WithJobPoolSize(n int) Option {
	return func(o *options) {
		o.jobPoolSize = max(0, n)
	}
}

// WithRangePoolSize sets each worker's parallel range ring size; zero disables pooling
func WithRangePoolSize(n int) Option {
	return func(o *options) {
		o.rangePoolSize = max(0, n)
	}
}

// WithDeviceQueues sets how many device queues exist for workers and reserved slots to
// share. Zero means one per consumer.
func WithDeviceQueues(n int) Option {
	return func(o *options) {
		o.deviceQueues = max(0, n)
	}
}

// WithReservedSlots reserves device queue slots for consumers outside the pool, such as
// the simulation and loading goroutines
func WithReservedSlots(n int) Option {
	return func(o *options) {
		o.reservedSlots = max(0, n)
	}
}

// WithPersistentStealRatio sets the fraction of pool workers that steal persistent jobs
func WithPersistentStealRatio(ratio float64) Option {
	return func(o *options) {
		o.persistentStealRatio = min(max(ratio, 0), 1)
	}
}

// WithLogger overrides foreman.Config's logger for this manager
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func (o *options) resolveLogger() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return foreman.Config.Logger()
}
