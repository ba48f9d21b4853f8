package graph

import (
	"log/slog"

	"github.com/TheBitDrifter/foreman"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/TheBitDrifter/foreman/graph"

type options struct {
	world          *foreman.World
	deferMutations bool
	tracer         trace.TracerProvider
	logger         *slog.Logger
}

type Option func(*options)

// WithWorld attaches the world node bodies operate on. It is handed to PreInit and Init
// and exposed on every TickContext.
func WithWorld(w *foreman.World) Option {
	return func(o *options) {
		o.world = w
	}
}

// WithDeferredMutations locks the world for the duration of each tick. Structural
// changes made through the world's Enqueue methods are applied after every node has
// finished.
func WithDeferredMutations() Option {
	return func(o *options) {
		o.deferMutations = true
	}
}

// WithTracerProvider sets where tick and node spans go. The global provider is used
// otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func (o *options) resolve() {
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider()
	}
	if o.logger == nil {
		o.logger = foreman.Config.Logger()
	}
	o.logger = o.logger.With("component", "graph")
}
