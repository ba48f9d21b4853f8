// foremanbench ticks a small movement simulation on the job scheduler and reports
// throughput.
//
//	go run ./cmd/foremanbench -entities 100000 -ticks 1000 -batch 1024
//	go tool pprof -http=":8000" ./foremanbench cpu.pprof
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/TheBitDrifter/foreman"
	"github.com/TheBitDrifter/foreman/graph"
	"github.com/TheBitDrifter/foreman/jobs"
	"github.com/TheBitDrifter/table"
	"github.com/pkg/profile"
	"github.com/rotisserie/eris"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Team int

var (
	position = foreman.FactoryNewComponent[Position]()
	velocity = foreman.FactoryNewComponent[Velocity]()
	team     = foreman.FactoryNewSharedComponent[Team]()
)

type benchConfig struct {
	entities  int
	ticks     int
	workers   int
	batch     int
	spawn     int
	logLevel  string
	logFormat string
	profile   string
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseFlags(args []string, outW io.Writer) (benchConfig, error) {
	cfg := benchConfig{}
	fs := flag.NewFlagSet("foremanbench", flag.ContinueOnError)
	fs.SetOutput(outW)
	fs.IntVar(&cfg.entities, "entities", 100_000, "entities to simulate")
	fs.IntVar(&cfg.ticks, "ticks", 1000, "ticks to run")
	fs.IntVar(&cfg.workers, "workers", max(1, runtime.NumCPU()-1), "pool workers")
	fs.IntVar(&cfg.batch, "batch", 1024, "rows per parallel job")
	fs.IntVar(&cfg.spawn, "spawn", 0, "entities enqueued for creation every tick")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "text or json")
	fs.StringVar(&cfg.profile, "profile", "", "cpu or mem; writes a profile to the working directory")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.entities < 0 || cfg.ticks < 0 || cfg.workers < 1 || cfg.spawn < 0 {
		return cfg, eris.New("entities, ticks and spawn must be non-negative and workers positive")
	}
	return cfg, nil
}

func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(outW, handlerOpts))
}

func run(outW io.Writer, args []string) error {
	cfg, err := parseFlags(args, outW)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.logLevel, cfg.logFormat, os.Stderr)
	foreman.Config.SetLogger(logger)

	switch cfg.profile {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "":
	default:
		return eris.Errorf("unknown profile mode %q", cfg.profile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	world := foreman.Factory.NewWorld(table.Factory.NewSchema())
	half := cfg.entities / 2
	if _, err := world.CreateSharedEntities(half, []foreman.SharedValue{team.Value(1)}, position, velocity); err != nil {
		return eris.Wrap(err, "failed to create team one")
	}
	if _, err := world.CreateSharedEntities(cfg.entities-half, []foreman.SharedValue{team.Value(2)}, position, velocity); err != nil {
		return eris.Wrap(err, "failed to create team two")
	}
	if err := seedVelocities(world); err != nil {
		return err
	}

	sim, err := newSimulation(world, cfg.batch, cfg.spawn)
	if err != nil {
		return err
	}
	g, err := graph.NewBuilder().
		AddSystem("spawn", sim.spawner()).
		AddSystem("movement", sim.movement()).
		AddSystem("bounds", sim.bounds(), "movement").
		AddRenderer("summary", sim.summary(), "bounds", "spawn").
		Build(graph.WithWorld(world), graph.WithDeferredMutations(), graph.WithLogger(logger))
	if err != nil {
		return eris.Wrap(err, "failed to build graph")
	}

	manager := jobs.NewManager(jobs.WithWorkers(cfg.workers), jobs.WithLogger(logger))
	manager.Start(ctx)
	defer func() {
		if err := manager.Stop(); err != nil {
			logger.Error("Failed to stop job manager.", "error", err)
		}
	}()
	ticker := manager.NewDedicatedWorker()
	manager.SetActive(ticker)

	logger.Info("Starting benchmark.", "entities", cfg.entities, "ticks", cfg.ticks, "workers", cfg.workers, "batch", cfg.batch)
	start := time.Now()
	var last frame
	for range cfg.ticks {
		result, err := g.Tick(ctx, ticker)
		if err != nil {
			return eris.Wrapf(err, "tick %d interrupted", result.Tick)
		}
		if err := result.Err(); err != nil {
			return eris.Wrapf(err, "tick %d failed", result.Tick)
		}
		if len(result.CommandBuffers) > 0 {
			if f, ok := result.CommandBuffers[0].(frame); ok {
				last = f
			}
		}
	}
	elapsed := time.Since(start)

	stats := jobs.WorkerStats{}
	for _, w := range append(manager.Workers(), ticker) {
		s := w.Stats()
		stats.Executed += s.Executed
		stats.Stolen += s.Stolen
		stats.Inlined += s.Inlined
		stats.HeapAllocs += s.HeapAllocs
	}
	perTick := time.Duration(0)
	if cfg.ticks > 0 {
		perTick = elapsed / time.Duration(cfg.ticks)
	}
	fmt.Fprintf(outW, "ticks=%d elapsed=%s per_tick=%s entities=%d archetypes=%d\n",
		cfg.ticks, elapsed, perTick, last.entities, last.archetypes)
	fmt.Fprintf(outW, "jobs executed=%d stolen=%d inlined=%d heap=%d\n",
		stats.Executed, stats.Stolen, stats.Inlined, stats.HeapAllocs)
	return nil
}

func seedVelocities(world *foreman.World) error {
	query, err := world.RegisterQuery(foreman.Factory.NewQuery().And(velocity))
	if err != nil {
		return eris.Wrap(err, "failed to register velocity query")
	}
	cursor := foreman.Factory.NewCursor(query)
	i := 0
	for cursor.Next() {
		vel := velocity.GetFromCursor(cursor)
		vel.X = float64(i%7) - 3
		vel.Y = float64(i%5) - 2
		i++
	}
	return nil
}
