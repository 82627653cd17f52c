// Package game wires a training run together: the road world, the generation
// controller, the saved best network and the run telemetry.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/autopilot/config"
	"github.com/pthm-cable/autopilot/sim"
	"github.com/pthm-cable/autopilot/storage"
	"github.com/pthm-cable/autopilot/telemetry"
	"github.com/pthm-cable/autopilot/training"
)

// Options configures a run.
type Options struct {
	Seed      int64
	RunID     string         // empty = random UUID
	Config    *config.Config // nil = config.Cfg()
	Store     storage.Store  // nil = backend selected by config
	OutputDir string         // empty = no CSV/JSON output

	Discard    bool // drop any saved network instead of seeding from it
	SaveOnExit bool // save the current best on Close, in addition to storage.save_on_exit
	LogStats   bool // log every generation and perf window

	MaxGenerations int // 0 = unlimited
	MaxTicks       int // 0 = unlimited
}

// Game holds the complete state of a training run.
type Game struct {
	cfg   *config.Config
	runID string
	rng   *rand.Rand
	frame time.Duration

	world *sim.World
	ctrl  *training.Controller
	store storage.Store

	perf   *telemetry.PerfCollector
	output *telemetry.OutputManager
	hof    *telemetry.HallOfFame
	board  *telemetry.Board

	logStats       bool
	saveOnExit     bool
	maxGenerations int
	maxTicks       int

	ticks       int
	generations int // completed
	last        *training.Transition
}

// New builds a run. The store is initialized and, unless opts.Discard is set,
// a compatible saved network seeds the population.
func New(ctx context.Context, opts Options) (*Game, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Cfg()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	g := &Game{
		cfg:            cfg,
		runID:          runID,
		rng:            rand.New(rand.NewSource(opts.Seed)),
		frame:          cfg.Derived.FrameDuration,
		perf:           telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		board:          telemetry.NewBoard(runID),
		logStats:       opts.LogStats,
		saveOnExit:     opts.SaveOnExit || cfg.Storage.SaveOnExit,
		maxGenerations: opts.MaxGenerations,
		maxTicks:       opts.MaxTicks,
	}

	trainOpts, err := training.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	g.hof = telemetry.NewHallOfFame(cfg.Telemetry.HallOfFameSize, trainOpts.Objective)
	trainOpts.Perf = deferredTick{g.perf}

	g.world = sim.NewWorld(cfg)
	cars := g.world.Cars()
	agents := make([]training.Agent, len(cars))
	for i, c := range cars {
		agents[i] = c
	}
	g.ctrl, err = training.New(trainOpts, agents, g.world, g.rng)
	if err != nil {
		return nil, fmt.Errorf("building controller: %w", err)
	}

	if err := g.openStore(ctx, opts); err != nil {
		g.ctrl.Close()
		return nil, err
	}

	g.output, err = telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		g.ctrl.Close()
		storage.CloseIfSupported(g.store)
		return nil, err
	}
	if err := g.output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	g.board.PublishStatus(g.ctrl.Status())
	return g, nil
}

// openStore initializes the store and seeds the population from it.
func (g *Game) openStore(ctx context.Context, opts Options) error {
	store := opts.Store
	if store == nil {
		var err error
		store, err = storage.FromConfig(g.cfg.Storage)
		if err != nil {
			return err
		}
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	g.store = store

	fail := func(err error) error {
		storage.CloseIfSupported(store)
		return err
	}

	if opts.Discard {
		if err := store.DiscardBest(ctx); err != nil {
			return fail(fmt.Errorf("discarding saved network: %w", err))
		}
		slog.Info("discarded saved network", "backend", g.cfg.Storage.Backend)
		return nil
	}

	saved, err := storage.LoadCompatible(ctx, store, g.cfg.Derived.Topology, g.cfg.Storage.OnMismatch)
	if err != nil {
		return fail(fmt.Errorf("loading saved network: %w", err))
	}
	if saved == nil {
		slog.Info("no saved network, starting from random networks", "topology", g.cfg.Derived.Topology)
		return nil
	}
	if err := g.ctrl.Seed(saved); err != nil {
		return fail(err)
	}
	slog.Info("seeded population from saved network", "topology", saved.Topology())
	return nil
}

// SaveBest persists the current leader's network.
func (g *Game) SaveBest(ctx context.Context) error {
	best := g.ctrl.CurrentBest()
	if err := g.store.SaveBest(ctx, best); err != nil {
		return fmt.Errorf("saving best network: %w", err)
	}
	slog.Info("saved best network",
		"generation", g.ctrl.Generation(),
		"params", best.ParamCount(),
	)
	return nil
}

// DiscardBest removes the saved network.
func (g *Game) DiscardBest(ctx context.Context) error {
	if err := g.store.DiscardBest(ctx); err != nil {
		return fmt.Errorf("discarding saved network: %w", err)
	}
	slog.Info("discarded saved network")
	return nil
}

// Close saves the best network when configured to, then releases the worker
// pool, the output files and the store.
func (g *Game) Close(ctx context.Context) error {
	var errs []error
	if g.saveOnExit {
		errs = append(errs, g.SaveBest(ctx))
	}
	g.ctrl.Close()
	errs = append(errs, g.output.Close(), storage.CloseIfSupported(g.store))
	return errors.Join(errs...)
}

// RunID returns the run identifier used in telemetry and champion history.
func (g *Game) RunID() string { return g.runID }

// Controller returns the generation controller.
func (g *Game) Controller() *training.Controller { return g.ctrl }

// World returns the simulated road.
func (g *Game) World() *sim.World { return g.world }

// Board returns the status board read by the HTTP server.
func (g *Game) Board() *telemetry.Board { return g.board }

// HallOfFame returns the best generation champions so far.
func (g *Game) HallOfFame() *telemetry.HallOfFame { return g.hof }

// Store returns the store holding the saved best network.
func (g *Game) Store() storage.Store { return g.store }

// Ticks returns the number of frames run.
func (g *Game) Ticks() int { return g.ticks }

// Generations returns the number of completed generations.
func (g *Game) Generations() int { return g.generations }

// LastTransition returns the most recent generation boundary, or nil.
func (g *Game) LastTransition() *training.Transition { return g.last }
