package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/autopilot/config"
	"github.com/pthm-cable/autopilot/game"
	"github.com/pthm-cable/autopilot/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", true, "Log every generation and perf window via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, hall of fame and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxGenerations := flag.Int("max-generations", 0, "Stop after N generations (0 = unlimited)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N frames (0 = unlimited)")
	frame := flag.Duration("frame", 0, "Simulated frame length (0 = use config)")
	speed := flag.Int("speed", 0, "Physics sub-steps per frame (0 = use config)")
	serve := flag.String("serve", "", "Address for the read-only status server, e.g. :8080 (empty = off)")
	discard := flag.Bool("discard", false, "Discard the saved best network before starting")
	save := flag.Bool("save", false, "Save the best network on exit")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *frame > 0 {
		cfg.Training.FrameMs = float64(*frame) / float64(time.Millisecond)
	}
	if *speed > 0 {
		cfg.Training.Speed = *speed
	}
	if err := cfg.Refresh(); err != nil {
		slog.Error("invalid flag override", "error", err)
		os.Exit(1)
	}

	// Set up seed
	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, err := game.New(ctx, game.Options{
		Seed:           rngSeed,
		Config:         cfg,
		OutputDir:      *outputDir,
		Discard:        *discard,
		SaveOnExit:     *save,
		LogStats:       *logStats,
		MaxGenerations: *maxGenerations,
		MaxTicks:       *maxTicks,
	})
	if err != nil {
		slog.Error("failed to start training", "error", err)
		os.Exit(1)
	}

	if *serve != "" {
		go func() {
			if err := telemetry.Serve(ctx, *serve, g.Board()); err != nil {
				slog.Error("status server stopped", "error", err)
			}
		}()
	}

	slog.Info("starting training",
		"run_id", g.RunID(),
		"seed", rngSeed,
		"population", cfg.Population.Size,
		"topology", cfg.Derived.Topology,
		"speed", cfg.Training.Speed,
		"max_generations", *maxGenerations,
		"max_ticks", *maxTicks,
	)

	runErr := g.Run(ctx)

	// The run context may already be cancelled; saving on exit still needs one.
	if err := g.Close(context.Background()); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	if runErr != nil {
		slog.Error("training failed", "error", runErr)
		os.Exit(1)
	}
	slog.Info("training finished",
		"ticks", g.Ticks(),
		"generations", g.Generations(),
		"best_ever", g.Controller().Status().BestEver,
	)
}
