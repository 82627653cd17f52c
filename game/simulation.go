package game

import (
	"context"
	"log/slog"
	"time"

	"github.com/pthm-cable/autopilot/storage"
	"github.com/pthm-cable/autopilot/telemetry"
	"github.com/pthm-cable/autopilot/training"
)

// deferredTick hands tick timing to the controller but leaves the tick open
// so the telemetry written after it is counted in the same sample.
type deferredTick struct {
	*telemetry.PerfCollector
}

func (deferredTick) EndTick() {}

// Update runs one simulated frame. It returns the generation boundary
// crossed during the frame, if any.
func (g *Game) Update(ctx context.Context) *training.Transition {
	g.perf.RecordFrame()
	if g.ctrl.Paused() {
		g.board.PublishStatus(g.ctrl.Status())
		return nil
	}

	ev := g.ctrl.Tick(g.frame)
	g.perf.StartPhase(telemetry.PhaseTelemetry)
	g.ticks++
	if ev != nil {
		g.endGeneration(ctx, ev)
	}
	g.board.PublishStatus(g.ctrl.Status())
	g.perf.EndTick()
	return ev
}

// Run updates until ctx is done or a configured limit is reached.
func (g *Game) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("run interrupted", "ticks", g.ticks, "generations", g.generations)
			return nil
		default:
		}
		if g.maxTicks > 0 && g.ticks >= g.maxTicks {
			return nil
		}
		if g.maxGenerations > 0 && g.generations >= g.maxGenerations {
			return nil
		}
		g.Update(ctx)
	}
}

// endGeneration records a finished generation everywhere it is reported.
// Output failures are logged and never stop training.
func (g *Game) endGeneration(ctx context.Context, ev *training.Transition) {
	g.generations++
	g.last = ev

	stats := telemetry.NewGenerationStats(g.runID, ev)
	if g.logStats {
		stats.LogStats()
	}
	if err := g.output.WriteGeneration(stats); err != nil {
		slog.Error("failed to write generation stats", "error", err)
	}
	g.board.PublishGeneration(stats)

	if g.hof.Consider(ev) {
		if err := g.output.WriteHallOfFame(g.hof); err != nil {
			slog.Error("failed to write hall of fame", "error", err)
		}
	}

	champion := storage.Champion{
		RunID:      g.runID,
		Generation: ev.Generation,
		Fitness:    ev.BestFitness,
		SavedAt:    time.Now(),
		Network:    ev.Best,
	}
	if err := storage.RecordIfSupported(ctx, g.store, champion); err != nil {
		slog.Error("failed to record champion", "generation", ev.Generation, "error", err)
	}

	perfStats := g.perf.Stats()
	if g.logStats {
		perfStats.LogStats()
	}
	if err := g.output.WritePerf(perfStats, ev.Generation); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
}
