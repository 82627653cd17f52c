package main

import (
	"context"
	"math"
	"sync"

	"github.com/pthm-cable/autopilot/config"
	"github.com/pthm-cable/autopilot/game"
	"github.com/pthm-cable/autopilot/storage"
	"github.com/pthm-cable/autopilot/telemetry"
	"github.com/pthm-cable/autopilot/training"
)

// FitnessEvaluator runs short headless training runs and scores them.
type FitnessEvaluator struct {
	params      *ParamVector
	generations int
	maxTicks    int
	seeds       []int64
	baseConfig  *config.Config
	sign        float64 // turns the run objective into "lower is better"

	// Best run tracking
	mu             sync.Mutex
	bestFitness    float64
	bestHallOfFame *telemetry.HallOfFame
	lastBestEver   float64 // mean best-ever fitness from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator. Each run lasts generations
// generations, capped at maxTicks frames.
func NewFitnessEvaluator(params *ParamVector, generations, maxTicks int, seeds []int64, baseCfg *config.Config) (*FitnessEvaluator, error) {
	obj, err := training.ParseObjective(baseCfg.Training.Objective)
	if err != nil {
		return nil, err
	}
	sign := 1.0
	if obj == training.Maximize {
		sign = -1
	}
	return &FitnessEvaluator{
		params:      params,
		generations: generations,
		maxTicks:    maxTicks,
		seeds:       seeds,
		baseConfig:  baseCfg,
		sign:        sign,
		bestFitness: math.Inf(1),
	}, nil
}

// BestHallOfFame returns the hall of fame from the best evaluation.
func (fe *FitnessEvaluator) BestHallOfFame() *telemetry.HallOfFame {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestHallOfFame
}

// LastBestEver returns the mean best-ever fitness of the most recent evaluation.
func (fe *FitnessEvaluator) LastBestEver() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastBestEver
}

// runResult holds the results from a single training run.
type runResult struct {
	bestEver   float64
	hallOfFame *telemetry.HallOfFame
	err        error
}

// Evaluate computes fitness for raw parameter values (lower = better).
// Fitness is the mean best-ever agent fitness across seeds, oriented so that
// lower is better. Invalid parameters or failed runs score +Inf.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	if err := fe.params.ApplyToConfig(cfg, x); err != nil {
		return math.Inf(1)
	}

	// Run all seeds in parallel; each run gets its own config copy.
	results := make([]runResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			runCfg := *cfg
			results[idx] = fe.runSimulation(&runCfg, s)
		}(i, seed)
	}
	wg.Wait()

	var total, totalBestEver float64
	bestSeedFitness := math.Inf(1)
	var bestSeedHallOfFame *telemetry.HallOfFame
	for _, r := range results {
		if r.err != nil {
			return math.Inf(1)
		}
		fitness := fe.sign * r.bestEver
		total += fitness
		totalBestEver += r.bestEver
		if fitness < bestSeedFitness {
			bestSeedFitness = fitness
			bestSeedHallOfFame = r.hallOfFame
		}
	}

	n := float64(len(fe.seeds))
	avgFitness := total / n

	fe.mu.Lock()
	if avgFitness < fe.bestFitness {
		fe.bestFitness = avgFitness
		fe.bestHallOfFame = bestSeedHallOfFame
	}
	fe.lastBestEver = totalBestEver / n
	fe.mu.Unlock()

	return avgFitness
}

// runSimulation executes a single headless training run against an
// in-memory store, so evaluations never touch the saved network.
func (fe *FitnessEvaluator) runSimulation(cfg *config.Config, seed int64) runResult {
	ctx := context.Background()
	g, err := game.New(ctx, game.Options{
		Seed:           seed,
		Config:         cfg,
		Store:          storage.NewMemoryStore(),
		MaxGenerations: fe.generations,
		MaxTicks:       fe.maxTicks,
	})
	if err != nil {
		return runResult{err: err}
	}

	err = g.Run(ctx)
	result := runResult{
		bestEver:   g.Controller().Status().BestEver,
		hallOfFame: g.HallOfFame(),
		err:        err,
	}
	if cerr := g.Close(ctx); result.err == nil {
		result.err = cerr
	}
	return result
}

// copyConfig returns a copy of the base config that parameters can be
// applied to without touching the original.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Neural.HiddenLayers = append([]int(nil), fe.baseConfig.Neural.HiddenLayers...)
	cfg.Storage.SaveOnExit = false
	return &cfg
}
