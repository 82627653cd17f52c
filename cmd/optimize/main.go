// Package main provides CMA-ES optimization of the training hyper-parameters:
// mutation rate, no-progress timeout and hidden layer width.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/autopilot/config"
)

// formatDuration formats a duration as 1h02m03s, or 2m03s below an hour.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h, m, s := d/time.Hour, (d%time.Hour)/time.Minute, (d%time.Minute)/time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// search tracks evaluations made by the optimizer.
type search struct {
	params    *ParamVector
	evaluator *FitnessEvaluator
	log       *evalLog
	maxEvals  int
	start     time.Time

	evals       int
	bestFitness float64
	bestParams  []float64
}

// evaluate scores a normalized point and records it.
func (s *search) evaluate(x []float64) float64 {
	clamped := s.params.Clamp(s.params.Denormalize(x))
	fitness := s.evaluator.Evaluate(clamped)
	s.evals++

	if fitness < s.bestFitness {
		s.bestFitness = fitness
		s.bestParams = clamped
	}

	elapsed := time.Since(s.start)
	bestEver := s.evaluator.LastBestEver()
	if err := s.log.Write(newEvalRow(s.evals, fitness, bestEver, clamped, elapsed.Seconds())); err != nil {
		log.Printf("failed to log evaluation: %v", err)
	}

	remaining := time.Duration(s.maxEvals-s.evals) * (elapsed / time.Duration(s.evals))
	fmt.Printf("Eval %d/%d: fitness=%.1f best_ever=%.1f (best=%.1f) | elapsed: %s, ETA: %s\n",
		s.evals, s.maxEvals, fitness, bestEver, s.bestFitness,
		formatDuration(elapsed), formatDuration(remaining))
	return fitness
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	generations := flag.Int("generations", 10, "Generations per training run")
	maxTicks := flag.Int("max-ticks", 100000, "Frame cap per training run")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 60, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}

	// Training runs log through slog; keep only their warnings.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()

	params := NewParamVector()
	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	evaluator, err := NewFitnessEvaluator(params, *generations, *maxTicks, evalSeeds, baseCfg)
	if err != nil {
		log.Fatalf("failed to create evaluator: %v", err)
	}

	evalLog, err := createEvalLog(filepath.Join(*outputDir, "optimize_log.csv"))
	if err != nil {
		log.Fatal(err)
	}
	defer evalLog.Close()

	s := &search{
		params:      params,
		evaluator:   evaluator,
		log:         evalLog,
		maxEvals:    *maxEvals,
		start:       time.Now(),
		bestFitness: math.Inf(1),
	}

	dim := params.Dim()
	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*math.Log(float64(dim)))
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // sequential; seeds already run in parallel
	}

	fmt.Printf("Starting CMA-ES optimization with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, *maxEvals)
	fmt.Printf("Seeds per evaluation: %d, generations per run: %d, frame cap: %d\n",
		*seeds, *generations, *maxTicks)

	// Start from the base config's values.
	initX := params.Normalize(params.ExtractFromConfig(baseCfg))
	result, err := optimize.Minimize(optimize.Problem{Func: s.evaluate}, initX, settings, method)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}

	// Best params may come from any evaluation, not just the final one.
	if s.bestParams == nil && result != nil {
		s.bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if s.bestParams == nil {
		log.Fatal("no evaluation completed")
	}

	fmt.Printf("\nOptimization complete after %d evaluations in %s\n", s.evals, formatDuration(time.Since(s.start)))
	fmt.Printf("Best fitness: %.1f\n", s.bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s (%s): %.6f\n", spec.Name, spec.Path, s.bestParams[i])
	}

	if err := writeResults(*outputDir, *configPath, params, s.bestParams, evaluator); err != nil {
		log.Fatal(err)
	}
}

// writeResults saves best_config.yaml and, when available, the hall of fame
// of the best run.
func writeResults(dir, configPath string, params *ParamVector, best []float64, evaluator *FitnessEvaluator) error {
	bestCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}
	if err := params.ApplyToConfig(bestCfg, best); err != nil {
		return fmt.Errorf("best parameters are invalid: %w", err)
	}

	configOutPath := filepath.Join(dir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		return err
	}
	fmt.Printf("\nBest config saved to: %s\n", configOutPath)

	hof := evaluator.BestHallOfFame()
	if hof == nil {
		return nil
	}
	data, err := json.MarshalIndent(hof, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling hall of fame: %w", err)
	}
	hofPath := filepath.Join(dir, "hall_of_fame.json")
	if err := os.WriteFile(hofPath, data, 0644); err != nil {
		return fmt.Errorf("writing hall of fame: %w", err)
	}
	fmt.Printf("Hall of fame saved to: %s\n", hofPath)
	return nil
}
