package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/autopilot/training"
)

// GenerationStats summarises one finished generation.
type GenerationStats struct {
	RunID       string  `csv:"run_id" json:"run_id"`
	Generation  int     `csv:"generation" json:"generation"`
	Reason      string  `csv:"reason" json:"reason"`
	DurationSec float64 `csv:"duration_sec" json:"duration_sec"`

	Population int `csv:"population" json:"population"`
	Survivors  int `csv:"survivors" json:"survivors"`

	BestIndex   int     `csv:"best_index" json:"best_index"`
	BestFitness float64 `csv:"best_fitness" json:"best_fitness"`
	BestEver    float64 `csv:"best_ever" json:"best_ever"`

	// Fitness distribution at the end of the generation
	FitnessMean float64 `csv:"fitness_mean" json:"fitness_mean"`
	FitnessStd  float64 `csv:"fitness_std" json:"fitness_std"`
	FitnessP10  float64 `csv:"fitness_p10" json:"fitness_p10"`
	FitnessP50  float64 `csv:"fitness_p50" json:"fitness_p50"`
	FitnessP90  float64 `csv:"fitness_p90" json:"fitness_p90"`
}

// NewGenerationStats builds the summary of a transition.
func NewGenerationStats(runID string, ev *training.Transition) GenerationStats {
	mean, std, p10, p50, p90 := ComputeFitnessStats(ev.Fitness)
	return GenerationStats{
		RunID:       runID,
		Generation:  ev.Generation,
		Reason:      ev.Reason.String(),
		DurationSec: ev.Elapsed.Seconds(),
		Population:  len(ev.Fitness),
		Survivors:   ev.Viable,
		BestIndex:   ev.BestIndex,
		BestFitness: ev.BestFitness,
		BestEver:    ev.BestEver,
		FitnessMean: mean,
		FitnessStd:  std,
		FitnessP10:  p10,
		FitnessP50:  p50,
		FitnessP90:  p90,
	}
}

// ComputeFitnessStats calculates mean, population standard deviation and
// interpolated percentiles. Returns zeros for an empty slice.
func ComputeFitnessStats(values []float64) (mean, std, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0, 0
	}

	mean, variance := stat.PopMeanVariance(values, nil)
	std = math.Sqrt(variance)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = stat.Quantile(0.10, stat.LinInterp, sorted, nil)
	p50 = stat.Quantile(0.50, stat.LinInterp, sorted, nil)
	p90 = stat.Quantile(0.90, stat.LinInterp, sorted, nil)

	return mean, std, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", s.RunID),
		slog.Int("generation", s.Generation),
		slog.String("reason", s.Reason),
		slog.Float64("duration_sec", s.DurationSec),
		slog.Int("population", s.Population),
		slog.Int("survivors", s.Survivors),
		slog.Int("best_index", s.BestIndex),
		slog.Float64("best_fitness", s.BestFitness),
		slog.Float64("best_ever", s.BestEver),
		slog.Float64("fitness_mean", s.FitnessMean),
		slog.Float64("fitness_std", s.FitnessStd),
		slog.Float64("fitness_p10", s.FitnessP10),
		slog.Float64("fitness_p50", s.FitnessP50),
		slog.Float64("fitness_p90", s.FitnessP90),
	)
}

// LogStats logs the generation summary using slog.
func (s GenerationStats) LogStats() {
	slog.Info("generation",
		"generation", s.Generation,
		"reason", s.Reason,
		"duration_sec", s.DurationSec,
		"survivors", s.Survivors,
		"best_fitness", s.BestFitness,
		"best_ever", s.BestEver,
		"fitness_p50", s.FitnessP50,
	)
}
