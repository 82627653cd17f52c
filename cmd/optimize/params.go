package main

import (
	"math"

	"github.com/pthm-cable/autopilot/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
	Integer bool    // rounded before it is applied
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "mutation_rate", Path: "training.mutation_rate", Min: 0.01, Max: 0.5, Default: 0.1},
			{Name: "no_progress_timeout_ms", Path: "training.no_progress_timeout_ms", Min: 1000, Max: 10000, Default: 5000, Integer: true},
			{Name: "hidden_width", Path: "neural.hidden_layers[0]", Min: 2, Max: 16, Default: 6, Integer: true},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds and integer parameters are whole.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := math.Max(spec.Min, math.Min(spec.Max, v[i]))
		if spec.Integer {
			val = math.Round(val)
		}
		clamped[i] = val
	}
	return clamped
}

// ApplyToConfig applies parameter values to cfg. Order must match Specs.
// The hidden width replaces the first hidden layer, adding one if the
// network has none.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) error {
	clamped := pv.Clamp(values)

	cfg.Training.MutationRate = clamped[0]
	cfg.Training.NoProgressTimeoutMs = int(clamped[1])

	hidden := append([]int(nil), cfg.Neural.HiddenLayers...)
	if len(hidden) == 0 {
		hidden = append(hidden, 0)
	}
	hidden[0] = int(clamped[2])
	cfg.Neural.HiddenLayers = hidden

	return cfg.Refresh()
}

// ExtractFromConfig extracts current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	hidden := 0.0
	if len(cfg.Neural.HiddenLayers) > 0 {
		hidden = float64(cfg.Neural.HiddenLayers[0])
	}
	return []float64{
		cfg.Training.MutationRate,
		float64(cfg.Training.NoProgressTimeoutMs),
		hidden,
	}
}
