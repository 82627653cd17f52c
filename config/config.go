// Package config provides configuration loading and access for the trainer.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all trainer configuration parameters.
type Config struct {
	Population PopulationConfig `yaml:"population"`
	Neural     NeuralConfig     `yaml:"neural"`
	Training   TrainingConfig   `yaml:"training"`
	Road       RoadConfig       `yaml:"road"`
	Car        CarConfig        `yaml:"car"`
	Sensor     SensorConfig     `yaml:"sensor"`
	Traffic    TrafficConfig    `yaml:"traffic"`
	Storage    StorageConfig    `yaml:"storage"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// PopulationConfig holds population parameters.
type PopulationConfig struct {
	Size int `yaml:"size"`
}

// NeuralConfig holds network shape parameters.
type NeuralConfig struct {
	HiddenLayers []int `yaml:"hidden_layers"` // Sizes of hidden layers, e.g. [6]
	NumOutputs   int   `yaml:"num_outputs"`
}

// TrainingConfig holds generation lifecycle parameters.
type TrainingConfig struct {
	MaxGenerationTimeMs int     `yaml:"max_generation_time_ms"`
	NoProgressTimeoutMs int     `yaml:"no_progress_timeout_ms"`
	StuckMarginMs       int     `yaml:"stuck_margin_ms"`
	MutationRate        float64 `yaml:"mutation_rate"`
	Speed               int     `yaml:"speed"`
	Objective           string  `yaml:"objective"` // minimize or maximize
	Workers             int     `yaml:"workers"`
	ParallelThreshold   int     `yaml:"parallel_threshold"`
	FrameMs             float64 `yaml:"frame_ms"`
}

// RoadConfig holds road geometry.
type RoadConfig struct {
	CenterX   float64 `yaml:"center_x"`
	Width     float64 `yaml:"width"`
	LaneCount int     `yaml:"lane_count"`
	Length    float64 `yaml:"length"` // extent of the borders above and below the origin
}

// CarConfig holds parameters of the trained cars.
type CarConfig struct {
	Width        float64 `yaml:"width"`
	Height       float64 `yaml:"height"`
	StartLane    int     `yaml:"start_lane"`
	StartY       float64 `yaml:"start_y"`
	MaxSpeed     float64 `yaml:"max_speed"`
	Acceleration float64 `yaml:"acceleration"`
	Friction     float64 `yaml:"friction"`
	Steering     float64 `yaml:"steering"` // radians per step
}

// SensorConfig holds ray sensor parameters.
type SensorConfig struct {
	RayCount  int     `yaml:"ray_count"`
	RayLength float64 `yaml:"ray_length"`
	RaySpread float64 `yaml:"ray_spread"` // radians
}

// TrafficConfig holds the layout of scripted traffic.
type TrafficConfig struct {
	MaxSpeed float64            `yaml:"max_speed"`
	Cars     []TrafficCarConfig `yaml:"cars"`
}

// TrafficCarConfig places one traffic car.
type TrafficCarConfig struct {
	Lane int     `yaml:"lane"`
	Y    float64 `yaml:"y"`
}

// StorageConfig selects where the best network is persisted.
type StorageConfig struct {
	Backend    string `yaml:"backend"`     // memory, file or sqlite
	Path       string `yaml:"path"`        // file path or sqlite database
	OnMismatch string `yaml:"on_mismatch"` // reject or fallback
	SaveOnExit bool   `yaml:"save_on_exit"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	HallOfFameSize int `yaml:"hall_of_fame_size"`
	PerfWindow     int `yaml:"perf_window"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Topology          []int         // [ray_count, hidden..., num_outputs]
	MaxGenerationTime time.Duration // Training.MaxGenerationTimeMs
	NoProgressTimeout time.Duration // Training.NoProgressTimeoutMs
	StuckMargin       time.Duration // Training.StuckMarginMs
	FrameDuration     time.Duration // Training.FrameMs
}

// Storage backends and mismatch policies.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	MismatchReject   = "reject"
	MismatchFallback = "fallback"

	ObjectiveMinimize = "minimize"
	ObjectiveMaximize = "maximize"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are broken: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate checks the configuration for values the trainer cannot run with.
func (c *Config) Validate() error {
	if c.Population.Size < 1 {
		return fmt.Errorf("%w: population.size must be >= 1, got %d", ErrInvalid, c.Population.Size)
	}
	for i, n := range c.Neural.HiddenLayers {
		if n <= 0 {
			return fmt.Errorf("%w: neural.hidden_layers[%d] must be positive, got %d", ErrInvalid, i, n)
		}
	}
	if c.Neural.NumOutputs <= 0 {
		return fmt.Errorf("%w: neural.num_outputs must be positive, got %d", ErrInvalid, c.Neural.NumOutputs)
	}
	if c.Sensor.RayCount <= 0 {
		return fmt.Errorf("%w: sensor.ray_count must be positive, got %d", ErrInvalid, c.Sensor.RayCount)
	}

	t := c.Training
	if t.MaxGenerationTimeMs <= 0 || t.NoProgressTimeoutMs <= 0 {
		return fmt.Errorf("%w: training timeouts must be positive", ErrInvalid)
	}
	if t.StuckMarginMs < 0 {
		return fmt.Errorf("%w: training.stuck_margin_ms must not be negative", ErrInvalid)
	}
	if t.Speed < 1 {
		return fmt.Errorf("%w: training.speed must be >= 1, got %d", ErrInvalid, t.Speed)
	}
	if t.MutationRate < 0 {
		return fmt.Errorf("%w: training.mutation_rate must not be negative", ErrInvalid)
	}
	if t.FrameMs <= 0 {
		return fmt.Errorf("%w: training.frame_ms must be positive", ErrInvalid)
	}
	switch t.Objective {
	case ObjectiveMinimize, ObjectiveMaximize:
	default:
		return fmt.Errorf("%w: training.objective %q", ErrInvalid, t.Objective)
	}

	if c.Road.LaneCount < 1 || c.Road.Width <= 0 {
		return fmt.Errorf("%w: road needs at least one lane and a positive width", ErrInvalid)
	}
	if c.Car.StartLane < 0 || c.Car.StartLane >= c.Road.LaneCount {
		return fmt.Errorf("%w: car.start_lane %d outside road", ErrInvalid, c.Car.StartLane)
	}
	for i, tc := range c.Traffic.Cars {
		if tc.Lane < 0 || tc.Lane >= c.Road.LaneCount {
			return fmt.Errorf("%w: traffic.cars[%d] lane %d outside road", ErrInvalid, i, tc.Lane)
		}
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("%w: storage.backend %q", ErrInvalid, c.Storage.Backend)
	}
	switch c.Storage.OnMismatch {
	case MismatchReject, MismatchFallback:
	default:
		return fmt.Errorf("%w: storage.on_mismatch %q", ErrInvalid, c.Storage.OnMismatch)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	topo := make([]int, 0, len(c.Neural.HiddenLayers)+2)
	topo = append(topo, c.Sensor.RayCount)
	topo = append(topo, c.Neural.HiddenLayers...)
	topo = append(topo, c.Neural.NumOutputs)
	c.Derived.Topology = topo

	c.Derived.MaxGenerationTime = time.Duration(c.Training.MaxGenerationTimeMs) * time.Millisecond
	c.Derived.NoProgressTimeout = time.Duration(c.Training.NoProgressTimeoutMs) * time.Millisecond
	c.Derived.StuckMargin = time.Duration(c.Training.StuckMarginMs) * time.Millisecond
	c.Derived.FrameDuration = time.Duration(c.Training.FrameMs * float64(time.Millisecond))
}

// Refresh revalidates the config and recomputes derived values after fields
// were changed in code.
func (c *Config) Refresh() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
