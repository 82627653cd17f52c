// Package training runs the generational loop: it steps a population of
// network-driven agents through an environment, tracks the leader, decides
// when a generation is over and breeds the next one from the best network.
package training

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/pthm-cable/autopilot/config"
	"github.com/pthm-cable/autopilot/neural"
)

// Phase names reported to a PhaseRecorder.
const (
	PhaseEnvironment = "environment"
	PhaseThink       = "think"
	PhaseApply       = "apply"
	PhaseSelect      = "select"
	PhaseTransition  = "transition"
)

// ErrNoAgents is returned when a controller is built without a population.
var ErrNoAgents = errors.New("training: population is empty")

// PhaseRecorder receives per-tick phase timings. telemetry.PerfCollector
// satisfies it.
type PhaseRecorder interface {
	StartTick()
	StartPhase(phase string)
	EndTick()
}

// EndReason says why a generation ended.
type EndReason int

const (
	ReasonNone EndReason = iota
	// ReasonExtinction: no agent is viable.
	ReasonExtinction
	// ReasonTimeout: the generation ran longer than MaxGenerationTime.
	ReasonTimeout
	// ReasonStagnation: the generation best has not improved for NoProgressTimeout.
	ReasonStagnation
)

func (r EndReason) String() string {
	switch r {
	case ReasonExtinction:
		return "extinction"
	case ReasonTimeout:
		return "timeout"
	case ReasonStagnation:
		return "stagnation"
	}
	return "none"
}

// Options configures a Controller.
type Options struct {
	Topology          []int
	MaxGenerationTime time.Duration
	NoProgressTimeout time.Duration
	StuckMargin       time.Duration
	MutationRate      float64
	Speed             int
	Objective         Objective
	Workers           int
	ParallelThreshold int
	Perf              PhaseRecorder
}

// DefaultOptions returns the stock generation parameters for the given topology.
func DefaultOptions(topology []int) Options {
	return Options{
		Topology:          topology,
		MaxGenerationTime: 20 * time.Second,
		NoProgressTimeout: 5 * time.Second,
		StuckMargin:       2 * time.Second,
		MutationRate:      0.1,
		Speed:             1,
		Objective:         Minimize,
		ParallelThreshold: defaultParallelThreshold,
	}
}

// OptionsFromConfig builds Options from a loaded config.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	obj, err := ParseObjective(cfg.Training.Objective)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Topology:          cfg.Derived.Topology,
		MaxGenerationTime: cfg.Derived.MaxGenerationTime,
		NoProgressTimeout: cfg.Derived.NoProgressTimeout,
		StuckMargin:       cfg.Derived.StuckMargin,
		MutationRate:      cfg.Training.MutationRate,
		Speed:             cfg.Training.Speed,
		Objective:         obj,
		Workers:           cfg.Training.Workers,
		ParallelThreshold: cfg.Training.ParallelThreshold,
	}, nil
}

func (o Options) validate() error {
	if err := neural.ValidateTopology(o.Topology); err != nil {
		return err
	}
	if o.MaxGenerationTime <= 0 || o.NoProgressTimeout <= 0 {
		return errors.New("training: generation timeouts must be positive")
	}
	if o.StuckMargin < 0 {
		return errors.New("training: stuck margin must not be negative")
	}
	if o.Speed < 1 {
		return fmt.Errorf("training: speed must be >= 1, got %d", o.Speed)
	}
	if o.MutationRate < 0 {
		return errors.New("training: mutation rate must not be negative")
	}
	return nil
}

// Transition describes a generation boundary. Fitness values are captured
// before the population is reset.
type Transition struct {
	Generation  int // the generation that ended
	Reason      EndReason
	Elapsed     time.Duration
	BestIndex   int
	BestFitness float64
	BestEver    float64
	Viable      int
	Fitness     []float64
	Best        *neural.Network // now installed unchanged in agent 0
}

// Status is a read-only snapshot of the controller.
type Status struct {
	Generation     int           `json:"generation"`
	Population     int           `json:"population"`
	Viable         int           `json:"viable"`
	BestIndex      int           `json:"best_index"`
	BestFitness    float64       `json:"best_fitness"`
	BestDistance   float64       `json:"best_distance"`
	BestEver       float64       `json:"best_ever"`
	Elapsed        time.Duration `json:"elapsed_ns"`
	SinceProgress  time.Duration `json:"since_progress_ns"`
	MakingProgress bool          `json:"making_progress"`
	Paused         bool          `json:"paused"`
	Speed          int           `json:"speed"`
}

// Controller owns the generational loop. It is not safe for concurrent use;
// publish Status snapshots to share progress with other goroutines.
type Controller struct {
	opts    Options
	agents  []Agent
	env     Environment
	rng     *rand.Rand
	pool    *thinkPool
	outputs [][]float64

	now          time.Duration // unpaused clock
	started      bool          // false until the first tick of a generation
	genStart     time.Duration
	lastProgress time.Duration
	paused       bool

	generation   int
	bestIndex    int
	bestDistance float64 // best fitness this generation, reset at each boundary
	bestThisGen  float64 // progress watermark
	bestEver     float64
}

// New builds a controller over agents. Agents without a network receive a
// fresh random one; agents with a network must match opts.Topology.
// env may be nil.
func New(opts Options, agents []Agent, env Environment, rng *rand.Rand) (*Controller, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	for i, a := range agents {
		if b := a.Brain(); b != nil {
			if !b.MatchesTopology(opts.Topology) {
				return nil, fmt.Errorf("agent %d: %w: have %v, want %v",
					i, neural.ErrTopologyMismatch, b.Topology(), opts.Topology)
			}
			continue
		}
		nn, err := neural.NewNetwork(rng, opts.Topology)
		if err != nil {
			return nil, err
		}
		a.SetBrain(nn)
	}

	return &Controller{
		opts:       opts,
		agents:     agents,
		env:        env,
		rng:        rng,
		pool:       newThinkPool(opts.Workers, opts.ParallelThreshold),
		outputs:    make([][]float64, len(agents)),
		generation: 1,
	}, nil
}

// Close stops any worker goroutines.
func (c *Controller) Close() {
	c.pool.stop()
}

// Seed installs a saved network as the starting population: agent 0 gets an
// exact copy, every other agent a mutated copy.
func (c *Controller) Seed(best *neural.Network) error {
	if best == nil {
		return errors.New("training: nil seed network")
	}
	if !best.MatchesTopology(c.opts.Topology) {
		return fmt.Errorf("seed: %w: have %v, want %v",
			neural.ErrTopologyMismatch, best.Topology(), c.opts.Topology)
	}
	c.breed(best.Clone())
	return nil
}

// Tick advances the unpaused clock by dt and runs Speed physics sub-steps.
// It returns a Transition when the generation ended during this tick.
func (c *Controller) Tick(dt time.Duration) *Transition {
	if c.paused {
		return nil
	}
	perf := c.opts.Perf
	if perf != nil {
		perf.StartTick()
		defer perf.EndTick()
	}

	c.now += dt
	if !c.started {
		c.started = true
		c.genStart = c.now
		c.lastProgress = c.now
		c.bestThisGen = 0
	}

	for s := 0; s < c.opts.Speed; s++ {
		c.step()
	}

	c.startPhase(PhaseSelect)
	c.selectBest()

	reason := c.endReason()
	if reason == ReasonNone {
		return nil
	}
	c.startPhase(PhaseTransition)
	return c.transition(reason)
}

func (c *Controller) startPhase(phase string) {
	if c.opts.Perf != nil {
		c.opts.Perf.StartPhase(phase)
	}
}

// step advances the environment and then every agent by one physics step.
func (c *Controller) step() {
	c.startPhase(PhaseEnvironment)
	if c.env != nil {
		c.env.Step()
	}

	c.startPhase(PhaseThink)
	c.pool.think(c.agents, c.outputs)

	c.startPhase(PhaseApply)
	for i, a := range c.agents {
		a.Update(c.outputs[i])
	}
}

// selectBest picks the first agent with the best fitness and updates the
// progress watermarks.
func (c *Controller) selectBest() {
	obj := c.opts.Objective
	best := 0
	bestFit := c.agents[0].Fitness()
	for i := 1; i < len(c.agents); i++ {
		if f := c.agents[i].Fitness(); obj.Better(f, bestFit) {
			best, bestFit = i, f
		}
	}
	c.bestIndex = best

	if obj.Better(bestFit, c.bestDistance) {
		c.bestDistance = bestFit
	}
	if obj.Better(bestFit, c.bestEver) {
		c.bestEver = bestFit
	}
	if obj.Better(bestFit, c.bestThisGen) {
		c.bestThisGen = bestFit
		c.lastProgress = c.now
	}
}

func (c *Controller) endReason() EndReason {
	if c.viable() == 0 {
		return ReasonExtinction
	}
	if c.now-c.genStart > c.opts.MaxGenerationTime {
		return ReasonTimeout
	}
	if c.now-c.lastProgress > c.opts.NoProgressTimeout {
		return ReasonStagnation
	}
	return ReasonNone
}

func (c *Controller) viable() int {
	n := 0
	for _, a := range c.agents {
		if a.Viable() {
			n++
		}
	}
	return n
}

func (c *Controller) transition(reason EndReason) *Transition {
	leader := c.agents[c.bestIndex]
	best := leader.Brain()

	ev := &Transition{
		Generation:  c.generation,
		Reason:      reason,
		Elapsed:     c.now - c.genStart,
		BestIndex:   c.bestIndex,
		BestFitness: leader.Fitness(),
		BestEver:    c.bestEver,
		Viable:      c.viable(),
		Fitness:     make([]float64, len(c.agents)),
		Best:        best,
	}
	for i, a := range c.agents {
		ev.Fitness[i] = a.Fitness()
	}

	for _, a := range c.agents {
		a.Reset()
	}
	if c.env != nil {
		c.env.Reset()
	}
	c.breed(best)

	c.generation++
	c.bestDistance = 0
	c.bestIndex = 0
	c.started = false
	return ev
}

// breed gives agent 0 best itself and every other agent a mutated clone.
func (c *Controller) breed(best *neural.Network) {
	c.agents[0].SetBrain(best)
	for i := 1; i < len(c.agents); i++ {
		child := best.Clone()
		neural.Mutate(c.rng, child, c.opts.MutationRate)
		c.agents[i].SetBrain(child)
	}
}

// Pause freezes the clock; ticks while paused do nothing.
func (c *Controller) Pause() { c.paused = true }

// Resume continues from where Pause stopped.
func (c *Controller) Resume() { c.paused = false }

// Paused reports whether the controller is paused.
func (c *Controller) Paused() bool { return c.paused }

// SetSpeed changes the number of physics sub-steps per tick.
func (c *Controller) SetSpeed(speed int) error {
	if speed < 1 {
		return fmt.Errorf("training: speed must be >= 1, got %d", speed)
	}
	c.opts.Speed = speed
	return nil
}

// Speed returns the number of physics sub-steps per tick.
func (c *Controller) Speed() int { return c.opts.Speed }

// Generation returns the current generation number, starting at 1.
func (c *Controller) Generation() int { return c.generation }

// Agents returns the population in index order.
func (c *Controller) Agents() []Agent { return c.agents }

// CurrentBest returns the current leader's network. Right after a transition
// this is agent 0, holding the previous generation's best unchanged.
func (c *Controller) CurrentBest() *neural.Network {
	return c.agents[c.bestIndex].Brain()
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	var elapsed, since time.Duration
	if c.started {
		elapsed = c.now - c.genStart
		since = c.now - c.lastProgress
	}
	return Status{
		Generation:     c.generation,
		Population:     len(c.agents),
		Viable:         c.viable(),
		BestIndex:      c.bestIndex,
		BestFitness:    c.agents[c.bestIndex].Fitness(),
		BestDistance:   c.bestDistance,
		BestEver:       c.bestEver,
		Elapsed:        elapsed,
		SinceProgress:  since,
		MakingProgress: since < c.opts.NoProgressTimeout-c.opts.StuckMargin,
		Paused:         c.paused,
		Speed:          c.opts.Speed,
	}
}
