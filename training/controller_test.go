package training

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/pthm-cable/autopilot/neural"
)

var testTopology = []int{3, 4, 2}

// fakeAgent moves its fitness by drift on every Update.
type fakeAgent struct {
	start   float64
	fit     float64
	drift   float64
	dead    bool
	inputs  []float64
	brain   *neural.Network
	updates int
	resets  int
	lastOut []float64
}

func newFake(fit, drift float64) *fakeAgent {
	return &fakeAgent{start: fit, fit: fit, drift: drift, inputs: []float64{0.5, -0.25, 1}}
}

func (a *fakeAgent) Viable() bool               { return !a.dead }
func (a *fakeAgent) Fitness() float64           { return a.fit }
func (a *fakeAgent) Sense() []float64           { return a.inputs }
func (a *fakeAgent) Brain() *neural.Network     { return a.brain }
func (a *fakeAgent) SetBrain(n *neural.Network) { a.brain = n }

func (a *fakeAgent) Update(out []float64) {
	a.updates++
	a.fit += a.drift
	a.lastOut = out
}

func (a *fakeAgent) Reset() {
	a.resets++
	a.fit = a.start
}

type fakeEnv struct{ steps, resets int }

func (e *fakeEnv) Step()  { e.steps++ }
func (e *fakeEnv) Reset() { e.resets++ }

func asAgents(fakes []*fakeAgent) []Agent {
	out := make([]Agent, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}

func newController(t *testing.T, opts Options, fakes []*fakeAgent, env Environment) *Controller {
	t.Helper()
	c, err := New(opts, asAgents(fakes), env, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestNewAssignsNetworks(t *testing.T) {
	fakes := []*fakeAgent{newFake(0, 0), newFake(0, 0)}
	newController(t, DefaultOptions(testTopology), fakes, nil)

	for i, f := range fakes {
		if f.brain == nil || !f.brain.MatchesTopology(testTopology) {
			t.Errorf("agent %d has no network of topology %v", i, testTopology)
		}
	}
	if fakes[0].brain == fakes[1].brain {
		t.Error("agents share a network")
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	wrong, _ := neural.NewNetwork(rng, []int{3, 5, 2})

	tests := []struct {
		name    string
		opts    func() Options
		agents  func() []Agent
		wantErr error
	}{
		{
			name:    "empty population",
			opts:    func() Options { return DefaultOptions(testTopology) },
			agents:  func() []Agent { return nil },
			wantErr: ErrNoAgents,
		},
		{
			name: "mismatched network",
			opts: func() Options { return DefaultOptions(testTopology) },
			agents: func() []Agent {
				a := newFake(0, 0)
				a.brain = wrong
				return []Agent{a}
			},
			wantErr: neural.ErrTopologyMismatch,
		},
		{
			name:    "bad topology",
			opts:    func() Options { return DefaultOptions([]int{3}) },
			agents:  func() []Agent { return []Agent{newFake(0, 0)} },
			wantErr: neural.ErrInvalidTopology,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts(), tt.agents(), nil, rng)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	opts := DefaultOptions(testTopology)
	opts.Speed = 0
	if _, err := New(opts, []Agent{newFake(0, 0)}, nil, rng); err == nil {
		t.Error("speed 0 should be rejected")
	}
}

func TestExtinctionOnFirstTick(t *testing.T) {
	fakes := []*fakeAgent{newFake(5, 0), newFake(3, 0), newFake(-2, 0), newFake(1, 0)}
	for _, f := range fakes {
		f.dead = true
	}
	env := &fakeEnv{}
	c := newController(t, DefaultOptions(testTopology), fakes, env)

	prior := make([]*neural.Network, len(fakes))
	for i, f := range fakes {
		prior[i] = f.brain
	}

	ev := c.Tick(16 * time.Millisecond)
	if ev == nil {
		t.Fatal("expected a transition on the first tick")
	}
	if ev.Reason != ReasonExtinction {
		t.Errorf("reason = %v, want extinction", ev.Reason)
	}
	if ev.Generation != 1 || c.Generation() != 2 {
		t.Errorf("ended generation %d, now %d; want 1 then 2", ev.Generation, c.Generation())
	}
	if ev.BestIndex != 2 || ev.BestFitness != -2 {
		t.Errorf("best = %d (%.1f), want agent 2 (-2)", ev.BestIndex, ev.BestFitness)
	}

	if fakes[0].brain != prior[2] {
		t.Error("agent 0 does not hold the prior best network unchanged")
	}
	for i := 1; i < len(fakes); i++ {
		if fakes[i].brain == prior[2] {
			t.Errorf("agent %d aliases the best network", i)
		}
		if !fakes[i].brain.SameShape(prior[2]) {
			t.Errorf("agent %d has topology %v", i, fakes[i].brain.Topology())
		}
	}
	for i, f := range fakes {
		if f.resets != 1 {
			t.Errorf("agent %d reset %d times, want 1", i, f.resets)
		}
	}
	if env.resets != 1 {
		t.Errorf("environment reset %d times, want 1", env.resets)
	}
	if c.CurrentBest() != prior[2] {
		t.Error("CurrentBest should point at the saved best after the boundary")
	}
	if s := c.Status(); s.BestDistance != 0 || s.BestEver != -2 {
		t.Errorf("status best distance %.1f, best ever %.1f; want 0 and -2", s.BestDistance, s.BestEver)
	}
}

func TestTimeoutEndsGeneration(t *testing.T) {
	// Steady improvement keeps stagnation from firing.
	fakes := []*fakeAgent{newFake(0, -1), newFake(0, -0.5)}
	c := newController(t, DefaultOptions(testTopology), fakes, nil)

	// The generation starts on tick 1 at t=1s; timeout needs > 20s elapsed.
	for tick := 1; tick <= 21; tick++ {
		if ev := c.Tick(time.Second); ev != nil {
			t.Fatalf("tick %d: unexpected %v transition", tick, ev.Reason)
		}
	}
	ev := c.Tick(time.Second)
	if ev == nil || ev.Reason != ReasonTimeout {
		t.Fatalf("tick 22: got %+v, want timeout", ev)
	}
	if ev.Elapsed != 21*time.Second {
		t.Errorf("elapsed = %v, want 21s", ev.Elapsed)
	}
	if ev.BestIndex != 0 {
		t.Errorf("best index = %d, want 0", ev.BestIndex)
	}
}

func TestStagnationEndsGeneration(t *testing.T) {
	fakes := []*fakeAgent{newFake(-10, 0), newFake(-5, 0)}
	c := newController(t, DefaultOptions(testTopology), fakes, nil)

	dt := 100 * time.Millisecond
	var ev *Transition
	ticks := 0
	for ev == nil && ticks < 1000 {
		ticks++
		ev = c.Tick(dt)

		if ticks == 30 && !c.Status().MakingProgress {
			t.Error("2.9s without progress should still count as making progress")
		}
		if ticks == 31 && c.Status().MakingProgress {
			t.Error("3.0s without progress should no longer count as making progress")
		}
	}
	if ev == nil || ev.Reason != ReasonStagnation {
		t.Fatalf("got %+v, want stagnation", ev)
	}
	if ticks != 52 || ev.Elapsed != 5100*time.Millisecond {
		t.Errorf("stagnation after %d ticks (%v), want 52 ticks (5.1s)", ticks, ev.Elapsed)
	}
}

func TestPausedTimeIsNotCounted(t *testing.T) {
	fakes := []*fakeAgent{newFake(-10, 0)}
	env := &fakeEnv{}
	c := newController(t, DefaultOptions(testTopology), fakes, env)

	c.Tick(time.Second)
	c.Pause()
	if !c.Paused() {
		t.Fatal("Paused() = false after Pause")
	}
	for i := 0; i < 100; i++ {
		if ev := c.Tick(time.Second); ev != nil {
			t.Fatalf("transition while paused: %v", ev.Reason)
		}
	}
	if fakes[0].updates != 1 || env.steps != 1 {
		t.Errorf("paused ticks advanced the simulation: %d updates, %d env steps", fakes[0].updates, env.steps)
	}
	if s := c.Status(); s.Elapsed != 0 || !s.Paused {
		t.Errorf("status while paused = %+v", s)
	}

	c.Resume()
	for tick := 1; tick <= 5; tick++ {
		if ev := c.Tick(time.Second); ev != nil {
			t.Fatalf("tick %d after resume: unexpected %v", tick, ev.Reason)
		}
	}
	if ev := c.Tick(time.Second); ev == nil || ev.Reason != ReasonStagnation {
		t.Fatalf("6s after the last progress: got %+v, want stagnation", ev)
	}
}

func TestSpeedRunsSubSteps(t *testing.T) {
	fakes := []*fakeAgent{newFake(0, -1)}
	env := &fakeEnv{}
	opts := DefaultOptions(testTopology)
	opts.Speed = 3
	c := newController(t, opts, fakes, env)

	c.Tick(16 * time.Millisecond)
	if fakes[0].updates != 3 || env.steps != 3 {
		t.Errorf("speed 3: %d updates, %d env steps, want 3 each", fakes[0].updates, env.steps)
	}

	if err := c.SetSpeed(0); err == nil {
		t.Error("SetSpeed(0) should fail")
	}
	if err := c.SetSpeed(5); err != nil || c.Speed() != 5 {
		t.Errorf("SetSpeed(5): %v, speed %d", err, c.Speed())
	}
	c.Tick(16 * time.Millisecond)
	if fakes[0].updates != 8 {
		t.Errorf("updates = %d, want 8", fakes[0].updates)
	}
}

func TestBestIsFirstUnderObjective(t *testing.T) {
	tests := []struct {
		name      string
		objective Objective
		fitness   []float64
		want      int
	}{
		{"minimize", Minimize, []float64{4, -3, 2, -3}, 1},
		{"maximize", Maximize, []float64{4, -3, 9, 9}, 2},
		{"all equal", Minimize, []float64{1, 1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakes := make([]*fakeAgent, len(tt.fitness))
			for i, f := range tt.fitness {
				fakes[i] = newFake(f, 0)
			}
			opts := DefaultOptions(testTopology)
			opts.Objective = tt.objective
			c := newController(t, opts, fakes, nil)

			c.Tick(time.Millisecond)
			if got := c.Status().BestIndex; got != tt.want {
				t.Errorf("best index = %d, want %d", got, tt.want)
			}
			if c.CurrentBest() != fakes[tt.want].brain {
				t.Error("CurrentBest is not the leader's network")
			}
		})
	}
}

func TestBestDistanceResetsEachGeneration(t *testing.T) {
	fakes := []*fakeAgent{newFake(-50, 0), newFake(-20, 0)}
	c := newController(t, DefaultOptions(testTopology), fakes, nil)

	c.Tick(time.Millisecond)
	if s := c.Status(); s.BestDistance != -50 || s.BestEver != -50 {
		t.Fatalf("after first tick: %+v", s)
	}

	for _, f := range fakes {
		f.dead = true
	}
	if ev := c.Tick(time.Millisecond); ev == nil {
		t.Fatal("expected extinction")
	}
	for _, f := range fakes {
		f.dead = false
		f.start, f.fit = -10, -10
	}

	c.Tick(time.Millisecond)
	s := c.Status()
	if s.BestDistance != -10 {
		t.Errorf("best distance = %.1f, want -10 (reset at the boundary)", s.BestDistance)
	}
	if s.BestEver != -50 {
		t.Errorf("best ever = %.1f, want -50", s.BestEver)
	}
	if s.Generation != 2 {
		t.Errorf("generation = %d, want 2", s.Generation)
	}
}

func TestSeedInstallsNetwork(t *testing.T) {
	fakes := []*fakeAgent{newFake(0, 0), newFake(0, 0), newFake(0, 0)}
	c := newController(t, DefaultOptions(testTopology), fakes, nil)

	seed, _ := neural.NewNetwork(rand.New(rand.NewSource(7)), testTopology)
	if err := c.Seed(seed); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if fakes[0].brain == seed {
		t.Error("agent 0 should hold a copy, not the caller's network")
	}

	for trial := 0; trial < 50; trial++ {
		in := []float64{float64(trial%5) - 2, 0.3, -0.7}
		want := seed.Forward(in)
		got := fakes[0].brain.Forward(in)
		for i := range want {
			if want[i] != got[i] {
				t.Fatalf("agent 0 differs from the seed on %v", in)
			}
		}
	}

	wrong, _ := neural.NewNetwork(rand.New(rand.NewSource(7)), []int{3, 2})
	if err := c.Seed(wrong); !errors.Is(err, neural.ErrTopologyMismatch) {
		t.Errorf("Seed(wrong) error = %v, want ErrTopologyMismatch", err)
	}
}

func TestParallelThinkMatchesSequential(t *testing.T) {
	run := func(workers int) [][]float64 {
		rng := rand.New(rand.NewSource(3))
		fakes := make([]*fakeAgent, 200)
		for i := range fakes {
			fakes[i] = newFake(float64(-i), -1)
			fakes[i].inputs = []float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()*2 - 1}
		}
		opts := DefaultOptions(testTopology)
		opts.Workers = workers
		opts.ParallelThreshold = 64
		c := newController(t, opts, fakes, nil)
		c.Tick(time.Millisecond)
		c.Tick(time.Millisecond)

		out := make([][]float64, len(fakes))
		for i, f := range fakes {
			out[i] = f.lastOut
		}
		return out
	}

	seq := run(1)
	par := run(4)
	for i := range seq {
		if len(seq[i]) != 2 || len(par[i]) != 2 {
			t.Fatalf("agent %d: output lengths %d / %d", i, len(seq[i]), len(par[i]))
		}
		for k := range seq[i] {
			if seq[i][k] != par[i][k] {
				t.Fatalf("agent %d output %d differs: %v vs %v", i, k, seq[i], par[i])
			}
		}
	}
}

type recorder struct{ ticks, phases int }

func (r *recorder) StartTick()        { r.ticks++ }
func (r *recorder) StartPhase(string) { r.phases++ }
func (r *recorder) EndTick()          {}

func TestPhaseRecorder(t *testing.T) {
	rec := &recorder{}
	opts := DefaultOptions(testTopology)
	opts.Perf = rec
	c := newController(t, opts, []*fakeAgent{newFake(-1, -1)}, nil)

	c.Tick(time.Millisecond)
	c.Pause()
	c.Tick(time.Millisecond)

	if rec.ticks != 1 {
		t.Errorf("recorded %d ticks, want 1", rec.ticks)
	}
	if rec.phases != 4 {
		t.Errorf("recorded %d phases, want 4", rec.phases)
	}
}

func TestParseObjective(t *testing.T) {
	if o, err := ParseObjective("maximize"); err != nil || o != Maximize {
		t.Errorf("maximize: %v %v", o, err)
	}
	if o, err := ParseObjective(""); err != nil || o != Minimize {
		t.Errorf("empty: %v %v", o, err)
	}
	if _, err := ParseObjective("sideways"); err == nil {
		t.Error("unknown objective accepted")
	}
}
