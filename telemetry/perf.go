package telemetry

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/autopilot/training"
)

// PhaseTelemetry covers run output written at the end of a tick.
const PhaseTelemetry = "telemetry"

// phases lists the known phases in report order.
var phases = []string{
	training.PhaseEnvironment,
	training.PhaseThink,
	training.PhaseApply,
	training.PhaseSelect,
	training.PhaseTransition,
	PhaseTelemetry,
}

// PerfCollector keeps a rolling window of tick timings split by phase. It
// satisfies training.PhaseRecorder. Phases get a slot the first time they
// are started; a slot never seen in a tick records zero for it.
type PerfCollector struct {
	window int
	ticks  []time.Duration   // ring of tick durations
	bySlot [][]time.Duration // per phase slot, same ring positions as ticks
	slots  map[string]int
	names  []string
	next   int
	filled int

	current    []time.Duration // running tick, by slot
	open       int             // slot of the running phase, -1 when none
	tickStart  time.Time
	phaseStart time.Time

	// Wall-clock time between frames of the outer loop
	lastFrame time.Time
	frame     time.Duration

	now func() time.Time
}

// NewPerfCollector creates a collector averaging over window ticks.
func NewPerfCollector(window int) *PerfCollector {
	if window < 1 {
		window = 60
	}
	return &PerfCollector{
		window: window,
		ticks:  make([]time.Duration, window),
		slots:  make(map[string]int),
		open:   -1,
		now:    time.Now,
	}
}

func (p *PerfCollector) slot(phase string) int {
	if i, ok := p.slots[phase]; ok {
		return i
	}
	i := len(p.names)
	p.slots[phase] = i
	p.names = append(p.names, phase)
	p.bySlot = append(p.bySlot, make([]time.Duration, p.window))
	p.current = append(p.current, 0)
	return i
}

// StartTick begins timing a new tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = p.now()
	clear(p.current)
	p.open = -1
}

// StartPhase ends the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := p.now()
	p.closePhase(now)
	p.open = p.slot(phase)
	p.phaseStart = now
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.open >= 0 {
		p.current[p.open] += now.Sub(p.phaseStart)
	}
}

// EndTick finishes the tick and stores it in the window.
func (p *PerfCollector) EndTick() {
	now := p.now()
	p.closePhase(now)
	p.open = -1

	p.ticks[p.next] = now.Sub(p.tickStart)
	for i, d := range p.current {
		p.bySlot[i][p.next] = d
	}
	p.next = (p.next + 1) % p.window
	if p.filled < p.window {
		p.filled++
	}
}

// RecordFrame records the wall-clock time since the previous frame.
func (p *PerfCollector) RecordFrame() {
	now := p.now()
	if !p.lastFrame.IsZero() {
		p.frame = now.Sub(p.lastFrame)
	}
	p.lastFrame = now
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	P95TickDuration time.Duration

	// Average duration and share of the average tick, by phase
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	TicksPerSecond float64

	// Outer loop frame timing
	FrameDuration time.Duration
	FPS           float64
}

// Stats aggregates the ticks currently in the window.
func (p *PerfCollector) Stats() PerfStats {
	s := PerfStats{
		PhaseAvg:      make(map[string]time.Duration, len(p.names)),
		PhasePct:      make(map[string]float64, len(p.names)),
		FrameDuration: p.frame,
	}
	if p.frame > 0 {
		s.FPS = float64(time.Second) / float64(p.frame)
	}
	if p.filled == 0 {
		return s
	}

	// Until the ring wraps, samples occupy [0, filled).
	ticks := toFloats(p.ticks[:p.filled])
	mean := stat.Mean(ticks, nil)
	s.AvgTickDuration = time.Duration(mean)
	s.MinTickDuration = time.Duration(floats.Min(ticks))
	s.MaxTickDuration = time.Duration(floats.Max(ticks))

	sort.Float64s(ticks)
	s.P95TickDuration = time.Duration(stat.Quantile(0.95, stat.Empirical, ticks, nil))
	if mean > 0 {
		s.TicksPerSecond = float64(time.Second) / mean
	}

	for i, name := range p.names {
		avg := stat.Mean(toFloats(p.bySlot[i][:p.filled]), nil)
		s.PhaseAvg[name] = time.Duration(avg)
		if mean > 0 {
			s.PhasePct[name] = avg / mean * 100
		}
	}
	return s
}

func toFloats(ds []time.Duration) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = float64(d)
	}
	return out
}

// orderedPhases returns the known phases first, then any others by name.
func (s PerfStats) orderedPhases() []string {
	out := make([]string, 0, len(s.PhasePct))
	for _, ph := range phases {
		if _, ok := s.PhasePct[ph]; ok {
			out = append(out, ph)
		}
	}
	for _, ph := range slices.Sorted(maps.Keys(s.PhasePct)) {
		if !slices.Contains(phases, ph) {
			out = append(out, ph)
		}
	}
	return out
}

func (s PerfStats) attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("p95_tick_us", s.P95TickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for _, ph := range s.orderedPhases() {
		attrs = append(attrs, slog.Float64(ph+"_pct", s.PhasePct[ph]))
	}
	return attrs
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	return slog.GroupValue(s.attrs()...)
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	slog.LogAttrs(context.Background(), slog.LevelInfo, "perf", s.attrs()...)
}

// PerfStatsCSV is one perf.csv row.
type PerfStatsCSV struct {
	Generation     int     `csv:"generation"`
	AvgTickUS      int64   `csv:"avg_tick_us"`
	MinTickUS      int64   `csv:"min_tick_us"`
	MaxTickUS      int64   `csv:"max_tick_us"`
	P95TickUS      int64   `csv:"p95_tick_us"`
	TicksPerSec    float64 `csv:"ticks_per_sec"`
	FPS            float64 `csv:"fps"`
	EnvironmentPct float64 `csv:"environment_pct"`
	ThinkPct       float64 `csv:"think_pct"`
	ApplyPct       float64 `csv:"apply_pct"`
	SelectPct      float64 `csv:"select_pct"`
	TransitionPct  float64 `csv:"transition_pct"`
	TelemetryPct   float64 `csv:"telemetry_pct"`
}

// ToCSV flattens s into a row for the generation it was taken at.
func (s PerfStats) ToCSV(generation int) PerfStatsCSV {
	return PerfStatsCSV{
		Generation:     generation,
		AvgTickUS:      s.AvgTickDuration.Microseconds(),
		MinTickUS:      s.MinTickDuration.Microseconds(),
		MaxTickUS:      s.MaxTickDuration.Microseconds(),
		P95TickUS:      s.P95TickDuration.Microseconds(),
		TicksPerSec:    s.TicksPerSecond,
		FPS:            s.FPS,
		EnvironmentPct: s.PhasePct[training.PhaseEnvironment],
		ThinkPct:       s.PhasePct[training.PhaseThink],
		ApplyPct:       s.PhasePct[training.PhaseApply],
		SelectPct:      s.PhasePct[training.PhaseSelect],
		TransitionPct:  s.PhasePct[training.PhaseTransition],
		TelemetryPct:   s.PhasePct[PhaseTelemetry],
	}
}
