package telemetry

import (
	"sync"
	"time"

	"github.com/pthm-cable/autopilot/training"
)

// recentGenerations is how many generation summaries a Board keeps.
const recentGenerations = 50

// Snapshot is the published view of a run.
type Snapshot struct {
	RunID string `json:"run_id"`
	training.Status
	UpdatedAt      time.Time        `json:"updated_at"`
	LastGeneration *GenerationStats `json:"last_generation,omitempty"`
}

// Board holds the latest published snapshot for readers on other
// goroutines. The training loop publishes between ticks.
type Board struct {
	mu          sync.RWMutex
	snap        Snapshot
	generations []GenerationStats
}

// NewBoard creates an empty board for a run.
func NewBoard(runID string) *Board {
	return &Board{snap: Snapshot{RunID: runID}}
}

// PublishStatus replaces the controller status.
func (b *Board) PublishStatus(s training.Status) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Status = s
	b.snap.UpdatedAt = time.Now()
}

// PublishGeneration records a finished generation.
func (b *Board) PublishGeneration(g GenerationStats) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generations = append(b.generations, g)
	if len(b.generations) > recentGenerations {
		b.generations = b.generations[len(b.generations)-recentGenerations:]
	}
	last := g
	b.snap.LastGeneration = &last
}

// Snapshot returns a copy of the latest status.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.snap
	if s.LastGeneration != nil {
		last := *s.LastGeneration
		s.LastGeneration = &last
	}
	return s
}

// Generations returns the most recent generation summaries, oldest first.
func (b *Board) Generations() []GenerationStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]GenerationStats, len(b.generations))
	copy(out, b.generations)
	return out
}
