package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pthm-cable/autopilot/neural"
	"github.com/pthm-cable/autopilot/training"
)

// HallEntry is a generation champion.
type HallEntry struct {
	Generation int
	Fitness    float64
	Reason     string
	Network    *neural.Network
}

// HallOfFame keeps the best generation champions seen in a run, best first.
type HallOfFame struct {
	entries   []HallEntry
	maxSize   int
	objective training.Objective
}

// NewHallOfFame creates a hall holding at most maxSize champions.
func NewHallOfFame(maxSize int, objective training.Objective) *HallOfFame {
	if maxSize < 1 {
		maxSize = 1
	}
	return &HallOfFame{
		entries:   make([]HallEntry, 0, maxSize),
		maxSize:   maxSize,
		objective: objective,
	}
}

// Consider offers a transition's champion to the hall.
// Returns true if the champion was added.
func (hof *HallOfFame) Consider(ev *training.Transition) bool {
	if hof == nil || ev == nil || ev.Best == nil {
		return false
	}
	entry := HallEntry{
		Generation: ev.Generation,
		Fitness:    ev.BestFitness,
		Reason:     ev.Reason.String(),
		Network:    ev.Best.Clone(),
	}
	var added bool
	hof.entries, added = hof.insertEntry(hof.entries, entry)
	return added
}

// insertEntry adds an entry, keeping the hall sorted best first. Ties keep
// the earlier champion ahead. If the hall is full, the worst entry is dropped.
func (hof *HallOfFame) insertEntry(hall []HallEntry, entry HallEntry) ([]HallEntry, bool) {
	idx := sort.Search(len(hall), func(i int) bool {
		return hof.objective.Better(entry.Fitness, hall[i].Fitness)
	})

	if len(hall) >= hof.maxSize && idx >= hof.maxSize {
		return hall, false
	}

	hall = append(hall, HallEntry{})
	copy(hall[idx+1:], hall[idx:])
	hall[idx] = entry

	if len(hall) > hof.maxSize {
		hall = hall[:hof.maxSize]
	}
	return hall, true
}

// Entries returns the champions, best first.
func (hof *HallOfFame) Entries() []HallEntry {
	if hof == nil {
		return nil
	}
	return hof.entries
}

// Len returns the number of champions held.
func (hof *HallOfFame) Len() int {
	if hof == nil {
		return 0
	}
	return len(hof.entries)
}

// Best returns the top champion.
func (hof *HallOfFame) Best() (HallEntry, bool) {
	if hof.Len() == 0 {
		return HallEntry{}, false
	}
	return hof.entries[0], true
}

// hallEntryJSON is the JSON-serializable representation of a hall entry.
type hallEntryJSON struct {
	Rank       int                   `json:"rank"`
	Generation int                   `json:"generation"`
	Fitness    float64               `json:"fitness"`
	Reason     string                `json:"reason"`
	Network    neural.NetworkWeights `json:"network"`
}

// MarshalJSON serializes the hall of fame to JSON.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	export := make([]hallEntryJSON, len(hof.entries))
	for i, e := range hof.entries {
		export[i] = hallEntryJSON{
			Rank:       i + 1,
			Generation: e.Generation,
			Fitness:    e.Fitness,
			Reason:     e.Reason,
			Network:    e.Network.MarshalWeights(),
		}
	}
	return json.MarshalIndent(export, "", "  ")
}

// LoadHallOfFameFromFile reads a hall of fame JSON file written by
// OutputManager.WriteHallOfFame.
func LoadHallOfFameFromFile(path string, maxSize int, objective training.Objective) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var raw []hallEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	hof := NewHallOfFame(max(maxSize, len(raw)), objective)
	for _, ej := range raw {
		net, err := neural.NetworkFromWeights(ej.Network)
		if err != nil {
			return nil, fmt.Errorf("hall of fame generation %d: %w", ej.Generation, err)
		}
		hof.entries, _ = hof.insertEntry(hof.entries, HallEntry{
			Generation: ej.Generation,
			Fitness:    ej.Fitness,
			Reason:     ej.Reason,
			Network:    net,
		})
	}
	return hof, nil
}
