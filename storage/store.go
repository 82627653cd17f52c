// Package storage persists the best network between runs.
package storage

import (
	"context"
	"time"

	"github.com/pthm-cable/autopilot/neural"
)

// Store keeps at most one saved best network.
type Store interface {
	Init(ctx context.Context) error
	// SaveBest replaces the saved network.
	SaveBest(ctx context.Context, net *neural.Network) error
	// LoadBest returns the saved network, or false when nothing is saved.
	LoadBest(ctx context.Context) (*neural.Network, bool, error)
	// DiscardBest removes the saved network. Discarding nothing is not an error.
	DiscardBest(ctx context.Context) error
}

// Champion is a generation winner recorded for a run.
type Champion struct {
	RunID      string
	Generation int
	Fitness    float64
	SavedAt    time.Time
	Network    *neural.Network
}

// ChampionRecorder is implemented by stores that keep a per-run history of
// generation champions.
type ChampionRecorder interface {
	RecordChampion(ctx context.Context, c Champion) error
	Champions(ctx context.Context, runID string) ([]Champion, error)
}

// RecordIfSupported records c when store keeps champion history.
func RecordIfSupported(ctx context.Context, store Store, c Champion) error {
	rec, ok := store.(ChampionRecorder)
	if !ok {
		return nil
	}
	return rec.RecordChampion(ctx, c)
}

// CloseIfSupported closes store when it holds resources.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
