package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/pthm-cable/autopilot/neural"
)

var errNotInitialized = errors.New("store is not initialized")

// MemoryStore keeps encoded records in memory. Loads always return a fresh
// copy.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	best        []byte
	champions   map[string][]memChampion
}

type memChampion struct {
	Champion
	payload []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.best = nil
	s.champions = make(map[string][]memChampion)
	return nil
}

func (s *MemoryStore) SaveBest(_ context.Context, net *neural.Network) error {
	payload, err := EncodeNetwork(net)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.best = payload
	return nil
}

func (s *MemoryStore) LoadBest(_ context.Context) (*neural.Network, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, false, errNotInitialized
	}
	if s.best == nil {
		return nil, false, nil
	}
	net, err := DecodeNetwork(s.best)
	if err != nil {
		return nil, false, err
	}
	return net, true, nil
}

func (s *MemoryStore) DiscardBest(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.best = nil
	return nil
}

func (s *MemoryStore) RecordChampion(_ context.Context, c Champion) error {
	payload, err := EncodeNetwork(c.Network)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	c.Network = nil
	s.champions[c.RunID] = append(s.champions[c.RunID], memChampion{Champion: c, payload: payload})
	return nil
}

func (s *MemoryStore) Champions(_ context.Context, runID string) ([]Champion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, errNotInitialized
	}

	stored := s.champions[runID]
	out := make([]Champion, 0, len(stored))
	for _, mc := range stored {
		net, err := DecodeNetwork(mc.payload)
		if err != nil {
			return nil, err
		}
		c := mc.Champion
		c.Network = net
		out = append(out, c)
	}
	return out, nil
}
