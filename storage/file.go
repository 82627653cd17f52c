package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pthm-cable/autopilot/neural"
)

// FileStore keeps the best network as a JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the network is saved to.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Init(_ context.Context) error {
	if s.path == "" {
		return errors.New("file store path is required")
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating store directory: %w", err)
		}
	}
	return nil
}

// SaveBest writes the network to a temporary file and renames it into place.
func (s *FileStore) SaveBest(_ context.Context, net *neural.Network) error {
	payload, err := EncodeNetwork(net)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("saving %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) LoadBest(_ context.Context) (*neural.Network, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", s.path, err)
	}
	net, err := DecodeNetwork(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return net, true, nil
}

func (s *FileStore) DiscardBest(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", s.path, err)
	}
	return nil
}
