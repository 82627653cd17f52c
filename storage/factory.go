package storage

import (
	"fmt"

	"github.com/pthm-cable/autopilot/config"
)

// NewStore builds an uninitialized store for the given backend.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendFile:
		return NewFileStore(path), nil
	case config.BackendSQLite:
		return NewSQLiteStore(path), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// FromConfig builds the store selected by the storage section.
func FromConfig(cfg config.StorageConfig) (Store, error) {
	return NewStore(cfg.Backend, cfg.Path)
}
