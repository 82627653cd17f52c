package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pthm-cable/autopilot/neural"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the best network and a per-run champion history in a
// sqlite database.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveBest(ctx context.Context, net *neural.Network) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeNetwork(net)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO best_network (id, codec_version, payload, saved_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			codec_version = excluded.codec_version,
			payload = excluded.payload,
			saved_at = excluded.saved_at
	`, CurrentCodecVersion, payload, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) LoadBest(ctx context.Context) (*neural.Network, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM best_network WHERE id = 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	net, err := DecodeNetwork(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode best network: %w", err)
	}
	return net, true, nil
}

func (s *SQLiteStore) DiscardBest(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM best_network WHERE id = 1`)
	return err
}

func (s *SQLiteStore) RecordChampion(ctx context.Context, c Champion) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeNetwork(c.Network)
	if err != nil {
		return err
	}
	savedAt := c.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO champions (run_id, generation, fitness, payload, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			fitness = excluded.fitness,
			payload = excluded.payload,
			saved_at = excluded.saved_at
	`, c.RunID, c.Generation, c.Fitness, payload, savedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) Champions(ctx context.Context, runID string) ([]Champion, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT generation, fitness, payload, saved_at
		FROM champions WHERE run_id = ? ORDER BY generation
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Champion
	for rows.Next() {
		var (
			c       = Champion{RunID: runID}
			payload []byte
			savedAt string
		)
		if err := rows.Scan(&c.Generation, &c.Fitness, &payload, &savedAt); err != nil {
			return nil, err
		}
		if c.Network, err = DecodeNetwork(payload); err != nil {
			return nil, fmt.Errorf("decode champion %s/%d: %w", runID, c.Generation, err)
		}
		if c.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
			return nil, fmt.Errorf("champion %s/%d saved_at: %w", runID, c.Generation, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS best_network (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			saved_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS champions (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			fitness REAL NOT NULL,
			payload BLOB NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
	`)
	return err
}
