package storage

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/pthm-cable/autopilot/neural"
)

func testNetwork(t *testing.T, seed int64, topology ...int) *neural.Network {
	t.Helper()
	if len(topology) == 0 {
		topology = []int{5, 6, 4}
	}
	nn, err := neural.NewNetwork(rand.New(rand.NewSource(seed)), topology)
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}
	return nn
}

func assertSameBehaviour(t *testing.T, want, got *neural.Network) {
	t.Helper()
	if !got.SameShape(want) {
		t.Fatalf("topology %v, want %v", got.Topology(), want.Topology())
	}
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 100; trial++ {
		in := make([]float64, want.InputCount())
		for i := range in {
			in[i] = rng.Float64()
		}
		w, g := want.Forward(in), got.Forward(in)
		for i := range w {
			if w[i] != g[i] {
				t.Fatalf("loaded network differs on %v: %v vs %v", in, g, w)
			}
		}
	}
}

func backends(t *testing.T) map[string]Store {
	dir := t.TempDir()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(dir, "nested", "best.json")),
		"sqlite": NewSQLiteStore(filepath.Join(dir, "best.db")),
	}
}

func TestStoreSaveLoadDiscard(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Init(ctx); err != nil {
				t.Fatalf("Init: %v", err)
			}
			t.Cleanup(func() { _ = CloseIfSupported(store) })

			if _, ok, err := store.LoadBest(ctx); err != nil || ok {
				t.Fatalf("empty store: ok=%t err=%v", ok, err)
			}

			first := testNetwork(t, 1)
			if err := store.SaveBest(ctx, first); err != nil {
				t.Fatalf("SaveBest: %v", err)
			}
			second := testNetwork(t, 2)
			if err := store.SaveBest(ctx, second); err != nil {
				t.Fatalf("second SaveBest: %v", err)
			}

			loaded, ok, err := store.LoadBest(ctx)
			if err != nil || !ok {
				t.Fatalf("LoadBest: ok=%t err=%v", ok, err)
			}
			assertSameBehaviour(t, second, loaded)

			// The loaded copy is independent of the store.
			loaded.Layers()[0].SetBias(0, 99)
			again, _, _ := store.LoadBest(ctx)
			if again.Layers()[0].Bias(0) == 99 {
				t.Error("LoadBest returned shared storage")
			}

			if err := store.DiscardBest(ctx); err != nil {
				t.Fatalf("DiscardBest: %v", err)
			}
			if _, ok, err := store.LoadBest(ctx); err != nil || ok {
				t.Fatalf("after discard: ok=%t err=%v", ok, err)
			}
			if err := store.DiscardBest(ctx); err != nil {
				t.Errorf("discarding an empty store: %v", err)
			}
		})
	}
}

func TestStoresRequireInit(t *testing.T) {
	ctx := context.Background()
	net := testNetwork(t, 1)

	for _, store := range []Store{NewMemoryStore(), NewSQLiteStore(filepath.Join(t.TempDir(), "x.db"))} {
		if err := store.SaveBest(ctx, net); err == nil {
			t.Errorf("%T: SaveBest before Init should fail", store)
		}
	}
	if err := NewFileStore("").Init(ctx); err == nil {
		t.Error("file store without a path should fail Init")
	}
	if err := NewSQLiteStore("").Init(ctx); err == nil {
		t.Error("sqlite store without a path should fail Init")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	net := testNetwork(t, 7)

	reopen := map[string]func() Store{
		"file":   func() Store { return NewFileStore(filepath.Join(dir, "best.json")) },
		"sqlite": func() Store { return NewSQLiteStore(filepath.Join(dir, "best.db")) },
	}

	for name, open := range reopen {
		t.Run(name, func(t *testing.T) {
			first := open()
			if err := first.Init(ctx); err != nil {
				t.Fatalf("first init: %v", err)
			}
			if err := first.SaveBest(ctx, net); err != nil {
				t.Fatalf("first save: %v", err)
			}
			if err := CloseIfSupported(first); err != nil {
				t.Fatalf("first close: %v", err)
			}

			second := open()
			if err := second.Init(ctx); err != nil {
				t.Fatalf("second init: %v", err)
			}
			t.Cleanup(func() { _ = CloseIfSupported(second) })

			loaded, ok, err := second.LoadBest(ctx)
			if err != nil || !ok {
				t.Fatalf("second load: ok=%t err=%v", ok, err)
			}
			assertSameBehaviour(t, net, loaded)
		})
	}
}

func TestChampionHistory(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(filepath.Join(t.TempDir(), "history.db")),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			if err := store.Init(ctx); err != nil {
				t.Fatalf("Init: %v", err)
			}
			t.Cleanup(func() { _ = CloseIfSupported(store) })

			savedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			for gen := 1; gen <= 3; gen++ {
				c := Champion{
					RunID:      "run-a",
					Generation: gen,
					Fitness:    -100 * float64(gen),
					SavedAt:    savedAt,
					Network:    testNetwork(t, int64(gen)),
				}
				if err := RecordIfSupported(ctx, store, c); err != nil {
					t.Fatalf("record gen %d: %v", gen, err)
				}
			}
			other := Champion{RunID: "run-b", Generation: 1, Network: testNetwork(t, 9)}
			if err := RecordIfSupported(ctx, store, other); err != nil {
				t.Fatalf("record other run: %v", err)
			}

			got, err := store.(ChampionRecorder).Champions(ctx, "run-a")
			if err != nil {
				t.Fatalf("Champions: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("got %d champions, want 3", len(got))
			}
			for i, c := range got {
				if c.Generation != i+1 || c.Fitness != -100*float64(i+1) || !c.SavedAt.Equal(savedAt) {
					t.Errorf("champion %d = gen %d fitness %.0f at %v", i, c.Generation, c.Fitness, c.SavedAt)
				}
				assertSameBehaviour(t, testNetwork(t, int64(i+1)), c.Network)
			}
		})
	}

	// Stores without history accept and ignore records.
	fs := NewFileStore(filepath.Join(t.TempDir(), "best.json"))
	if err := RecordIfSupported(ctx, fs, Champion{Network: testNetwork(t, 1)}); err != nil {
		t.Errorf("file store record: %v", err)
	}
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		kind    string
		want    string
		wantErr bool
	}{
		{"", "*storage.MemoryStore", false},
		{"memory", "*storage.MemoryStore", false},
		{"file", "*storage.FileStore", false},
		{"sqlite", "*storage.SQLiteStore", false},
		{"postgres", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			s, err := NewStore(tt.kind, "x")
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStore(%q) error = %v", tt.kind, err)
			}
			if err == nil {
				if got := typeName(s); got != tt.want {
					t.Errorf("NewStore(%q) = %s, want %s", tt.kind, got, tt.want)
				}
			}
		})
	}
}

func typeName(s Store) string {
	switch s.(type) {
	case *MemoryStore:
		return "*storage.MemoryStore"
	case *FileStore:
		return "*storage.FileStore"
	case *SQLiteStore:
		return "*storage.SQLiteStore"
	}
	return "unknown"
}
