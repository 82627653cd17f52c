package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/autopilot/config"
	"github.com/pthm-cable/autopilot/neural"
)

func TestCodecRoundTrip(t *testing.T) {
	net := testNetwork(t, 3)
	data, err := EncodeNetwork(net)
	if err != nil {
		t.Fatalf("EncodeNetwork: %v", err)
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("envelope is not JSON: %v", err)
	}
	for _, key := range []string{"codec_version", "topology", "network"} {
		if _, ok := env[key]; !ok {
			t.Errorf("envelope missing %q", key)
		}
	}

	loaded, err := DecodeNetwork(data)
	if err != nil {
		t.Fatalf("DecodeNetwork: %v", err)
	}
	assertSameBehaviour(t, net, loaded)
}

func TestDecodeBareNetwork(t *testing.T) {
	net := testNetwork(t, 3)
	bare, err := json.Marshal(net)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	loaded, err := DecodeNetwork(bare)
	if err != nil {
		t.Fatalf("DecodeNetwork(bare): %v", err)
	}
	assertSameBehaviour(t, net, loaded)
}

func TestDecodeBrowserBestBrain(t *testing.T) {
	// Layout of the browser app's saved bestBrain: level sizes come from the
	// activation arrays, which are null until the level has been fed.
	data := []byte(`{"levels":[
		{"inputs":[0.5,null],"outputs":[1,0,1],"biases":[0.1,-0.2,0.3],
		 "weights":[[0.4,-0.5,0.6],[-0.7,0.8,-0.9]]},
		{"inputs":[null,null,null],"outputs":[0],"biases":[0.05],
		 "weights":[[1],[-1],[0.5]]}
	]}`)

	net, err := DecodeNetwork(data)
	if err != nil {
		t.Fatalf("DecodeNetwork: %v", err)
	}
	if !net.MatchesTopology([]int{2, 3, 1}) {
		t.Fatalf("topology = %v, want [2 3 1]", net.Topology())
	}
	nw := net.MarshalWeights()
	if got := nw.Levels[0].Weights[1][2]; got != -0.9 {
		t.Errorf("weight[1][2] = %v, want -0.9", got)
	}
	if got := nw.Levels[1].Biases[0]; got != 0.05 {
		t.Errorf("output bias = %v, want 0.05", got)
	}
	if _, err := DecodeNetwork([]byte(`{"levels":[{"inputs":[0,0],"outputs":[0],"biases":[0],"weights":[[1]]}]}`)); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("short weight rows: error = %v, want ErrCorruptRecord", err)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"not json", `{"levels":`, ErrCorruptRecord},
		{"future codec", `{"codec_version":9,"network":{"levels":[]}}`, ErrVersionMismatch},
		{"empty", `{}`, ErrCorruptRecord},
		{"ragged weights", `{"codec_version":1,"network":{"levels":[{"input_count":2,"output_count":1,"weights":[[1]],"biases":[0]}]}}`, ErrCorruptRecord},
		{"header disagrees", `{"codec_version":1,"topology":[3,1],"network":{"levels":[{"input_count":1,"output_count":1,"weights":[[1]],"biases":[0]}]}}`, ErrCorruptRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeNetwork([]byte(tt.data)); !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeNetwork error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	_, err := DecodeNetwork([]byte(`{"codec_version":1,"network":{"levels":[{"input_count":2,"output_count":1,"weights":[[1]],"biases":[0]}]}}`))
	if !errors.Is(err, neural.ErrMalformedWeights) {
		t.Errorf("shape errors should keep the neural cause, got %v", err)
	}
}

func TestLoadCompatible(t *testing.T) {
	ctx := context.Background()
	topology := []int{5, 6, 4}

	fresh := func(t *testing.T) *MemoryStore {
		s := NewMemoryStore()
		if err := s.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
		return s
	}

	t.Run("nothing saved", func(t *testing.T) {
		net, err := LoadCompatible(ctx, fresh(t), topology, config.MismatchReject)
		if err != nil || net != nil {
			t.Errorf("got %v, %v; want nil, nil", net, err)
		}
	})

	t.Run("matching", func(t *testing.T) {
		s := fresh(t)
		saved := testNetwork(t, 1, topology...)
		_ = s.SaveBest(ctx, saved)
		net, err := LoadCompatible(ctx, s, topology, config.MismatchReject)
		if err != nil || net == nil {
			t.Fatalf("got %v, %v", net, err)
		}
		assertSameBehaviour(t, saved, net)
	})

	t.Run("mismatch rejected", func(t *testing.T) {
		s := fresh(t)
		_ = s.SaveBest(ctx, testNetwork(t, 1, 5, 8, 4))
		if _, err := LoadCompatible(ctx, s, topology, config.MismatchReject); !errors.Is(err, neural.ErrTopologyMismatch) {
			t.Errorf("error = %v, want ErrTopologyMismatch", err)
		}
	})

	t.Run("mismatch fallback", func(t *testing.T) {
		s := fresh(t)
		_ = s.SaveBest(ctx, testNetwork(t, 1, 5, 8, 4))
		net, err := LoadCompatible(ctx, s, topology, config.MismatchFallback)
		if err != nil || net != nil {
			t.Errorf("got %v, %v; want nil, nil", net, err)
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "best.json")
		if err := os.WriteFile(path, []byte(`{"levels":[{"input_count":5}]}`), 0644); err != nil {
			t.Fatal(err)
		}
		fs := NewFileStore(path)
		if _, err := LoadCompatible(ctx, fs, topology, config.MismatchReject); !errors.Is(err, ErrCorruptRecord) {
			t.Errorf("reject: error = %v, want ErrCorruptRecord", err)
		}
		if net, err := LoadCompatible(ctx, fs, topology, config.MismatchFallback); err != nil || net != nil {
			t.Errorf("fallback: got %v, %v", net, err)
		}
	})
}
