package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pthm-cable/autopilot/neural"
)

// CurrentCodecVersion is written into every saved record.
const CurrentCodecVersion = 1

var (
	// ErrVersionMismatch is returned for records written by an unknown codec.
	ErrVersionMismatch = errors.New("record version mismatch")
	// ErrCorruptRecord is returned when a saved network cannot be rebuilt.
	ErrCorruptRecord = errors.New("corrupt network record")
)

// record is the persisted envelope around a network.
type record struct {
	CodecVersion int                   `json:"codec_version"`
	Topology     []int                 `json:"topology"`
	Network      neural.NetworkWeights `json:"network"`
}

// EncodeNetwork serializes net with a versioned envelope.
func EncodeNetwork(net *neural.Network) ([]byte, error) {
	if net == nil {
		return nil, errors.New("encode: nil network")
	}
	return json.Marshal(record{
		CodecVersion: CurrentCodecVersion,
		Topology:     net.Topology(),
		Network:      net.MarshalWeights(),
	})
}

// DecodeNetwork rebuilds a network from EncodeNetwork output. An
// un-enveloped {"levels": [...]} object is accepted as well, with levels
// sized either by input_count/output_count or, as the browser app saves
// its bestBrain, by the length of their inputs/outputs arrays.
func DecodeNetwork(data []byte) (*neural.Network, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}

	if rec.CodecVersion == 0 && len(rec.Network.Levels) == 0 {
		bare, err := decodeBare(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
		}
		rec.Network = bare
	} else if rec.CodecVersion != CurrentCodecVersion {
		return nil, fmt.Errorf("%w: got codec %d, want %d", ErrVersionMismatch, rec.CodecVersion, CurrentCodecVersion)
	}

	net, err := neural.NetworkFromWeights(rec.Network)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	if rec.Topology != nil && !net.MatchesTopology(rec.Topology) {
		return nil, fmt.Errorf("%w: header says %v, weights say %v", ErrCorruptRecord, rec.Topology, net.Topology())
	}
	return net, nil
}

// bareLevel is a level of an un-enveloped network. Inputs and Outputs hold
// the last activations, which may be null, and only their lengths matter.
type bareLevel struct {
	neural.LayerWeights
	Inputs  []json.RawMessage `json:"inputs"`
	Outputs []json.RawMessage `json:"outputs"`
}

func decodeBare(data []byte) (neural.NetworkWeights, error) {
	var bare struct {
		Levels []bareLevel `json:"levels"`
	}
	if err := json.Unmarshal(data, &bare); err != nil {
		return neural.NetworkWeights{}, err
	}
	nw := neural.NetworkWeights{Levels: make([]neural.LayerWeights, len(bare.Levels))}
	for i, l := range bare.Levels {
		lw := l.LayerWeights
		if lw.InputCount == 0 {
			lw.InputCount = len(l.Inputs)
		}
		if lw.OutputCount == 0 {
			lw.OutputCount = len(l.Outputs)
		}
		nw.Levels[i] = lw
	}
	return nw, nil
}
