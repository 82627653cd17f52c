package neural

import (
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrMalformedWeights is returned when serialized weights do not describe a valid network.
var ErrMalformedWeights = errors.New("malformed network weights")

// LayerWeights is the serialized form of a layer.
type LayerWeights struct {
	InputCount  int         `json:"input_count"`
	OutputCount int         `json:"output_count"`
	Weights     [][]float64 `json:"weights"` // [input][output]
	Biases      []float64   `json:"biases"`
}

// NetworkWeights is the serialized form of a network.
type NetworkWeights struct {
	Levels []LayerWeights `json:"levels"`
}

// Topology returns the neuron counts described by the weights, without validating them.
func (nw NetworkWeights) Topology() []int {
	if len(nw.Levels) == 0 {
		return nil
	}
	t := []int{nw.Levels[0].InputCount}
	for _, l := range nw.Levels {
		t = append(t, l.OutputCount)
	}
	return t
}

// MarshalWeights copies the network parameters into their serialized form.
func (n *Network) MarshalWeights() NetworkWeights {
	nw := NetworkWeights{Levels: make([]LayerWeights, len(n.layers))}
	for li, l := range n.layers {
		in, out := l.InputCount(), l.OutputCount()
		lw := LayerWeights{
			InputCount:  in,
			OutputCount: out,
			Weights:     make([][]float64, in),
			Biases:      make([]float64, out),
		}
		for j := 0; j < in; j++ {
			lw.Weights[j] = make([]float64, out)
			for i := 0; i < out; i++ {
				lw.Weights[j][i] = l.Weight(j, i)
			}
		}
		for i := 0; i < out; i++ {
			lw.Biases[i] = l.Bias(i)
		}
		nw.Levels[li] = lw
	}
	return nw
}

// NetworkFromWeights rebuilds a network, rejecting any shape inconsistency.
func NetworkFromWeights(nw NetworkWeights) (*Network, error) {
	if len(nw.Levels) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrMalformedWeights)
	}

	layers := make([]*Layer, len(nw.Levels))
	for li, lw := range nw.Levels {
		if lw.InputCount <= 0 || lw.OutputCount <= 0 {
			return nil, fmt.Errorf("%w: level %d is %dx%d", ErrMalformedWeights, li, lw.InputCount, lw.OutputCount)
		}
		if li > 0 && nw.Levels[li-1].OutputCount != lw.InputCount {
			return nil, fmt.Errorf("%w: level %d expects %d inputs, previous level has %d outputs",
				ErrMalformedWeights, li, lw.InputCount, nw.Levels[li-1].OutputCount)
		}
		if len(lw.Weights) != lw.InputCount || len(lw.Biases) != lw.OutputCount {
			return nil, fmt.Errorf("%w: level %d has %d weight rows and %d biases",
				ErrMalformedWeights, li, len(lw.Weights), len(lw.Biases))
		}

		data := make([]float64, 0, lw.InputCount*lw.OutputCount)
		for j, row := range lw.Weights {
			if len(row) != lw.OutputCount {
				return nil, fmt.Errorf("%w: level %d row %d has %d weights", ErrMalformedWeights, li, j, len(row))
			}
			data = append(data, row...)
		}
		biases := make([]float64, lw.OutputCount)
		copy(biases, lw.Biases)

		layers[li] = newLayer(
			mat.NewDense(lw.InputCount, lw.OutputCount, data),
			mat.NewVecDense(lw.OutputCount, biases),
		)
	}

	n := &Network{layers: layers}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWeights, err)
	}
	return n, nil
}

// MarshalJSON encodes the network as its NetworkWeights.
func (n *Network) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.MarshalWeights())
}

// UnmarshalJSON decodes a network previously encoded with MarshalJSON.
func (n *Network) UnmarshalJSON(data []byte) error {
	var nw NetworkWeights
	if err := json.Unmarshal(data, &nw); err != nil {
		return err
	}
	decoded, err := NetworkFromWeights(nw)
	if err != nil {
		return err
	}
	*n = *decoded
	return nil
}
