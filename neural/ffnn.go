// Package neural provides the fixed-topology feedforward networks that drive vehicles,
// together with the genetic operators used to evolve them.
package neural

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidTopology is returned when a topology has fewer than two layers
	// or a non-positive neuron count.
	ErrInvalidTopology = errors.New("invalid topology")

	// ErrTopologyMismatch is returned when two networks that must share a shape do not.
	ErrTopologyMismatch = errors.New("topology mismatch")
)

// Layer is a fully connected layer with a hard threshold activation.
type Layer struct {
	weights *mat.Dense    // inputCount x outputCount
	biases  *mat.VecDense // outputCount

	// Last values seen by Forward, kept for inspection only.
	inputs  []float64
	outputs []float64

	sums mat.VecDense
}

// NewLayer creates a layer with weights and biases drawn uniformly from [-1, 1].
func NewLayer(rng *rand.Rand, inputCount, outputCount int) (*Layer, error) {
	if inputCount <= 0 || outputCount <= 0 {
		return nil, fmt.Errorf("%w: layer %dx%d", ErrInvalidTopology, inputCount, outputCount)
	}

	w := make([]float64, inputCount*outputCount)
	for i := range w {
		w[i] = rng.Float64()*2 - 1
	}
	b := make([]float64, outputCount)
	for i := range b {
		b[i] = rng.Float64()*2 - 1
	}

	return newLayer(mat.NewDense(inputCount, outputCount, w), mat.NewVecDense(outputCount, b)), nil
}

func newLayer(weights *mat.Dense, biases *mat.VecDense) *Layer {
	in, out := weights.Dims()
	return &Layer{
		weights: weights,
		biases:  biases,
		inputs:  make([]float64, in),
		outputs: make([]float64, out),
	}
}

// InputCount returns the number of inputs the layer expects.
func (l *Layer) InputCount() int {
	r, _ := l.weights.Dims()
	return r
}

// OutputCount returns the number of outputs the layer produces.
func (l *Layer) OutputCount() int {
	_, c := l.weights.Dims()
	return c
}

// Weight returns the weight connecting input j to output i.
func (l *Layer) Weight(j, i int) float64 { return l.weights.At(j, i) }

// SetWeight sets the weight connecting input j to output i.
func (l *Layer) SetWeight(j, i int, v float64) { l.weights.Set(j, i, v) }

// Bias returns the threshold of output i.
func (l *Layer) Bias(i int) float64 { return l.biases.AtVec(i) }

// SetBias sets the threshold of output i.
func (l *Layer) SetBias(i int, v float64) { l.biases.SetVec(i, v) }

// LastInputs returns the inputs of the most recent Forward call.
func (l *Layer) LastInputs() []float64 { return l.inputs }

// LastOutputs returns the outputs of the most recent Forward call.
func (l *Layer) LastOutputs() []float64 { return l.outputs }

// Forward computes the layer output. Output i is 1 when the weighted input sum
// exceeds bias i, otherwise 0. Panics if len(inputs) != InputCount().
func (l *Layer) Forward(inputs []float64) []float64 {
	in, out := l.weights.Dims()
	if len(inputs) != in {
		panic(fmt.Sprintf("neural: layer expects %d inputs, got %d", in, len(inputs)))
	}

	copy(l.inputs, inputs)
	// sums = W^T * x, one entry per output unit
	l.sums.MulVec(l.weights.T(), mat.NewVecDense(in, l.inputs))

	result := make([]float64, out)
	for i := 0; i < out; i++ {
		if l.sums.AtVec(i) > l.biases.AtVec(i) {
			result[i] = 1
		}
	}
	copy(l.outputs, result)
	return result
}

// Clone creates a deep copy of the layer.
func (l *Layer) Clone() *Layer {
	return newLayer(mat.DenseCopyOf(l.weights), mat.VecDenseCopyOf(l.biases))
}

// params returns the backing storage of weights and biases.
// Both are compact: every Dense and VecDense in this package is created with
// stride == cols and inc == 1.
func (l *Layer) params() (weights, biases []float64) {
	return l.weights.RawMatrix().Data, l.biases.RawVector().Data
}

func (l *Layer) sameShape(o *Layer) bool {
	return l.InputCount() == o.InputCount() && l.OutputCount() == o.OutputCount()
}

// Network is an ordered stack of layers.
type Network struct {
	layers []*Layer
}

// ValidateTopology checks that a topology describes at least one layer with
// positive neuron counts.
func ValidateTopology(topology []int) error {
	if len(topology) < 2 {
		return fmt.Errorf("%w: need at least 2 entries, got %v", ErrInvalidTopology, topology)
	}
	for i, n := range topology {
		if n <= 0 {
			return fmt.Errorf("%w: entry %d is %d", ErrInvalidTopology, i, n)
		}
	}
	return nil
}

// NewNetwork builds a randomly initialized network from a list of neuron counts,
// e.g. [5, 6, 4] for five inputs, six hidden units and four outputs.
func NewNetwork(rng *rand.Rand, topology []int) (*Network, error) {
	if err := ValidateTopology(topology); err != nil {
		return nil, err
	}
	layers := make([]*Layer, len(topology)-1)
	for i := range layers {
		l, err := NewLayer(rng, topology[i], topology[i+1])
		if err != nil {
			return nil, err
		}
		layers[i] = l
	}
	return &Network{layers: layers}, nil
}

// Forward feeds inputs through every layer in order.
func (n *Network) Forward(inputs []float64) []float64 {
	out := n.layers[0].Forward(inputs)
	for _, l := range n.layers[1:] {
		out = l.Forward(out)
	}
	return out
}

// Layers returns the network's layers, input side first.
func (n *Network) Layers() []*Layer { return n.layers }

// InputCount returns the length of the input vector the network expects.
func (n *Network) InputCount() int { return n.layers[0].InputCount() }

// OutputCount returns the length of the output vector.
func (n *Network) OutputCount() int { return n.layers[len(n.layers)-1].OutputCount() }

// Topology returns the neuron counts describing the network's shape.
func (n *Network) Topology() []int {
	t := make([]int, 0, len(n.layers)+1)
	t = append(t, n.layers[0].InputCount())
	for _, l := range n.layers {
		t = append(t, l.OutputCount())
	}
	return t
}

// SameShape reports whether two networks have identical layer shapes.
func (n *Network) SameShape(o *Network) bool {
	if len(n.layers) != len(o.layers) {
		return false
	}
	for i, l := range n.layers {
		if !l.sameShape(o.layers[i]) {
			return false
		}
	}
	return true
}

// MatchesTopology reports whether the network was built from the given topology.
func (n *Network) MatchesTopology(topology []int) bool {
	t := n.Topology()
	if len(t) != len(topology) {
		return false
	}
	for i := range t {
		if t[i] != topology[i] {
			return false
		}
	}
	return true
}

// ParamCount returns the total number of weights and biases.
func (n *Network) ParamCount() int {
	var total int
	for _, l := range n.layers {
		total += (l.InputCount() + 1) * l.OutputCount()
	}
	return total
}

// Clone creates a deep copy of the network.
func (n *Network) Clone() *Network {
	layers := make([]*Layer, len(n.layers))
	for i, l := range n.layers {
		layers[i] = l.Clone()
	}
	return &Network{layers: layers}
}

// Validate checks the layer chain and that every parameter is finite.
func (n *Network) Validate() error {
	if len(n.layers) == 0 {
		return fmt.Errorf("%w: network has no layers", ErrInvalidTopology)
	}
	for i, l := range n.layers {
		if i > 0 && n.layers[i-1].OutputCount() != l.InputCount() {
			return fmt.Errorf("%w: layer %d expects %d inputs, previous layer has %d outputs",
				ErrInvalidTopology, i, l.InputCount(), n.layers[i-1].OutputCount())
		}
		w, b := l.params()
		for _, v := range w {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("layer %d: non-finite weight", i)
			}
		}
		for _, v := range b {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("layer %d: non-finite bias", i)
			}
		}
	}
	return nil
}
