package neural

import (
	"fmt"
	"math/rand"
)

// Mutation bands. A parameter gets a large perturbation with probability
// largeMutationProb, a small one with probability smallMutationProb, and is
// left alone otherwise.
const (
	largeMutationProb  = 0.1
	smallMutationProb  = 0.2
	largeMutationScale = 2.0
	smallMutationScale = 0.5

	// DefaultMutationAmount is the amount used when no explicit rate is configured.
	DefaultMutationAmount = 1.0
)

// Crossover builds an offspring with a's shape where every weight and bias is
// taken from b with probability 0.5 and from a otherwise.
func Crossover(rng *rand.Rand, a, b *Network) (*Network, error) {
	if !a.SameShape(b) {
		return nil, fmt.Errorf("%w: crossover of %v and %v", ErrTopologyMismatch, a.Topology(), b.Topology())
	}

	child := a.Clone()
	for i, l := range child.layers {
		w, bias := l.params()
		pw, pbias := b.layers[i].params()

		for k := range w {
			if rng.Float64() < 0.5 {
				w[k] = pw[k]
			}
		}
		for k := range bias {
			if rng.Float64() < 0.5 {
				bias[k] = pbias[k]
			}
		}
	}
	return child, nil
}

// MutationReport counts how many parameters fell into each mutation band.
type MutationReport struct {
	Unchanged int
	Small     int
	Large     int
}

// Total returns the number of parameters visited.
func (r MutationReport) Total() int {
	return r.Unchanged + r.Small + r.Large
}

// Mutate perturbs the network's weights and biases in place. Values are not
// clamped and may grow without bound over many generations.
func Mutate(rng *rand.Rand, n *Network, amount float64) {
	MutateCounted(rng, n, amount)
}

// MutateCounted is Mutate that also reports how parameters were affected.
func MutateCounted(rng *rand.Rand, n *Network, amount float64) MutationReport {
	var rep MutationReport
	for _, l := range n.layers {
		w, b := l.params()
		mutateSlice(rng, w, amount, &rep)
		mutateSlice(rng, b, amount, &rep)
	}
	return rep
}

func mutateSlice(rng *rand.Rand, values []float64, amount float64, rep *MutationReport) {
	for i := range values {
		u := rng.Float64()
		switch {
		case u < largeMutationProb:
			values[i] += (rng.Float64()*2 - 1) * amount * largeMutationScale
			rep.Large++
		case u < largeMutationProb+smallMutationProb:
			values[i] += (rng.Float64()*2 - 1) * amount * smallMutationScale
			rep.Small++
		default:
			rep.Unchanged++
		}
	}
}
