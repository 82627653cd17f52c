package training

import (
	"fmt"

	"github.com/pthm-cable/autopilot/neural"
)

// Agent is one member of the population. The controller owns the network slot;
// the agent owns its physical state.
type Agent interface {
	// Viable reports whether the agent can still make progress (not crashed).
	Viable() bool
	// Fitness is the agent's current score under the controller's Objective.
	Fitness() float64
	// Sense returns the network input vector for the current state.
	Sense() []float64
	// Update advances the agent one physics step using the network outputs.
	Update(outputs []float64)
	// Reset restores the agent's initial pose and clears damage.
	Reset()

	Brain() *neural.Network
	SetBrain(n *neural.Network)
}

// Environment is the shared world the agents move through.
type Environment interface {
	// Step advances everything that is not an agent (traffic) by one physics step.
	Step()
	// Reset restores the environment to its initial layout.
	Reset()
}

// Objective says which direction of the fitness value is better.
type Objective int

const (
	// Minimize treats lower fitness as better. With the road running towards
	// negative y, the car with the smallest y has travelled furthest.
	Minimize Objective = iota
	// Maximize treats higher fitness as better.
	Maximize
)

// ParseObjective converts a config string into an Objective.
func ParseObjective(s string) (Objective, error) {
	switch s {
	case "minimize", "":
		return Minimize, nil
	case "maximize":
		return Maximize, nil
	}
	return Minimize, fmt.Errorf("unknown objective %q", s)
}

// Better reports whether a is strictly better than b.
func (o Objective) Better(a, b float64) bool {
	if o == Maximize {
		return a > b
	}
	return a < b
}

func (o Objective) String() string {
	if o == Maximize {
		return "maximize"
	}
	return "minimize"
}
