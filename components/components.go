// Package components defines ECS components for the road simulation.
package components

// Kind distinguishes trained cars from scripted traffic.
type Kind uint8

const (
	KindAgent   Kind = iota // network-driven car
	KindTraffic             // always drives forward
)

func (k Kind) String() string {
	if k == KindTraffic {
		return "traffic"
	}
	return "agent"
}

// Position is a car's centre in world coordinates. The road runs towards
// negative Y.
type Position struct {
	X, Y float64
}

// Motion holds scalar speed along the heading and the heading itself.
// Angle 0 points up the road; positive angles turn left.
type Motion struct {
	Speed float64
	Angle float64
}

// Controls are the four driving intents read each physics step.
type Controls struct {
	Forward bool
	Left    bool
	Right   bool
	Reverse bool
}

// Status tracks collision state.
type Status struct {
	Kind    Kind
	Damaged bool
}

// Spawn is the pose a car returns to on reset.
type Spawn struct {
	X, Y float64
}
