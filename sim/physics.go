package sim

import (
	"math"

	"github.com/pthm-cable/autopilot/components"
)

// drive advances one car by one physics step.
func drive(pos *components.Position, m *components.Motion, ctl components.Controls, d components.Drive) {
	if ctl.Forward {
		m.Speed += d.Acceleration
	}
	if ctl.Reverse {
		m.Speed -= d.Acceleration
	}

	if m.Speed > d.MaxSpeed {
		m.Speed = d.MaxSpeed
	}
	if m.Speed < -d.MaxSpeed/2 {
		m.Speed = -d.MaxSpeed / 2
	}

	if m.Speed > 0 {
		m.Speed -= d.Friction
	}
	if m.Speed < 0 {
		m.Speed += d.Friction
	}
	if math.Abs(m.Speed) < d.Friction {
		m.Speed = 0
	}

	// Steering only turns a moving car, and flips when reversing.
	if m.Speed != 0 {
		flip := 1.0
		if m.Speed < 0 {
			flip = -1
		}
		if ctl.Left {
			m.Angle += d.Steering * flip
		}
		if ctl.Right {
			m.Angle -= d.Steering * flip
		}
	}

	pos.X -= math.Sin(m.Angle) * m.Speed
	pos.Y -= math.Cos(m.Angle) * m.Speed
}

// controlsFrom maps network outputs onto driving intents: forward, left,
// right, reverse. Missing outputs read as released.
func controlsFrom(outputs []float64) components.Controls {
	on := func(i int) bool { return i < len(outputs) && outputs[i] > 0 }
	return components.Controls{
		Forward: on(0),
		Left:    on(1),
		Right:   on(2),
		Reverse: on(3),
	}
}
