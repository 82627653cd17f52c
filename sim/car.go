package sim

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/autopilot/components"
	"github.com/pthm-cable/autopilot/neural"
)

// Car is a network-driven car. Its physical state lives in the ECS world;
// the Car keeps its network and per-car scratch buffers so that Sense can run
// on several cars concurrently.
type Car struct {
	w      *World
	entity ecs.Entity
	index  int
	brain  *neural.Network

	readings []float64
	rays     []Segment
	poly     []r2.Vec
}

func newCar(w *World, e ecs.Entity, index int) *Car {
	c := &Car{
		w:        w,
		entity:   e,
		index:    index,
		readings: make([]float64, w.sensor.RayCount),
		rays:     make([]Segment, 0, w.sensor.RayCount),
		poly:     make([]r2.Vec, 0, 4),
	}
	c.refreshPolygon()
	return c
}

// Index returns the car's position in the population.
func (c *Car) Index() int { return c.index }

func (c *Car) Brain() *neural.Network     { return c.brain }
func (c *Car) SetBrain(n *neural.Network) { c.brain = n }

// Viable reports whether the car is undamaged.
func (c *Car) Viable() bool {
	return !c.w.statusMap.Get(c.entity).Damaged
}

// Fitness is the car's y coordinate; lower is further along the road.
func (c *Car) Fitness() float64 {
	return c.w.posMap.Get(c.entity).Y
}

// Sense casts the sensor rays against the road borders and the traffic. The
// returned slice is reused by the next call.
func (c *Car) Sense() []float64 {
	pos := c.w.posMap.Get(c.entity)
	angle := c.w.motionMap.Get(c.entity).Angle
	c.rays = c.w.sensor.Rays(c.rays, r2.Vec{X: pos.X, Y: pos.Y}, angle)
	c.w.sensor.Read(c.readings, c.rays, c.w.road.Borders, c.w.trafficPolys)
	return c.readings
}

// Update applies the network outputs as controls and moves the car one step.
// A damaged car no longer moves.
func (c *Car) Update(outputs []float64) {
	status := c.w.statusMap.Get(c.entity)
	if status.Damaged {
		return
	}
	ctl := c.w.ctrlMap.Get(c.entity)
	*ctl = controlsFrom(outputs)

	pos := c.w.posMap.Get(c.entity)
	motion := c.w.motionMap.Get(c.entity)
	drive(pos, motion, *ctl, *c.w.driveMap.Get(c.entity))

	c.refreshPolygon()
	status.Damaged = c.collides()
}

// Reset returns the car to its spawn point, undamaged and at rest.
func (c *Car) Reset() {
	c.w.resetEntity(c.entity)
	c.refreshPolygon()
	clear(c.readings)
}

func (c *Car) refreshPolygon() {
	pos := c.w.posMap.Get(c.entity)
	body := c.w.bodyMap.Get(c.entity)
	angle := c.w.motionMap.Get(c.entity).Angle
	c.poly = carPolygon(c.poly, r2.Vec{X: pos.X, Y: pos.Y}, body.Width, body.Height, angle)
}

func (c *Car) collides() bool {
	for _, b := range c.w.road.Borders {
		if polyCrossesSegment(c.poly, b) {
			return true
		}
	}
	for _, t := range c.w.trafficPolys {
		if polysIntersect(c.poly, t) {
			return true
		}
	}
	return false
}

// Pose is a read-only view of a car's physical state.
type Pose struct {
	X, Y    float64
	Speed   float64
	Angle   float64
	Damaged bool
}

// Pose returns the car's current physical state.
func (c *Car) Pose() Pose {
	pos := c.w.posMap.Get(c.entity)
	motion := c.w.motionMap.Get(c.entity)
	return Pose{
		X:       pos.X,
		Y:       pos.Y,
		Speed:   motion.Speed,
		Angle:   motion.Angle,
		Damaged: c.w.statusMap.Get(c.entity).Damaged,
	}
}

// Readings returns the sensor values from the last Sense call.
func (c *Car) Readings() []float64 { return c.readings }

// Controls returns the controls applied on the last Update.
func (c *Car) Controls() components.Controls {
	return *c.w.ctrlMap.Get(c.entity)
}
