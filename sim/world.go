// Package sim is the headless road simulation: a straight multi-lane road,
// scripted traffic and a population of sensor-equipped cars stored in an
// ark ECS world.
package sim

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/autopilot/components"
	"github.com/pthm-cable/autopilot/config"
)

// World holds the road, the traffic and the trained cars. It implements
// training.Environment; its cars implement training.Agent.
type World struct {
	world *ecs.World

	carMapper *ecs.Map7[
		components.Position,
		components.Motion,
		components.Body,
		components.Drive,
		components.Controls,
		components.Status,
		components.Spawn,
	]
	carFilter *ecs.Filter6[
		components.Position,
		components.Motion,
		components.Body,
		components.Drive,
		components.Controls,
		components.Status,
	]

	posMap    *ecs.Map1[components.Position]
	motionMap *ecs.Map1[components.Motion]
	bodyMap   *ecs.Map1[components.Body]
	driveMap  *ecs.Map1[components.Drive]
	ctrlMap   *ecs.Map1[components.Controls]
	statusMap *ecs.Map1[components.Status]
	spawnMap  *ecs.Map1[components.Spawn]

	road   Road
	sensor Sensor

	traffic      []ecs.Entity
	trafficPolys [][]r2.Vec // refreshed every Step, read by agents
	cars         []*Car
	steps        int
}

// NewWorld builds the road, spawns the configured traffic and population
// cars. Cars start without networks.
func NewWorld(cfg *config.Config) *World {
	world := ecs.NewWorld()

	w := &World{
		world: world,
		carMapper: ecs.NewMap7[
			components.Position,
			components.Motion,
			components.Body,
			components.Drive,
			components.Controls,
			components.Status,
			components.Spawn,
		](world),
		carFilter: ecs.NewFilter6[
			components.Position,
			components.Motion,
			components.Body,
			components.Drive,
			components.Controls,
			components.Status,
		](world),
		posMap:    ecs.NewMap1[components.Position](world),
		motionMap: ecs.NewMap1[components.Motion](world),
		bodyMap:   ecs.NewMap1[components.Body](world),
		driveMap:  ecs.NewMap1[components.Drive](world),
		ctrlMap:   ecs.NewMap1[components.Controls](world),
		statusMap: ecs.NewMap1[components.Status](world),
		spawnMap:  ecs.NewMap1[components.Spawn](world),
		road:      RoadFromConfig(cfg),
		sensor:    SensorFromConfig(cfg),
	}

	body := components.CarBody(cfg)

	trafficDrive := components.TrafficDrive(cfg)
	for _, tc := range cfg.Traffic.Cars {
		e := w.spawn(w.road.LaneCenter(tc.Lane), tc.Y, body, trafficDrive, components.KindTraffic)
		w.traffic = append(w.traffic, e)
	}
	w.trafficPolys = make([][]r2.Vec, len(w.traffic))
	w.refreshTraffic()

	agentDrive := components.AgentDrive(cfg)
	startX := w.road.LaneCenter(cfg.Car.StartLane)
	for i := 0; i < cfg.Population.Size; i++ {
		e := w.spawn(startX, cfg.Car.StartY, body, agentDrive, components.KindAgent)
		w.cars = append(w.cars, newCar(w, e, i))
	}

	return w
}

func (w *World) spawn(x, y float64, body components.Body, d components.Drive, kind components.Kind) ecs.Entity {
	pos := components.Position{X: x, Y: y}
	motion := components.Motion{}
	ctl := components.Controls{Forward: kind == components.KindTraffic}
	status := components.Status{Kind: kind}
	spawn := components.Spawn{X: x, Y: y}
	return w.carMapper.NewEntity(&pos, &motion, &body, &d, &ctl, &status, &spawn)
}

// Step advances the traffic by one physics step. Traffic only collides with
// the road borders.
func (w *World) Step() {
	query := w.carFilter.Query()
	for query.Next() {
		pos, motion, body, d, ctl, status := query.Get()
		if status.Kind != components.KindTraffic || status.Damaged {
			continue
		}
		drive(pos, motion, *ctl, *d)

		poly := carPolygon(nil, r2.Vec{X: pos.X, Y: pos.Y}, body.Width, body.Height, motion.Angle)
		for _, b := range w.road.Borders {
			if polyCrossesSegment(poly, b) {
				status.Damaged = true
				break
			}
		}
	}
	w.refreshTraffic()
	w.steps++
}

// Reset puts the traffic back at its spawn points.
func (w *World) Reset() {
	for _, e := range w.traffic {
		w.resetEntity(e)
	}
	w.refreshTraffic()
	w.steps = 0
}

func (w *World) resetEntity(e ecs.Entity) {
	spawn := w.spawnMap.Get(e)
	*w.posMap.Get(e) = components.Position{X: spawn.X, Y: spawn.Y}
	*w.motionMap.Get(e) = components.Motion{}
	status := w.statusMap.Get(e)
	status.Damaged = false
	*w.ctrlMap.Get(e) = components.Controls{Forward: status.Kind == components.KindTraffic}
}

// refreshTraffic rebuilds the traffic polygons read by agent sensors and
// collision checks.
func (w *World) refreshTraffic() {
	for i, e := range w.traffic {
		pos := w.posMap.Get(e)
		body := w.bodyMap.Get(e)
		angle := w.motionMap.Get(e).Angle
		w.trafficPolys[i] = carPolygon(w.trafficPolys[i], r2.Vec{X: pos.X, Y: pos.Y}, body.Width, body.Height, angle)
	}
}

// Cars returns the trained cars in index order.
func (w *World) Cars() []*Car { return w.cars }

// Road returns the road geometry.
func (w *World) Road() Road { return w.road }

// Sensor returns the sensor fitted to every trained car.
func (w *World) Sensor() Sensor { return w.sensor }

// Steps returns the number of traffic steps since the last reset.
func (w *World) Steps() int { return w.steps }

// TrafficPositions returns the current traffic positions in spawn order.
func (w *World) TrafficPositions() []components.Position {
	out := make([]components.Position, len(w.traffic))
	for i, e := range w.traffic {
		out[i] = *w.posMap.Get(e)
	}
	return out
}
