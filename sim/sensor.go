package sim

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/autopilot/config"
)

// Sensor is a fan of rays cast forward from a car.
type Sensor struct {
	RayCount  int
	RayLength float64
	RaySpread float64 // total fan angle in radians
}

// SensorFromConfig builds the sensor described by cfg.
func SensorFromConfig(cfg *config.Config) Sensor {
	return Sensor{
		RayCount:  cfg.Sensor.RayCount,
		RayLength: cfg.Sensor.RayLength,
		RaySpread: cfg.Sensor.RaySpread,
	}
}

// Rays returns the ray segments for a car at origin with the given heading.
// Ray 0 points to the car's left.
func (s Sensor) Rays(dst []Segment, origin r2.Vec, angle float64) []Segment {
	dst = dst[:0]
	for i := 0; i < s.RayCount; i++ {
		frac := 0.5
		if s.RayCount > 1 {
			frac = float64(i) / float64(s.RayCount-1)
		}
		a := lerp(s.RaySpread/2, -s.RaySpread/2, frac) + angle
		dst = append(dst, Segment{A: origin, B: r2.Add(origin, r2.Scale(s.RayLength, heading(a)))})
	}
	return dst
}

// Read fills readings with one value per ray: 0 when the ray touches nothing,
// otherwise 1 minus the offset of the nearest touch, so closer obstacles read
// higher.
func (s Sensor) Read(readings []float64, rays []Segment, borders []Segment, obstacles [][]r2.Vec) {
	for i, ray := range rays {
		nearest, hit := nearestTouch(ray, borders, obstacles)
		if hit {
			readings[i] = 1 - nearest.Offset
		} else {
			readings[i] = 0
		}
	}
}

func nearestTouch(ray Segment, borders []Segment, obstacles [][]r2.Vec) (Touch, bool) {
	var best Touch
	hit := false
	consider := func(c, d r2.Vec) {
		if t, ok := intersect(ray.A, ray.B, c, d); ok && (!hit || t.Offset < best.Offset) {
			best, hit = t, true
		}
	}
	for _, b := range borders {
		consider(b.A, b.B)
	}
	for _, poly := range obstacles {
		for j := range poly {
			consider(poly[j], poly[(j+1)%len(poly)])
		}
	}
	return best, hit
}
