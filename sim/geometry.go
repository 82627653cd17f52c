package sim

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Segment is a straight line between two points.
type Segment struct {
	A, B r2.Vec
}

// Touch is a crossing point with its fractional offset along the first segment.
type Touch struct {
	Point  r2.Vec
	Offset float64
}

// intersect returns where segment ab crosses segment cd. Parallel segments
// never touch.
func intersect(a, b, c, d r2.Vec) (Touch, bool) {
	r := r2.Sub(b, a)
	s := r2.Sub(d, c)
	denom := r2.Cross(r, s)
	if denom == 0 {
		return Touch{}, false
	}
	ca := r2.Sub(c, a)
	t := r2.Cross(ca, s) / denom
	u := r2.Cross(ca, r) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return Touch{}, false
	}
	return Touch{Point: r2.Add(a, r2.Scale(t, r)), Offset: t}, true
}

// polysIntersect reports whether any edge of p crosses any edge of q.
func polysIntersect(p, q []r2.Vec) bool {
	for i := range p {
		a, b := p[i], p[(i+1)%len(p)]
		for j := range q {
			if _, ok := intersect(a, b, q[j], q[(j+1)%len(q)]); ok {
				return true
			}
		}
	}
	return false
}

// polyCrossesSegment reports whether any edge of p crosses seg.
func polyCrossesSegment(p []r2.Vec, seg Segment) bool {
	for i := range p {
		if _, ok := intersect(p[i], p[(i+1)%len(p)], seg.A, seg.B); ok {
			return true
		}
	}
	return false
}

// carPolygon writes the four corners of a w×h rectangle centred on centre and
// rotated by angle into dst, reusing its storage.
func carPolygon(dst []r2.Vec, centre r2.Vec, w, h, angle float64) []r2.Vec {
	rad := math.Hypot(w, h) / 2
	alpha := math.Atan2(w, h)
	dst = dst[:0]
	for _, a := range [4]float64{angle - alpha, angle + alpha, math.Pi + angle - alpha, math.Pi + angle + alpha} {
		dst = append(dst, r2.Vec{
			X: centre.X - math.Sin(a)*rad,
			Y: centre.Y - math.Cos(a)*rad,
		})
	}
	return dst
}

// heading returns the unit vector a car with the given angle drives along.
func heading(angle float64) r2.Vec {
	return r2.Vec{X: -math.Sin(angle), Y: -math.Cos(angle)}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
