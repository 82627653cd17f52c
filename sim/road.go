package sim

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/autopilot/config"
)

// Road is a straight vertical road of equal-width lanes, bounded by two
// border segments.
type Road struct {
	CenterX   float64
	Width     float64
	LaneCount int
	Left      float64
	Right     float64
	Top       float64
	Bottom    float64
	Borders   []Segment
}

// NewRoad builds a road centred on centerX. length is how far each border
// extends above and below y=0.
func NewRoad(centerX, width float64, laneCount int, length float64) Road {
	r := Road{
		CenterX:   centerX,
		Width:     width,
		LaneCount: max(laneCount, 1),
		Left:      centerX - width/2,
		Right:     centerX + width/2,
		Top:       -length,
		Bottom:    length,
	}
	r.Borders = []Segment{
		{A: r2.Vec{X: r.Left, Y: r.Top}, B: r2.Vec{X: r.Left, Y: r.Bottom}},
		{A: r2.Vec{X: r.Right, Y: r.Top}, B: r2.Vec{X: r.Right, Y: r.Bottom}},
	}
	return r
}

// RoadFromConfig builds the road described by cfg.
func RoadFromConfig(cfg *config.Config) Road {
	return NewRoad(cfg.Road.CenterX, cfg.Road.Width, cfg.Road.LaneCount, cfg.Road.Length)
}

// LaneCenter returns the x coordinate of a lane's centre line. Out-of-range
// lanes are clamped to the outermost lane.
func (r Road) LaneCenter(lane int) float64 {
	laneWidth := r.Width / float64(r.LaneCount)
	lane = min(max(lane, 0), r.LaneCount-1)
	return r.Left + laneWidth/2 + float64(lane)*laneWidth
}

// LaneDividers returns the x coordinates of the lines between lanes.
func (r Road) LaneDividers() []float64 {
	out := make([]float64, 0, r.LaneCount-1)
	laneWidth := r.Width / float64(r.LaneCount)
	for i := 1; i < r.LaneCount; i++ {
		out = append(out, r.Left+float64(i)*laneWidth)
	}
	return out
}
