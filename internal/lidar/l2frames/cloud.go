package l2frames

import (
	"math"
	"time"
)

// Point is one projected return in the output frame: x forward, y left,
// z up (metres).
type Point struct {
	X, Y, Z   float32
	Intensity float32
}

// Valid reports whether the point carries real coordinates rather than the
// NaN placeholder used in organized clouds.
func (p Point) Valid() bool {
	return !math.IsNaN(float64(p.X))
}

// PointCloud is the projection of one grid. Organized clouds keep the grid
// shape (Height = rows, Width = cols) with NaN placeholders; unorganized
// clouds hold valid points only (Height = 1).
type PointCloud struct {
	Points    []Point
	Width     int
	Height    int
	Organized bool
	Start     time.Time
	SweepSeq  int64
}

type sinCos struct {
	sin, cos float64
}

// Project converts a grid into a point cloud using a linear elevation fan
// between the grid's calibrated min and max elevation.
//
// The sensor measures azimuth clockwise from forward with x right and y
// forward. Output points are rotated into a forward-x, left-y frame.
func Project(g *Grid, organized bool) *PointCloud {
	cloud := &PointCloud{
		Organized: organized,
		Start:     g.Start,
		SweepSeq:  g.SweepSeq,
		Points:    make([]Point, 0, g.Rows*g.Cols),
	}

	azimuths := make([]sinCos, g.Cols)
	for c, a := range g.Azimuths {
		azimuths[c] = sinCos{sin: math.Sin(a), cos: math.Cos(a)}
	}

	maxElev := g.Calibration.MaxElevation
	deltaElev := 0.0
	if g.Rows > 1 {
		deltaElev = (maxElev - g.Calibration.MinElevation) / float64(g.Rows-1)
	}
	nan := float32(math.NaN())

	for r := 0; r < g.Rows; r++ {
		omega := maxElev - float64(r)*deltaElev
		cosOmega, sinOmega := math.Cos(omega), math.Sin(omega)
		row := g.Cells[r*g.Cols : (r+1)*g.Cols]

		for c, cell := range row {
			if !cell.Valid() {
				if organized {
					cloud.Points = append(cloud.Points, Point{X: nan, Y: nan, Z: nan, Intensity: nan})
				}
				continue
			}

			rng := float64(cell.Range)
			x := rng * cosOmega * azimuths[c].sin
			y := rng * cosOmega * azimuths[c].cos
			z := rng * sinOmega

			cloud.Points = append(cloud.Points, Point{
				X:         float32(y),
				Y:         float32(-x),
				Z:         float32(z),
				Intensity: float32(cell.Reflectivity),
			})
		}
	}

	if organized {
		cloud.Width = g.Cols
		cloud.Height = g.Rows
	} else {
		cloud.Width = len(cloud.Points)
		cloud.Height = 1
	}
	return cloud
}

// ValidCount returns the number of non-placeholder points.
func (pc *PointCloud) ValidCount() int {
	n := 0
	for _, p := range pc.Points {
		if p.Valid() {
			n++
		}
	}
	return n
}
