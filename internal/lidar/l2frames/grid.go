package l2frames

import (
	"math"
	"time"

	"github.com/banshee-data/puck/internal/lidar/l1packets/parse"
)

// Rings is the number of physical lasers, and so the number of grid rows.
const Rings = parse.FIRINGS_PER_SEQUENCE

// DistortionModel tags grids produced from VLP-16 geometry.
const DistortionModel = "VLP16"

// Calibration carries the fixed sensor constants a consumer needs to turn
// a Grid back into geometry.
type Calibration struct {
	MinElevation       float64       // radians, elevation of the bottom row
	MaxElevation       float64       // radians, elevation of row 0
	DistanceResolution float64       // metres per raw distance unit
	FiringCycle        time.Duration // duration of one firing sequence
	SingleFiring       time.Duration // spacing between laser firings
	Model              string
}

// DefaultCalibration returns the VLP-16 constants.
func DefaultCalibration() Calibration {
	return Calibration{
		MinElevation:       parse.MinElevation,
		MaxElevation:       parse.MaxElevation,
		DistanceResolution: parse.DISTANCE_RESOLUTION,
		FiringCycle:        parse.FiringCycle,
		SingleFiring:       parse.SingleFiring,
		Model:              DistortionModel,
	}
}

// Cell is one grid sample. Range is NaN when the return falls outside the
// configured range window; Reflectivity is copied regardless.
type Cell struct {
	Range        float32 // metres
	Reflectivity uint8
}

// Valid reports whether the cell holds an in-window range.
func (c Cell) Valid() bool {
	return !math.IsNaN(float64(c.Range))
}

// Grid is a dense ring × azimuth raster of one sweep. Row 0 is the highest
// elevation ring; column order follows the sweep.
type Grid struct {
	Rows        int
	Cols        int
	Cells       []Cell    // row-major, Rows × Cols
	Azimuths    []float64 // per column, radians
	Calibration Calibration
	Start       time.Time // time of the first column
	SweepSeq    int64
}

// At returns the cell at row r, column c.
func (g *Grid) At(r, c int) Cell {
	return g.Cells[r*g.Cols+c]
}

// Set stores the cell at row r, column c.
func (g *Grid) Set(r, c int, cell Cell) {
	g.Cells[r*g.Cols+c] = cell
}

// Intensity returns the reflectivity channel as a row-major 8-bit image.
func (g *Grid) Intensity() []uint8 {
	img := make([]uint8, len(g.Cells))
	for i, cell := range g.Cells {
		img[i] = cell.Reflectivity
	}
	return img
}

// GridBuilder turns sweeps into grids, clipping ranges to
// [MinRange, MaxRange].
type GridBuilder struct {
	MinRange    float64
	MaxRange    float64
	Calibration Calibration
}

// NewGridBuilder returns a builder with the VLP-16 calibration.
func NewGridBuilder(minRange, maxRange float64) GridBuilder {
	return GridBuilder{
		MinRange:    minRange,
		MaxRange:    maxRange,
		Calibration: DefaultCalibration(),
	}
}

// Build arranges a sweep into a Rings × sweep.Len() grid.
func (b GridBuilder) Build(s *Sweep) *Grid {
	cols := s.Len()
	g := &Grid{
		Rows:        Rings,
		Cols:        cols,
		Cells:       make([]Cell, Rings*cols),
		Azimuths:    make([]float64, cols),
		Calibration: b.Calibration,
		Start:       s.Start(),
	}
	if s != nil {
		g.SweepSeq = s.Seq
	}
	nan := float32(math.NaN())

	for c := 0; c < cols; c++ {
		rec := &s.Records[c]
		g.Azimuths[c] = rec.Azimuth

		for r := 0; r < Rings; r++ {
			// Row 0 is the top ring but elevation index 0 is the bottom one,
			// and returns are stored in interleaved firing order.
			dp := rec.Sequence[parse.LaserID(Rings-1-r)]

			rng := float64(dp.Distance) * b.Calibration.DistanceResolution
			cell := Cell{Range: float32(rng), Reflectivity: dp.Reflectivity}
			if rng < b.MinRange || rng > b.MaxRange {
				cell.Range = nan
			}
			g.Cells[r*cols+c] = cell
		}
	}

	return g
}
