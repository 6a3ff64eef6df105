package l2frames

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RingStats summarises the in-window returns of one grid row.
type RingStats struct {
	Row       int
	Elevation float64 // radians
	Returns   int
	MeanRange float64
	StdRange  float64
	MinRange  float64
	MaxRange  float64
}

// GridSummary is a compact description of a grid, suitable for storage and
// monitoring.
type GridSummary struct {
	SweepSeq    int64
	Columns     int
	ValidCells  int
	TotalCells  int
	FillRatio   float64
	AzimuthSpan float64 // radians covered from first to last column
	MeanRange   float64
	MaxRange    float64
	Rings       []RingStats
}

// SummarizeGrid computes per-ring range statistics. Rows without valid
// cells report zero for every range figure.
func SummarizeGrid(g *Grid) GridSummary {
	sum := GridSummary{
		SweepSeq:   g.SweepSeq,
		Columns:    g.Cols,
		TotalCells: g.Rows * g.Cols,
		Rings:      make([]RingStats, g.Rows),
	}

	deltaElev := 0.0
	if g.Rows > 1 {
		deltaElev = (g.Calibration.MaxElevation - g.Calibration.MinElevation) / float64(g.Rows-1)
	}

	all := make([]float64, 0, len(g.Cells))
	ranges := make([]float64, 0, g.Cols)
	for r := 0; r < g.Rows; r++ {
		ranges = ranges[:0]
		for c := 0; c < g.Cols; c++ {
			if cell := g.At(r, c); cell.Valid() {
				ranges = append(ranges, float64(cell.Range))
			}
		}

		rs := RingStats{
			Row:       r,
			Elevation: g.Calibration.MaxElevation - float64(r)*deltaElev,
			Returns:   len(ranges),
		}
		if len(ranges) > 0 {
			rs.MeanRange, rs.StdRange = stat.MeanStdDev(ranges, nil)
			if math.IsNaN(rs.StdRange) {
				rs.StdRange = 0
			}
			rs.MinRange = floats.Min(ranges)
			rs.MaxRange = floats.Max(ranges)
		}
		sum.Rings[r] = rs
		all = append(all, ranges...)
	}

	sum.ValidCells = len(all)
	if sum.TotalCells > 0 {
		sum.FillRatio = float64(sum.ValidCells) / float64(sum.TotalCells)
	}
	if len(all) > 0 {
		sum.MeanRange = stat.Mean(all, nil)
		sum.MaxRange = floats.Max(all)
	}
	if g.Cols > 1 {
		span := g.Azimuths[g.Cols-1] - g.Azimuths[0]
		if span < 0 {
			span += 2 * math.Pi
		}
		sum.AzimuthSpan = span
	}
	return sum
}
