package l2frames

import (
	"math"
	"testing"

	"github.com/banshee-data/puck/internal/lidar/l1packets/parse"
)

// slotRecord tags every firing slot with a distinct distance so rows can be
// traced back to the slot they were read from.
func slotRecord(i int, azDeg float64) Record {
	rec := recordAt(i, azDeg, 0)
	for slot := range rec.Sequence {
		rec.Sequence[slot] = parse.DataPoint{Distance: uint16(1000 + 100*slot), Reflectivity: uint8(slot)}
	}
	return rec
}

func TestGridBuilder_RowOrder(t *testing.T) {
	s := &Sweep{Seq: 7, Records: []Record{slotRecord(0, 0), slotRecord(1, 1)}}
	g := NewGridBuilder(0.4, 100).Build(s)

	if g.Rows != Rings || g.Cols != 2 {
		t.Fatalf("grid = %dx%d, want %dx2", g.Rows, g.Cols, Rings)
	}
	if g.SweepSeq != 7 {
		t.Errorf("SweepSeq = %d, want 7", g.SweepSeq)
	}

	tests := []struct {
		row  int
		slot int
	}{
		{0, 15}, // +15°
		{1, 13}, // +13°
		{7, 1},  // +1°
		{8, 14}, // -1°
		{15, 0}, // -15°
	}
	for _, tt := range tests {
		cell := g.At(tt.row, 1)
		if int(cell.Reflectivity) != tt.slot {
			t.Errorf("row %d reads slot %d, want %d", tt.row, cell.Reflectivity, tt.slot)
		}
		want := float32(float64(1000+100*tt.slot) * parse.DISTANCE_RESOLUTION)
		if cell.Range != want {
			t.Errorf("row %d range = %f, want %f", tt.row, cell.Range, want)
		}
	}

	if g.Azimuths[1] != deg(1) {
		t.Errorf("Azimuths[1] = %f, want %f", g.Azimuths[1], deg(1))
	}
	if !g.Start.Equal(s.Records[0].Time) {
		t.Errorf("Start = %v, want %v", g.Start, s.Records[0].Time)
	}
}

func TestGridBuilder_ClipsRange(t *testing.T) {
	rec := recordAt(0, 10, 0)
	rec.Sequence[parse.LaserID(15)] = parse.DataPoint{Distance: 0, Reflectivity: 9}     // no return
	rec.Sequence[parse.LaserID(14)] = parse.DataPoint{Distance: 100, Reflectivity: 9}   // 0.2 m
	rec.Sequence[parse.LaserID(13)] = parse.DataPoint{Distance: 5000, Reflectivity: 9}  // 10 m
	rec.Sequence[parse.LaserID(12)] = parse.DataPoint{Distance: 60000, Reflectivity: 9} // 120 m
	rec.Sequence[parse.LaserID(11)] = parse.DataPoint{Distance: 50000, Reflectivity: 9} // exactly 100 m

	g := NewGridBuilder(0.4, 100).Build(&Sweep{Records: []Record{rec}})

	wantValid := []bool{false, false, true, false, true}
	for r, want := range wantValid {
		cell := g.At(r, 0)
		if cell.Valid() != want {
			t.Errorf("row %d valid = %v (range %f), want %v", r, cell.Valid(), cell.Range, want)
		}
		if cell.Reflectivity != 9 {
			t.Errorf("row %d reflectivity = %d, want 9", r, cell.Reflectivity)
		}
	}
	if !math.IsNaN(float64(g.At(0, 0).Range)) {
		t.Error("zero distance should map to NaN")
	}
}

func TestGridBuilder_EmptySweep(t *testing.T) {
	b := NewGridBuilder(0.4, 100)
	for _, s := range []*Sweep{nil, {}} {
		g := b.Build(s)
		if g.Rows != Rings || g.Cols != 0 || len(g.Cells) != 0 {
			t.Errorf("Build(%v) = %dx%d with %d cells", s, g.Rows, g.Cols, len(g.Cells))
		}
	}
}

func TestGrid_Intensity(t *testing.T) {
	g := NewGridBuilder(0.4, 100).Build(&Sweep{Records: []Record{slotRecord(0, 0)}})
	img := g.Intensity()
	if len(img) != Rings {
		t.Fatalf("len = %d, want %d", len(img), Rings)
	}
	if img[0] != 15 || img[15] != 0 {
		t.Errorf("intensity column = %v", img)
	}
}

func TestDefaultCalibration(t *testing.T) {
	c := DefaultCalibration()
	if c.Model != "VLP16" {
		t.Errorf("Model = %q", c.Model)
	}
	if math.Abs(c.MaxElevation-deg(15)) > 1e-12 || math.Abs(c.MinElevation+deg(15)) > 1e-12 {
		t.Errorf("elevation = [%f, %f]", c.MinElevation, c.MaxElevation)
	}
	if c.FiringCycle != parse.FiringCycle || c.SingleFiring != parse.SingleFiring {
		t.Errorf("timing = %v/%v", c.FiringCycle, c.SingleFiring)
	}
}
