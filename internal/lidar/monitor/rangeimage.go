package monitor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strconv"

	"github.com/banshee-data/puck/internal/httputil"
	"github.com/banshee-data/puck/internal/lidar/l2frames"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// rangeGrid adapts a Grid to plotter.GridXYZ. Plot rows run bottom-up, so
// plot row 0 is the lowest ring (the last grid row).
type rangeGrid struct {
	g *l2frames.Grid
}

func (rg rangeGrid) Dims() (c, r int) { return rg.g.Cols, rg.g.Rows }

func (rg rangeGrid) Z(c, r int) float64 {
	return float64(rg.g.At(rg.g.Rows-1-r, c).Range)
}

func (rg rangeGrid) X(c int) float64 { return float64(c) }

func (rg rangeGrid) Y(r int) float64 { return float64(r) }

// RenderRangeImage draws the grid's range channel as a heat map and writes
// it to w in the given format ("png", "svg", ...). Misses are drawn black.
func RenderRangeImage(w io.Writer, g *l2frames.Grid, maxRange float64, format string) error {
	if g.Rows == 0 || g.Cols == 0 {
		return fmt.Errorf("empty grid")
	}
	if maxRange <= 0 {
		maxRange = 1
	}

	hm := plotter.NewHeatMap(rangeGrid{g}, palette.Heat(32, 1))
	hm.Min = 0
	hm.Max = maxRange
	hm.NaN = color.Black
	hm.Overflow = color.White

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Range image, sweep %d", g.SweepSeq)
	p.X.Label.Text = "column (firing sequence)"
	p.Y.Label.Text = "ring (bottom = -15°)"
	p.Add(hm)

	width := vg.Length(g.Cols) * vg.Millimeter / 2
	if width < 12*vg.Centimeter {
		width = 12 * vg.Centimeter
	}
	if width > 60*vg.Centimeter {
		width = 60 * vg.Centimeter
	}

	wt, err := p.WriterTo(width, 8*vg.Centimeter, format)
	if err != nil {
		return fmt.Errorf("failed to create %s writer: %w", format, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// RenderIntensityImage writes the grid's reflectivity channel as an 8-bit
// grayscale PNG, one pixel per cell, row 0 (+15°) at the top.
func RenderIntensityImage(w io.Writer, g *l2frames.Grid) error {
	if g.Rows == 0 || g.Cols == 0 {
		return fmt.Errorf("empty grid")
	}
	img := &image.Gray{
		Pix:    g.Intensity(),
		Stride: g.Cols,
		Rect:   image.Rect(0, 0, g.Cols, g.Rows),
	}
	return png.Encode(w, img)
}

// writePNG renders into memory so a failed render still gets a clean
// JSON error instead of a truncated image.
func writePNG(w http.ResponseWriter, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		logf("failed to write image: %v", err)
	}
}

func (ws *WebServer) latestGrid(w http.ResponseWriter) (Snapshot, bool) {
	snap, ok := ws.latestSnapshot()
	if !ok {
		httputil.NotFound(w, "no sweep received yet")
		return Snapshot{}, false
	}
	if snap.Grid.Cols == 0 {
		httputil.NotFound(w, "latest sweep is empty")
		return Snapshot{}, false
	}
	return snap, true
}

// handleRangeImage serves the latest sweep's range image as a PNG.
func (ws *WebServer) handleRangeImage(w http.ResponseWriter, r *http.Request) {
	snap, ok := ws.latestGrid(w)
	if !ok {
		return
	}
	writePNG(w, func(out io.Writer) error {
		return RenderRangeImage(out, snap.Grid, snap.Summary.MaxRange, "png")
	})
}

// handleIntensity serves the latest sweep's reflectivity image as a PNG.
func (ws *WebServer) handleIntensity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	snap, ok := ws.latestGrid(w)
	if !ok {
		return
	}
	writePNG(w, func(out io.Writer) error {
		return RenderIntensityImage(out, snap.Grid)
	})
}
