package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/puck/internal/httputil"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echartsAssetsHost serves the echarts JavaScript bundles.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

func writeHTML(w http.ResponseWriter, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleRingChart renders per-ring return counts and mean ranges of the
// latest sweep, top ring first.
func (ws *WebServer) handleRingChart(w http.ResponseWriter, r *http.Request) {
	snap, ok := ws.latestSnapshot()
	if !ok {
		httputil.NotFound(w, "no sweep received yet")
		return
	}

	rings := snap.Summary.Rings
	labels := make([]string, len(rings))
	returns := make([]opts.BarData, len(rings))
	means := make([]opts.BarData, len(rings))
	for i, rs := range rings {
		labels[i] = fmt.Sprintf("%+.0f°", rs.Elevation*180/math.Pi)
		returns[i] = opts.BarData{Value: rs.Returns}
		means[i] = opts.BarData{Value: math.Round(rs.MeanRange*100) / 100}
	}
	subtitle := fmt.Sprintf("sweep=%d columns=%d fill=%.1f%% at %s",
		snap.Summary.SweepSeq, snap.Summary.Columns, snap.Summary.FillRatio*100, snap.Received.UTC().Format(time.RFC3339))

	returnsBar := charts.NewBar()
	returnsBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Returns per ring", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "returns"}),
	)
	returnsBar.SetXAxis(labels).
		AddSeries("returns", returns,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	rangeBar := charts.NewBar()
	rangeBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Mean range per ring"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m"}),
	)
	rangeBar.SetXAxis(labels).AddSeries("mean range", means)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(returnsBar, rangeBar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	writeHTML(w, &buf)
}

// handleCloudChart renders a top-down scatter of the latest point cloud,
// coloured by intensity.
// Query params:
//   - max_points (optional; default 8000) to reduce payload size
func (ws *WebServer) handleCloudChart(w http.ResponseWriter, r *http.Request) {
	snap, ok := ws.latestSnapshot()
	if !ok {
		httputil.NotFound(w, "no sweep received yet")
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	valid := snap.Cloud.ValidCount()
	stride := 1
	if valid > maxPoints {
		stride = int(math.Ceil(float64(valid) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, valid/stride+1)
	maxAbs := 0.0
	seen := 0
	for _, p := range snap.Cloud.Points {
		if !p.Valid() {
			continue
		}
		seen++
		if (seen-1)%stride != 0 {
			continue
		}
		x, y := float64(p.X), float64(p.Y)
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(x), math.Abs(y)))
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, p.Intensity}})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LiDAR Sweep (top-down)", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Latest sweep", Subtitle: fmt.Sprintf("sweep=%d points=%d stride=%d", snap.Cloud.SweepSeq, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X forward (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y left (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        255,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	writeHTML(w, &buf)
}

// handleFillChart renders the fill ratio and mean range of recent sweeps.
func (ws *WebServer) handleFillChart(w http.ResponseWriter, r *http.Request) {
	if ws.latest == nil {
		httputil.NotFound(w, "no sweep history")
		return
	}
	history := ws.latest.History()
	if len(history) == 0 {
		httputil.NotFound(w, "no sweep received yet")
		return
	}

	x := make([]string, len(history))
	fill := make([]opts.LineData, len(history))
	mean := make([]opts.LineData, len(history))
	for i, s := range history {
		x[i] = strconv.FormatInt(s.SweepSeq, 10)
		fill[i] = opts.LineData{Value: math.Round(s.FillRatio*1000) / 10}
		mean[i] = opts.LineData{Value: math.Round(s.MeanRange*100) / 100}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "520px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Sweep fill", Subtitle: fmt.Sprintf("%d sweeps", len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sweep"}),
	)
	line.SetXAxis(x).
		AddSeries("fill %", fill).
		AddSeries("mean range (m)", mean)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	writeHTML(w, &buf)
}
