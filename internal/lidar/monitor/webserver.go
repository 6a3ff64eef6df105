package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/banshee-data/puck/internal/httputil"
	"github.com/banshee-data/puck/internal/lidar/pipeline"
	"github.com/banshee-data/puck/internal/monitoring"
	"github.com/banshee-data/puck/internal/version"
	"tailscale.com/tsweb"
)

var logf = monitoring.Prefixed("[monitor] ")

// StatsSource reports decoder counters. *pipeline.Decoder implements it.
type StatsSource interface {
	Stats() pipeline.Stats
}

// WebServer serves the monitoring endpoints for a running decoder.
type WebServer struct {
	address string
	latest  *LatestSweep
	decoder StatsSource
	udpPort int
	started time.Time
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Latest  *LatestSweep
	Decoder StatsSource
	UDPPort int

	// Mux, if set, receives the routes instead of a private mux so other
	// packages can share the server.
	Mux *http.ServeMux
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		latest:  config.Latest,
		decoder: config.Decoder,
		udpPort: config.UDPPort,
		started: time.Now(),
	}

	mux := config.Mux
	if mux == nil {
		mux = http.NewServeMux()
	}
	ws.RegisterRoutes(mux)

	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws
}

// RegisterRoutes mounts the JSON API and the /debug/ chart pages.
func (ws *WebServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/lidar/status", ws.handleStatus)
	mux.HandleFunc("/api/lidar/latest", ws.handleLatest)
	mux.HandleFunc("/api/lidar/history", ws.handleHistory)
	mux.HandleFunc("/api/lidar/intensity", ws.handleIntensity)

	debug := tsweb.Debugger(mux)
	debug.HandleFunc("lidar-rings", "Per-ring returns and mean range of the latest sweep", ws.handleRingChart)
	debug.HandleFunc("lidar-cloud", "Top-down scatter of the latest point cloud", ws.handleCloudChart)
	debug.HandleFunc("lidar-fill", "Grid fill ratio over recent sweeps", ws.handleFillChart)
	debug.HandleFunc("lidar-range.png", "Range image of the latest sweep", ws.handleRangeImage)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logf("starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			logf("HTTP server force close error: %v", err)
		}
	}
	logf("HTTP server routine stopped")
	return nil
}

// Close shuts down the web server immediately.
func (ws *WebServer) Close() error {
	return ws.server.Close()
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "ok",
		"service":   "puck",
		"version":   version.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type statusResponse struct {
	Version        string         `json:"version"`
	UDPPort        int            `json:"udp_port"`
	Uptime         string         `json:"uptime"`
	Decoder        pipeline.Stats `json:"decoder"`
	SweepsReceived int64          `json:"sweeps_received"`
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statusResponse{
		Version: version.Version,
		UDPPort: ws.udpPort,
		Uptime:  time.Since(ws.started).Round(time.Second).String(),
	}
	if ws.decoder != nil {
		resp.Decoder = ws.decoder.Stats()
	}
	if snap, ok := ws.latestSnapshot(); ok {
		resp.SweepsReceived = snap.Count
	}
	httputil.WriteJSONOK(w, resp)
}

func (ws *WebServer) latestSnapshot() (Snapshot, bool) {
	if ws.latest == nil {
		return Snapshot{}, false
	}
	return ws.latest.Snapshot()
}

type latestResponse struct {
	Received   time.Time `json:"received"`
	Start      time.Time `json:"start"`
	SweepSeq   int64     `json:"sweep_seq"`
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	Points     int       `json:"points"`
	Valid      int       `json:"valid_points"`
	Organized  bool      `json:"organized"`
	FillRatio  float64   `json:"fill_ratio"`
	MeanRange  float64   `json:"mean_range"`
	MaxRange   float64   `json:"max_range"`
	AzimuthDeg float64   `json:"azimuth_span_deg"`
}

func (ws *WebServer) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap, ok := ws.latestSnapshot()
	if !ok {
		httputil.NotFound(w, "no sweep received yet")
		return
	}
	httputil.WriteJSONOK(w, latestResponse{
		Received:   snap.Received.UTC(),
		Start:      snap.Grid.Start.UTC(),
		SweepSeq:   snap.Grid.SweepSeq,
		Rows:       snap.Grid.Rows,
		Columns:    snap.Grid.Cols,
		Points:     len(snap.Cloud.Points),
		Valid:      snap.Cloud.ValidCount(),
		Organized:  snap.Cloud.Organized,
		FillRatio:  snap.Summary.FillRatio,
		MeanRange:  snap.Summary.MeanRange,
		MaxRange:   snap.Summary.MaxRange,
		AzimuthDeg: snap.Summary.AzimuthSpan * 180 / math.Pi,
	})
}

type historyPoint struct {
	SweepSeq   int64   `json:"sweep_seq"`
	Columns    int     `json:"columns"`
	ValidCells int     `json:"valid_cells"`
	FillRatio  float64 `json:"fill_ratio"`
	MeanRange  float64 `json:"mean_range"`
}

func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	points := []historyPoint{}
	if ws.latest != nil {
		for _, s := range ws.latest.History() {
			points = append(points, historyPoint{
				SweepSeq:   s.SweepSeq,
				Columns:    s.Columns,
				ValidCells: s.ValidCells,
				FillRatio:  s.FillRatio,
				MeanRange:  s.MeanRange,
			})
		}
	}
	httputil.WriteJSONOK(w, points)
}
