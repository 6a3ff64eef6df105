package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/puck/internal/config"
	"github.com/banshee-data/puck/internal/lidar/l2frames"
	"github.com/banshee-data/puck/internal/lidar/pipeline"
	"github.com/banshee-data/puck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// feedDecoder pushes n packets through a decoder whose sweeps land in
// latest, one sweep per packet.
func feedDecoder(t *testing.T, latest *LatestSweep, n int) *pipeline.Decoder {
	t.Helper()
	width := 24
	d := pipeline.NewDecoder(pipeline.Options{
		Config:   &config.DecoderConfig{ImageWidth: &width},
		Sinks:    []pipeline.SweepSink{latest},
		Blocking: true,
	})
	for i, p := range testutil.RotationPackets(n, 0, 20, 5000) {
		require.NoError(t, d.HandlePacket(p, epoch.Add(time.Duration(i)*time.Millisecond)))
	}
	d.Close()
	return d
}

// loopbackRequest creates a request from loopback so /debug/ pages accept it.
func loopbackRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, path))
	return rec
}

func TestLatestSweep_HistoryWraps(t *testing.T) {
	l := NewLatestSweep(3)
	for seq := int64(1); seq <= 5; seq++ {
		out := &pipeline.SweepOutput{
			Grid:    &l2frames.Grid{SweepSeq: seq},
			Cloud:   &l2frames.PointCloud{SweepSeq: seq},
			Summary: l2frames.GridSummary{SweepSeq: seq},
		}
		require.NoError(t, l.ConsumeSweep(out))
	}

	h := l.History()
	require.Len(t, h, 3)
	assert.EqualValues(t, 3, h[0].SweepSeq)
	assert.EqualValues(t, 5, h[2].SweepSeq)

	snap, ok := l.Snapshot()
	require.True(t, ok)
	assert.EqualValues(t, 5, snap.Grid.SweepSeq)
	assert.EqualValues(t, 5, snap.Count)
}

func TestLatestSweep_Empty(t *testing.T) {
	l := NewLatestSweep(0)
	_, ok := l.Snapshot()
	assert.False(t, ok)
	assert.Empty(t, l.History())
	assert.Len(t, l.history, DefaultHistorySize)
}

func TestWebServer_NoSweepYet(t *testing.T) {
	mux := http.NewServeMux()
	NewWebServer(WebServerConfig{Latest: NewLatestSweep(10), Mux: mux})

	for _, path := range []string{"/api/lidar/latest", "/debug/lidar-rings", "/debug/lidar-cloud", "/debug/lidar-fill", "/debug/lidar-range.png", "/api/lidar/intensity"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusNotFound, get(t, mux, path).Code)
		})
	}

	rec := get(t, mux, "/api/lidar/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestWebServer_Endpoints(t *testing.T) {
	latest := NewLatestSweep(10)
	d := feedDecoder(t, latest, 4)

	mux := http.NewServeMux()
	NewWebServer(WebServerConfig{Latest: latest, Decoder: d, UDPPort: 2368, Mux: mux})

	t.Run("health", func(t *testing.T) {
		rec := get(t, mux, "/health")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})

	t.Run("status", func(t *testing.T) {
		rec := get(t, mux, "/api/lidar/status")
		require.Equal(t, http.StatusOK, rec.Code)
		var got statusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 2368, got.UDPPort)
		assert.EqualValues(t, 4, got.Decoder.Packets)
		assert.EqualValues(t, 4, got.Decoder.Delivered)
		assert.EqualValues(t, 4, got.SweepsReceived)
	})

	t.Run("latest", func(t *testing.T) {
		rec := get(t, mux, "/api/lidar/latest")
		require.Equal(t, http.StatusOK, rec.Code)
		var got latestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.EqualValues(t, 4, got.SweepSeq)
		assert.Equal(t, 16, got.Rows)
		assert.Equal(t, 24, got.Columns)
		assert.Equal(t, 384, got.Valid)
		assert.InDelta(t, 1.0, got.FillRatio, 1e-9)
	})

	t.Run("history", func(t *testing.T) {
		rec := get(t, mux, "/api/lidar/history")
		require.Equal(t, http.StatusOK, rec.Code)
		var got []historyPoint
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 4)
		assert.EqualValues(t, 1, got[0].SweepSeq)
	})

	t.Run("charts", func(t *testing.T) {
		for _, path := range []string{"/debug/lidar-rings", "/debug/lidar-cloud?max_points=200", "/debug/lidar-fill"} {
			rec := get(t, mux, path)
			require.Equal(t, http.StatusOK, rec.Code, path)
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"), path)
			assert.Contains(t, rec.Body.String(), "echarts", path)
		}
	})

	t.Run("range image", func(t *testing.T) {
		rec := get(t, mux, "/debug/lidar-range.png")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
	})

	t.Run("intensity", func(t *testing.T) {
		rec := get(t, mux, "/api/lidar/intensity")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		img, err := png.Decode(rec.Body)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 24, 16), img.Bounds())
		gray, ok := img.(*image.Gray)
		require.True(t, ok, "decoded %T", img)
		assert.EqualValues(t, 100, gray.GrayAt(0, 0).Y)
	})

	t.Run("method", func(t *testing.T) {
		for _, path := range []string{"/api/lidar/status", "/api/lidar/intensity"} {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, loopbackRequest(http.MethodPost, path))
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
		}
	})
}

func TestRenderRangeImage(t *testing.T) {
	latest := NewLatestSweep(1)
	feedDecoder(t, latest, 1)
	snap, ok := latest.Snapshot()
	require.True(t, ok)

	// One missing cell must not break rendering.
	c := snap.Grid.At(3, 5)
	c.Range = float32(math.NaN())
	snap.Grid.Set(3, 5, c)

	var buf bytes.Buffer
	require.NoError(t, RenderRangeImage(&buf, snap.Grid, snap.Summary.MaxRange, "svg"))
	assert.Contains(t, buf.String(), "<svg")

	assert.Error(t, RenderRangeImage(&buf, &l2frames.Grid{}, 10, "png"))
}

func TestWritePNG_RenderErrorSendsCleanJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writePNG(rec, func(w io.Writer) error {
		w.Write([]byte("\x89PNG partial"))
		return errors.New("encoder failed")
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotContains(t, rec.Body.String(), "PNG")
	assert.Contains(t, rec.Body.String(), "encoder failed")
}
