package monitor

import (
	"sync"
	"time"

	"github.com/banshee-data/puck/internal/lidar/l2frames"
	"github.com/banshee-data/puck/internal/lidar/pipeline"
)

// DefaultHistorySize is the number of sweep summaries kept for trend charts.
const DefaultHistorySize = 600

// LatestSweep keeps the most recent sweep output and a bounded history of
// summaries. It is a pipeline.SweepSink and is safe for concurrent readers.
type LatestSweep struct {
	mu       sync.RWMutex
	grid     *l2frames.Grid
	cloud    *l2frames.PointCloud
	summary  l2frames.GridSummary
	received time.Time
	count    int64

	history []l2frames.GridSummary
	next    int
	full    bool

	now func() time.Time
}

// NewLatestSweep creates a holder keeping historySize summaries; values
// below 1 use DefaultHistorySize.
func NewLatestSweep(historySize int) *LatestSweep {
	if historySize < 1 {
		historySize = DefaultHistorySize
	}
	return &LatestSweep{
		history: make([]l2frames.GridSummary, historySize),
		now:     time.Now,
	}
}

// ConsumeSweep implements pipeline.SweepSink. The grid and cloud are
// retained as-is; the pipeline never reuses them.
func (l *LatestSweep) ConsumeSweep(out *pipeline.SweepOutput) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.grid = out.Grid
	l.cloud = out.Cloud
	l.summary = out.Summary
	l.received = l.now()
	l.count++

	l.history[l.next] = out.Summary
	l.next = (l.next + 1) % len(l.history)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

// Snapshot is a consistent view of the latest sweep.
type Snapshot struct {
	Grid     *l2frames.Grid
	Cloud    *l2frames.PointCloud
	Summary  l2frames.GridSummary
	Received time.Time
	Count    int64
}

// Snapshot returns the latest sweep, or ok=false before the first one.
func (l *LatestSweep) Snapshot() (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.grid == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		Grid:     l.grid,
		Cloud:    l.cloud,
		Summary:  l.summary,
		Received: l.received,
		Count:    l.count,
	}, true
}

// History returns the retained summaries, oldest first.
func (l *LatestSweep) History() []l2frames.GridSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.full {
		return append([]l2frames.GridSummary(nil), l.history[:l.next]...)
	}
	out := make([]l2frames.GridSummary, 0, len(l.history))
	out = append(out, l.history[l.next:]...)
	return append(out, l.history[:l.next]...)
}
