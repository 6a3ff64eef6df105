package pipeline

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/puck/internal/lidar/l2frames"
)

// SweepOutput is everything produced for one completed sweep.
type SweepOutput struct {
	Sweep   *l2frames.Sweep
	Grid    *l2frames.Grid
	Cloud   *l2frames.PointCloud
	Summary l2frames.GridSummary

	BuildTime time.Duration // grid + projection + summary
}

// SweepSink consumes completed sweeps. Sinks run one at a time on the
// pipeline worker and must not retain the output beyond what they copy.
type SweepSink interface {
	ConsumeSweep(out *SweepOutput) error
}

// SweepSinkFunc adapts a function to SweepSink.
type SweepSinkFunc func(out *SweepOutput) error

// ConsumeSweep calls f.
func (f SweepSinkFunc) ConsumeSweep(out *SweepOutput) error {
	return f(out)
}

// ExportSink writes every Nth sweep's cloud to disk.
type ExportSink struct {
	Exporter *l2frames.Exporter
	Every    int    // export when Sweep.Seq % Every == 0; 0 disables
	Format   string // "pcd" (default) or "asc"

	exported atomic.Int64
}

// ConsumeSweep exports the sweep when it is due.
func (e *ExportSink) ConsumeSweep(out *SweepOutput) error {
	if e.Every <= 0 || out.Sweep.Seq%int64(e.Every) != 0 || out.Cloud.ValidCount() == 0 {
		return nil
	}

	name := fmt.Sprintf("sweep_%s_%06d", out.Sweep.Start().UTC().Format("20060102T150405.000"), out.Sweep.Seq)
	var err error
	switch e.Format {
	case "asc":
		_, err = e.Exporter.ExportASC(out.Cloud, name+".asc")
	case "", "pcd":
		_, err = e.Exporter.ExportPCD(out.Cloud, name+".pcd")
	default:
		return fmt.Errorf("unknown export format %q", e.Format)
	}
	if err != nil {
		return fmt.Errorf("export sweep %d: %w", out.Sweep.Seq, err)
	}
	e.exported.Add(1)
	return nil
}

// Exported returns the number of files written.
func (e *ExportSink) Exported() int64 {
	return e.exported.Load()
}
