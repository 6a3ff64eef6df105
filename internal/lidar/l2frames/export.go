package l2frames

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/puck/internal/security"
)

// ErrEmptyCloud is returned when exporting a cloud with no valid points.
var ErrEmptyCloud = errors.New("no points to export")

// Exporter writes point clouds under a single directory. File names are
// reduced to a sanitised base name so callers cannot escape Dir.
type Exporter struct {
	Dir string
}

// NewExporter returns an Exporter rooted at dir, creating it if needed.
func NewExporter(dir string) (*Exporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty export directory")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve export directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &Exporter{Dir: filepath.Clean(abs)}, nil
}

// Path returns the safe absolute path for name inside the export directory.
func (e *Exporter) Path(name string) (string, error) {
	base := security.SanitizeFilename(filepath.Base(name))
	p := filepath.Join(e.Dir, base)
	if err := security.ValidatePathWithinDirectory(p, e.Dir); err != nil {
		opsf("rejected export path %q: %v", name, err)
		return "", fmt.Errorf("invalid export path: %w", err)
	}
	return p, nil
}

// ExportASC writes the valid points of pc as a CloudCompare-compatible
// .asc file and returns the path written.
func (e *Exporter) ExportASC(pc *PointCloud, name string) (string, error) {
	return e.export(pc, name, WriteASC)
}

// ExportPCD writes pc as an ASCII PCD v0.7 file and returns the path
// written. Organized clouds keep their shape and NaN placeholders.
func (e *Exporter) ExportPCD(pc *PointCloud, name string) (string, error) {
	return e.export(pc, name, WritePCD)
}

func (e *Exporter) export(pc *PointCloud, name string, write func(io.Writer, *PointCloud) error) (string, error) {
	if pc.ValidCount() == 0 {
		return "", ErrEmptyCloud
	}
	p, err := e.Path(name)
	if err != nil {
		return "", err
	}

	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	if err := write(f, pc); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	diagf("exported sweep %d (%d points) to %s", pc.SweepSeq, len(pc.Points), p)
	return p, nil
}

// WriteASC writes the valid points of pc as "X Y Z Intensity" rows.
func WriteASC(w io.Writer, pc *PointCloud) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Sweep %d\n", pc.SweepSeq)
	fmt.Fprintf(bw, "# Format: X Y Z Intensity\n")
	for _, p := range pc.Points {
		if !p.Valid() {
			continue
		}
		fmt.Fprintf(bw, "%.6f %.6f %.6f %d\n", p.X, p.Y, p.Z, int(p.Intensity))
	}
	return bw.Flush()
}

// WritePCD writes pc in the ASCII point cloud data format.
func WritePCD(w io.Writer, pc *PointCloud) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# .PCD v0.7 - Point Cloud Data file format\n")
	fmt.Fprintf(bw, "VERSION 0.7\n")
	fmt.Fprintf(bw, "FIELDS x y z intensity\n")
	fmt.Fprintf(bw, "SIZE 4 4 4 4\n")
	fmt.Fprintf(bw, "TYPE F F F F\n")
	fmt.Fprintf(bw, "COUNT 1 1 1 1\n")
	fmt.Fprintf(bw, "WIDTH %d\n", pc.Width)
	fmt.Fprintf(bw, "HEIGHT %d\n", pc.Height)
	fmt.Fprintf(bw, "VIEWPOINT 0 0 0 1 0 0 0\n")
	fmt.Fprintf(bw, "POINTS %d\n", len(pc.Points))
	fmt.Fprintf(bw, "DATA ascii\n")
	for _, p := range pc.Points {
		if !p.Valid() {
			fmt.Fprintf(bw, "nan nan nan nan\n")
			continue
		}
		fmt.Fprintf(bw, "%g %g %g %g\n", p.X, p.Y, p.Z, p.Intensity)
	}
	return bw.Flush()
}
