package lidardb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/puck/internal/lidar/l2frames"
	"github.com/banshee-data/puck/internal/lidar/pipeline"
	"github.com/banshee-data/puck/internal/monitoring"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrSweepNotFound is returned when a sweep id is not in the store.
var ErrSweepNotFound = errors.New("sweep not found")

var logf = monitoring.Prefixed("[lidardb] ")

// LidarDB stores one summary row per decoded sweep plus per-ring range
// statistics. Point data is never stored; use the PCD export for that.
type LidarDB struct {
	*sql.DB
	path string
}

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
}

// NewLidarDB opens (creating if needed) the sweep store at path and applies
// pending schema migrations.
func NewLidarDB(path string) (*LidarDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps per-connection pragmas in force.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	ldb := &LidarDB{DB: db, path: path}
	if err := ldb.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	logf("initialized lidar sweep store at %s", path)
	return ldb, nil
}

// SweepRecord is one stored sweep summary.
type SweepRecord struct {
	SweepID     string        `json:"sweep_id"`
	Seq         int64         `json:"seq"`
	Trigger     string        `json:"trigger"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	Columns     int           `json:"columns"`
	ValidCells  int           `json:"valid_cells"`
	TotalCells  int           `json:"total_cells"`
	FillRatio   float64       `json:"fill_ratio"`
	AzimuthSpan float64       `json:"azimuth_span"`
	MeanRange   float64       `json:"mean_range"`
	MaxRange    float64       `json:"max_range"`
	BuildTime   time.Duration `json:"build_time"`
}

// RecordSweep stores the summary of one sweep and its ring statistics in
// a single transaction, returning the generated sweep id.
func (ldb *LidarDB) RecordSweep(ctx context.Context, sweep *l2frames.Sweep, summary l2frames.GridSummary, buildTime time.Duration) (string, error) {
	if sweep.Len() == 0 {
		return "", fmt.Errorf("refusing to record empty sweep %d", sweep.Seq)
	}
	id := uuid.New().String()

	tx, err := ldb.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin sweep transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lidar_sweeps (
			sweep_id, seq, trigger_policy, start_unix_nanos, end_unix_nanos, column_count,
			valid_cells, total_cells, fill_ratio, azimuth_span, mean_range, max_range, build_time_us
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sweep.Seq, sweep.Trigger, sweep.Start().UnixNano(), sweep.End().UnixNano(), summary.Columns,
		summary.ValidCells, summary.TotalCells, summary.FillRatio, summary.AzimuthSpan,
		summary.MeanRange, summary.MaxRange, buildTime.Microseconds(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert sweep %d: %w", sweep.Seq, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lidar_ring_stats (sweep_id, ring, elevation, returns, mean_range, std_range, min_range, max_range)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare ring insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range summary.Rings {
		if _, err := stmt.ExecContext(ctx, id, r.Row, r.Elevation, r.Returns, r.MeanRange, r.StdRange, r.MinRange, r.MaxRange); err != nil {
			return "", fmt.Errorf("failed to insert ring %d of sweep %d: %w", r.Row, sweep.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit sweep %d: %w", sweep.Seq, err)
	}
	return id, nil
}

// ConsumeSweep implements pipeline.SweepSink.
func (ldb *LidarDB) ConsumeSweep(out *pipeline.SweepOutput) error {
	_, err := ldb.RecordSweep(context.Background(), out.Sweep, out.Summary, out.BuildTime)
	return err
}

const sweepColumns = `sweep_id, seq, trigger_policy, start_unix_nanos, end_unix_nanos, column_count,
	valid_cells, total_cells, fill_ratio, azimuth_span, mean_range, max_range, build_time_us`

func scanSweep(row interface{ Scan(...any) error }) (SweepRecord, error) {
	var (
		rec                 SweepRecord
		start, end, buildUs int64
	)
	err := row.Scan(&rec.SweepID, &rec.Seq, &rec.Trigger, &start, &end, &rec.Columns,
		&rec.ValidCells, &rec.TotalCells, &rec.FillRatio, &rec.AzimuthSpan, &rec.MeanRange, &rec.MaxRange, &buildUs)
	if err != nil {
		return SweepRecord{}, err
	}
	rec.Start = time.Unix(0, start).UTC()
	rec.End = time.Unix(0, end).UTC()
	rec.BuildTime = time.Duration(buildUs) * time.Microsecond
	return rec, nil
}

// ListRecentSweeps returns up to limit sweeps, newest first.
func (ldb *LidarDB) ListRecentSweeps(ctx context.Context, limit int) ([]SweepRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := ldb.QueryContext(ctx,
		`SELECT `+sweepColumns+` FROM lidar_sweeps ORDER BY start_unix_nanos DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sweeps: %w", err)
	}
	defer rows.Close()

	var out []SweepRecord
	for rows.Next() {
		rec, err := scanSweep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sweep row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSweep returns a stored sweep summary by id.
func (ldb *LidarDB) GetSweep(ctx context.Context, id string) (SweepRecord, error) {
	row := ldb.QueryRowContext(ctx, `SELECT `+sweepColumns+` FROM lidar_sweeps WHERE sweep_id = ?`, id)
	rec, err := scanSweep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SweepRecord{}, fmt.Errorf("%w: %s", ErrSweepNotFound, id)
	}
	if err != nil {
		return SweepRecord{}, fmt.Errorf("failed to load sweep %s: %w", id, err)
	}
	return rec, nil
}

// RingStats returns the per-ring statistics of a stored sweep, top ring first.
func (ldb *LidarDB) RingStats(ctx context.Context, id string) ([]l2frames.RingStats, error) {
	rows, err := ldb.QueryContext(ctx, `
		SELECT ring, elevation, returns, mean_range, std_range, min_range, max_range
		FROM lidar_ring_stats WHERE sweep_id = ? ORDER BY ring`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ring stats: %w", err)
	}
	defer rows.Close()

	var out []l2frames.RingStats
	for rows.Next() {
		var r l2frames.RingStats
		if err := rows.Scan(&r.Row, &r.Elevation, &r.Returns, &r.MeanRange, &r.StdRange, &r.MinRange, &r.MaxRange); err != nil {
			return nil, fmt.Errorf("failed to scan ring row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneBefore deletes sweeps that started before t and returns how many
// were removed.
func (ldb *LidarDB) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := ldb.ExecContext(ctx, `DELETE FROM lidar_sweeps WHERE start_unix_nanos < ?`, t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sweeps: %w", err)
	}
	return res.RowsAffected()
}
