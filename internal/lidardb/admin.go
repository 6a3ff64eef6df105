package lidardb

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/puck/internal/httputil"
	"github.com/banshee-data/puck/internal/lidar/l2frames"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the sweep store's debug pages under /debug/ and
// its JSON endpoints under /api/sweeps.
func (ldb *LidarDB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(ldb.path), ldb.DB, &tailsql.DBOptions{
		Label: "Lidar sweep DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the sweep database now", http.HandlerFunc(ldb.handleBackup))

	mux.HandleFunc("/api/sweeps", ldb.handleListSweeps)
	mux.HandleFunc("/api/sweeps/", ldb.handleGetSweep)
	return nil
}

func (ldb *LidarDB) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("lidar-backup-%d.db", time.Now().Unix()))
	if _, err := ldb.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			logf("failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		logf("failed to stream backup: %v", err)
	}
}

func (ldb *LidarDB) handleListSweeps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	limit, err := httputil.QueryInt(r, "limit", 100, 1, 10000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	sweeps, err := ldb.ListRecentSweeps(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if sweeps == nil {
		sweeps = []SweepRecord{}
	}
	httputil.WriteJSONOK(w, sweeps)
}

func (ldb *LidarDB) handleGetSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sweeps/"), "/")
	if id == "" {
		httputil.BadRequest(w, "missing sweep id")
		return
	}

	rec, err := ldb.GetSweep(r.Context(), id)
	if errors.Is(err, ErrSweepNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	rings, err := ldb.RingStats(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	httputil.WriteJSONOK(w, struct {
		SweepRecord
		Rings []l2frames.RingStats `json:"rings"`
	}{rec, rings})
}
