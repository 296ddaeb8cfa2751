package store

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/yeganesereshgi/Demo-Experiment/internal/httputil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/monitoring"
)

// AttachAdminRoutes mounts the catalog's debug pages on mux: a tailsql
// console, JSON listings and an on-demand backup.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Session catalog",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("sessions", "Recording sessions (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions, err := db.Sessions(r.Context(), 0)
		if err != nil {
			httputil.InternalServerError(w, err)
			return
		}
		httputil.WriteJSONOK(w, sessions)
	}))
	debug.Handle("calibrations", "Calibrations (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("id"); id != "" {
			points, err := db.CalibrationPoints(r.Context(), id)
			if err != nil {
				httputil.InternalServerError(w, err)
				return
			}
			httputil.WriteJSONOK(w, points)
			return
		}
		cals, err := db.Calibrations(r.Context(), 0)
		if err != nil {
			httputil.InternalServerError(w, err)
			return
		}
		httputil.WriteJSONOK(w, cals)
	}))
	debug.Handle("backup", "Create and download a backup of the catalog now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("gazerec-backup-%d.db", time.Now().UnixNano()))
	if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, backupPath)
}
