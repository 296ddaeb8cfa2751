package store

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeganesereshgi/Demo-Experiment/internal/calibration"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/testutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	testutil.CaptureLogs(t)
	db, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenAppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// idempotent
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, db.MigrateUp())
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM recording_sessions`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestOpenRawLeavesSchemaAlone(t *testing.T) {
	testutil.CaptureLogs(t)
	db, err := OpenRaw(filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)
}

func TestSessions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	id1, err := db.RecordSession(ctx, RecordingSession{
		DataFile:  "a.tsv",
		Tracker:   "sim",
		T0:        500_000,
		StartedAt: base,
		StoppedAt: base.Add(time.Minute),
		Samples:   3600,
		Events:    4,
	})
	require.NoError(t, err)
	assert.Len(t, id1, 36)

	id2, err := db.RecordSession(ctx, RecordingSession{
		ID:         "fixed-id",
		DataFile:   "b.tsv",
		StartedAt:  base.Add(time.Hour),
		OutOfOrder: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id2)

	got, err := db.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "fixed-id", got[0].ID)
	assert.True(t, got[0].StoppedAt.IsZero())
	assert.Equal(t, 2, got[0].OutOfOrder)

	assert.Equal(t, id1, got[1].ID)
	assert.Equal(t, "a.tsv", got[1].DataFile)
	assert.Equal(t, int64(500_000), got[1].T0)
	assert.Equal(t, 3600, got[1].Samples)
	assert.Equal(t, 4, got[1].Events)
	assert.True(t, got[1].StartedAt.Equal(base), "started %v", got[1].StartedAt)
	assert.True(t, got[1].StoppedAt.Equal(base.Add(time.Minute)))

	limited, err := db.Sessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = db.RecordSession(ctx, RecordingSession{ID: "fixed-id", StartedAt: base})
	assert.Error(t, err, "duplicate id")
}

func sampleOutcome() calibration.Outcome {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return calibration.Outcome{
		Accepted:   true,
		StartedAt:  start,
		FinishedAt: start.Add(30 * time.Second),
		Iterations: []calibration.Iteration{
			{
				Active: []int{0, 1},
				Accuracy: []calibration.PointAccuracy{
					{Index: 0, Target: gaze.Point{X: 0.25, Y: 0.25}, LeftError: 0.01, RightError: 0.02, Samples: 4, Pass: true},
					{Index: 1, Target: gaze.Point{X: 0.75, Y: 0.75}, LeftError: 0.08, RightError: math.NaN(), Samples: 4},
				},
				Retry: []int{1},
			},
			{
				Active: []int{1},
				Accuracy: []calibration.PointAccuracy{
					{Index: 1, Target: gaze.Point{X: 0.75, Y: 0.75}, LeftError: 0.02, RightError: 0.03, Samples: 4, Pass: true},
				},
			},
		},
	}
}

func TestRecordCalibration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.RecordCalibration(ctx, "SIM-0001", sampleOutcome())
	require.NoError(t, err)

	cals, err := db.Calibrations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, cals, 1)
	assert.Equal(t, id, cals[0].ID)
	assert.True(t, cals[0].Accepted)
	assert.Equal(t, 2, cals[0].Iterations)
	assert.Equal(t, "SIM-0001", cals[0].Tracker)

	points, err := db.CalibrationPoints(ctx, id)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, 0, points[0].Iteration)
	assert.Equal(t, 0, points[0].Index)
	assert.True(t, points[0].Pass)

	assert.Equal(t, 1, points[1].Index)
	assert.InDelta(t, 0.08, points[1].LeftError, 1e-12)
	assert.True(t, math.IsNaN(points[1].RightError))
	assert.False(t, points[1].Pass)

	assert.Equal(t, 1, points[2].Iteration)
	assert.InDelta(t, 0.75, points[2].TargetX, 1e-12)

	none, err := db.CalibrationPoints(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCalibrationPointJSON(t *testing.T) {
	b, err := json.Marshal(CalibrationPoint{Index: 2, LeftError: 0.5, RightError: math.NaN()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"iteration":0,"index":2,"target_x":0,"target_y":0,
		"left_error":0.5,"right_error":null,"samples":0,"pass":false}`, string(b))
}

func debugGet(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestAdminRoutes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.RecordSession(ctx, RecordingSession{ID: "s1", DataFile: "x.tsv", StartedAt: time.Now()})
	require.NoError(t, err)
	calID, err := db.RecordCalibration(ctx, "sim", sampleOutcome())
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	w := debugGet(t, mux, "/debug/sessions")
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []RecordingSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)

	w = debugGet(t, mux, "/debug/calibrations")
	require.Equal(t, http.StatusOK, w.Code)
	var cals []CalibrationSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cals))
	require.Len(t, cals, 1)

	w = debugGet(t, mux, "/debug/calibrations?id="+calID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"right_error":null`)

	w = debugGet(t, mux, "/debug/backup")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Greater(t, w.Body.Len(), 0)
}
