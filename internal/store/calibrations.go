package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/yeganesereshgi/Demo-Experiment/internal/calibration"
)

// CalibrationPoint is the stored accuracy of one point in one iteration.
// Errors are NaN when the eye had no usable samples.
type CalibrationPoint struct {
	Iteration  int     `json:"iteration"`
	Index      int     `json:"index"`
	TargetX    float64 `json:"target_x"`
	TargetY    float64 `json:"target_y"`
	LeftError  float64 `json:"left_error"`
	RightError float64 `json:"right_error"`
	Samples    int     `json:"samples"`
	Pass       bool    `json:"pass"`
}

// MarshalJSON writes NaN errors as null.
func (p CalibrationPoint) MarshalJSON() ([]byte, error) {
	type plain CalibrationPoint
	return json.Marshal(struct {
		plain
		LeftError  *float64 `json:"left_error"`
		RightError *float64 `json:"right_error"`
	}{plain(p), finite(p.LeftError), finite(p.RightError)})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// RecordCalibration stores out and its per-point accuracy in one
// transaction and returns the new calibration id.
func (db *DB) RecordCalibration(ctx context.Context, tracker string, out calibration.Outcome) (string, error) {
	id := uuid.NewString()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	started, finished := out.StartedAt, out.FinishedAt
	if finished.IsZero() {
		finished = started
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO calibrations (calibration_id, tracker, accepted, iterations, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, tracker, out.Accepted, len(out.Iterations), started.UTC(), finished.UTC(),
	); err != nil {
		return "", fmt.Errorf("failed to record calibration: %w", err)
	}

	for it, iter := range out.Iterations {
		for _, pa := range iter.Accuracy {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO calibration_points (
					calibration_id, iteration, point_index, target_x, target_y,
					left_error, right_error, samples, pass
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, it, pa.Index, pa.Target.X, pa.Target.Y,
				nullable(pa.LeftError), nullable(pa.RightError), pa.Samples, pa.Pass,
			); err != nil {
				return "", fmt.Errorf("failed to record calibration point %d: %w", pa.Index, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// CalibrationPoints returns the stored points of a calibration ordered by
// iteration and point index.
func (db *DB) CalibrationPoints(ctx context.Context, id string) ([]CalibrationPoint, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT iteration, point_index, target_x, target_y, left_error, right_error, samples, pass
		FROM calibration_points WHERE calibration_id = ?
		ORDER BY iteration, point_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CalibrationPoint
	for rows.Next() {
		var (
			p           CalibrationPoint
			left, right sql.NullFloat64
		)
		if err := rows.Scan(&p.Iteration, &p.Index, &p.TargetX, &p.TargetY, &left, &right, &p.Samples, &p.Pass); err != nil {
			return nil, err
		}
		p.LeftError = orNaN(left)
		p.RightError = orNaN(right)
		out = append(out, p)
	}
	return out, rows.Err()
}

// CalibrationSummary is one row of the calibrations table.
type CalibrationSummary struct {
	ID         string    `json:"id"`
	Tracker    string    `json:"tracker"`
	Accepted   bool      `json:"accepted"`
	Iterations int       `json:"iterations"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Calibrations returns the most recent calibrations, newest first.
func (db *DB) Calibrations(ctx context.Context, limit int) ([]CalibrationSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT calibration_id, tracker, accepted, iterations, started_at, finished_at
		FROM calibrations ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CalibrationSummary
	for rows.Next() {
		var c CalibrationSummary
		if err := rows.Scan(&c.ID, &c.Tracker, &c.Accepted, &c.Iterations, &c.StartedAt, &c.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
