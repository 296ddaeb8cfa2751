package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordingSession is one catalogued recording.
type RecordingSession struct {
	ID         string    `json:"id"`
	DataFile   string    `json:"data_file"`
	Tracker    string    `json:"tracker"`
	T0         int64     `json:"t0"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	Samples    int       `json:"samples"`
	Events     int       `json:"events"`
	OutOfOrder int       `json:"out_of_order"`
}

// RecordSession inserts s, assigning a new id when s.ID is empty, and
// returns the id.
func (db *DB) RecordSession(ctx context.Context, s RecordingSession) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	var stopped sql.NullTime
	if !s.StoppedAt.IsZero() {
		stopped = sql.NullTime{Time: s.StoppedAt.UTC(), Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO recording_sessions (
			session_id, data_file, tracker, t0, started_at, stopped_at,
			samples, events, out_of_order
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.DataFile, s.Tracker, s.T0, s.StartedAt.UTC(), stopped,
		s.Samples, s.Events, s.OutOfOrder,
	)
	if err != nil {
		return "", fmt.Errorf("failed to record session: %w", err)
	}
	return s.ID, nil
}

// Sessions returns up to limit sessions, newest first. limit <= 0 means 100.
func (db *DB) Sessions(ctx context.Context, limit int) ([]RecordingSession, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, data_file, tracker, t0, started_at, stopped_at,
			samples, events, out_of_order
		FROM recording_sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordingSession
	for rows.Next() {
		var (
			s       RecordingSession
			stopped sql.NullTime
		)
		if err := rows.Scan(
			&s.ID, &s.DataFile, &s.Tracker, &s.T0, &s.StartedAt, &stopped,
			&s.Samples, &s.Events, &s.OutOfOrder,
		); err != nil {
			return nil, err
		}
		if stopped.Valid {
			s.StoppedAt = stopped.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
