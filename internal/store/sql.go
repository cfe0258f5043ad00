package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/metrics"
)

// snapshotID is the primary key of the single snapshot row.
const snapshotID = 1

// SQLStore keeps the dataset as one JSON document in a single-row table.
type SQLStore struct {
	db      *sql.DB
	backend string
	load    string
	save    string
}

// NewSQLStore wraps an opened database and creates the snapshot table if needed.
func NewSQLStore(ctx context.Context, db *DB) (*SQLStore, error) {
	if db == nil || db.Client == nil {
		return nil, errors.New("sql store requires an open database")
	}
	s := &SQLStore{db: db.Client}

	var schema string
	switch db.Driver {
	case "pgx":
		s.backend = "postgres"
		schema = `
		CREATE TABLE IF NOT EXISTS attendance_snapshots (
			id         SMALLINT PRIMARY KEY,
			body       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
		s.load = `SELECT body::text FROM attendance_snapshots WHERE id = $1`
		s.save = `
		INSERT INTO attendance_snapshots (id, body, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	case "sqlite3":
		s.backend = "sqlite"
		schema = `
		CREATE TABLE IF NOT EXISTS attendance_snapshots (
			id         INTEGER PRIMARY KEY,
			body       TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
		s.load = `SELECT body FROM attendance_snapshots WHERE id = ?`
		s.save = `
		INSERT INTO attendance_snapshots (id, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", db.Driver)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", s.backend, err)
	}
	return s, nil
}

// Load reads the snapshot row. A missing row or undecodable body yields an
// empty dataset; a failed query is returned as an error.
func (s *SQLStore) Load(ctx context.Context) (attendance.Dataset, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.load, snapshotID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.EmptyDataset(), nil
	}
	if err != nil {
		return attendance.Dataset{}, fmt.Errorf("query %s snapshot: %w", s.backend, err)
	}
	return decodeSnapshot([]byte(body), s.backend), nil
}

// Save upserts the snapshot row in one statement.
func (s *SQLStore) Save(ctx context.Context, data attendance.Dataset) error {
	data.Normalize()
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.save, snapshotID, string(body), time.Now().UTC()); err != nil {
		metrics.StoreSaveFailures.WithLabelValues(s.backend).Inc()
		return fmt.Errorf("write %s snapshot: %w", s.backend, err)
	}
	return nil
}

// Healthy pings the database.
func (s *SQLStore) Healthy(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}
