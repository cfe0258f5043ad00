package store

import (
	"context"
	"fmt"
	"io"

	"attendance/internal/attendance"
	"attendance/internal/config"
)

// Snapshot is a dataset store that can report its health.
type Snapshot interface {
	attendance.Store
	Healthy(ctx context.Context) bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the snapshot store selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.App) (Snapshot, io.Closer, error) {
	switch cfg.StoreBackend {
	case "file", "":
		return NewFileStore(cfg.DataFile), nopCloser{}, nil
	case "postgres":
		db, err := NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return openSQL(ctx, db)
	case "sqlite":
		db, err := NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return openSQL(ctx, db)
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func openSQL(ctx context.Context, db *DB) (Snapshot, io.Closer, error) {
	s, err := NewSQLStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return s, db, nil
}
