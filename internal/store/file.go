package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"attendance/internal/attendance"
	"attendance/internal/metrics"
)

// FileStore keeps the dataset as one indented JSON document on disk.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = "attendance_data.json"
	}
	return &FileStore{path: path}
}

// Path returns the snapshot location.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot. A missing, empty or undecodable file yields an
// empty dataset and no error.
func (s *FileStore) Load(_ context.Context) (attendance.Dataset, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("read snapshot %s failed, starting empty: %v", s.path, err)
			metrics.StoreLoadFallbacks.WithLabelValues("file", "read").Inc()
		}
		return attendance.EmptyDataset(), nil
	}
	return decodeSnapshot(content, "file"), nil
}

// Save replaces the snapshot through a temp file and rename.
func (s *FileStore) Save(_ context.Context, data attendance.Dataset) error {
	err := s.save(data)
	if err != nil {
		metrics.StoreSaveFailures.WithLabelValues("file").Inc()
	}
	return err
}

func (s *FileStore) save(data attendance.Dataset) error {
	data.Normalize()
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Healthy reports whether the snapshot directory is reachable.
func (s *FileStore) Healthy(_ context.Context) bool {
	_, err := os.Stat(filepath.Dir(s.path))
	return err == nil
}

// decodeSnapshot parses a snapshot body, falling back to an empty dataset.
func decodeSnapshot(content []byte, backend string) attendance.Dataset {
	if len(content) == 0 {
		return attendance.EmptyDataset()
	}
	var data attendance.Dataset
	if err := json.Unmarshal(content, &data); err != nil {
		log.Printf("decode %s snapshot failed, starting empty: %v", backend, err)
		metrics.StoreLoadFallbacks.WithLabelValues(backend, "decode").Inc()
		return attendance.EmptyDataset()
	}
	data.Normalize()
	return data
}
