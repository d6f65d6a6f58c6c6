// Package jsonfile persists the worker metadata set as a single JSON
// snapshot. Writes go to a temp file first and are renamed into place, so a
// crash mid-flush never exposes a partial document to readers.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"media-agent/internal/application/port/output"
	"media-agent/internal/domain/entity"
)

var _ output.WorkerStore = (*Store)(nil)

type snapshot struct {
	Workers   []entity.WorkerInfo `json:"workers"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type Store struct {
	path string
}

func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) LoadAll() ([]entity.WorkerInfo, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap.Workers, nil
}

func (s *Store) SaveAll(workers []entity.WorkerInfo) error {
	snap := snapshot{Workers: workers, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }
