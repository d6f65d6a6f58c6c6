package jsonfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-agent/internal/domain/entity"
)

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workers.json")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	in := []entity.WorkerInfo{
		{
			ID:        "w1",
			Name:      "alpha",
			State:     entity.WorkerRunning,
			Busy:      true,
			CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		{ID: "w2", Name: "beta", State: entity.WorkerError, LastError: "launch failed"},
	}
	if err := s.SaveAll(in); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	out, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(out))
	}
	if out[0].ID != "w1" || !out[0].Busy || !out[0].CreatedAt.Equal(in[0].CreatedAt) {
		t.Errorf("first worker mismatch: %+v", out[0])
	}
	if out[1].LastError != "launch failed" {
		t.Errorf("expected last error preserved, got %+v", out[1])
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "never-written.json"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	out, err := s.LoadAll()
	if err != nil {
		t.Fatalf("missing snapshot must not be an error, got %v", err)
	}
	if out != nil {
		t.Errorf("expected empty set, got %v", out)
	}
}

func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workers.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := s.LoadAll(); err == nil {
		t.Error("expected an error on a corrupt snapshot")
	}
}

func TestStore_SaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "workers.json"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.SaveAll([]entity.WorkerInfo{{ID: "w1"}}); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "workers.json" {
		t.Errorf("expected only the snapshot file, got %v", entries)
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "workers.json"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.SaveAll([]entity.WorkerInfo{{ID: "w1"}, {ID: "w2"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAll([]entity.WorkerInfo{{ID: "w3"}}); err != nil {
		t.Fatal(err)
	}

	out, err := s.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != "w3" {
		t.Errorf("expected the last snapshot only, got %v", out)
	}
}
