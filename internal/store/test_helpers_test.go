package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestExperiment creates an experiment with minimal required fields.
func newTestExperiment(name string) NewExperiment {
	return NewExperiment{
		Name:           name,
		Notes:          "notes for " + name,
		RunConfig:      `{"lr":0.01}`,
		StartTimestamp: testEpoch,
	}
}

// fixedFolder returns a FolderFunc that reports path without touching disk.
func fixedFolder(path string) FolderFunc {
	return func(int64) (string, error) { return path, nil }
}

var errFolder = errors.New("folder failed")

func failingFolder(int64) (string, error) {
	return "", errFolder
}

// mustCreate inserts an experiment and fails the test on error.
func mustCreate(t *testing.T, s *Store, exp NewExperiment) int64 {
	t.Helper()
	id, _, err := s.CreateExperiment(t.Context(), exp, fixedFolder("/runs/"+exp.Name))
	if err != nil {
		t.Fatalf("CreateExperiment(%q) failed: %v", exp.Name, err)
	}
	return id
}
