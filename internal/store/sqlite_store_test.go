package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/gradascent/internal/ascent"
)

func setupSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	s := setupSQLiteStore(t)

	original := createTestRecord("sqlite-run-1")
	original.Strategy = ascent.Cautious
	original.Timestamp = time.Date(2026, 5, 4, 10, 30, 0, 123456789, time.UTC)

	if err := s.SaveRun(original); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := s.LoadRun("sqlite-run-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}

	if loaded.Objective != original.Objective || loaded.Mode != original.Mode {
		t.Errorf("Objective/Mode mismatch: got %s/%s", loaded.Objective, loaded.Mode)
	}
	if loaded.Strategy != ascent.Cautious {
		t.Errorf("Strategy mismatch: expected CAUTIOUS, got %s", loaded.Strategy)
	}
	if loaded.LearningRate != original.LearningRate || loaded.Steps != original.Steps {
		t.Errorf("LearningRate/Steps mismatch: got %g/%d", loaded.LearningRate, loaded.Steps)
	}
	if !loaded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp mismatch: expected %v, got %v", original.Timestamp, loaded.Timestamp)
	}
	if loaded.Elapsed != original.Elapsed {
		t.Errorf("Elapsed mismatch: expected %v, got %v", original.Elapsed, loaded.Elapsed)
	}
	for i := range original.InitialPoint {
		if loaded.InitialPoint[i] != original.InitialPoint[i] {
			t.Errorf("InitialPoint[%d] mismatch: expected %g, got %g", i, original.InitialPoint[i], loaded.InitialPoint[i])
		}
		if loaded.FinalPoint[i] != original.FinalPoint[i] {
			t.Errorf("FinalPoint[%d] mismatch: expected %g, got %g", i, original.FinalPoint[i], loaded.FinalPoint[i])
		}
	}
}

func TestSQLiteStore_Overwrite(t *testing.T) {
	s := setupSQLiteStore(t)

	record := createTestRecord("sqlite-run-2")
	if err := s.SaveRun(record); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	record.FinalValue = -1e-9
	if err := s.SaveRun(record); err != nil {
		t.Fatalf("second SaveRun failed: %v", err)
	}

	infos, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("Expected 1 run after overwrite, got %d", len(infos))
	}
	if infos[0].FinalValue != -1e-9 {
		t.Errorf("Expected overwritten FinalValue, got %g", infos[0].FinalValue)
	}
}

func TestSQLiteStore_ListOldestFirst(t *testing.T) {
	s := setupSQLiteStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		record := createTestRecord(id)
		record.Timestamp = base.Add(time.Duration([]int{3, 1, 2}[i]) * time.Minute)
		if err := s.SaveRun(record); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", id, err)
		}
	}

	infos, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(infos))
	}
	for i, want := range []string{"a", "b", "c"} {
		if infos[i].RunID != want {
			t.Errorf("infos[%d]: expected %s, got %s", i, want, infos[i].RunID)
		}
		if infos[i].Dim != 2 {
			t.Errorf("infos[%d]: expected dim 2, got %d", i, infos[i].Dim)
		}
	}
}

func TestSQLiteStore_ListOrdersWithinSecond(t *testing.T) {
	s := setupSQLiteStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := createTestRecord("later")
	later.Timestamp = base.Add(500 * time.Millisecond)
	earlier := createTestRecord("earlier")
	earlier.Timestamp = base

	for _, record := range []*RunRecord{later, earlier} {
		if err := s.SaveRun(record); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", record.RunID, err)
		}
	}

	infos, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(infos))
	}
	if infos[0].RunID != "earlier" || infos[1].RunID != "later" {
		t.Errorf("Expected [earlier later], got [%s %s]", infos[0].RunID, infos[1].RunID)
	}
	if !infos[0].Timestamp.Equal(base) || !infos[1].Timestamp.Equal(later.Timestamp) {
		t.Errorf("Timestamps not preserved: %v, %v", infos[0].Timestamp, infos[1].Timestamp)
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	s := setupSQLiteStore(t)

	if _, err := s.LoadRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadRun: expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteRun: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := setupSQLiteStore(t)

	if err := s.SaveRun(createTestRecord("doomed")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.DeleteRun("doomed"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := s.LoadRun("doomed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteStore_RejectsInvalid(t *testing.T) {
	s := setupSQLiteStore(t)

	record := createTestRecord("bad")
	record.FinalPoint = []float64{1}

	var verr *ValidationError
	if err := s.SaveRun(record); !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s.SaveRun(createTestRecord("persisted")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if _, err := s.LoadRun("persisted"); err != nil {
		t.Errorf("LoadRun after reopen failed: %v", err)
	}
}

// Both backends satisfy the same interface.
var (
	_ Store = (*FSStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
