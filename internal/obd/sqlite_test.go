package obd

import (
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndReadReadings(t *testing.T) {
	db := setupTestDB(t)

	want := makeReadings(3)
	for _, r := range want {
		if err := db.RecordReading(r); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}

	got, err := db.Readings()
	if err != nil {
		t.Fatalf("Readings failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d readings, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Speed != want[i].Speed || got[i].RPM != want[i].RPM {
			t.Errorf("reading %d = speed %v rpm %v, want speed %v rpm %v",
				i, got[i].Speed, got[i].RPM, want[i].Speed, want[i].RPM)
		}
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("reading %d timestamp = %v, want %v", i, got[i].Timestamp, want[i].Timestamp)
		}
	}
}

func TestNewSQLiteSource(t *testing.T) {
	db := setupTestDB(t)
	for _, r := range makeReadings(10) {
		if err := db.RecordReading(r); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}

	src, err := NewSQLiteSource(db, 6)
	if err != nil {
		t.Fatalf("NewSQLiteSource failed: %v", err)
	}
	if src.Len() != 6 {
		t.Errorf("Len = %d, want 6 (bounded)", src.Len())
	}
}

func TestNewSQLiteSource_Empty(t *testing.T) {
	db := setupTestDB(t)
	if _, err := NewSQLiteSource(db, 0); err == nil {
		t.Fatal("expected error for empty telemetry database, got nil")
	}
}
