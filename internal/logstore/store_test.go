package logstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/fleet.health/internal/causes"
	"github.com/banshee-data/fleet.health/internal/obd"
)

func makeRecords(n int) []obd.Record {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	records := make([]obd.Record, n)
	for i := range records {
		records[i] = obd.Record{
			Reading: obd.Reading{
				Timestamp:        base.Add(time.Duration(i) * time.Second),
				CoolantTemp:      90 + float64(i),
				ManifoldPressure: 180,
				RPM:              2000 + float64(10*i),
				Speed:            50 + float64(i),
				IntakeAirTemp:    30,
				AirflowRate:      14.5,
				ThrottlePosition: 40,
				AmbientAirTemp:   25,
				AccelPedalD:      15,
				AccelPedalE:      14,
			},
			VehicleID:    "KA-01",
			Driver:       "Rishab",
			LoggedAt:     base.Add(time.Duration(i) * time.Millisecond).UTC(),
			Prediction:   i % 2,
			Probability:  0.25,
			Causes:       nil,
			PrimaryCause: causes.None,
		}
	}
	records[0].Causes = []string{causes.Overheating, causes.LowRPMStall}
	records[0].PrimaryCause = causes.Overheating
	return records
}

func TestPersistAndLatestRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	want := makeRecords(4)

	path, err := store.Persist("KA-01", want, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if !strings.HasSuffix(path, "_log.csv") {
		t.Errorf("unexpected log path %q", path)
	}

	log, err := store.Latest("KA-01")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if diff := cmp.Diff(want, log.Records); diff != "" {
		t.Errorf("persisted records differ from buffer (-want +got):\n%s", diff)
	}
}

func TestPersist_UniqueFilenames(t *testing.T) {
	store := NewStore(t.TempDir())
	stop := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	p1, err := store.Persist("KA-02", makeRecords(1), stop)
	if err != nil {
		t.Fatalf("first Persist failed: %v", err)
	}
	p2, err := store.Persist("KA-02", makeRecords(2), stop.Add(time.Nanosecond))
	if err != nil {
		t.Fatalf("second Persist failed: %v", err)
	}
	if p1 == p2 {
		t.Errorf("back-to-back sessions collided on %q", p1)
	}

	names, err := store.Sessions("KA-02")
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("got %d sessions, want 2", len(names))
	}

	// Newest first: the second session is the latest.
	log, err := store.Latest("KA-02")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if len(log.Records) != 2 {
		t.Errorf("latest log has %d records, want 2 (the newer session)", len(log.Records))
	}
}

func TestPersist_EmptySessionRejected(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Persist("KA-01", nil, time.Now()); err == nil {
		t.Fatal("expected error persisting empty session, got nil")
	}
}

func TestPersist_NoPartialFileOnFailure(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	// Make the vehicle directory unwritable so staging fails.
	dir := filepath.Join(root, "KA-03")
	if err := os.MkdirAll(dir, 0o555); err != nil {
		t.Fatalf("failed to create read-only dir: %v", err)
	}
	defer os.Chmod(dir, 0o755)

	if _, err := store.Persist("KA-03", makeRecords(2), time.Now()); err == nil {
		t.Skip("filesystem ignores directory permissions; cannot force failure")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("failed persist left %d files behind", len(entries))
	}
}

func TestLatest_NoLogs(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Latest("KA-09"); !errors.Is(err, ErrNoLogs) {
		t.Errorf("Latest for unknown vehicle = %v, want ErrNoLogs", err)
	}

	// A vehicle directory with no logs behaves the same.
	if err := os.MkdirAll(filepath.Join(store.root, "KA-08"), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if _, err := store.Latest("KA-08"); !errors.Is(err, ErrNoLogs) {
		t.Errorf("Latest for empty vehicle dir = %v, want ErrNoLogs", err)
	}
}

func TestSessions_IgnoresStrayFiles(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Persist("KA-04", makeRecords(1), time.Now()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	stray := filepath.Join(store.root, "KA-04", "notes.txt")
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write stray file: %v", err)
	}

	names, err := store.Sessions("KA-04")
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(names) != 1 {
		t.Errorf("got %d sessions, want 1 (stray files ignored)", len(names))
	}
}

func TestPathTraversalRejected(t *testing.T) {
	store := NewStore(t.TempDir())

	if _, err := store.Persist("../escape", makeRecords(1), time.Now()); err == nil {
		t.Error("Persist with traversal vehicle id succeeded")
	}
	if _, err := store.Sessions("../escape"); err == nil {
		t.Error("Sessions with traversal vehicle id succeeded")
	}

	if _, err := store.Persist("KA-05", makeRecords(1), time.Now()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if _, err := store.Load("KA-05", "../../etc/passwd"); err == nil {
		t.Error("Load with traversal log name succeeded")
	}
}
