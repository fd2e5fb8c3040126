// Package logstore persists completed monitoring sessions as flat CSV
// log files, one file per (vehicle, session stop time). Files are
// staged and renamed into place so a failed write never leaves a
// partial log behind.
package logstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/fleet.health/internal/obd"
	"github.com/banshee-data/fleet.health/internal/security"
)

// ErrNoLogs is returned when a vehicle has no persisted session logs.
// It is a lookup miss, never a fatal condition.
var ErrNoLogs = errors.New("no session logs for vehicle")

// causeSeparator joins the ordered cause tags into a single CSV column.
const causeSeparator = "; "

// stampLayout names log files by session stop time. Nanosecond
// precision keeps back-to-back sessions from colliding; the layout
// sorts lexicographically so the newest log has the greatest filename.
const stampLayout = "2006-01-02_15-04-05.000000000"

// logHeader is the persisted row schema: every reading field followed
// by the enrichment fields.
var logHeader = append(append([]string{}, obd.DatasetHeader...),
	"timestamp", "vehicle_id", "driver", "prediction", "probability", "breakdown_cause", "causes")

// PersistedLog is the durable, immutable record of one completed
// session.
type PersistedLog struct {
	VehicleID string
	Path      string
	Records   []obd.Record
}

// Store writes and reads session logs under a root directory, laid out
// as <root>/<vehicle_id>/<stop_stamp>_log.csv.
type Store struct {
	root string
}

// NewStore returns a store rooted at dir (created on first persist).
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// vehicleDir maps a vehicle id to its log directory. Ids arrive from
// HTTP parameters, so anything that would resolve outside the store
// root is rejected rather than joined.
func (s *Store) vehicleDir(vehicleID string) (string, error) {
	dir := filepath.Join(s.root, vehicleID)
	if err := security.ValidatePathWithinDirectory(dir, s.root); err != nil {
		return "", fmt.Errorf("invalid vehicle id %q: %w", vehicleID, err)
	}
	return dir, nil
}

// Persist writes one session's records as a new log file and returns
// its path. Each call gets a unique stop-time-qualified filename, and
// the write is all-or-nothing: the file appears only after every row
// has been staged successfully.
func (s *Store) Persist(vehicleID string, records []obd.Record, stoppedAt time.Time) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("refusing to persist empty session for %s", vehicleID)
	}

	dir, err := s.vehicleDir(vehicleID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	final := filepath.Join(dir, stoppedAt.Format(stampLayout)+"_log.csv")

	staging, err := os.CreateTemp(dir, ".staging-*.csv")
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}
	stagingPath := staging.Name()
	// Remove the staging file on any failure path; after a successful
	// rename this is a harmless no-op.
	defer os.Remove(stagingPath)

	if err := writeRows(staging, records); err != nil {
		staging.Close()
		return "", err
	}
	if err := staging.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize staging file: %w", err)
	}
	if err := os.Rename(stagingPath, final); err != nil {
		return "", fmt.Errorf("failed to publish session log: %w", err)
	}
	return final, nil
}

func writeRows(w io.Writer, records []obd.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(logHeader); err != nil {
		return fmt.Errorf("failed to write log header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Timestamp.Format(obd.TimestampLayout),
		}
		for _, v := range rec.FeatureVector() {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		row = append(row,
			rec.LoggedAt.Format(time.RFC3339Nano),
			rec.VehicleID,
			rec.Driver,
			strconv.Itoa(rec.Prediction),
			strconv.FormatFloat(rec.Probability, 'f', 4, 64),
			rec.PrimaryCause,
			strings.Join(rec.Causes, causeSeparator),
		)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write log row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush log rows: %w", err)
	}
	return nil
}

// Sessions lists a vehicle's persisted log files, newest first.
func (s *Store) Sessions(vehicleID string) ([]string, error) {
	dir, err := s.vehicleDir(vehicleID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoLogs
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list session logs: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), "_log.csv") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, ErrNoLogs
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Latest loads a vehicle's most recent session log.
func (s *Store) Latest(vehicleID string) (*PersistedLog, error) {
	names, err := s.Sessions(vehicleID)
	if err != nil {
		return nil, err
	}
	return s.Load(vehicleID, names[0])
}

// Load reads one named session log for a vehicle.
func (s *Store) Load(vehicleID, name string) (*PersistedLog, error) {
	dir, err := s.vehicleDir(vehicleID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name)
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return nil, fmt.Errorf("invalid session log name %q: %w", name, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}
	defer f.Close()

	records, err := readRows(f)
	if err != nil {
		return nil, fmt.Errorf("session log %s: %w", name, err)
	}
	return &PersistedLog{VehicleID: vehicleID, Path: path, Records: records}, nil
}

func readRows(r io.Reader) ([]obd.Record, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) != len(logHeader) {
		return nil, fmt.Errorf("unexpected header: got %d columns, want %d", len(header), len(logHeader))
	}

	n := len(obd.DatasetHeader)
	var records []obd.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		reading, err := obd.ParseReading(row[:n])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		loggedAt, err := time.Parse(time.RFC3339Nano, row[n])
		if err != nil {
			return nil, fmt.Errorf("line %d: failed to parse timestamp: %w", line, err)
		}
		prediction, err := strconv.Atoi(row[n+3])
		if err != nil {
			return nil, fmt.Errorf("line %d: failed to parse prediction: %w", line, err)
		}
		probability, err := strconv.ParseFloat(row[n+4], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: failed to parse probability: %w", line, err)
		}

		var tags []string
		if row[n+6] != "" {
			tags = strings.Split(row[n+6], causeSeparator)
		}

		records = append(records, obd.Record{
			Reading:      reading,
			LoggedAt:     loggedAt,
			VehicleID:    row[n+1],
			Driver:       row[n+2],
			Prediction:   prediction,
			Probability:  probability,
			PrimaryCause: row[n+5],
			Causes:       tags,
		})
	}
	return records, nil
}
