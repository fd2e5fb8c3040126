package obd

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// DB wraps the sqlite database holding the historical OBD dataset.
type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the telemetry database at path and ensures
// the readings table exists.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS obd_readings (
			reading_time          TIMESTAMP,
			coolant_temp          DOUBLE,
			manifold_pressure     DOUBLE,
			rpm                   DOUBLE,
			speed                 DOUBLE,
			intake_air_temp       DOUBLE,
			airflow_rate          DOUBLE,
			throttle_position     DOUBLE,
			ambient_air_temp      DOUBLE,
			accel_pedal_pos_d     DOUBLE,
			accel_pedal_pos_e     DOUBLE
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// RecordReading appends one reading to the dataset. Used by seeding
// tools; the monitor itself only ever reads.
func (db *DB) RecordReading(r Reading) error {
	_, err := db.DB.Exec(`
		INSERT INTO obd_readings (
			reading_time, coolant_temp, manifold_pressure, rpm, speed,
			intake_air_temp, airflow_rate, throttle_position,
			ambient_air_temp, accel_pedal_pos_d, accel_pedal_pos_e
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.Format(TimestampLayout),
		r.CoolantTemp, r.ManifoldPressure, r.RPM, r.Speed,
		r.IntakeAirTemp, r.AirflowRate, r.ThrottlePosition,
		r.AmbientAirTemp, r.AccelPedalD, r.AccelPedalE,
	)
	if err != nil {
		return fmt.Errorf("failed to record reading: %w", err)
	}
	return nil
}

// Readings returns the dataset in insertion order.
func (db *DB) Readings() ([]Reading, error) {
	rows, err := db.DB.Query(`
		SELECT reading_time, coolant_temp, manifold_pressure, rpm, speed,
		       intake_air_temp, airflow_rate, throttle_position,
		       ambient_air_temp, accel_pedal_pos_d, accel_pedal_pos_e
		FROM obd_readings
		ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		var ts string
		if err := rows.Scan(
			&ts, &r.CoolantTemp, &r.ManifoldPressure, &r.RPM, &r.Speed,
			&r.IntakeAirTemp, &r.AirflowRate, &r.ThrottlePosition,
			&r.AmbientAirTemp, &r.AccelPedalD, &r.AccelPedalE,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		parsed, err := time.Parse(TimestampLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse reading_time: %w", err)
		}
		r.Timestamp = parsed
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

// NewSQLiteSource loads the bounded dataset out of db into a replayable
// source.
func NewSQLiteSource(db *DB, max int) (*SliceSource, error) {
	readings, err := db.Readings()
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("telemetry database contains no readings")
	}
	return NewSliceSource(readings, max), nil
}

// AttachAdminRoutes mounts debugging endpoints for the telemetry
// database under /debug/: a tailSQL console for live queries and an
// on-demand gzipped backup download. These routes are only reachable
// locally or over the tailnet.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://telemetry.db", db.DB, &tailsql.DBOptions{
		Label: "Telemetry DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the telemetry database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
