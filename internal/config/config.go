// Package config loads the monitor's runtime configuration. The schema
// follows the tuning-file convention: every field is optional in the
// JSON and falls back to a default through its Get accessor, so partial
// configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/fleet.health/internal/causes"
	"github.com/banshee-data/fleet.health/internal/obd"
)

// Dataset kinds accepted by Config.DatasetKind.
const (
	DatasetCSV    = "csv"
	DatasetSQLite = "sqlite"
)

// Vehicle pairs a selectable vehicle id with its driver.
type Vehicle struct {
	ID     string `json:"id"`
	Driver string `json:"driver"`
}

// Config is the root monitor configuration.
type Config struct {
	// Vehicles selectable for monitoring, with their driver mapping.
	Vehicles []Vehicle `json:"vehicles,omitempty"`

	// Historical telemetry dataset.
	DatasetPath *string `json:"dataset_path,omitempty"`
	DatasetKind *string `json:"dataset_kind,omitempty"` // csv or sqlite
	MaxReadings *int    `json:"max_readings,omitempty"`

	// Pretrained classifier artifact.
	ModelPath *string `json:"model_path,omitempty"`

	// Session log storage root.
	LogRoot *string `json:"log_root,omitempty"`

	// Pause between simulation steps, as a duration string like "1ms".
	StepInterval *string `json:"step_interval,omitempty"`

	// Cause-rule thresholds. These heuristics ship with defaults tuned
	// alongside the model; override them here rather than in code.
	CoolantMax       *float64 `json:"coolant_max,omitempty"`
	StallThrottleMax *float64 `json:"stall_throttle_max,omitempty"`
	StallRPMFactor   *float64 `json:"stall_rpm_factor,omitempty"`
	ManifoldMax      *float64 `json:"manifold_max,omitempty"`
	IntakeAirMax     *float64 `json:"intake_air_max,omitempty"`
	IntakeAirMin     *float64 `json:"intake_air_min,omitempty"`
	PedalPressedMin  *float64 `json:"pedal_pressed_min,omitempty"`
	PedalSpeedMax    *float64 `json:"pedal_speed_max,omitempty"`
	MovingSpeedMin   *float64 `json:"moving_speed_min,omitempty"`
}

// defaultVehicles is the fleet roster used when the config names none.
var defaultVehicles = []Vehicle{
	{ID: "KA-01", Driver: "Rishab"},
	{ID: "KA-02", Driver: "Priya"},
	{ID: "KA-03", Driver: "Arjun"},
	{ID: "KA-04", Driver: "Sneha"},
	{ID: "KA-05", Driver: "Ravi"},
}

// Default returns a Config with every field unset, so all accessors
// fall back to their defaults.
func Default() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. Fields omitted from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that could not be acted on.
func (c *Config) Validate() error {
	if c.DatasetKind != nil && *c.DatasetKind != DatasetCSV && *c.DatasetKind != DatasetSQLite {
		return fmt.Errorf("dataset_kind must be %q or %q, got %q", DatasetCSV, DatasetSQLite, *c.DatasetKind)
	}
	if c.MaxReadings != nil && *c.MaxReadings <= 0 {
		return fmt.Errorf("max_readings must be positive, got %d", *c.MaxReadings)
	}
	if c.StepInterval != nil {
		if _, err := time.ParseDuration(*c.StepInterval); err != nil {
			return fmt.Errorf("step_interval: %w", err)
		}
	}
	seen := make(map[string]bool, len(c.Vehicles))
	for _, v := range c.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("vehicle with empty id")
		}
		if seen[v.ID] {
			return fmt.Errorf("duplicate vehicle id %q", v.ID)
		}
		seen[v.ID] = true
	}
	return nil
}

// GetVehicles returns the configured fleet roster, or the default one.
func (c *Config) GetVehicles() []Vehicle {
	if len(c.Vehicles) > 0 {
		return c.Vehicles
	}
	return defaultVehicles
}

// DriverMap returns the vehicle id → driver mapping.
func (c *Config) DriverMap() map[string]string {
	vehicles := c.GetVehicles()
	m := make(map[string]string, len(vehicles))
	for _, v := range vehicles {
		m[v.ID] = v.Driver
	}
	return m
}

// GetDatasetPath returns the telemetry dataset location.
func (c *Config) GetDatasetPath() string {
	if c.DatasetPath != nil {
		return *c.DatasetPath
	}
	return "cleaned_obd_data.csv"
}

// GetDatasetKind returns how the dataset is stored (csv or sqlite).
func (c *Config) GetDatasetKind() string {
	if c.DatasetKind != nil {
		return *c.DatasetKind
	}
	return DatasetCSV
}

// GetMaxReadings bounds how many readings one run may replay.
func (c *Config) GetMaxReadings() int {
	if c.MaxReadings != nil {
		return *c.MaxReadings
	}
	return obd.DefaultMaxReadings
}

// GetModelPath returns the classifier artifact location.
func (c *Config) GetModelPath() string {
	if c.ModelPath != nil {
		return *c.ModelPath
	}
	return "vehicle_breakdown_model.json"
}

// GetLogRoot returns the session-log storage root.
func (c *Config) GetLogRoot() string {
	if c.LogRoot != nil {
		return *c.LogRoot
	}
	return "logs"
}

// GetStepInterval returns the pause between simulation steps.
func (c *Config) GetStepInterval() time.Duration {
	if c.StepInterval != nil {
		if d, err := time.ParseDuration(*c.StepInterval); err == nil {
			return d
		}
	}
	return time.Millisecond
}

// Thresholds assembles the cause-rule constants, applying any overrides
// on top of the package defaults.
func (c *Config) Thresholds() causes.Thresholds {
	t := causes.DefaultThresholds()
	if c.CoolantMax != nil {
		t.CoolantMax = *c.CoolantMax
	}
	if c.StallThrottleMax != nil {
		t.StallThrottleMax = *c.StallThrottleMax
	}
	if c.StallRPMFactor != nil {
		t.StallRPMFactor = *c.StallRPMFactor
	}
	if c.ManifoldMax != nil {
		t.ManifoldMax = *c.ManifoldMax
	}
	if c.IntakeAirMax != nil {
		t.IntakeAirMax = *c.IntakeAirMax
	}
	if c.IntakeAirMin != nil {
		t.IntakeAirMin = *c.IntakeAirMin
	}
	if c.PedalPressedMin != nil {
		t.PedalPressedMin = *c.PedalPressedMin
	}
	if c.PedalSpeedMax != nil {
		t.PedalSpeedMax = *c.PedalSpeedMax
	}
	if c.MovingSpeedMin != nil {
		t.MovingSpeedMin = *c.MovingSpeedMin
	}
	return t
}
