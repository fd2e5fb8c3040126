package obd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// DefaultMaxReadings bounds how much of the historical dataset a single
// run may replay.
const DefaultMaxReadings = 15000

// Source is an ordered, finite, replayable sequence of readings.
// Next returns io.EOF once the sequence is exhausted; Reset rewinds to
// the first reading.
type Source interface {
	Reset()
	Next() (Reading, error)
}

// SliceSource replays an in-memory slice of readings, bounded to max
// readings per run (0 means DefaultMaxReadings). It is the backing type
// for CSVSource and SQLiteSource and is handy directly in tests.
type SliceSource struct {
	readings []Reading
	pos      int
}

// NewSliceSource returns a source over readings, truncated to max.
func NewSliceSource(readings []Reading, max int) *SliceSource {
	if max <= 0 {
		max = DefaultMaxReadings
	}
	if len(readings) > max {
		readings = readings[:max]
	}
	return &SliceSource{readings: readings}
}

// Len reports how many readings one full replay yields.
func (s *SliceSource) Len() int { return len(s.readings) }

// Reset rewinds the source to its first reading.
func (s *SliceSource) Reset() { s.pos = 0 }

// Next returns the next reading, or io.EOF when the sequence ends.
func (s *SliceSource) Next() (Reading, error) {
	if s.pos >= len(s.readings) {
		return Reading{}, io.EOF
	}
	r := s.readings[s.pos]
	s.pos++
	return r, nil
}

// NewCSVSource loads the historical OBD dataset from a CSV file with a
// DatasetHeader header row. The whole bounded dataset is held in memory
// so replays never touch the file again.
func NewCSVSource(path string, max int) (*SliceSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}
	if len(header) != len(DatasetHeader) {
		return nil, fmt.Errorf("unexpected dataset header: got %d columns, want %d", len(header), len(DatasetHeader))
	}

	var readings []Reading
	for line := 2; ; line++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset row: %w", err)
		}
		r, err := ParseReading(fields)
		if err != nil {
			return nil, fmt.Errorf("dataset line %d: %w", line, err)
		}
		readings = append(readings, r)
	}

	if len(readings) == 0 {
		return nil, fmt.Errorf("dataset %s contains no readings", path)
	}
	return NewSliceSource(readings, max), nil
}
