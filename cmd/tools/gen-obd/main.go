// Command gen-obd generates a synthetic OBD telemetry dataset for
// testing monitoring runs without the real capture. It writes either a
// CSV export or a sqlite database, matching the two dataset backends
// the server accepts.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/fleet.health/internal/obd"
)

func main() {
	output := flag.String("o", "cleaned_obd_data.csv", "output path (.csv or .db)")
	kind := flag.String("kind", "csv", "dataset backend: csv or sqlite")
	count := flag.Int("n", 15000, "number of readings")
	faultEvery := flag.Int("fault-every", 500, "inject a fault reading every n rows (0 = none)")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	readings := generate(rng, *count, *faultEvery)

	var err error
	switch *kind {
	case "csv":
		err = writeCSV(*output, readings)
	case "sqlite":
		err = writeSQLite(*output, readings)
	default:
		log.Fatalf("unknown dataset kind %q (want csv or sqlite)", *kind)
	}
	if err != nil {
		log.Fatalf("failed to write dataset: %v", err)
	}
	log.Printf("✓ Created: %s (%d readings)", *output, len(readings))
}

// generate produces a plausible drive cycle: speed and rpm follow a
// slow sine sweep with jitter, everything else tracks the throttle.
func generate(rng *rand.Rand, n, faultEvery int) []obd.Reading {
	base := time.Now().Add(-time.Duration(n) * time.Second).Truncate(time.Second)
	readings := make([]obd.Reading, n)
	for i := range readings {
		phase := float64(i) / 120
		throttle := 35 + 25*math.Sin(phase) + rng.Float64()*5
		speed := math.Max(0, 45+40*math.Sin(phase)+rng.Float64()*6)
		r := obd.Reading{
			Timestamp:        base.Add(time.Duration(i) * time.Second),
			CoolantTemp:      82 + rng.Float64()*10,
			ManifoldPressure: 90 + throttle + rng.Float64()*20,
			RPM:              900 + throttle*55 + rng.Float64()*200,
			Speed:            speed,
			IntakeAirTemp:    28 + rng.Float64()*8,
			AirflowRate:      6 + throttle/4 + rng.Float64()*3,
			ThrottlePosition: throttle,
			AmbientAirTemp:   24 + rng.Float64()*4,
			AccelPedalD:      throttle * 0.9,
			AccelPedalE:      throttle * 0.85,
		}
		if faultEvery > 0 && i > 0 && i%faultEvery == 0 {
			injectFault(rng, &r)
		}
		readings[i] = r
	}
	return readings
}

func injectFault(rng *rand.Rand, r *obd.Reading) {
	switch rng.Intn(4) {
	case 0: // overheating
		r.CoolantTemp = 102 + rng.Float64()*15
	case 1: // stall: rpm far below what the throttle asks for
		r.ThrottlePosition = 40 + rng.Float64()*20
		r.RPM = r.ThrottlePosition * 20
	case 2: // manifold blockage
		r.ManifoldPressure = 225 + rng.Float64()*30
	case 3: // stuck in neutral
		r.AccelPedalD = 40 + rng.Float64()*20
		r.Speed = rng.Float64() * 3
	}
}

func writeCSV(path string, readings []obd.Reading) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(obd.DatasetHeader); err != nil {
		return err
	}
	for _, r := range readings {
		row := make([]string, 0, len(obd.DatasetHeader))
		row = append(row, r.Timestamp.Format(obd.TimestampLayout))
		for _, v := range r.FeatureVector() {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeSQLite(path string, readings []obd.Reading) error {
	db, err := obd.NewDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	for i, r := range readings {
		if err := db.RecordReading(r); err != nil {
			return fmt.Errorf("reading %d: %w", i, err)
		}
	}
	return nil
}
