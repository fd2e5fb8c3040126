// Command gen-model writes a breakdown-model artifact with hand-tuned
// logistic weights. It stands in for the real exported model when
// bringing up a development server against a synthetic dataset.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/banshee-data/fleet.health/internal/model"
	"github.com/banshee-data/fleet.health/internal/obd"
)

func main() {
	output := flag.String("o", "vehicle_breakdown_model.json", "output path")
	threshold := flag.Float64("threshold", 0.5, "decision boundary on P(breakdown)")
	flag.Parse()

	// weights in obd.FeatureColumns order: hot coolant, high manifold
	// pressure, and heavy pedal input push the score up; healthy rpm,
	// speed, and airflow pull it down.
	artifact := model.Artifact{
		FeatureColumns: obd.FeatureColumns,
		Weights: []float64{
			0.09,   // coolant temperature
			0.015,  // manifold pressure
			-0.001, // rpm
			-0.02,  // vehicle speed
			0.03,   // intake air temperature
			-0.05,  // airflow rate
			0.01,   // throttle position
			0.005,  // ambient air temperature
			0.02,   // accelerator pedal D
			0.02,   // accelerator pedal E
		},
		Intercept: -9.5,
		Threshold: *threshold,
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode artifact: %v", err)
	}
	if err := os.WriteFile(*output, append(data, '\n'), 0o644); err != nil {
		log.Fatalf("failed to write artifact: %v", err)
	}
	log.Printf("✓ Created: %s", *output)
}
