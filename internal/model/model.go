// Package model wraps the pretrained breakdown classifier. The
// artifact is consumed as-is: training happens elsewhere and the
// monitor only loads the exported weights and asks for predictions.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/fleet.health/internal/obd"
)

// Classifier is a binary breakdown predictor over the fixed OBD feature
// vector. Predict returns 0 (normal) or 1 (breakdown);
// PredictProbability returns P(breakdown) in [0,1]. Both fail on
// malformed input, which is fatal to the run that submitted it.
type Classifier interface {
	Predict(features []float64) (int, error)
	PredictProbability(features []float64) (float64, error)
}

// Artifact is a pretrained logistic model exported to JSON. The
// exporter writes the feature column order alongside the weights so a
// mismatched artifact is rejected at load time instead of producing
// silent garbage.
type Artifact struct {
	FeatureColumns []string  `json:"feature_columns"`
	Weights        []float64 `json:"weights"`
	Intercept      float64   `json:"intercept"`
	Threshold      float64   `json:"threshold"` // decision boundary on P(breakdown)
}

// Load reads a model artifact from a JSON file.
func Load(path string) (*Artifact, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("model artifact must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", cleanPath, err)
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	if len(a.Weights) == 0 {
		return fmt.Errorf("artifact has no weights")
	}
	if len(a.FeatureColumns) != len(a.Weights) {
		return fmt.Errorf("%d feature columns but %d weights", len(a.FeatureColumns), len(a.Weights))
	}
	if len(a.FeatureColumns) != len(obd.FeatureColumns) {
		return fmt.Errorf("artifact trained on %d features, monitor supplies %d", len(a.FeatureColumns), len(obd.FeatureColumns))
	}
	for i, col := range a.FeatureColumns {
		if col != obd.FeatureColumns[i] {
			return fmt.Errorf("feature %d is %q, want %q", i, col, obd.FeatureColumns[i])
		}
	}
	if a.Threshold <= 0 || a.Threshold >= 1 {
		return fmt.Errorf("decision threshold %v outside (0,1)", a.Threshold)
	}
	return nil
}

func (a *Artifact) checkInput(features []float64) error {
	if len(features) != len(a.Weights) {
		return fmt.Errorf("expected %d features, got %d", len(a.Weights), len(features))
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %d (%s) is not finite: %v", i, a.FeatureColumns[i], v)
		}
	}
	return nil
}

// PredictProbability returns P(breakdown) for the feature vector.
func (a *Artifact) PredictProbability(features []float64) (float64, error) {
	if err := a.checkInput(features); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}
	z := a.Intercept
	for i, w := range a.Weights {
		z += w * features[i]
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// Predict returns the binary breakdown verdict for the feature vector.
func (a *Artifact) Predict(features []float64) (int, error) {
	p, err := a.PredictProbability(features)
	if err != nil {
		return 0, err
	}
	if p >= a.Threshold {
		return 1, nil
	}
	return 0, nil
}
