package model

import "fmt"

// Mock implements Classifier with scripted outcomes for testing.
// Probabilities are consumed in order and the last one repeats once the
// script runs out; FailAfter > 0 makes the nth call onward fail, which
// lets tests exercise mid-run classifier failures.
type Mock struct {
	Probabilities []float64
	Threshold     float64
	FailAfter     int // 1-based call number at which inference starts failing; 0 = never

	calls int
}

// NewMock returns a mock classifier with a 0.5 decision threshold.
func NewMock(probabilities ...float64) *Mock {
	return &Mock{Probabilities: probabilities, Threshold: 0.5}
}

func (m *Mock) next() (float64, error) {
	m.calls++
	if m.FailAfter > 0 && m.calls >= m.FailAfter {
		return 0, fmt.Errorf("inference failed: scripted failure on call %d", m.calls)
	}
	if len(m.Probabilities) == 0 {
		return 0, nil
	}
	idx := m.calls - 1
	if idx >= len(m.Probabilities) {
		idx = len(m.Probabilities) - 1
	}
	return m.Probabilities[idx], nil
}

// PredictProbability returns the next scripted probability.
func (m *Mock) PredictProbability(features []float64) (float64, error) {
	return m.next()
}

// Predict applies the mock threshold to the next scripted probability.
// The probability cursor does not advance between the Predict and
// PredictProbability calls a controller step makes, so both see the
// same value.
func (m *Mock) Predict(features []float64) (int, error) {
	p, err := m.Peek()
	if err != nil {
		return 0, err
	}
	if p >= m.Threshold {
		return 1, nil
	}
	return 0, nil
}

// Peek reports the probability the next PredictProbability call will
// return, without advancing or failing.
func (m *Mock) Peek() (float64, error) {
	if m.FailAfter > 0 && m.calls+1 >= m.FailAfter {
		return 0, fmt.Errorf("inference failed: scripted failure on call %d", m.calls+1)
	}
	if len(m.Probabilities) == 0 {
		return 0, nil
	}
	idx := m.calls
	if idx >= len(m.Probabilities) {
		idx = len(m.Probabilities) - 1
	}
	return m.Probabilities[idx], nil
}

// Calls reports how many PredictProbability calls the mock has served.
func (m *Mock) Calls() int { return m.calls }
