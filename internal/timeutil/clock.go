// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides the time operations the monitor loop needs: stamping
// records and pacing iterations. Use RealClock in production and
// MockClock in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses for the specified duration.
	Sleep(d time.Duration)
}

// RealClock implements Clock using the time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// Sleep pauses for the specified duration.
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// MockClock implements Clock with a controllable current time. Sleep
// advances the mock time instantly and records the requested duration,
// so loop pacing can be asserted without real delays.
type MockClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

// NewMockClock returns a MockClock starting at now.
func NewMockClock(now time.Time) *MockClock {
	return &MockClock{now: now}
}

// Now returns the mock current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the mock time by d without blocking.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
}

// Advance moves the mock time forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Slept returns the durations passed to Sleep, in order.
func (c *MockClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.slept))
	copy(out, c.slept)
	return out
}
