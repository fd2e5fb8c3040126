package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	var c Clock = RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("RealClock.Now() = %v, outside [%v, %v]", got, before, after)
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now = %v, want %v", c.Now(), start)
	}

	c.Sleep(time.Second)
	c.Sleep(2 * time.Second)
	if want := start.Add(3 * time.Second); !c.Now().Equal(want) {
		t.Errorf("Now after sleeps = %v, want %v", c.Now(), want)
	}

	slept := c.Slept()
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Errorf("Slept = %v, want [1s 2s]", slept)
	}

	c.Advance(time.Minute)
	if want := start.Add(3*time.Second + time.Minute); !c.Now().Equal(want) {
		t.Errorf("Now after Advance = %v, want %v", c.Now(), want)
	}
	if len(c.Slept()) != 2 {
		t.Error("Advance should not record a sleep")
	}
}
