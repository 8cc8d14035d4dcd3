// Package clock provides a mockable time source.
// Run durations and timestamps reported in metrics and audit logs go through
// it so tests can pin them.
package clock

import (
	"sync"
	"time"
)

// Clock is the interface for time operations.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock provides the actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// System is the clock used when none is injected.
var System Clock = RealClock{}

// StepClock starts at a fixed time and moves forward by Step on every Now call.
// A zero Step yields a frozen clock.
type StepClock struct {
	mu      sync.Mutex
	current time.Time
	Step    time.Duration
}

// NewStepClock creates a StepClock starting at start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{current: start, Step: step}
}

// Now returns the current mock time, then advances it.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.current
	c.current = c.current.Add(c.Step)
	return t
}

// Since returns the duration between t and the next reading.
func (c *StepClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d without consuming a step.
func (c *StepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Now returns the time of the System clock.
func Now() time.Time {
	return System.Now()
}

// Since returns the time elapsed since t on the System clock.
func Since(t time.Time) time.Duration {
	return System.Since(t)
}
