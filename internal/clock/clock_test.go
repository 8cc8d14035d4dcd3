package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock(t *testing.T) {
	before := time.Now()
	got := Now()
	after := time.Now()

	assert.False(t, got.Before(before) || got.After(after), "Now() outside [%v, %v]", before, after)
	assert.GreaterOrEqual(t, RealClock{}.Since(before), time.Duration(0))
}

func TestStepClock(t *testing.T) {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	c := NewStepClock(start, time.Second)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Second), c.Now())

	// Since consumes one reading: start+2s - start
	assert.Equal(t, 2*time.Second, c.Since(start))

	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour+3*time.Second), c.Now())
}

func TestStepClock_Frozen(t *testing.T) {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	c := NewStepClock(start, 0)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now())
	assert.Zero(t, c.Since(start))
}
