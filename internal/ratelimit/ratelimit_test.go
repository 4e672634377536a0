package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdmitZeroThresholdAlwaysAdmits(t *testing.T) {
	l := New(0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Admit())
	}
}

func TestAdmitBlocksBurstOverThreshold(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := New(1.0) // one admitted cycle per minute over the window
	l.now = func() time.Time { return now }

	// 10 admissions in the same instant reach the 1/min rate over the
	// 10 minute window.
	for i := 0; i < 10; i++ {
		assert.True(t, l.Admit(), "admission %d", i)
	}
	assert.False(t, l.Admit(), "burst above threshold must defer")
}

func TestAdmitRecoversAfterWindowAges(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := New(1.0)
	l.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		assert.True(t, l.Admit())
	}
	assert.False(t, l.Admit())

	// Once the burst falls out of the window, cycles run again
	now = now.Add(Window + time.Second)
	assert.True(t, l.Admit())
}

func TestRateCountsOnlyAdmittedCycles(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := New(0.5)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		assert.True(t, l.Admit())
	}
	assert.Equal(t, 0.5, l.Rate())

	// Deferred cycles are remembered but do not raise the rate
	assert.False(t, l.Admit())
	assert.False(t, l.Admit())
	assert.Equal(t, 0.5, l.Rate())
}
