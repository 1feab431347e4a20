package ml

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAcquireRelease(t *testing.T) {
	m := NewBufferManager(testLogger())

	released := false
	m.Acquire("a", func() error {
		released = true
		return nil
	})
	assert.Equal(t, 1, m.ActiveCount())

	m.Release("a")
	assert.True(t, released)
	assert.Zero(t, m.ActiveCount())

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.TotalAcquired)
	assert.Equal(t, int64(1), stats.TotalReleased)
	assert.False(t, stats.LastReleaseAt.IsZero())
}

func TestBufferReleaseUnknownIDIsNoOp(t *testing.T) {
	m := NewBufferManager(testLogger())

	m.Release("never-acquired")
	stats := m.Stats()
	assert.Zero(t, stats.TotalReleased)
}

func TestBufferDoubleReleaseIsSafe(t *testing.T) {
	m := NewBufferManager(testLogger())

	calls := 0
	m.Acquire("a", func() error {
		calls++
		return nil
	})
	m.Release("a")
	m.Release("a")
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), m.Stats().TotalReleased)
}

func TestBufferReleaseErrorCounted(t *testing.T) {
	m := NewBufferManager(testLogger())

	m.Acquire("bad", func() error {
		return errors.New("scratch already freed")
	})
	m.Release("bad")

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.ReleaseErrors)
	assert.Zero(t, stats.CurrentActive)
}

func TestBufferReleaseAll(t *testing.T) {
	m := NewBufferManager(testLogger())

	for _, id := range []string{"a", "b", "c"} {
		m.Acquire(id, nil)
	}
	require.Equal(t, 3, m.ActiveCount())

	m.ReleaseAll()
	assert.Zero(t, m.ActiveCount())
	assert.Equal(t, int64(3), m.Stats().TotalReleased)
}
