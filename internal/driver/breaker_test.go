package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeGuard_TripAndRecover(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	g := newProbeGuard(3, time.Minute)
	g.now = func() time.Time { return now }
	const path = "/dev/ttyUSB0"

	assert.True(t, g.Allow(path))
	assert.False(t, g.Failure(path))
	assert.False(t, g.Failure(path))
	assert.Equal(t, StateClosed, g.State(path))
	assert.True(t, g.Failure(path), "third failure trips")
	assert.Equal(t, StateOpen, g.State(path))
	assert.False(t, g.Allow(path))

	now = now.Add(time.Minute)
	assert.True(t, g.Allow(path))
	assert.Equal(t, StateHalfOpen, g.State(path))

	assert.True(t, g.Failure(path), "half-open failure re-trips immediately")
	assert.False(t, g.Allow(path))

	now = now.Add(2 * time.Minute)
	require.True(t, g.Allow(path))
	g.Success(path)
	assert.Equal(t, StateClosed, g.State(path))
	assert.Empty(t, g.Stats())
}

func TestProbeGuard_Disabled(t *testing.T) {
	g := newProbeGuard(0, time.Minute)
	for i := 0; i < 10; i++ {
		assert.False(t, g.Failure("/dev/ttyUSB0"))
	}
	assert.True(t, g.Allow("/dev/ttyUSB0"))
	assert.Empty(t, g.Stats())
}

func TestProbeGuard_PathsIndependent(t *testing.T) {
	g := newProbeGuard(1, time.Hour)
	assert.True(t, g.Failure("/dev/ttyUSB0"))
	assert.False(t, g.Allow("/dev/ttyUSB0"))
	assert.True(t, g.Allow("/dev/ttyUSB1"))

	stats := g.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "open", stats[0].State)
	assert.Equal(t, 1, stats[0].Failures)
}
