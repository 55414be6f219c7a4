package diagram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats_Percentiles(t *testing.T) {
	stats := NewStats(time.Hour)
	for _, ms := range []int{100, 200, 300, 400, 500} {
		stats.Record(time.Duration(ms)*time.Millisecond, true)
	}

	snap := stats.Snapshot()
	assert.Equal(t, 5, snap.Count)
	assert.Equal(t, 100.0, snap.All.MinMs)
	assert.Equal(t, 500.0, snap.All.MaxMs)
	assert.Equal(t, 300.0, snap.All.AvgMs)
	assert.Equal(t, 300.0, snap.All.P50Ms)
	assert.InDelta(t, 480.0, snap.All.P95Ms, 1e-9)
	assert.Equal(t, snap.All, snap.Rendered)
	assert.Zero(t, snap.Failed.Count)
	assert.Zero(t, snap.ErrorRate)
	assert.Equal(t, 3600.0, snap.WindowSeconds)
}

func TestStats_SplitsByOutcome(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record(900*time.Millisecond, true)
	stats.Record(1100*time.Millisecond, true)
	stats.Record(5*time.Millisecond, false)
	stats.Record(1500*time.Microsecond, true)

	snap := stats.Snapshot()
	assert.Equal(t, 4, snap.Count)
	assert.Equal(t, 0.25, snap.ErrorRate)

	assert.Equal(t, 3, snap.Rendered.Count)
	assert.Equal(t, 1.5, snap.Rendered.MinMs)
	assert.Equal(t, 1100.0, snap.Rendered.MaxMs)

	assert.Equal(t, 1, snap.Failed.Count)
	assert.Equal(t, 5.0, snap.Failed.P99Ms)
	assert.Equal(t, 1.5, snap.All.MinMs)
}

func TestStats_PrunesOldCalls(t *testing.T) {
	stats := NewStats(10 * time.Millisecond)
	stats.Record(100*time.Millisecond, false)
	time.Sleep(25 * time.Millisecond)

	assert.Zero(t, stats.Snapshot().Count)

	stats.Record(200*time.Millisecond, true)
	snap := stats.Snapshot()
	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, 200.0, snap.All.MinMs)
	assert.Zero(t, snap.ErrorRate)
}

func TestStats_NegativeDurationIsZero(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record(-10*time.Millisecond, true)
	snap := stats.Snapshot()
	assert.Equal(t, 1, snap.Count)
	assert.Zero(t, snap.All.MaxMs)
}
