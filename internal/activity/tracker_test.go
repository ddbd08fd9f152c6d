package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock lets tests control the tracker's notion of now.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time {
	return c.t
}

func (c *fixedClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestTracker(decayMs int64) (*Tracker, *fixedClock) {
	clock := &fixedClock{t: time.UnixMilli(1_000_000)}
	tr := NewTracker(decayMs)
	tr.now = clock.now
	return tr, clock
}

func TestRecordCreatesAndUpdatesEMA(t *testing.T) {
	tr, _ := newTestTracker(0)

	tr.Record(100, 0.5)
	rec, ok := tr.Snapshot(100)
	require.True(t, ok)
	assert.Equal(t, 0.5, rec.AvgRMS)
	assert.Equal(t, int64(1), rec.SampleCount)

	tr.Record(100, 0.1)
	rec, _ = tr.Snapshot(100)
	// 0.5*0.9 + 0.1*0.1
	assert.InDelta(t, 0.46, rec.AvgRMS, 1e-9)
	assert.Equal(t, int64(2), rec.SampleCount)
}

func TestRankMostRecentFirst(t *testing.T) {
	tr, clock := newTestTracker(0)

	tr.Record(1, 0.2)
	clock.advance(time.Second)
	tr.Record(2, 0.2)
	clock.advance(time.Second)
	tr.Record(3, 0.2)

	assert.Equal(t, []int{3, 2, 1}, tr.Rank([]int{1, 2, 3}))
}

func TestRankUnknownSourcesLastAndStable(t *testing.T) {
	tr, clock := newTestTracker(0)

	tr.Record(5, 0.2)
	clock.advance(time.Second)
	tr.Record(7, 0.2)

	assert.Equal(t, []int{7, 5, 9, 11}, tr.Rank([]int{9, 5, 11, 7}))
}

func TestEvictExpired(t *testing.T) {
	tr, clock := newTestTracker(30000)

	tr.Record(1, 0.2)
	clock.advance(31 * time.Second)

	_, ok := tr.Snapshot(1)
	assert.False(t, ok)
}

func TestDisableClearsAndIgnoresRecords(t *testing.T) {
	tr, _ := newTestTracker(0)

	tr.Record(1, 0.2)
	tr.Disable()

	_, ok := tr.Snapshot(1)
	assert.False(t, ok)

	tr.Record(1, 0.2)
	_, ok = tr.Snapshot(1)
	assert.False(t, ok)

	// Disabled rank preserves input order.
	assert.Equal(t, []int{3, 1, 2}, tr.Rank([]int{3, 1, 2}))

	tr.Enable()
	tr.Record(1, 0.2)
	_, ok = tr.Snapshot(1)
	assert.True(t, ok)
}
