package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracker_ZeroStats(t *testing.T) {
	// Given: a fresh tracker
	tr := NewTracker()

	// When: taking a snapshot
	stats := tr.Stats()

	// Then: everything is zero
	assert.Empty(t, stats.Vault)
	assert.Equal(t, 0, stats.FilesDone)
	assert.Equal(t, 0, stats.FilesTotal)
	assert.Equal(t, 0, stats.Chunks)
	assert.Zero(t, stats.Fraction)
	assert.Zero(t, stats.ETA)
	assert.Empty(t, stats.DoneVaults)
}

func TestTracker_Apply_UpdatesCounts(t *testing.T) {
	// Given: a tracker
	tr := NewTracker()

	// When: applying a progress event
	tr.Apply(ProgressEvent{Vault: "work", FilesDone: 50, FilesTotal: 120, Chunks: 340})

	// Then: the snapshot reflects it
	stats := tr.Stats()
	assert.Equal(t, "work", stats.Vault)
	assert.Equal(t, 50, stats.FilesDone)
	assert.Equal(t, 120, stats.FilesTotal)
	assert.Equal(t, 340, stats.Chunks)
	assert.InDelta(t, 50.0/120.0, stats.Fraction, 0.001)
}

func TestTracker_Fraction_ClampedToOne(t *testing.T) {
	// Given: a tracker with done beyond total
	tr := NewTracker()
	tr.Apply(ProgressEvent{Vault: "work", FilesDone: 15, FilesTotal: 10})

	// Then: fraction caps at 1.0
	assert.Equal(t, 1.0, tr.Stats().Fraction)
}

func TestTracker_VaultChange_StartsNewPhase(t *testing.T) {
	// Given: a tracker mid-way through the work vault
	tr := NewTracker()
	tr.Apply(ProgressEvent{Vault: "work", FilesDone: 120, FilesTotal: 120, Chunks: 890})

	// When: the personal vault starts reporting
	tr.Apply(ProgressEvent{Vault: "personal", FilesDone: 5, FilesTotal: 45, Chunks: 20})

	// Then: work is recorded as done and counters follow the new vault
	stats := tr.Stats()
	assert.Equal(t, "personal", stats.Vault)
	assert.Equal(t, 5, stats.FilesDone)
	assert.Equal(t, 45, stats.FilesTotal)
	assert.Equal(t, 20, stats.Chunks)
	assert.Equal(t, []string{"work"}, stats.DoneVaults)
}

func TestTracker_AddError_SplitsWarningsFromErrors(t *testing.T) {
	// Given: a tracker
	tr := NewTracker()

	// When: recording two warnings and one error
	tr.AddError(ErrorEvent{Path: "a.md", Err: errors.New("unreadable"), Warn: true})
	tr.AddError(ErrorEvent{Path: "b.md", Err: errors.New("skipped"), Warn: true})
	tr.AddError(ErrorEvent{Path: "c.md", Err: errors.New("write failed")})

	// Then: counts and lists are split by severity
	stats := tr.Stats()
	assert.Equal(t, 2, stats.WarnCount)
	assert.Equal(t, 1, stats.ErrorCount)

	require.Len(t, tr.Warnings(), 2)
	require.Len(t, tr.Errors(), 1)
	assert.Equal(t, "c.md", tr.Errors()[0].Path)
}

func TestTracker_ETA_ZeroBeforeProgress(t *testing.T) {
	// Given: a tracker that has not progressed
	tr := NewTracker()
	tr.Apply(ProgressEvent{Vault: "work", FilesDone: 0, FilesTotal: 100})

	// Then: no ETA yet
	assert.Zero(t, tr.Stats().ETA)
}

func TestTracker_ETA_PositiveMidPass(t *testing.T) {
	// Given: a tracker a quarter through a vault
	tr := NewTracker()
	tr.Apply(ProgressEvent{Vault: "work", FilesDone: 0, FilesTotal: 100})
	time.Sleep(20 * time.Millisecond)

	// When: progress arrives
	tr.Apply(ProgressEvent{Vault: "work", FilesDone: 25, FilesTotal: 100, Chunks: 40})

	// Then: the estimate is positive and finite
	eta := tr.Stats().ETA
	assert.Greater(t, eta, time.Duration(0))
	assert.Less(t, eta, time.Minute)
}

func TestTracker_SpeedSampling(t *testing.T) {
	// Given: a tracker with two samples spaced past the interval
	tr := NewTracker()
	tr.Apply(ProgressEvent{Vault: "work", FilesDone: 0, FilesTotal: 100, Chunks: 0})
	time.Sleep(speedSampleInterval + 20*time.Millisecond)

	// When: chunks advance
	tr.Apply(ProgressEvent{Vault: "work", FilesDone: 50, FilesTotal: 100, Chunks: 200})

	// Then: throughput is measured and charted
	stats := tr.Stats()
	assert.Greater(t, stats.Speed.Current, 0.0)
	assert.Greater(t, stats.Speed.Avg, 0.0)
	assert.GreaterOrEqual(t, stats.Speed.Peak, stats.Speed.Current)
	assert.Contains(t, tr.RenderSparkline(10), "█")
}

func TestTracker_Elapsed(t *testing.T) {
	// Given: a tracker created a moment ago
	tr := NewTracker()
	time.Sleep(10 * time.Millisecond)

	// Then: elapsed time is positive
	assert.Greater(t, tr.Elapsed(), time.Duration(0))
}

func TestTracker_ThreadSafety(t *testing.T) {
	// Given: a tracker under concurrent use
	tr := NewTracker()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(n int) {
			tr.Apply(ProgressEvent{Vault: "work", FilesDone: n, FilesTotal: 100, Chunks: n * 3})
			tr.AddError(ErrorEvent{Path: "x.md", Err: errors.New("test"), Warn: n%2 == 0})
			_ = tr.Stats()
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	// Then: no race, all errors recorded
	stats := tr.Stats()
	assert.Equal(t, 10, stats.ErrorCount+stats.WarnCount)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{5 * time.Second, "5s"},
		{59 * time.Second, "59s"},
		{time.Minute, "1m"},
		{90 * time.Second, "1m 30s"},
		{time.Hour, "1h 0m"},
		{65 * time.Minute, "1h 5m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}

func TestSparkline_RendersScaledBars(t *testing.T) {
	// Given: a full sparkline
	s := NewSparkline(4)
	s.Add(1)
	s.Add(2)
	s.Add(3)
	s.Add(4)

	// Then: bars scale against the maximum
	assert.Equal(t, "▂▄▆█", s.Render(4))
	assert.Equal(t, 4, s.Count())
}

func TestSparkline_EvictsOldestSample(t *testing.T) {
	// Given: a sparkline past capacity
	s := NewSparkline(4)
	for _, v := range []float64{1, 2, 3, 4} {
		s.Add(v)
	}

	// When: one more sample lands
	s.Add(8)

	// Then: the oldest sample is gone and the scale follows the peak
	assert.Equal(t, "▂▃▄█", s.Render(4))
}

func TestSparkline_PadsUntilFull(t *testing.T) {
	// Given: a sparkline with a single sample
	s := NewSparkline(8)
	s.Add(2)

	// Then: rendering right-aligns it
	assert.Equal(t, "   █", s.Render(4))
}

func TestSparkline_Clear(t *testing.T) {
	// Given: a sparkline with samples
	s := NewSparkline(4)
	s.Add(5)
	s.Add(7)

	// When: clearing
	s.Clear()

	// Then: nothing renders
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, "    ", s.Render(4))
}
