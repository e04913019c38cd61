package ui

import (
	"fmt"
	"sync"
	"time"
)

const (
	// speedSampleInterval spaces throughput samples so short bursts do
	// not produce noise.
	speedSampleInterval = 500 * time.Millisecond

	// speedSmoothing is the exponential smoothing factor for the
	// rolling average speed.
	speedSmoothing = 0.2

	// etaSmoothing damps ETA swings between samples. 0.3 means 30%
	// new estimate, 70% previous.
	etaSmoothing = 0.3
)

// Tracker accumulates pass state for display. It is safe for
// concurrent use; the indexing goroutine feeds it events while the
// TUI reads snapshots from its render loop.
type Tracker struct {
	mu sync.Mutex

	vault      string
	filesDone  int
	filesTotal int
	chunks     int

	started    time.Time
	vaultStart time.Time
	doneVaults []string

	errors   []ErrorEvent
	warnings []ErrorEvent

	lastETA time.Duration

	lastChunks int
	lastSample time.Time
	speed      float64
	avgSpeed   float64
	peakSpeed  float64
	samples    int
	spark      *Sparkline
}

// SpeedStats contains chunk throughput metrics.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of tracker state.
type ProgressStats struct {
	Vault      string
	FilesDone  int
	FilesTotal int
	Chunks     int
	Fraction   float64
	ETA        time.Duration
	DoneVaults []string
	ErrorCount int
	WarnCount  int
	Speed      SpeedStats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{
		started:    now,
		vaultStart: now,
		lastSample: now,
		spark:      NewSparkline(60),
	}
}

// Apply folds one progress event into the tracker. A vault change
// finishes the previous phase and resets the per-vault counters.
func (t *Tracker) Apply(event ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Vault != t.vault {
		if t.vault != "" {
			t.doneVaults = append(t.doneVaults, t.vault)
		}
		t.vault = event.Vault
		t.vaultStart = time.Now()
		t.lastETA = 0
		t.lastChunks = 0
		t.lastSample = t.vaultStart
		t.speed = 0
		t.avgSpeed = 0
		t.peakSpeed = 0
		t.samples = 0
		t.spark.Clear()
	}

	t.filesDone = event.FilesDone
	t.filesTotal = event.FilesTotal
	t.chunks = event.Chunks

	now := time.Now()
	elapsed := now.Sub(t.lastSample)
	if elapsed < speedSampleInterval {
		return
	}
	if delta := event.Chunks - t.lastChunks; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		t.speed = speed
		t.samples++
		if t.samples == 1 {
			t.avgSpeed = speed
		} else {
			t.avgSpeed = speedSmoothing*speed + (1-speedSmoothing)*t.avgSpeed
		}
		if speed > t.peakSpeed {
			t.peakSpeed = speed
		}
		t.spark.Add(speed)
	}
	t.lastChunks = event.Chunks
	t.lastSample = now
}

// AddError records an error or warning.
func (t *Tracker) AddError(event ErrorEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Warn {
		t.warnings = append(t.warnings, event)
	} else {
		t.errors = append(t.errors, event)
	}
}

// Stats returns a snapshot of the current state.
func (t *Tracker) Stats() ProgressStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	fraction := 0.0
	if t.filesTotal > 0 {
		fraction = float64(t.filesDone) / float64(t.filesTotal)
		if fraction > 1.0 {
			fraction = 1.0
		}
	}

	done := make([]string, len(t.doneVaults))
	copy(done, t.doneVaults)

	return ProgressStats{
		Vault:      t.vault,
		FilesDone:  t.filesDone,
		FilesTotal: t.filesTotal,
		Chunks:     t.chunks,
		Fraction:   fraction,
		ETA:        t.etaLocked(),
		DoneVaults: done,
		ErrorCount: len(t.errors),
		WarnCount:  len(t.warnings),
		Speed: SpeedStats{
			Current: t.speed,
			Avg:     t.avgSpeed,
			Peak:    t.peakSpeed,
		},
	}
}

// Elapsed returns time since tracker creation.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.started)
}

// Errors returns the recorded errors.
func (t *Tracker) Errors() []ErrorEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ErrorEvent, len(t.errors))
	copy(out, t.errors)
	return out
}

// Warnings returns the recorded warnings.
func (t *Tracker) Warnings() []ErrorEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ErrorEvent, len(t.warnings))
	copy(out, t.warnings)
	return out
}

// RenderSparkline returns the throughput sparkline at the given width.
func (t *Tracker) RenderSparkline(width int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spark.Render(width)
}

// etaLocked estimates time left in the current vault, smoothed so
// batch-to-batch variance does not make it jump. Caller holds t.mu.
func (t *Tracker) etaLocked() time.Duration {
	if t.filesDone == 0 || t.filesTotal == 0 {
		return 0
	}
	fraction := float64(t.filesDone) / float64(t.filesTotal)
	if fraction <= 0 || fraction >= 1.0 {
		return 0
	}

	elapsed := time.Since(t.vaultStart)
	raw := time.Duration(float64(elapsed)/fraction) - elapsed
	if raw < 0 {
		return 0
	}

	if t.lastETA == 0 {
		t.lastETA = raw
		return raw
	}
	smoothed := time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(t.lastETA))
	t.lastETA = smoothed
	return smoothed
}

// formatDuration renders a duration for display, rounded to seconds.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}
