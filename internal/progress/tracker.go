package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status is a point-in-time snapshot of migration progress.
type Status struct {
	TotalObjects     int64
	ProcessedObjects int64
	DoneObjects      int64
	FailedObjects    int64
	SkippedObjects   int64
	TotalBytes       int64
	ProcessedBytes   int64
	SkippedBytes     int64
	StartTime        time.Time
	CurrentSpeed     float64 // bytes/second over the recent window
	AverageSpeed     float64 // bytes/second since start
	ETA              time.Duration
}

// Tracker accumulates per-object outcomes from concurrent workers.
type Tracker struct {
	mu           sync.RWMutex
	status       Status
	speedSamples []speedSample
	maxSamples   int
}

type speedSample struct {
	timestamp time.Time
	bytes     int64
}

// NewTracker creates a tracker with the clock started.
func NewTracker() *Tracker {
	return &Tracker{
		status:       Status{StartTime: time.Now()},
		speedSamples: make([]speedSample, 0, 60),
		maxSamples:   60,
	}
}

// SetTotal records the planned object and byte totals, when known.
func (t *Tracker) SetTotal(objects, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.TotalObjects = objects
	t.status.TotalBytes = bytes
}

// AddDone records one successfully migrated object.
func (t *Tracker) AddDone(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.DoneObjects++
	t.status.ProcessedObjects++
	t.status.ProcessedBytes += bytes
	t.updateSpeed(bytes)
}

// AddFailed records one terminally failed object.
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.FailedObjects++
	t.status.ProcessedObjects++
}

// AddSkipped records one object skipped because it was already done.
func (t *Tracker) AddSkipped(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.SkippedObjects++
	t.status.SkippedBytes += bytes
	t.status.ProcessedObjects++
}

// updateSpeed maintains the sliding speed window. Caller holds the lock.
func (t *Tracker) updateSpeed(bytes int64) {
	now := time.Now()

	t.speedSamples = append(t.speedSamples, speedSample{timestamp: now, bytes: bytes})
	if len(t.speedSamples) > t.maxSamples {
		t.speedSamples = t.speedSamples[1:]
	}

	// Current speed over the last five seconds of samples.
	cutoff := now.Add(-5 * time.Second)
	var recentBytes int64
	var oldest time.Time
	for i := len(t.speedSamples) - 1; i >= 0; i-- {
		s := t.speedSamples[i]
		if s.timestamp.Before(cutoff) {
			break
		}
		recentBytes += s.bytes
		oldest = s.timestamp
	}
	if !oldest.IsZero() {
		if window := now.Sub(oldest); window > 0 {
			t.status.CurrentSpeed = float64(recentBytes) / window.Seconds()
		}
	}

	if elapsed := now.Sub(t.status.StartTime); elapsed > 0 {
		t.status.AverageSpeed = float64(t.status.ProcessedBytes) / elapsed.Seconds()
	}

	t.status.ETA = 0
	if t.status.TotalBytes > 0 && t.status.AverageSpeed > 0 {
		remaining := t.status.TotalBytes - t.status.ProcessedBytes
		if remaining > 0 {
			t.status.ETA = time.Duration(float64(remaining)/t.status.AverageSpeed) * time.Second
		}
	}
}

// GetStatus returns the current snapshot.
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// FormatSpeed renders a byte rate for humans.
func FormatSpeed(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond < 1024:
		return fmt.Sprintf("%.1f B/s", bytesPerSecond)
	case bytesPerSecond < 1024*1024:
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	case bytesPerSecond < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB/s", bytesPerSecond/(1024*1024*1024))
	}
}

// FormatBytes renders a byte count for humans.
func FormatBytes(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	case bytes < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
	}
}
