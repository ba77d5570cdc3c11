// Package progress turns the cursor of a running scan into the telemetry reported with each chunk:
// fraction complete, elapsed time, throughput and an estimate of the time remaining.
package progress

import (
	"time"
)

// Snapshot is the state of a scan after a chunk has been processed
type Snapshot struct {
	// Fraction of the source covered by the cursor, 0 to 1
	Fraction float64
	// Absolute offset of the next byte to read
	Cursor int64
	// Bytes consumed since the scan started (Cursor minus the start offset)
	Processed int64
	// Size of the source
	Total int64
	// Number of chunks consumed so far
	Chunks int64

	Elapsed time.Duration

	// Zero until some time has elapsed
	BytesPerSecond float64

	// Zero whenever the throughput is zero
	Remaining time.Duration
}

// Tracker computes Snapshots for a single scan.
// It is not safe for concurrent use; each session owns one.
type Tracker struct {
	now     func() time.Time
	started time.Time
	chunks  int64
}

// NewTracker creates a tracker using now as its clock (time.Now if nil)
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Start records the start of the scan and clears the chunk counter
func (t *Tracker) Start() {
	t.started = t.now()
	t.chunks = 0
}

// Elapsed is the time since Start
func (t *Tracker) Elapsed() time.Duration {
	return t.now().Sub(t.started)
}

// Observe records that a chunk was consumed, and reports the scan state with the cursor at cursor
func (t *Tracker) Observe(cursor, processed, total int64) Snapshot {
	t.chunks++
	elapsed := t.Elapsed()

	s := Snapshot{
		Cursor:    cursor,
		Processed: processed,
		Total:     total,
		Chunks:    t.chunks,
		Elapsed:   elapsed,
	}

	if total > 0 {
		s.Fraction = float64(cursor) / float64(total)
	}

	s.BytesPerSecond = Throughput(processed, elapsed)
	s.Remaining = EstimateRemaining(total-cursor, s.BytesPerSecond)

	return s
}

// Throughput is bytes/elapsed in bytes per second, or 0 if no time has elapsed
func Throughput(bytes int64, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if seconds <= 0 || bytes <= 0 {
		return 0
	}
	return float64(bytes) / seconds
}

// EstimateRemaining is the time needed to process remaining bytes at bytesPerSecond.
// It is 0 rather than infinite when the throughput is unknown.
func EstimateRemaining(remaining int64, bytesPerSecond float64) time.Duration {
	if bytesPerSecond <= 0 || remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / bytesPerSecond * float64(time.Second))
}
