package telemetry

import (
	"math"
	"testing"
	"time"
)

func sampleAt(t time.Time) Sample {
	return Sample{
		Timestamp:   t,
		LapFraction: 0.5,
		SpeedMps:    30,
		Throttle:    0.5,
		Brake:       0,
	}
}

func TestRingBufferRejectsStale(t *testing.T) {
	rb := NewRingBuffer(30*time.Second, 60)
	base := time.Now()

	if got := rb.Push(sampleAt(base)); got != Accepted {
		t.Fatalf("first push = %v, want Accepted", got)
	}
	if got := rb.Push(sampleAt(base.Add(-time.Second))); got != RejectedStale {
		t.Fatalf("backward push = %v, want RejectedStale", got)
	}
	if rb.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after stale rejection", rb.Len())
	}
}

func TestRingBufferRejectsMalformed(t *testing.T) {
	rb := NewRingBuffer(30*time.Second, 60)
	s := sampleAt(time.Now())
	s.SpeedMps = math.NaN()

	if got := rb.Push(s); got != RejectedMalformed {
		t.Fatalf("push NaN speed = %v, want RejectedMalformed", got)
	}
	if rb.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", rb.Len())
	}
}

func TestRingBufferSnapshotWindow(t *testing.T) {
	rb := NewRingBuffer(30*time.Second, 60)
	base := time.Now()

	for i := 0; i < 5; i++ {
		rb.Push(sampleAt(base.Add(time.Duration(i) * time.Second)))
	}

	snap := rb.Snapshot(2 * time.Second)
	if len(snap) != 3 {
		t.Fatalf("Snapshot(2s) len = %d, want 3", len(snap))
	}
}

func TestRingBufferCapacityEviction(t *testing.T) {
	rb := NewRingBuffer(1*time.Second, 10) // capacity 10
	base := time.Now()

	for i := 0; i < 15; i++ {
		rb.Push(sampleAt(base.Add(time.Duration(i) * time.Millisecond)))
	}
	if rb.Len() != 10 {
		t.Fatalf("Len() = %d, want 10 (capacity)", rb.Len())
	}
	latest, ok := rb.Latest()
	if !ok {
		t.Fatalf("Latest() ok = false")
	}
	want := base.Add(14 * time.Millisecond)
	if !latest.Timestamp.Equal(want) {
		t.Fatalf("Latest().Timestamp = %v, want %v", latest.Timestamp, want)
	}
}
