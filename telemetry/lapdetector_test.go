package telemetry

import (
	"testing"
	"time"
)

func TestLapDetectorWrapBoundary(t *testing.T) {
	ld := NewLapDetector([]float64{0, 1.0 / 3, 2.0 / 3, 1.0}, 30*time.Second, 0.5)
	base := time.Now()

	var lapEvents int
	fracs := []float64{0.1, 0.4, 0.7, 0.999, 0.001}
	for i, f := range fracs {
		s := Sample{Timestamp: base.Add(time.Duration(i) * 31 * time.Second), Lap: 1, LapFraction: f, SpeedMps: 30}
		laps, _ := ld.Feed(s)
		lapEvents += len(laps)
	}
	if lapEvents != 1 {
		t.Fatalf("lap events = %d, want exactly 1 on wrap", lapEvents)
	}
}

func TestLapDetectorSectorCount(t *testing.T) {
	ld := NewLapDetector([]float64{0, 1.0 / 3, 2.0 / 3, 1.0}, 30*time.Second, 0.5)
	base := time.Now()

	fracs := []float64{0.05, 0.3, 0.4, 0.6, 0.7, 0.9, 0.999, 0.05}
	laps := []int{1, 1, 1, 1, 1, 1, 1, 2}
	var sectorEvents int
	for i := range fracs {
		s := Sample{Timestamp: base.Add(time.Duration(i) * 31 * time.Second), Lap: laps[i], LapFraction: fracs[i], SpeedMps: 30}
		_, sectors := ld.Feed(s)
		sectorEvents += len(sectors)
	}
	if sectorEvents != 3 {
		t.Fatalf("sector events in one lap = %d, want 3", sectorEvents)
	}
}

func TestLapDetectorUsesSimReportedLapTime(t *testing.T) {
	ld := NewLapDetector([]float64{0, 1.0 / 3, 2.0 / 3, 1.0}, 30*time.Second, 0.5)
	base := time.Now()

	ld.Feed(Sample{Timestamp: base, Lap: 1, LapFraction: 0.1, SpeedMps: 30})
	laps, _ := ld.Feed(Sample{Timestamp: base.Add(90 * time.Second), Lap: 2, LapFraction: 0.1, SpeedMps: 30, LastLapTime: 88.5})
	if len(laps) != 1 {
		t.Fatalf("laps = %d, want 1", len(laps))
	}
	if laps[0].Record.LapTime != 88.5 {
		t.Fatalf("LapTime = %v, want sim-reported 88.5", laps[0].Record.LapTime)
	}
}
