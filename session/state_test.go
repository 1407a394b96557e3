package session

import (
	"strings"
	"testing"

	"racecoach/config"
	"racecoach/telemetry"
)

func TestBaselineCountdown(t *testing.T) {
	cfg := config.Default()
	s := New(cfg, "s1", "TrackA", "CarA", 0, nil)

	for i := 0; i < 2; i++ {
		msg, emit := s.OnLapCompleted(telemetry.LapRecord{Lap: i + 1, LapTime: 90 + float64(i), Valid: true})
		if !emit {
			t.Fatalf("lap %d: expected a baseline countdown message", i+1)
		}
		if s.BaselineEstablished {
			t.Fatalf("lap %d: baseline should not yet be established", i+1)
		}
		if !strings.Contains(msg, "baseline") {
			t.Fatalf("lap %d: countdown message = %q, want it to mention the baseline", i+1, msg)
		}
	}

	if s.DetectorsEnabled() {
		t.Fatalf("full detector suite should not be enabled before baseline establishment")
	}

	msg, emit := s.OnLapCompleted(telemetry.LapRecord{Lap: 3, LapTime: 89, Valid: true})
	if !emit {
		t.Fatalf("3rd valid lap should emit the establishing message")
	}
	if !s.BaselineEstablished {
		t.Fatalf("baseline should be established after 3 valid laps")
	}
	if !strings.Contains(msg, "baseline") || !strings.Contains(msg, "established") {
		t.Fatalf("establishing message = %q, want it to contain both 'baseline' and 'established'", msg)
	}
	if !s.DetectorsEnabled() {
		t.Fatalf("full detector suite should be enabled once baseline is established")
	}
}

func TestPersistedBaselineSkipsCountdown(t *testing.T) {
	cfg := config.Default()
	s := New(cfg, "s2", "TrackA", "CarA", 88.5, nil)

	if !s.BaselineEstablished {
		t.Fatalf("a persisted best should establish the baseline immediately")
	}
	if !s.DetectorsEnabled() {
		t.Fatalf("detectors should be enabled immediately when a persisted baseline exists")
	}

	_, emit := s.OnLapCompleted(telemetry.LapRecord{Lap: 1, LapTime: 90, Valid: true})
	if emit {
		t.Fatalf("no baseline message should be emitted once the baseline is already established")
	}
}
