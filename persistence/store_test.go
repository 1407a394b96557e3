package persistence

import (
	"testing"
	"time"

	"racecoach/config"
	"racecoach/session"
	"racecoach/telemetry"
)

func TestSessionRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	cfg := config.Default()
	st := session.New(cfg, NewSessionID("TrackA", "CarA", time.Now()), "TrackA", "CarA", 0, nil)
	for i := 0; i < 5; i++ {
		st.OnLapCompleted(telemetry.LapRecord{Lap: i + 1, LapTime: 90 - float64(i)*0.2, Valid: true})
	}
	st.Close()

	if err := store.SaveSession(st); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	rec, found, err := store.LoadSession(st.ID)
	if err != nil || !found {
		t.Fatalf("LoadSession() found = %v, err = %v", found, err)
	}
	if rec.PersonalBestLapTime != st.PersonalBestLapTime {
		t.Fatalf("reloaded personal best = %v, want %v", rec.PersonalBestLapTime, st.PersonalBestLapTime)
	}
	if len(rec.Laps) != 5 {
		t.Fatalf("reloaded lap count = %d, want 5", len(rec.Laps))
	}

	baseline, err := store.GetTrackBaseline("TrackA", "CarA")
	if err != nil {
		t.Fatalf("GetTrackBaseline() error = %v", err)
	}
	if baseline == nil {
		t.Fatalf("expected a baseline for TrackA/CarA after saving an established session")
	}
	if baseline.BestLapTime != st.PersonalBestLapTime {
		t.Fatalf("baseline.BestLapTime = %v, want %v", baseline.BestLapTime, st.PersonalBestLapTime)
	}

	// A new session for the same pair should skip the baseline countdown.
	next := session.New(cfg, NewSessionID("TrackA", "CarA", time.Now()), "TrackA", "CarA", baseline.BestLapTime, nil)
	if !next.DetectorsEnabled() {
		t.Fatalf("a new session seeded with a persisted baseline should skip the countdown")
	}
}
