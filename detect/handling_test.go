package detect

import (
	"testing"
	"time"

	"racecoach/config"
	"racecoach/telemetry"
)

func TestHandlingDetectorUndersteer(t *testing.T) {
	cfg := config.Default().Handling
	d := NewHandlingDetector(cfg)

	base := time.Now()
	var snapshot []telemetry.Sample
	for i := 0; i < 20; i++ {
		snapshot = append(snapshot, telemetry.Sample{
			Timestamp:   base.Add(time.Duration(i) * 16 * time.Millisecond),
			SteeringRad: 0.3,
			SpeedMps:    20,
			YawRateRadS: 0.02,
		})
	}
	now := snapshot[len(snapshot)-1].Timestamp

	insights := d.Detect(snapshot, "T1", now)
	if len(insights) != 1 {
		t.Fatalf("insights = %d, want 1", len(insights))
	}
	if insights[0].Situation != SituationUndersteer {
		t.Fatalf("situation = %v, want understeer", insights[0].Situation)
	}

	// repeating inside the cooldown window must not re-fire
	again := d.Detect(snapshot, "T1", now.Add(100*time.Millisecond))
	if len(again) != 0 {
		t.Fatalf("expected no re-fire within cooldown, got %d", len(again))
	}
}
