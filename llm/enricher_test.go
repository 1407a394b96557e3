package llm

import (
	"context"
	"testing"

	"racecoach/analysis"
	"racecoach/coaching"
	"racecoach/config"
	"racecoach/telemetry"
)

func TestEnricherFallsBackWithoutClient(t *testing.T) {
	e := NewEnricher(nil, config.Default().LLM)
	local := coaching.NewMessage("ease off the throttle earlier", coaching.CategoryThrottle, coaching.PriorityMedium, coaching.SourceLocal, 0.5)

	m := &analysis.MicroAnalysis{CornerID: "t1", Priority: analysis.PriorityMedium}
	payload := BuildContext("t1", []telemetry.Sample{{SteeringRad: 0.2, Brake: 0.4, Throttle: 0.1}}, m, "spa", nil)

	got := e.Enrich(context.Background(), local, payload)
	if got.Content != local.Content || got.Source != coaching.SourceLocal {
		t.Fatalf("expected the unchanged local message when no client is configured, got %+v", got)
	}
	if !e.Disabled() {
		t.Fatalf("enricher with a nil client should report itself disabled")
	}
}

func TestBuildContextTrimsToLastTwenty(t *testing.T) {
	var samples []telemetry.Sample
	for i := 0; i < 30; i++ {
		samples = append(samples, telemetry.Sample{SteeringRad: 0.1})
	}
	m := &analysis.MicroAnalysis{CornerID: "t1", Priority: analysis.PriorityLow}
	ctx := BuildContext("t1", samples, m, "spa", nil)

	if len(ctx.DriverInputs.SteeringAngle) != 20 {
		t.Fatalf("driver_inputs length = %d, want 20 (last 20 samples only)", len(ctx.DriverInputs.SteeringAngle))
	}
}
