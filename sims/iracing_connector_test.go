package sims

import (
	"context"
	"testing"
	"time"
)

func TestNewIRacingConnector(t *testing.T) {
	connector := NewIRacingConnector()

	if connector.IsConnected() {
		t.Error("new connector should not be connected initially")
	}
	if connector.GetSimulatorType() != SimulatorTypeIRacing {
		t.Errorf("GetSimulatorType() = %v, want %v", connector.GetSimulatorType(), SimulatorTypeIRacing)
	}
}

func TestIRacingConnectorInterface(t *testing.T) {
	var _ SimulatorConnector = NewIRacingConnector()
}

func TestIRacingConnectorDisconnect(t *testing.T) {
	connector := NewIRacingConnector()

	if err := connector.Disconnect(); err != nil {
		t.Errorf("Disconnect() when not connected should not return error, got %v", err)
	}

	connector.mu.Lock()
	connector.connected = true
	connector.mu.Unlock()

	if err := connector.Disconnect(); err != nil {
		t.Errorf("Disconnect() should not return error, got %v", err)
	}
	if connector.IsConnected() {
		t.Error("should not be connected after disconnect")
	}
}

func TestIRacingConnectorGetTelemetryDataNotConnected(t *testing.T) {
	connector := NewIRacingConnector()
	_, err := connector.GetTelemetryData(context.Background())
	if err == nil {
		t.Error("GetTelemetryData() should return error when not connected")
	}
}

func TestIRacingConnectorHealthCheckNotConnected(t *testing.T) {
	connector := NewIRacingConnector()
	if err := connector.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should return error when not connected")
	}
}

func TestIRacingConnectorStopDataStream(t *testing.T) {
	connector := NewIRacingConnector()
	// Should not panic when stopping a stream that was never started.
	connector.StopDataStream()
}

func TestSessionType(t *testing.T) {
	tests := []struct {
		state int32
		want  SessionType
	}{
		{0, SessionTypePractice},
		{1, SessionTypePractice},
		{2, SessionTypePractice},
		{3, SessionTypeRace},
		{4, SessionTypeRace},
		{5, SessionTypeRace},
		{6, SessionTypePractice},
	}
	for _, tt := range tests {
		if got := sessionType(tt.state); got != tt.want {
			t.Errorf("sessionType(%d) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestSessionFlag(t *testing.T) {
	tests := []struct {
		name  string
		flags int32
		want  SessionFlag
	}{
		{"none", 0, SessionFlagNone},
		{"green", 0x00000004, SessionFlagGreen},
		{"yellow", 0x00000008, SessionFlagYellow},
		{"red", 0x00000010, SessionFlagRed},
		{"blue", 0x00000020, SessionFlagBlue},
		{"white", 0x00000002, SessionFlagWhite},
		{"checkered", 0x00000001, SessionFlagCheckered},
		{"red over yellow", 0x00000010 | 0x00000008, SessionFlagRed},
		{"yellow over green", 0x00000008 | 0x00000004, SessionFlagYellow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sessionFlag(tt.flags); got != tt.want {
				t.Errorf("sessionFlag(0x%08x) = %v, want %v", tt.flags, got, tt.want)
			}
		})
	}
}

func TestIRacingConnectorDataStreamChannels(t *testing.T) {
	connector := NewIRacingConnector()
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	dataChan, errChan := connector.StartDataStream(ctx, 20*time.Millisecond)
	if dataChan == nil || errChan == nil {
		t.Fatal("StartDataStream should return non-nil channels")
	}

	select {
	case err := <-errChan:
		if err == nil {
			t.Error("should receive an error while not connected")
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("expected an error quickly while not connected")
	}

	connector.StopDataStream()
}

func TestFuelEstimateFromUsagePerHour(t *testing.T) {
	fuel := FuelData{Level: 50.0, Capacity: 100.0, UsagePerHour: 120.0}
	lastLapTime := 90.0
	fuel.UsagePerLap = fuel.UsagePerHour * (lastLapTime / 3600.0)

	if want := 3.0; fuel.UsagePerLap != want {
		t.Errorf("UsagePerLap = %v, want %v", fuel.UsagePerLap, want)
	}

	CalculateFuelEstimates(&fuel, time.Duration(lastLapTime)*time.Second)

	if want := 16; fuel.EstimatedLapsLeft != want {
		t.Errorf("EstimatedLapsLeft = %v, want %v", fuel.EstimatedLapsLeft, want)
	}
	if want := 50.0; fuel.Percentage != want {
		t.Errorf("Percentage = %v, want %v", fuel.Percentage, want)
	}
	if fuel.LowFuelWarning {
		t.Error("LowFuelWarning should be false at 50%% fuel")
	}
}

func TestPitStallDetection(t *testing.T) {
	tests := []struct {
		name      string
		onPitRoad bool
		speed     float64
		want      bool
	}{
		{"stopped on pit road", true, 0.5, true},
		{"moving on pit road", true, 15.0, false},
		{"off pit road", false, 0.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.onPitRoad && tt.speed < 1.0; got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

