package sims

import (
	"context"
	"math"
	"testing"
	"time"
)

func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestNewACCConnector(t *testing.T) {
	connector := NewACCConnector()

	if connector.IsConnected() {
		t.Error("new connector should not be connected")
	}
	if connector.GetSimulatorType() != SimulatorTypeACC {
		t.Errorf("GetSimulatorType() = %v, want %v", connector.GetSimulatorType(), SimulatorTypeACC)
	}
}

func TestACCConnectorInterface(t *testing.T) {
	var _ SimulatorConnector = NewACCConnector()
}

func TestACCConnectorGetTelemetryDataWhenNotConnected(t *testing.T) {
	connector := NewACCConnector()
	data, err := connector.GetTelemetryData(context.Background())
	if err == nil {
		t.Error("GetTelemetryData() should return error when not connected")
	}
	if data != nil {
		t.Error("GetTelemetryData() should return nil data when not connected")
	}
}

func TestACCConnectorHealthCheckWhenNotConnected(t *testing.T) {
	connector := NewACCConnector()
	if err := connector.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should return error when not connected")
	}
}

func TestACCConnectorDisconnectWhenNotConnected(t *testing.T) {
	connector := NewACCConnector()
	if err := connector.Disconnect(); err != nil {
		t.Errorf("Disconnect() should not return error when not connected: %v", err)
	}
}

func TestACCConnectorStopDataStream(t *testing.T) {
	connector := NewACCConnector()
	connector.StopDataStream()
}

func TestACCSessionType(t *testing.T) {
	tests := []struct {
		name     string
		accType  int32
		expected SessionType
	}{
		{"practice", 0, SessionTypePractice},
		{"qualifying", 1, SessionTypeQualifying},
		{"race", 2, SessionTypeRace},
		{"hotlap", 3, SessionTypeHotlap},
		{"unknown", 99, SessionTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := accSessionType(tt.accType); got != tt.expected {
				t.Errorf("accSessionType(%d) = %v, want %v", tt.accType, got, tt.expected)
			}
		})
	}
}

func TestACCSessionFlag(t *testing.T) {
	tests := []struct {
		name     string
		graphics ACCGraphics
		expected SessionFlag
	}{
		{"red", ACCGraphics{GlobalRed: 1}, SessionFlagRed},
		{"yellow", ACCGraphics{GlobalYellow: 1}, SessionFlagYellow},
		{"green", ACCGraphics{GlobalGreen: 1}, SessionFlagGreen},
		{"checkered", ACCGraphics{GlobalChequered: 1}, SessionFlagCheckered},
		{"white", ACCGraphics{GlobalWhite: 1}, SessionFlagWhite},
		{"local blue", ACCGraphics{Flag: 1}, SessionFlagBlue},
		{"none", ACCGraphics{Flag: 0}, SessionFlagNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := accSessionFlag(&tt.graphics); got != tt.expected {
				t.Errorf("accSessionFlag() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUTF16ToString(t *testing.T) {
	tests := []struct {
		name     string
		input    []uint16
		expected string
	}{
		{"simple string", []uint16{'T', 'e', 's', 't', 0}, "Test"},
		{"empty string", []uint16{0}, ""},
		{"no null terminator", []uint16{'A', 'B', 'C'}, "ABC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := utf16ToString(tt.input); got != tt.expected {
				t.Errorf("utf16ToString() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestConvertACC(t *testing.T) {
	physics := &ACCPhysics{
		Fuel:           45.5,
		RPM:            7500,
		Gear:           4,
		SpeedKMH:       180.5,
		Gas:            0.85,
		SteerAngle:     -15.5,
		TyreWear:       [4]float32{0.15, 0.16, 0.18, 0.17},
		WheelsPressure: [4]float32{28.5, 28.3, 27.8, 27.9},
		TyreTempI:      [4]float32{85.0, 87.0, 82.0, 83.0},
		TyreDirtyLevel: [4]float32{0.1, 0.1, 0.2, 0.2},
		AirTemp:        25.0,
		RoadTemp:       35.0,
	}

	graphics := &ACCGraphics{
		ACSessionType:         2,
		Position:              5,
		CompletedLaps:         9,
		NormalizedCarPosition: 0.455,
		ILastTime:             90000,
		IBestTime:             88000,
		ICurrentTime:          25000,
		SessionTimeLeft:       1800,
		FuelXLap:              2.2,
		FuelEstimatedLaps:     20,
		GapAhead:              3000,
		GapBehind:             2000,
		GlobalGreen:           1,
		Clock:                 900,
	}

	static := &ACCStatic{
		MaxFuel:           60.0,
		IsTimedRace:       0,
		TrackSPlineLength: 4200.0,
		Track:             [33]uint16{'T', 'e', 's', 't', ' ', 'T', 'r', 'a', 'c', 'k', 0},
		DryTyresName:      [33]uint16{'M', 'e', 'd', 'i', 'u', 'm', 0},
	}

	telemetry := convertACC(physics, graphics, static)

	if telemetry.SimulatorType != SimulatorTypeACC {
		t.Errorf("SimulatorType = %v, want %v", telemetry.SimulatorType, SimulatorTypeACC)
	}
	if !telemetry.IsConnected {
		t.Error("IsConnected should be true")
	}
	if telemetry.Session.Type != SessionTypeRace {
		t.Errorf("Session.Type = %v, want %v", telemetry.Session.Type, SessionTypeRace)
	}
	if telemetry.Session.Flag != SessionFlagGreen {
		t.Errorf("Session.Flag = %v, want %v", telemetry.Session.Flag, SessionFlagGreen)
	}
	if telemetry.Session.TrackName != "Test Track" {
		t.Errorf("Session.TrackName = %v, want %v", telemetry.Session.TrackName, "Test Track")
	}
	if telemetry.Session.TrackLength != 4.2 {
		t.Errorf("Session.TrackLength = %v, want %v", telemetry.Session.TrackLength, 4.2)
	}
	if telemetry.Session.Format != RaceFormatSprint {
		t.Errorf("Session.Format = %v, want %v", telemetry.Session.Format, RaceFormatSprint)
	}
	if telemetry.Player.Position != 5 {
		t.Errorf("Player.Position = %v, want %v", telemetry.Player.Position, 5)
	}
	if telemetry.Player.CurrentLap != 10 {
		t.Errorf("Player.CurrentLap = %v, want %v", telemetry.Player.CurrentLap, 10)
	}
	if !floatEquals(telemetry.Player.LapDistancePercent, 45.5, 0.01) {
		t.Errorf("Player.LapDistancePercent = %v, want %v", telemetry.Player.LapDistancePercent, 45.5)
	}
	if want := 90 * time.Second; telemetry.Player.LastLapTime != want {
		t.Errorf("Player.LastLapTime = %v, want %v", telemetry.Player.LastLapTime, want)
	}
	if want := 88 * time.Second; telemetry.Player.BestLapTime != want {
		t.Errorf("Player.BestLapTime = %v, want %v", telemetry.Player.BestLapTime, want)
	}
	if telemetry.Player.Fuel.Level != 45.5 {
		t.Errorf("Player.Fuel.Level = %v, want %v", telemetry.Player.Fuel.Level, 45.5)
	}
	if telemetry.Player.Fuel.Capacity != 60.0 {
		t.Errorf("Player.Fuel.Capacity = %v, want %v", telemetry.Player.Fuel.Capacity, 60.0)
	}
	if !floatEquals(telemetry.Player.Fuel.UsagePerLap, 2.2, 0.001) {
		t.Errorf("Player.Fuel.UsagePerLap = %v, want %v", telemetry.Player.Fuel.UsagePerLap, 2.2)
	}
	if telemetry.Player.Tires.Compound != "Medium" {
		t.Errorf("Player.Tires.Compound = %v, want %v", telemetry.Player.Tires.Compound, "Medium")
	}
	if !floatEquals(telemetry.Player.Tires.FrontLeft.WearPercent, 15.0, 0.001) {
		t.Errorf("Player.Tires.FrontLeft.WearPercent = %v, want %v", telemetry.Player.Tires.FrontLeft.WearPercent, 15.0)
	}
	if telemetry.Player.Tires.FrontLeft.Temperature != 85.0 {
		t.Errorf("Player.Tires.FrontLeft.Temperature = %v, want %v", telemetry.Player.Tires.FrontLeft.Temperature, 85.0)
	}
	if telemetry.Player.Tires.FrontLeft.Pressure != 28.5 {
		t.Errorf("Player.Tires.FrontLeft.Pressure = %v, want %v", telemetry.Player.Tires.FrontLeft.Pressure, 28.5)
	}
	if telemetry.Player.Speed != 180.5 {
		t.Errorf("Player.Speed = %v, want %v", telemetry.Player.Speed, 180.5)
	}
	if telemetry.Player.RPM != 7500 {
		t.Errorf("Player.RPM = %v, want %v", telemetry.Player.RPM, 7500)
	}
	if telemetry.Player.Gear != 4 {
		t.Errorf("Player.Gear = %v, want %v", telemetry.Player.Gear, 4)
	}
	if !floatEquals(telemetry.Player.Throttle, 85.0, 0.001) {
		t.Errorf("Player.Throttle = %v, want %v", telemetry.Player.Throttle, 85.0)
	}
	if telemetry.Player.Pit.IsOnPitRoad {
		t.Error("Player.Pit.IsOnPitRoad should be false")
	}
	if telemetry.Player.Pit.IsInPitStall {
		t.Error("Player.Pit.IsInPitStall should be false")
	}
}
