package sims

import (
	"context"
	"strings"
	"testing"
)

func TestNewLMUConnector(t *testing.T) {
	connector := NewLMUConnector()

	if connector.IsConnected() {
		t.Error("new connector should not be connected")
	}
	if connector.GetSimulatorType() != SimulatorTypeLMU {
		t.Errorf("GetSimulatorType() = %v, want %v", connector.GetSimulatorType(), SimulatorTypeLMU)
	}
}

func TestLMUConnectorInterface(t *testing.T) {
	var _ SimulatorConnector = NewLMUConnector()
}

func TestLMUConnectorConnect(t *testing.T) {
	connector := NewLMUConnector()

	err := connector.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect should return error since the rFactor 2 plugin isn't wired")
	}
	if !strings.Contains(err.Error(), "rFactor 2") {
		t.Errorf("Connect error = %q, want mention of rFactor 2", err.Error())
	}
	if connector.IsConnected() {
		t.Error("IsConnected should be false after a failed connection")
	}
}

func TestLMUConnectorDisconnect(t *testing.T) {
	connector := NewLMUConnector()

	if err := connector.Disconnect(); err != nil {
		t.Errorf("Disconnect returned error when not connected: %v", err)
	}

	connector.mu.Lock()
	connector.connected = true
	connector.mu.Unlock()

	if err := connector.Disconnect(); err != nil {
		t.Errorf("Disconnect returned error: %v", err)
	}
	if connector.IsConnected() {
		t.Error("IsConnected should be false after disconnect")
	}
}

func TestLMUConnectorGetTelemetryData(t *testing.T) {
	connector := NewLMUConnector()

	data, err := connector.GetTelemetryData(context.Background())
	if err == nil {
		t.Error("GetTelemetryData should return error when not connected")
	}
	if data != nil {
		t.Error("GetTelemetryData should return nil data when not connected")
	}

	connector.mu.Lock()
	connector.connected = true
	connector.mu.Unlock()

	data, err = connector.GetTelemetryData(context.Background())
	if err != nil {
		t.Errorf("GetTelemetryData returned error when connected: %v", err)
	}
	if data == nil {
		t.Fatal("GetTelemetryData should return data when connected")
	}
	if data.SimulatorType != SimulatorTypeLMU {
		t.Errorf("SimulatorType = %v, want %v", data.SimulatorType, SimulatorTypeLMU)
	}
	if !data.IsConnected {
		t.Error("IsConnected should be true in telemetry data")
	}
}
