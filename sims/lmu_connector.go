package sims

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LMUConnector is a placeholder SimulatorConnector for Le Mans Ultimate.
// rFactor 2's shared-memory plugin isn't part of this module's dependency
// set, so Connect always fails; GetTelemetryData returns a fixed sample
// frame so downstream code exercising SimulatorType LMU has something to
// run against.
type LMUConnector struct {
	mu        sync.RWMutex
	connected bool
	stop      chan struct{}
}

func NewLMUConnector() *LMUConnector {
	return &LMUConnector{}
}

func (c *LMUConnector) GetSimulatorType() SimulatorType { return SimulatorTypeLMU }

func (c *LMUConnector) Connect(ctx context.Context) error {
	return fmt.Errorf("lmu: connector requires rFactor 2 shared-memory plugin, not wired")
}

func (c *LMUConnector) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *LMUConnector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *LMUConnector) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("lmu: not connected")
	}
	return nil
}

func (c *LMUConnector) GetTelemetryData(ctx context.Context) (*TelemetryData, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("lmu: not connected")
	}
	return sampleLMUTelemetry(), nil
}

func (c *LMUConnector) StartDataStream(ctx context.Context, interval time.Duration) (<-chan *TelemetryData, <-chan error) {
	data := make(chan *TelemetryData, 4)
	errs := make(chan error, 4)
	c.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				if !c.IsConnected() {
					continue
				}
				select {
				case data <- sampleLMUTelemetry():
				default:
				}
			}
		}
	}()
	return data, errs
}

func (c *LMUConnector) StopDataStream() {
	if c.stop != nil {
		close(c.stop)
	}
}

// sampleLMUTelemetry is a fixed endurance-race frame at Le Mans, used in
// place of a real rFactor 2 shared-memory read.
func sampleLMUTelemetry() *TelemetryData {
	session := SessionInfo{
		Type:             SessionTypeRace,
		Flag:             SessionFlagGreen,
		TimeRemaining:    45 * time.Minute,
		SessionTime:      15 * time.Minute,
		IsTimedSession:   true,
		TrackName:        "Le Mans",
		TrackLength:      13.626,
		AirTemperature:   22.0,
		TrackTemperature: 28.0,
	}
	session.Format = CalculateRaceFormat(&session)

	player := PlayerData{
		Position:           5,
		CurrentLap:         12,
		LapDistancePercent: 35.5,
		LastLapTime:        3*time.Minute + 25*time.Second,
		BestLapTime:        3*time.Minute + 20*time.Second,
		CurrentLapTime:     1*time.Minute + 15*time.Second,
		GapToAhead:         8 * time.Second,
		GapToBehind:        12 * time.Second,
		Fuel: FuelData{
			Level:       65.0,
			Capacity:    90.0,
			UsagePerLap: 4.2,
		},
		Tires: TireData{
			Compound:   "medium",
			FrontLeft:  TireWheelData{Temperature: 85.0, Pressure: 28.5, WearPercent: 25.0, DirtLevel: 0.1},
			FrontRight: TireWheelData{Temperature: 87.0, Pressure: 28.3, WearPercent: 26.0, DirtLevel: 0.1},
			RearLeft:   TireWheelData{Temperature: 82.0, Pressure: 27.8, WearPercent: 28.0, DirtLevel: 0.2},
			RearRight:  TireWheelData{Temperature: 83.0, Pressure: 27.9, WearPercent: 27.0, DirtLevel: 0.2},
		},
		Pit: PitData{
			PitWindowOpen:     true,
			PitWindowLapsLeft: 8,
			EstimatedPitTime:  35 * time.Second,
			PitSpeedLimit:     60.0,
		},
		Speed:    285.5,
		RPM:      7200.0,
		Gear:     6,
		Throttle: 95.0,
		Steering: -2.5,
	}
	player.Tires.WearLevel = CalculateTireWearLevel(&player.Tires)
	player.Tires.TempLevel = CalculateTireTempLevel(&player.Tires)
	CalculateFuelEstimates(&player.Fuel, player.LastLapTime)

	return &TelemetryData{
		Timestamp:     time.Now(),
		SimulatorType: SimulatorTypeLMU,
		IsConnected:   true,
		Session:       session,
		Player:        player,
		Opponents: []OpponentData{
			{CarIndex: 1, DriverName: "car 1", Position: 1, CurrentLap: 12, LapDistancePercent: 45.2,
				LastLapTime: 3*time.Minute + 18*time.Second, GapToPlayer: -25 * time.Second},
		},
	}
}
