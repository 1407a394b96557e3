package sims

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mpapenbr/goirsdk/irsdk"
)

// IRacingConnector adapts github.com/mpapenbr/goirsdk's shared-memory SDK to
// SimulatorConnector. It reads only the variables telemetry.Ingest's
// normalize step actually consumes; goirsdk exposes hundreds more this
// pipeline has no use for.
type IRacingConnector struct {
	mu         sync.RWMutex
	api        *irsdk.Irsdk
	client     *http.Client
	connected  bool
	dataStream chan *TelemetryData
	errStream  chan error
	stopStream chan struct{}
}

// NewIRacingConnector builds an unconnected iRacing connector.
func NewIRacingConnector() *IRacingConnector {
	return &IRacingConnector{client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *IRacingConnector) GetSimulatorType() SimulatorType { return SimulatorTypeIRacing }

// Connect waits for iRacing to be running and attaches to its shared memory
// block, retrying with backoff since the sim may still be starting up.
func (c *IRacingConnector) Connect(ctx context.Context) error {
	return connectWithBackoff(ctx, 5, 500*time.Millisecond, func() error {
		running, err := irsdk.IsSimRunning(ctx, c.client)
		if err != nil {
			return fmt.Errorf("iracing: check sim running: %w", err)
		}
		if !running {
			return fmt.Errorf("iracing: sim not running")
		}
		api := irsdk.NewIrsdk()
		if !api.WaitForValidData() {
			return fmt.Errorf("iracing: no valid telemetry data")
		}
		c.mu.Lock()
		c.api = api
		c.connected = true
		c.mu.Unlock()
		return nil
	})
}

func (c *IRacingConnector) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.api = nil
	return nil
}

func (c *IRacingConnector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *IRacingConnector) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("iracing: not connected")
	}
	running, err := irsdk.IsSimRunning(ctx, c.client)
	if err != nil {
		return fmt.Errorf("iracing: health check: %w", err)
	}
	if !running {
		return fmt.Errorf("iracing: sim no longer running")
	}
	return nil
}

func (c *IRacingConnector) GetTelemetryData(ctx context.Context) (*TelemetryData, error) {
	c.mu.RLock()
	api := c.api
	connected := c.connected
	c.mu.RUnlock()
	if !connected || api == nil {
		return nil, fmt.Errorf("iracing: not connected")
	}
	if !api.WaitForValidData() {
		return nil, fmt.Errorf("iracing: no valid telemetry data")
	}
	api.GetData()
	return c.convert(api), nil
}

func (c *IRacingConnector) StartDataStream(ctx context.Context, interval time.Duration) (<-chan *TelemetryData, <-chan error) {
	c.dataStream = make(chan *TelemetryData, 8)
	c.errStream = make(chan error, 8)
	c.stopStream = make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopStream:
				return
			case <-ticker.C:
				data, err := c.GetTelemetryData(ctx)
				if err != nil {
					select {
					case c.errStream <- err:
					default:
					}
					continue
				}
				select {
				case c.dataStream <- data:
				default:
				}
			}
		}
	}()
	return c.dataStream, c.errStream
}

func (c *IRacingConnector) StopDataStream() {
	if c.stopStream != nil {
		close(c.stopStream)
	}
}

// num reads a double variable, falling back to def when the SDK doesn't
// expose it for the current car/track.
func num(api *irsdk.Irsdk, name string, def float64) float64 {
	v, err := api.GetDoubleValue(name)
	if err != nil {
		return def
	}
	return v
}

func numF(api *irsdk.Irsdk, name string, def float32) float32 {
	v, err := api.GetFloatValue(name)
	if err != nil {
		return def
	}
	return v
}

func numI(api *irsdk.Irsdk, name string, def int32) int32 {
	v, err := api.GetIntValue(name)
	if err != nil {
		return def
	}
	return v
}

func numB(api *irsdk.Irsdk, name string, def bool) bool {
	v, err := api.GetBoolValue(name)
	if err != nil {
		return def
	}
	return v
}

func (c *IRacingConnector) convert(api *irsdk.Irsdk) *TelemetryData {
	sessionTimeRemain := num(api, "SessionTimeRemain", 0)
	lapsRemain := numI(api, "SessionLapsRemain", 0)

	session := SessionInfo{
		Type:             sessionType(numI(api, "SessionState", 0)),
		Flag:             sessionFlag(numI(api, "SessionFlags", 0)),
		TimeRemaining:    time.Duration(sessionTimeRemain * float64(time.Second)),
		LapsRemaining:    int(lapsRemain),
		SessionTime:      time.Duration(num(api, "SessionTime", 0) * float64(time.Second)),
		TrackLength:      float64(numF(api, "TrackLength", 0)),
		AirTemperature:   float64(numF(api, "AirTemp", 20)),
		TrackTemperature: float64(numF(api, "TrackTemp", 25)),
		IsTimedSession:   sessionTimeRemain > 0,
		IsLappedSession:  lapsRemain > 0,
	}
	session.Format = CalculateRaceFormat(&session)

	lastLapTime := numF(api, "LapLastLapTime", 0)
	fuelUsePerHour := numF(api, "FuelUsePerHour", 0)

	player := PlayerData{
		Position:           int(numI(api, "Position", 0)),
		CurrentLap:         int(numI(api, "Lap", 0)),
		LapDistancePercent: float64(numF(api, "LapDistPct", 0)) * 100,
		LastLapTime:        time.Duration(lastLapTime) * time.Second,
		BestLapTime:        time.Duration(numF(api, "LapBestLapTime", 0)) * time.Second,
		CurrentLapTime:     time.Duration(numF(api, "LapCurrentLapTime", 0)) * time.Second,
		Speed:              float64(numF(api, "Speed", 0)) * 3.6,
		RPM:                float64(numF(api, "RPM", 0)),
		Gear:               int(numI(api, "Gear", 0)),
		Throttle:           float64(numF(api, "Throttle", 0)) * 100,
		Brake:              float64(numF(api, "Brake", 0)) * 100,
		Clutch:             float64(numF(api, "Clutch", 0)) * 100,
		Steering:           float64(numF(api, "SteeringWheelAngle", 0)),
	}

	fuel := FuelData{Level: float64(numF(api, "FuelLevel", 0)), Capacity: 100.0, UsagePerHour: float64(fuelUsePerHour)}
	if lastLapTime > 0 && fuelUsePerHour > 0 {
		fuel.UsagePerLap = float64(fuelUsePerHour) * (float64(lastLapTime) / 3600.0)
	}
	CalculateFuelEstimates(&fuel, player.LastLapTime)
	player.Fuel = fuel

	tires := TireData{
		Compound:   "unknown",
		FrontLeft:  TireWheelData{Temperature: float64(numF(api, "LFtempCM", 80)), Pressure: 30, WearPercent: (1 - float64(numF(api, "LFwearM", 1))) * 100},
		FrontRight: TireWheelData{Temperature: float64(numF(api, "RFtempCM", 80)), Pressure: 30, WearPercent: (1 - float64(numF(api, "RFwearM", 1))) * 100},
		RearLeft:   TireWheelData{Temperature: float64(numF(api, "LRtempCM", 80)), Pressure: 30, WearPercent: (1 - float64(numF(api, "LRwearM", 1))) * 100},
		RearRight:  TireWheelData{Temperature: float64(numF(api, "RRtempCM", 80)), Pressure: 30, WearPercent: (1 - float64(numF(api, "RRwearM", 1))) * 100},
	}
	tires.WearLevel = CalculateTireWearLevel(&tires)
	tires.TempLevel = CalculateTireTempLevel(&tires)
	player.Tires = tires

	onPitRoad := numB(api, "OnPitRoad", false)
	player.Pit = PitData{
		IsOnPitRoad:      onPitRoad,
		IsInPitStall:     onPitRoad && player.Speed < 1.0,
		PitWindowOpen:    true,
		EstimatedPitTime: 30 * time.Second,
		PitSpeedLimit:    56.0,
	}

	return &TelemetryData{
		Timestamp:     time.Now(),
		SimulatorType: SimulatorTypeIRacing,
		IsConnected:   true,
		Session:       session,
		Player:        player,
		// goirsdk's scalar-variable API has no simple per-car array access;
		// opponent telemetry isn't available from this connector.
		Opponents: nil,
	}
}

func sessionType(state int32) SessionType {
	switch state {
	case 2:
		return SessionTypePractice
	case 3, 4, 5:
		return SessionTypeRace
	default:
		return SessionTypePractice
	}
}

func sessionFlag(flags int32) SessionFlag {
	switch {
	case flags&0x00000010 != 0:
		return SessionFlagRed
	case flags&0x00000008 != 0:
		return SessionFlagYellow
	case flags&0x00000020 != 0:
		return SessionFlagBlue
	case flags&0x00000002 != 0:
		return SessionFlagWhite
	case flags&0x00000001 != 0:
		return SessionFlagCheckered
	case flags&0x00000004 != 0:
		return SessionFlagGreen
	default:
		return SessionFlagNone
	}
}
