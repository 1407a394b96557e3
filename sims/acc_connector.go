package sims

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ACCConnector adapts Assetto Corsa Competizione's shared-memory telemetry
// blocks (physics/graphics/static) to SimulatorConnector.
type ACCConnector struct {
	mu             sync.RWMutex
	connected      bool
	physicsHandle  windows.Handle
	graphicsHandle windows.Handle
	staticHandle   windows.Handle
	dataStream     chan *TelemetryData
	errStream      chan error
	stopStream     chan struct{}
}

// ACCPhysics mirrors ACC's acpmf_physics shared-memory block up to the last
// field this connector reads (TyreTempI); the remaining ~40 fields of the
// real block (middle/outer tyre temps, vibration metrics, ...) are left
// unmapped since nothing downstream consumes them, and trimming the Go
// struct only shrinks the mapped view, not the layout up to that point.
type ACCPhysics struct {
	PacketID            int32
	Gas                 float32
	Brake               float32
	Fuel                float32
	Gear                int32
	RPM                 int32
	SteerAngle          float32
	SpeedKMH            float32
	Velocity            [3]float32
	AccG                [3]float32
	WheelSlip           [4]float32
	WheelLoad           [4]float32
	WheelsPressure      [4]float32
	WheelAngularSpeed   [4]float32
	TyreWear            [4]float32
	TyreDirtyLevel      [4]float32
	TyreCoreTemperature [4]float32
	CamberRAD           [4]float32
	SuspensionTravel    [4]float32
	DRS                 float32
	TC                  float32
	Heading             float32
	Pitch               float32
	Roll                float32
	CgHeight            float32
	CarDamage           [5]float32
	NumberOfTyresOut    int32
	PitLimiterOn        int32
	ABS                 float32
	KersCharge          float32
	KersInput           float32
	AutoShifterOn       int32
	RideHeight          [2]float32
	TurboBoost          float32
	Ballast             float32
	AirDensity          float32
	AirTemp             float32
	RoadTemp            float32
	LocalAngularVel     [3]float32
	FinalFF             float32
	PerformanceMeter    float32
	EngineBrake         int32
	ErsRecoveryLevel    int32
	ErsPowerLevel       int32
	ErsHeatCharging     int32
	ErsIsCharging       int32
	KersCurrentKJ       float32
	DrsAvailable        int32
	DrsEnabled          int32
	BrakeTemp           [4]float32
	Clutch              float32
	TyreTempI           [4]float32
}

// ACCGraphics mirrors ACC's acpmf_graphics block at full width. convertACC
// reads only some of these fields, among them GapAhead and GapBehind at the
// end of the block.
type ACCGraphics struct {
	PacketID                 int32
	ACStatus                 int32
	ACSessionType             int32
	CurrentTime              [15]uint16
	LastTime                 [15]uint16
	BestTime                 [15]uint16
	Split                    [15]uint16
	CompletedLaps            int32
	Position                 int32
	ICurrentTime             int32
	ILastTime                int32
	IBestTime                int32
	SessionTimeLeft          float32
	DistanceTraveled         float32
	IsInPit                  int32
	CurrentSectorIndex       int32
	LastSectorTime           int32
	NumberOfLaps             int32
	TyreCompound             [33]uint16
	ReplayTimeMultiplier     float32
	NormalizedCarPosition    float32
	ActiveCars               int32
	CarCoordinates           [60][3]float32
	CarID                    [60]int32
	PlayerCarID              int32
	PenaltyTime              float32
	Flag                     int32
	PenaltyShortcut          int32
	IdealLineOn              int32
	IsInPitLane              int32
	SurfaceGrip              float32
	MandatoryPitDone         int32
	WindSpeed                float32
	WindDirection            float32
	IsSetupMenuVisible       int32
	MainDisplayIndex         int32
	SecondaryDisplyIndex     int32
	TC                       int32
	TCCut                    int32
	EngineMap                int32
	ABS                      int32
	FuelXLap                 float32
	RainLights               int32
	FlashingLights           int32
	LightsStage              int32
	ExhaustTemperature       float32
	WiperLV                  int32
	DriverStintTotalTimeLeft int32
	DriverStintTimeLeft      int32
	RainTyres                int32
	SessionIndex             int32
	UsedFuel                 float32
	DeltaLapTime             [15]uint16
	IDeltaLapTime            int32
	EstimatedLapTime         [15]uint16
	IEstimatedLapTime        int32
	IsDeltaPositive          int32
	ISplit                   int32
	IsValidLap               int32
	FuelEstimatedLaps        float32
	TrackStatus              [33]uint16
	MissingMandatoryPits     int32
	Clock                    float32
	DirectionLightsLeft      int32
	DirectionLightsRight     int32
	GlobalYellow             int32
	GlobalYellow1            int32
	GlobalYellow2            int32
	GlobalYellow3            int32
	GlobalWhite              int32
	GlobalGreen              int32
	GlobalChequered          int32
	GlobalRed                int32
	MfdTyreSet               int32
	MfdFuelToAdd             float32
	MfdTyrePressureLF        float32
	MfdTyrePressureRF        float32
	MfdTyrePressureLR        float32
	MfdTyrePressureRR        float32
	TrackGripStatus          int32
	RainIntensity            int32
	RainIntensityIn10min     int32
	RainIntensityIn30min     int32
	CurrentTyreSet           int32
	StrategyTyreSet          int32
	GapAhead                 int32
	GapBehind                int32
}

// ACCStatic mirrors ACC's acpmf_static block.
type ACCStatic struct {
	SMVersion                [15]uint16
	ACVersion                [15]uint16
	NumberOfSessions         int32
	NumCars                  int32
	CarModel                 [33]uint16
	Track                    [33]uint16
	PlayerName               [33]uint16
	PlayerSurname            [33]uint16
	PlayerNick               [33]uint16
	SectorCount              int32
	MaxTorque                float32
	MaxPower                 float32
	MaxRPM                   int32
	MaxFuel                  float32
	SuspensionMaxTravel      [4]float32
	TyreRadius               [4]float32
	MaxTurboBoost            float32
	Deprecated1              float32
	Deprecated2              float32
	PenaltiesEnabled         int32
	AidFuelRate              float32
	AidTireRate              float32
	AidMechanicalDamage      float32
	AidAllowTyreBlankets     int32
	AidStability             float32
	AidAutoClutch            int32
	AidAutoBlip              int32
	HasDRS                   int32
	HasERS                   int32
	HasKERS                  int32
	KersMaxJ                 float32
	EngineBrakeSettingsCount int32
	ErsPowerControllerCount  int32
	TrackSPlineLength        float32
	TrackConfiguration       [33]uint16
	ErsMaxJ                  float32
	IsTimedRace              int32
	HasExtraLap              int32
	CarSkin                  [33]uint16
	ReversedGridPositions    int32
	PitWindowStart           int32
	PitWindowEnd             int32
	IsOnline                 int32
	DryTyresName             [33]uint16
	WetTyresName             [33]uint16
}

// NewACCConnector builds an unconnected ACC connector.
func NewACCConnector() *ACCConnector {
	return &ACCConnector{}
}

func (c *ACCConnector) GetSimulatorType() SimulatorType { return SimulatorTypeACC }

// Connect opens the three ACC shared-memory blocks, retrying with backoff
// since ACC only creates them once a session is live.
func (c *ACCConnector) Connect(ctx context.Context) error {
	return connectWithBackoff(ctx, 5, 500*time.Millisecond, func() error {
		physics, err := openSharedMemory("Local\\acpmf_physics")
		if err != nil {
			return fmt.Errorf("acc: open physics memory: %w", err)
		}
		graphics, err := openSharedMemory("Local\\acpmf_graphics")
		if err != nil {
			windows.CloseHandle(physics)
			return fmt.Errorf("acc: open graphics memory: %w", err)
		}
		static, err := openSharedMemory("Local\\acpmf_static")
		if err != nil {
			windows.CloseHandle(physics)
			windows.CloseHandle(graphics)
			return fmt.Errorf("acc: open static memory: %w", err)
		}

		c.mu.Lock()
		c.physicsHandle, c.graphicsHandle, c.staticHandle = physics, graphics, static
		c.mu.Unlock()

		if _, err := c.read(); err != nil {
			c.cleanup()
			return fmt.Errorf("acc: read test frame: %w", err)
		}
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		return nil
	})
}

func (c *ACCConnector) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range []*windows.Handle{&c.physicsHandle, &c.graphicsHandle, &c.staticHandle} {
		if *h != 0 {
			windows.CloseHandle(*h)
			*h = 0
		}
	}
	c.connected = false
}

func (c *ACCConnector) Disconnect() error {
	c.cleanup()
	return nil
}

func (c *ACCConnector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *ACCConnector) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("acc: not connected")
	}
	_, err := c.readPhysics()
	return err
}

func (c *ACCConnector) GetTelemetryData(ctx context.Context) (*TelemetryData, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("acc: not connected")
	}
	return c.read()
}

func (c *ACCConnector) StartDataStream(ctx context.Context, interval time.Duration) (<-chan *TelemetryData, <-chan error) {
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

func (c *ACCConnector) StopDataStream() {
	if c.stopStream != nil {
		close(c.stopStream)
	}
}

// openSharedMemory opens an existing named file mapping for read access.
// ACC only creates these mappings while a session is active, so callers
// should expect ERROR_FILE_NOT_FOUND outside of that window.
func openSharedMemory(name string) (windows.Handle, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	h, err := windows.OpenFileMapping(windows.FILE_MAP_READ, false, namePtr)
	if err != nil {
		return 0, err
	}
	return h, nil
}

func (c *ACCConnector) readPhysics() (*ACCPhysics, error) {
	c.mu.RLock()
	h := c.physicsHandle
	c.mu.RUnlock()
	ptr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, unsafe.Sizeof(ACCPhysics{}))
	if err != nil {
		return nil, err
	}
	defer windows.UnmapViewOfFile(ptr)
	out := *(*ACCPhysics)(unsafe.Pointer(ptr))
	return &out, nil
}

func (c *ACCConnector) readGraphics() (*ACCGraphics, error) {
	c.mu.RLock()
	h := c.graphicsHandle
	c.mu.RUnlock()
	ptr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, unsafe.Sizeof(ACCGraphics{}))
	if err != nil {
		return nil, err
	}
	defer windows.UnmapViewOfFile(ptr)
	out := *(*ACCGraphics)(unsafe.Pointer(ptr))
	return &out, nil
}

func (c *ACCConnector) readStatic() (*ACCStatic, error) {
	c.mu.RLock()
	h := c.staticHandle
	c.mu.RUnlock()
	ptr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, unsafe.Sizeof(ACCStatic{}))
	if err != nil {
		return nil, err
	}
	defer windows.UnmapViewOfFile(ptr)
	out := *(*ACCStatic)(unsafe.Pointer(ptr))
	return &out, nil
}

func (c *ACCConnector) read() (*TelemetryData, error) {
	physics, err := c.readPhysics()
	if err != nil {
		return nil, fmt.Errorf("acc: read physics: %w", err)
	}
	graphics, err := c.readGraphics()
	if err != nil {
		return nil, fmt.Errorf("acc: read graphics: %w", err)
	}
	static, err := c.readStatic()
	if err != nil {
		return nil, fmt.Errorf("acc: read static: %w", err)
	}
	return convertACC(physics, graphics, static), nil
}

func convertACC(physics *ACCPhysics, graphics *ACCGraphics, static *ACCStatic) *TelemetryData {
	tires := TireData{
		Compound:   utf16ToString(static.DryTyresName[:]),
		FrontLeft:  TireWheelData{Temperature: float64(physics.TyreTempI[0]), Pressure: float64(physics.WheelsPressure[0]), WearPercent: float64(physics.TyreWear[0]) * 100, DirtLevel: float64(physics.TyreDirtyLevel[0])},
		FrontRight: TireWheelData{Temperature: float64(physics.TyreTempI[1]), Pressure: float64(physics.WheelsPressure[1]), WearPercent: float64(physics.TyreWear[1]) * 100, DirtLevel: float64(physics.TyreDirtyLevel[1])},
		RearLeft:   TireWheelData{Temperature: float64(physics.TyreTempI[2]), Pressure: float64(physics.WheelsPressure[2]), WearPercent: float64(physics.TyreWear[2]) * 100, DirtLevel: float64(physics.TyreDirtyLevel[2])},
		RearRight:  TireWheelData{Temperature: float64(physics.TyreTempI[3]), Pressure: float64(physics.WheelsPressure[3]), WearPercent: float64(physics.TyreWear[3]) * 100, DirtLevel: float64(physics.TyreDirtyLevel[3])},
	}
	tires.WearLevel = CalculateTireWearLevel(&tires)
	tires.TempLevel = CalculateTireTempLevel(&tires)

	fuel := FuelData{
		Level:             float64(physics.Fuel),
		Capacity:          float64(static.MaxFuel),
		UsagePerLap:       float64(graphics.FuelXLap),
		EstimatedLapsLeft: int(graphics.FuelEstimatedLaps),
	}
	CalculateFuelEstimates(&fuel, time.Duration(graphics.ILastTime)*time.Millisecond)

	session := SessionInfo{
		Type:             accSessionType(graphics.ACSessionType),
		Flag:             accSessionFlag(graphics),
		TimeRemaining:    time.Duration(graphics.SessionTimeLeft) * time.Second,
		TotalLaps:        int(graphics.NumberOfLaps),
		SessionTime:      time.Duration(graphics.Clock) * time.Second,
		IsTimedSession:   static.IsTimedRace == 1,
		IsLappedSession:  static.IsTimedRace == 0,
		TrackName:        utf16ToString(static.Track[:]),
		TrackLength:      float64(static.TrackSPlineLength) / 1000.0,
		AirTemperature:   float64(physics.AirTemp),
		TrackTemperature: float64(physics.RoadTemp),
	}
	session.Format = CalculateRaceFormat(&session)

	player := PlayerData{
		Position:           int(graphics.Position),
		CurrentLap:         int(graphics.CompletedLaps) + 1,
		LapDistancePercent: float64(graphics.NormalizedCarPosition) * 100,
		LastLapTime:        time.Duration(graphics.ILastTime) * time.Millisecond,
		BestLapTime:        time.Duration(graphics.IBestTime) * time.Millisecond,
		CurrentLapTime:     time.Duration(graphics.ICurrentTime) * time.Millisecond,
		GapToAhead:         time.Duration(graphics.GapAhead) * time.Millisecond,
		GapToBehind:        time.Duration(graphics.GapBehind) * time.Millisecond,
		Fuel:               fuel,
		Tires:              tires,
		Pit: PitData{
			IsOnPitRoad:      graphics.IsInPitLane == 1,
			IsInPitStall:     graphics.IsInPit == 1,
			PitWindowOpen:    true,
			EstimatedPitTime: 25 * time.Second,
			PitSpeedLimit:    80.0,
		},
		Speed:    float64(physics.SpeedKMH),
		RPM:      float64(physics.RPM),
		Gear:     int(physics.Gear),
		Throttle: float64(physics.Gas) * 100,
		Brake:    float64(physics.Brake) * 100,
		Clutch:   float64(physics.Clutch) * 100,
		Steering: float64(physics.SteerAngle),
	}

	return &TelemetryData{
		Timestamp:     time.Now(),
		SimulatorType: SimulatorTypeACC,
		IsConnected:   true,
		Session:       session,
		Player:        player,
		// ACC's shared memory exposes other cars' coordinates but not their
		// lap/timing data in a directly usable form; left empty here.
		Opponents: nil,
	}
}

func accSessionType(t int32) SessionType {
	switch t {
	case 0:
		return SessionTypePractice
	case 1:
		return SessionTypeQualifying
	case 2:
		return SessionTypeRace
	case 3:
		return SessionTypeHotlap
	default:
		return SessionTypeUnknown
	}
}

func accSessionFlag(g *ACCGraphics) SessionFlag {
	switch {
	case g.GlobalRed == 1:
		return SessionFlagRed
	case g.GlobalYellow == 1 || g.GlobalYellow1 == 1 || g.GlobalYellow2 == 1 || g.GlobalYellow3 == 1:
		return SessionFlagYellow
	case g.GlobalChequered == 1:
		return SessionFlagCheckered
	case g.GlobalWhite == 1:
		return SessionFlagWhite
	case g.GlobalGreen == 1:
		return SessionFlagGreen
	}
	switch g.Flag {
	case 1:
		return SessionFlagBlue
	case 2:
		return SessionFlagYellow
	case 3:
		return SessionFlagRed
	case 4:
		return SessionFlagWhite
	case 5:
		return SessionFlagCheckered
	default:
		return SessionFlagNone
	}
}

func utf16ToString(data []uint16) string {
	length := len(data)
	for i, v := range data {
		if v == 0 {
			length = i
			break
		}
	}
	return windows.UTF16ToString(data[:length])
}
