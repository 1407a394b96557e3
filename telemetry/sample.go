// Package telemetry holds the sliding-window sample buffer and the lap/sector
// boundary detector that sit directly on top of the simulator feed.
package telemetry

import "time"

// TrackSurface mirrors the simulator's per-sample surface classification.
type TrackSurface int

const (
	SurfaceNotInWorld TrackSurface = iota
	SurfaceOffTrack
	SurfaceInPitStall
	SurfaceApproachingPits
	SurfaceOnTrack
)

// SessionPhase mirrors the simulator's session-state enum.
type SessionPhase int

const (
	SessionInvalid SessionPhase = iota
	SessionGetInCar
	SessionWarmup
	SessionParade
	SessionRacing
	SessionCheckered
	SessionCooldown
)

// Sample is the normalized, internally-metric telemetry reading produced by
// Ingest. It is immutable once constructed.
type Sample struct {
	Timestamp time.Time // monotonic per-session clock

	Lap             int
	LapFraction     float64 // distance around the lap, wraps at 1.0
	SpeedMps        float64
	RPM             float64
	Gear            int // 0 = neutral/reverse
	Throttle        float64 // [0,1]
	Brake           float64 // [0,1]
	SteeringRad     float64
	YawRateRadS     float64
	AccelLatG       float64
	AccelLongG      float64
	AccelVertG      float64
	VelocityX       float64
	VelocityY       float64
	VelocityZ       float64
	TirePressureKpa [4]float64
	TireTempC       [4]float64
	HasTireTemp     bool
	FuelLitres      float64
	FuelUsePerLap   float64
	OnPitRoad       bool
	Surface         TrackSurface
	SessionState    SessionPhase
	SessionFlags    uint32

	// LastLapTime is the sim-reported last-lap duration, if any (seconds).
	// Zero means "not reported".
	LastLapTime float64
}

// PushResult reports the outcome of Ingest.Push.
type PushResult int

const (
	Accepted PushResult = iota
	RejectedStale
	RejectedMalformed
)

func (r PushResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedStale:
		return "rejected_stale"
	case RejectedMalformed:
		return "rejected_malformed"
	default:
		return "unknown"
	}
}
