package telemetry

import (
	"math"
	"time"

	"racecoach/sims"
)

// Ingest owns the ring buffer and normalizes raw simulator frames into
// Samples before admitting them, per the boundary contract: unit conversion,
// monotonic clock, malformed/stale rejection.
type Ingest struct {
	buffer *RingBuffer
}

// NewIngest builds an Ingest over a freshly allocated ring buffer.
func NewIngest(window time.Duration, rateHz int) *Ingest {
	return &Ingest{buffer: NewRingBuffer(window, rateHz)}
}

// Buffer exposes the underlying ring buffer for snapshot reads.
func (in *Ingest) Buffer() *RingBuffer { return in.buffer }

// FromSimulator normalizes a sims.TelemetryData frame (speed km/h, fuel
// litres, percentages 0-100) into the SI-internal Sample shape and pushes it.
func (in *Ingest) FromSimulator(data *sims.TelemetryData) PushResult {
	if data == nil {
		return RejectedMalformed
	}
	s, err := normalize(data)
	if err != nil {
		return RejectedMalformed
	}
	return in.buffer.Push(s)
}

func normalize(data *sims.TelemetryData) (Sample, error) {
	p := data.Player

	s := Sample{
		Timestamp:     data.Timestamp,
		Lap:           p.CurrentLap,
		LapFraction:   clamp01(p.LapDistancePercent / percentScale(p.LapDistancePercent)),
		SpeedMps:      kmhToMps(p.Speed),
		RPM:           p.RPM,
		Gear:          p.Gear,
		Throttle:      normalizePct(p.Throttle),
		Brake:         normalizePct(p.Brake),
		SteeringRad:   p.Steering,
		YawRateRadS:   p.YawRate,
		AccelLatG:     p.AccelLat,
		AccelLongG:    p.AccelLong,
		AccelVertG:    p.AccelVert,
		VelocityX:     p.VelocityX,
		VelocityY:     p.VelocityY,
		VelocityZ:     p.VelocityZ,
		FuelLitres:    p.Fuel.Level,
		FuelUsePerLap: p.Fuel.UsagePerLap,
		OnPitRoad:     p.Pit.IsOnPitRoad,
		Surface:       surfaceFrom(p),
		SessionState:  sessionStateFrom(data.Session),
		LastLapTime:   p.LastLapTime.Seconds(),
	}

	s.TirePressureKpa = [4]float64{
		psiToKpa(p.Tires.FrontLeft.Pressure),
		psiToKpa(p.Tires.FrontRight.Pressure),
		psiToKpa(p.Tires.RearLeft.Pressure),
		psiToKpa(p.Tires.RearRight.Pressure),
	}
	s.TireTempC = [4]float64{
		p.Tires.FrontLeft.Temperature,
		p.Tires.FrontRight.Temperature,
		p.Tires.RearLeft.Temperature,
		p.Tires.RearRight.Temperature,
	}
	s.HasTireTemp = p.Tires.FrontLeft.Temperature != 0 || p.Tires.FrontRight.Temperature != 0 ||
		p.Tires.RearLeft.Temperature != 0 || p.Tires.RearRight.Temperature != 0

	for _, v := range []float64{s.LapFraction, s.SpeedMps, s.Throttle, s.Brake} {
		if math.IsNaN(v) {
			return Sample{}, errMalformed
		}
	}
	return s, nil
}

var errMalformed = simError("malformed sample")

type simError string

func (e simError) Error() string { return string(e) }

func kmhToMps(kmh float64) float64 { return kmh / 3.6 }

func psiToKpa(psi float64) float64 { return psi * 6.89476 }

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// percentScale detects whether a percentage field is expressed as [0,1] or
// [0,100] and returns the divisor needed to land in [0,1].
func percentScale(v float64) float64 {
	if v > 1.0 {
		return 100.0
	}
	return 1.0
}

func normalizePct(v float64) float64 {
	return clamp01(v / percentScale(v))
}

func surfaceFrom(p sims.PlayerData) TrackSurface {
	switch {
	case p.Pit.IsInPitStall:
		return SurfaceInPitStall
	case p.Pit.IsOnPitRoad:
		return SurfaceApproachingPits
	case p.OffTrack:
		return SurfaceOffTrack
	default:
		return SurfaceOnTrack
	}
}

func sessionStateFrom(info sims.SessionInfo) SessionPhase {
	switch info.Flag {
	case sims.SessionFlagCheckered:
		return SessionCheckered
	case sims.SessionFlagNone:
		return SessionInvalid
	default:
		switch info.Type {
		case sims.SessionTypeRace, sims.SessionTypePractice, sims.SessionTypeQualifying, sims.SessionTypeHotlap:
			return SessionRacing
		default:
			return SessionWarmup
		}
	}
}
