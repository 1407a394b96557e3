package telemetry

import (
	"math"
	"time"
)

// LapRecord is a completed, validated lap.
type LapRecord struct {
	Lap         int
	LapTime     float64 // seconds, > 0
	SectorTimes [3]float64
	Valid       bool
	SampleCount int
	Boundaries  []float64
}

// SectorRecord aggregates metrics over a single sector traversal.
type SectorRecord struct {
	Index        int
	SectorTime   float64
	StartFrac    float64
	EndFrac      float64
	EntrySpeed   float64
	ExitSpeed    float64
	MinSpeed     float64
	MaxSpeed     float64
	AvgThrottle  float64
	AvgBrake     float64
	PeakSteering float64
}

// LapEvent is emitted when a lap completes.
type LapEvent struct {
	Record LapRecord
}

// SectorEvent is emitted when a sector boundary is crossed.
type SectorEvent struct {
	Record SectorRecord
}

type sectorAccum struct {
	startTime    time.Time
	startFrac    float64
	endFrac      float64
	minSpeed     float64
	maxSpeed     float64
	sumThrottle  float64
	sumBrake     float64
	peakSteering float64
	n            int
}

func newSectorAccum(startFrac, endFrac float64, now time.Time) sectorAccum {
	return sectorAccum{
		startTime: now,
		startFrac: startFrac,
		endFrac:   endFrac,
		minSpeed:  math.Inf(1),
		maxSpeed:  math.Inf(-1),
	}
}

// LapDetector tracks lap/sector boundaries from an ordered sample stream, per
// spec §4.2: a lap boundary fires when the sim-reported lap number advances,
// or when lap fraction wraps by more than 0.5 at least 30s after lap start.
type LapDetector struct {
	boundaries []float64 // sorted fractions [0, b1, ..., 1]
	minLapDur  time.Duration
	wrapThresh float64

	curLap      int
	lapStart    time.Time
	haveLapStat bool
	curSector   int
	accum       sectorAccum
	sampleCount int
	pitSamples  int
	lastFrac    float64
	haveLast    bool

	sectorTimes []float64
	bestSectors [3]float64
	haveBest    [3]bool
}

// NewLapDetector builds a detector for the given sorted sector boundaries.
func NewLapDetector(boundaries []float64, minLapDuration time.Duration, wrapThreshold float64) *LapDetector {
	return &LapDetector{
		boundaries: boundaries,
		minLapDur:  minLapDuration,
		wrapThresh: wrapThreshold,
		sectorTimes: make([]float64, 0, len(boundaries)-1),
	}
}

// Feed processes one sample and returns any events it produced.
func (ld *LapDetector) Feed(s Sample) (laps []LapEvent, sectors []SectorEvent) {
	if !ld.haveLapStat {
		ld.startLap(s)
	}

	lapBoundary := s.Lap > ld.curLap
	if !lapBoundary && ld.haveLast {
		elapsed := s.Timestamp.Sub(ld.lapStart)
		if ld.lastFrac-s.LapFraction > ld.wrapThresh && elapsed >= ld.minLapDur {
			lapBoundary = true
		}
	}

	// sector boundary crossing within the current lap
	if sectorIdx := ld.sectorFor(s.LapFraction); sectorIdx != ld.curSector && !lapBoundary {
		if ev, ok := ld.finalizeSector(s); ok {
			sectors = append(sectors, ev)
		}
		ld.curSector = sectorIdx
		ld.accum = newSectorAccum(ld.boundaries[ld.curSector], ld.boundaries[ld.curSector+1], s.Timestamp)
	}
	ld.updateAccum(s)

	if lapBoundary {
		if ev, ok := ld.finalizeSector(s); ok {
			sectors = append(sectors, ev)
		}
		laps = append(laps, ld.finalizeLap(s))
		ld.startLap(s)
	}

	ld.lastFrac = s.LapFraction
	ld.haveLast = true
	ld.sampleCount++
	if s.OnPitRoad {
		ld.pitSamples++
	}
	return laps, sectors
}

func (ld *LapDetector) startLap(s Sample) {
	ld.curLap = s.Lap
	ld.lapStart = s.Timestamp
	ld.haveLapStat = true
	ld.curSector = ld.sectorFor(s.LapFraction)
	ld.accum = newSectorAccum(ld.boundaries[ld.curSector], ld.boundaries[ld.curSector+1], s.Timestamp)
	ld.sampleCount = 0
	ld.pitSamples = 0
	ld.sectorTimes = ld.sectorTimes[:0]
}

func (ld *LapDetector) sectorFor(frac float64) int {
	for i := 0; i < len(ld.boundaries)-1; i++ {
		if frac >= ld.boundaries[i] && frac < ld.boundaries[i+1] {
			return i
		}
	}
	return len(ld.boundaries) - 2
}

func (ld *LapDetector) updateAccum(s Sample) {
	a := &ld.accum
	if s.SpeedMps < a.minSpeed {
		a.minSpeed = s.SpeedMps
	}
	if s.SpeedMps > a.maxSpeed {
		a.maxSpeed = s.SpeedMps
	}
	a.sumThrottle += s.Throttle
	a.sumBrake += s.Brake
	if abs(s.SteeringRad) > a.peakSteering {
		a.peakSteering = abs(s.SteeringRad)
	}
	a.n++
}

func (ld *LapDetector) finalizeSector(now Sample) (SectorEvent, bool) {
	a := ld.accum
	if a.n == 0 {
		return SectorEvent{}, false
	}
	dur := now.Timestamp.Sub(a.startTime).Seconds()
	rec := SectorRecord{
		Index:        ld.curSector,
		SectorTime:   dur,
		StartFrac:    a.startFrac,
		EndFrac:      a.endFrac,
		EntrySpeed:   0,
		ExitSpeed:    now.SpeedMps,
		MinSpeed:     a.minSpeed,
		MaxSpeed:     a.maxSpeed,
		AvgThrottle:  a.sumThrottle / float64(a.n),
		AvgBrake:     a.sumBrake / float64(a.n),
		PeakSteering: a.peakSteering,
	}
	ld.sectorTimes = append(ld.sectorTimes, dur)
	if ld.curSector < 3 {
		if !ld.haveBest[ld.curSector] || dur < ld.bestSectors[ld.curSector] {
			ld.bestSectors[ld.curSector] = dur
			ld.haveBest[ld.curSector] = true
		}
	}
	return SectorEvent{Record: rec}, true
}

func (ld *LapDetector) finalizeLap(s Sample) LapEvent {
	wallClock := s.Timestamp.Sub(ld.lapStart).Seconds()
	lapTime := wallClock
	if s.LastLapTime > 0 {
		lapTime = s.LastLapTime
	}

	mostlyPit := ld.sampleCount > 0 && ld.pitSamples*2 > ld.sampleCount
	valid := lapTime > 0 && !mostlyPit

	var sectors [3]float64
	for i := 0; i < 3 && i < len(ld.sectorTimes); i++ {
		sectors[i] = ld.sectorTimes[i]
	}

	return LapEvent{Record: LapRecord{
		Lap:         ld.curLap,
		LapTime:     lapTime,
		SectorTimes: sectors,
		Valid:       valid,
		SampleCount: ld.sampleCount,
		Boundaries:  ld.boundaries,
	}}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
