// Package reference maintains per (track, car) reference laps and the
// per-corner reference data derived from them, per spec §4.9.
package reference

import (
	"math"
	"time"

	"racecoach/config"
)

// LapType is a closed set of reference-lap roles.
type LapType string

const (
	LapPersonalBest LapType = "personal-best"
	LapSessionBest  LapType = "session-best"
	LapEngineer     LapType = "engineer"
	LapOptimal      LapType = "optimal"
	LapRacePace     LapType = "race-pace"
	LapConsistency  LapType = "consistency"
)

// RacingLinePoint is one (fraction, steering) sample along a corner.
type RacingLinePoint struct {
	Fraction float64
	Steering float64
}

// CornerReference is the benchmark for one corner, derived from the best
// lap's corner slice.
type CornerReference struct {
	CornerID   string
	Track      string
	Car        string

	BrakeFraction     float64
	EntrySpeedKph     float64
	ApexSpeedKph      float64
	ExitSpeedKph      float64
	ThrottleFraction  float64
	PeakSteeringRad   float64
	Gear              int
	CornerTimeS       float64
	RacingLine        []RacingLinePoint
	DifficultyTags    []string
	TypeTags          []string
}

// ReferenceSegment is a per-segment slice of a ReferenceLap.
type ReferenceSegment struct {
	SegmentID      string
	TimeS          float64
	EntrySpeedKph  float64
	ExitSpeedKph   float64
	MinSpeedKph    float64
	MaxSpeedKph    float64
	AvgThrottle    float64
	AvgBrake       float64
	RacingLineScore float64
}

// ReferenceLap is a stored benchmark lap for a (track, car) pair.
type ReferenceLap struct {
	Track       string
	Car         string
	LapTimeS    float64
	Type        LapType
	Segments    []ReferenceSegment
	CreatedAt   time.Time
}

// LapSample is the minimal per-lap information the manager needs; callers
// derive it from a completed telemetry.LapRecord plus its buffered samples.
type LapSample struct {
	LapTimeS float64
	Valid    bool
	Segments []ReferenceSegment
	Corners  map[string]CornerReference
}

// TrackCar manages all reference data for one (track, car) pair.
type TrackCar struct {
	cfg   config.ReferenceConfig
	track string
	car   string

	PersonalBest *ReferenceLap
	SessionBest  *ReferenceLap
	Optimal      *ReferenceLap
	Consistency  *ReferenceLap
	RacePace     *ReferenceLap

	BestSectors [3]float64
	haveBest    [3]bool

	Corners map[string]CornerReference

	recentValidLaps []float64
}

// NewTrackCar constructs an empty reference set, optionally seeded with a
// previously-persisted personal best (read-through load).
func NewTrackCar(cfg config.ReferenceConfig, track, car string, persistedBest *ReferenceLap) *TrackCar {
	tc := &TrackCar{cfg: cfg, track: track, car: car, Corners: make(map[string]CornerReference)}
	tc.PersonalBest = persistedBest
	return tc
}

// OnLapCompleted applies a newly completed lap per §4.9's rules. It returns
// whether the personal best changed (callers use this to persist
// write-through).
func (tc *TrackCar) OnLapCompleted(lap LapSample, now time.Time) (personalBestChanged bool) {
	if !lap.Valid {
		return false
	}

	candidate := &ReferenceLap{Track: tc.track, Car: tc.car, LapTimeS: lap.LapTimeS, Segments: lap.Segments, CreatedAt: now}

	if tc.PersonalBest == nil || lap.LapTimeS < tc.PersonalBest.LapTimeS {
		pb := *candidate
		pb.Type = LapPersonalBest
		tc.PersonalBest = &pb
		personalBestChanged = true
	}
	if tc.SessionBest == nil || lap.LapTimeS < tc.SessionBest.LapTimeS {
		sb := *candidate
		sb.Type = LapSessionBest
		tc.SessionBest = &sb
	}

	for i := 0; i < 3 && i < len(lap.Segments); i++ {
		t := lap.Segments[i].TimeS
		if !tc.haveBest[i] || t < tc.BestSectors[i] {
			tc.BestSectors[i] = t
			tc.haveBest[i] = true
		}
	}

	for id, cr := range lap.Corners {
		tc.Corners[id] = cr
	}

	tc.recentValidLaps = append(tc.recentValidLaps, lap.LapTimeS)
	if len(tc.recentValidLaps) > tc.cfg.WindowLaps {
		tc.recentValidLaps = tc.recentValidLaps[len(tc.recentValidLaps)-tc.cfg.WindowLaps:]
	}

	tc.maybeCreateDerived(candidate, now)
	return personalBestChanged
}

func (tc *TrackCar) maybeCreateDerived(candidate *ReferenceLap, now time.Time) {
	if tc.PersonalBest == nil {
		return
	}
	pb := tc.PersonalBest.LapTimeS

	if withinPct(candidate.LapTimeS, pb, tc.cfg.OptimalPct) {
		opt := *candidate
		opt.Type = LapOptimal
		tc.Optimal = &opt
	}
	if withinPct(candidate.LapTimeS, pb, tc.cfg.RacePacePct) {
		rp := *candidate
		rp.Type = LapRacePace
		tc.RacePace = &rp
	}
	if len(tc.recentValidLaps) >= tc.cfg.WindowLaps {
		mean, variance := meanVariance(tc.recentValidLaps)
		if mean > 0 {
			cv := math.Sqrt(variance) / mean
			if cv < tc.cfg.ConsistencyPct {
				cons := *candidate
				cons.Type = LapConsistency
				tc.Consistency = &cons
			}
		}
	}
}

func withinPct(value, reference, pct float64) bool {
	if reference <= 0 {
		return false
	}
	return (value-reference)/reference <= pct
}

func meanVariance(vals []float64) (mean, variance float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(len(vals))
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(vals))
	return mean, variance
}

// SegmentDelta is the computed difference against a reference segment.
type SegmentDelta struct {
	SegmentID       string
	TimeDeltaS      float64
	EntrySpeedDelta float64
	ExitSpeedDelta  float64
}

// DeltaAgainst returns one delta for every segment in actual whose SegmentID
// also appears in ref, plus the sum of their time deltas. Segments of actual
// with no match in ref are skipped.
func DeltaAgainst(ref *ReferenceLap, actual []ReferenceSegment) (deltas []SegmentDelta, totalDelta float64) {
	if ref == nil {
		return nil, 0
	}
	byID := make(map[string]ReferenceSegment, len(ref.Segments))
	for _, s := range ref.Segments {
		byID[s.SegmentID] = s
	}
	for _, a := range actual {
		r, ok := byID[a.SegmentID]
		if !ok {
			continue
		}
		d := SegmentDelta{
			SegmentID:       a.SegmentID,
			TimeDeltaS:      a.TimeS - r.TimeS,
			EntrySpeedDelta: a.EntrySpeedKph - r.EntrySpeedKph,
			ExitSpeedDelta:  a.ExitSpeedKph - r.ExitSpeedKph,
		}
		deltas = append(deltas, d)
		totalDelta += d.TimeDeltaS
	}
	return deltas, totalDelta
}
