// Package session owns the SessionState aggregate: the per-run lap history,
// adaptive thresholds and baseline-countdown bookkeeping described in §3,
// created lazily once track+car are known and the car is moving (§3
// lifecycle) and persisted/reloaded per (track, car) across runs.
package session

import (
	"fmt"
	"time"

	"racecoach/config"
	"racecoach/telemetry"
)

// DrivingStyle is a closed-set label the session derives from recent
// consistency and lap-time trend.
type DrivingStyle string

const (
	StyleUnknown     DrivingStyle = "unknown"
	StyleConsistent  DrivingStyle = "consistent"
	StyleDeveloping  DrivingStyle = "developing"
	StyleImproving   DrivingStyle = "improving"
)

// AdaptiveThresholds are tuned from the session's own lap history as it
// accumulates data, rather than fixed at startup.
type AdaptiveThresholds struct {
	ConsistencyThreshold float64
	CoachingIntensity    float64 // [0,1]; scales how eagerly low-priority messages surface
}

// CornerLearned is the per-corner running table the session keeps as it
// sees more traversals of the same corner (separate from the persisted
// CornerReference, which only reflects the best lap's slice).
type CornerLearned struct {
	TraversalCount int
	AvgTimeLossS   float64
}

// State is the in-memory SessionState aggregate for one (track, car) run.
type State struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
	Track     string
	Car       string

	Laps                []telemetry.LapRecord
	SessionBestLapTime  float64
	PersonalBestLapTime float64 // seeded from persisted baseline, if any

	BaselineEstablished bool
	DrivingStyle        DrivingStyle
	Thresholds          AdaptiveThresholds
	CornerTables        map[string]CornerLearned
	ShiftBands          map[int][2]float64

	validLapCount int
	required       int
	recentLapTimes []float64
}

// New creates a SessionState for (track, car), deferred until the car is
// known to be moving per §3's lifecycle. persistedBest is the previously
// stored personal-best lap time for this pair, or 0 if none: when nonzero,
// the baseline countdown is skipped immediately (§8 scenario 6).
func New(cfg *config.Config, id, track, car string, persistedBest float64, shiftBands map[int][2]float64) *State {
	s := &State{
		ID:           id,
		StartTime:    time.Now(),
		Track:        track,
		Car:          car,
		DrivingStyle: StyleUnknown,
		Thresholds: AdaptiveThresholds{
			ConsistencyThreshold: cfg.Consistency.Threshold,
			CoachingIntensity:    0.5,
		},
		CornerTables: make(map[string]CornerLearned),
		ShiftBands:   shiftBands,
		required:     cfg.BaselineValidLaps,
	}
	if shiftBands == nil {
		s.ShiftBands = make(map[int][2]float64, len(cfg.Shift.UpshiftBands))
		for k, v := range cfg.Shift.UpshiftBands {
			s.ShiftBands[k] = v
		}
	}
	if persistedBest > 0 {
		s.PersonalBestLapTime = persistedBest
		s.BaselineEstablished = true
		s.validLapCount = s.required
	}
	return s
}

// DetectorsEnabled reports whether the full detector suite should run.
// Before baseline establishment only the lap/sector and baseline-countdown
// messages are surfaced (§8 scenario 1: "no handling or braking messages
// emitted before that point").
func (s *State) DetectorsEnabled() bool { return s.BaselineEstablished }

// BaselineRemaining reports how many more valid laps are needed before the
// baseline is established, for callers rendering the countdown message.
func (s *State) BaselineRemaining() int {
	if s.BaselineEstablished {
		return 0
	}
	return s.required - s.validLapCount
}

// OnLapCompleted folds a completed LapRecord into the session. It returns
// a baseline-category message (content, true) exactly on the countdown
// steps and on the establishing lap; ("", false) once baseline is already
// established and no further countdown messages are due.
func (s *State) OnLapCompleted(rec telemetry.LapRecord) (message string, emit bool) {
	s.Laps = append(s.Laps, rec)
	if !rec.Valid {
		return "", false
	}

	if s.SessionBestLapTime == 0 || rec.LapTime < s.SessionBestLapTime {
		s.SessionBestLapTime = rec.LapTime
	}
	if s.PersonalBestLapTime == 0 || rec.LapTime < s.PersonalBestLapTime {
		s.PersonalBestLapTime = rec.LapTime
	}

	s.recentLapTimes = append(s.recentLapTimes, rec.LapTime)
	if len(s.recentLapTimes) > 10 {
		s.recentLapTimes = s.recentLapTimes[len(s.recentLapTimes)-10:]
	}
	s.recomputeDrivingStyle()

	if s.BaselineEstablished {
		return "", false
	}

	s.validLapCount++
	remaining := s.required - s.validLapCount
	if remaining > 0 {
		return fmt.Sprintf("Still building your baseline, %d more valid lap(s) needed", remaining), true
	}

	s.BaselineEstablished = true
	return "Your baseline has been established — full coaching is now active", true
}

func (s *State) recomputeDrivingStyle() {
	if len(s.recentLapTimes) < 3 {
		return
	}
	mean, variance := meanVariance(s.recentLapTimes)
	if mean <= 0 {
		return
	}
	cv := variance / (mean * mean) // squared coefficient of variation, avoids a sqrt for a coarse label
	improving := s.recentLapTimes[len(s.recentLapTimes)-1] < s.recentLapTimes[0]

	switch {
	case cv < s.Thresholds.ConsistencyThreshold*s.Thresholds.ConsistencyThreshold:
		s.DrivingStyle = StyleConsistent
	case improving:
		s.DrivingStyle = StyleImproving
	default:
		s.DrivingStyle = StyleDeveloping
	}
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

// RecordCornerTraversal folds one corner's micro-analysis time loss into
// the session's learned per-corner table.
func (s *State) RecordCornerTraversal(cornerID string, timeLossS float64) {
	t := s.CornerTables[cornerID]
	n := t.TraversalCount
	t.AvgTimeLossS = (t.AvgTimeLossS*float64(n) + timeLossS) / float64(n+1)
	t.TraversalCount = n + 1
	s.CornerTables[cornerID] = t
}

// Close stamps the session's end time, matching the "session closes on SDK
// disconnect or detected (track, car) change" lifecycle rule.
func (s *State) Close() {
	s.EndTime = time.Now()
}
