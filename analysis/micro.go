// Package analysis implements the per-corner micro-analysis state machine
// (§4.5): Idle -> Active -> Finalize, producing a MicroAnalysis once per
// corner traversal.
package analysis

import (
	"fmt"
	"time"

	"racecoach/config"
	"racecoach/reference"
	"racecoach/telemetry"
)

// Priority is a closed-set severity tag shared across the coaching pipeline.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// MicroAnalysis is the result of one completed corner traversal.
type MicroAnalysis struct {
	CornerID           string
	BrakeTimingDeltaS  float64
	ThrottleTimingDeltaS float64
	EntrySpeedDeltaKph float64
	ApexSpeedDeltaKph  float64
	ExitSpeedDeltaKph  float64
	BrakeInputDelta    float64
	ThrottleInputDelta float64
	SteeringDeltaDeg   float64
	RacingLineDeviation float64
	Smoothness         float64
	TotalTimeLossS     float64
	LossBreakdown      map[string]float64
	Patterns           []string
	Feedback           []string
	Priority           Priority
	At                 time.Time
}

type cornerPhase int

const (
	phaseIdle cornerPhase = iota
	phaseActive
	phaseFinalize
)

// CornerState holds the state machine for a single corner slot.
type CornerState struct {
	phase        cornerPhase
	entryFrac    float64
	buffer       []telemetry.Sample
}

// Analyzer runs the corner state machines for a session, one per corner id.
type Analyzer struct {
	cfg    config.MicroAnalysisConfig
	states map[string]*CornerState
}

// NewAnalyzer builds an Analyzer bound to the given config.
func NewAnalyzer(cfg config.MicroAnalysisConfig) *Analyzer {
	return &Analyzer{cfg: cfg, states: make(map[string]*CornerState)}
}

// Feed advances the state machine for cornerID with sample s. When the
// corner traversal finalizes it returns the computed MicroAnalysis and true.
// ref may be nil; when absent, quantitative deltas are skipped per §7's
// "missing reference" recovery, but the state machine still runs.
func (a *Analyzer) Feed(cornerID string, s telemetry.Sample, ref *reference.CornerReference) (*MicroAnalysis, bool) {
	st, ok := a.states[cornerID]
	if !ok {
		st = &CornerState{}
		a.states[cornerID] = st
	}

	switch st.phase {
	case phaseIdle:
		if absF(s.SteeringRad) > a.cfg.EntryThreshold {
			st.entryFrac = s.LapFraction
			st.buffer = st.buffer[:0]
			st.buffer = append(st.buffer, s)
			st.phase = phaseActive
		}
		return nil, false
	case phaseActive:
		st.buffer = append(st.buffer, s)
		if absF(s.SteeringRad) < a.cfg.ExitThreshold && len(st.buffer) > a.cfg.MinBufferedSamples {
			st.phase = phaseFinalize
		} else {
			return nil, false
		}
	}

	// phaseFinalize
	result := a.compute(cornerID, st.buffer, ref, s.Timestamp)
	st.phase = phaseIdle
	st.buffer = nil
	return result, true
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (a *Analyzer) compute(cornerID string, buffer []telemetry.Sample, ref *reference.CornerReference, at time.Time) *MicroAnalysis {
	brakeIdx := firstIndex(buffer, func(s telemetry.Sample) bool { return s.Brake > a.cfg.BrakeStartThreshold })
	throttleIdx := firstIndex(buffer, func(s telemetry.Sample) bool { return s.Throttle > a.cfg.ThrottleStartThresh })
	apexIdx := argminSpeed(buffer)

	result := &MicroAnalysis{
		CornerID:      cornerID,
		LossBreakdown: make(map[string]float64),
		At:            at,
	}

	if ref == nil {
		result.Priority = PriorityLow
		return result
	}

	if brakeIdx >= 0 {
		deltaFrac := buffer[brakeIdx].LapFraction - ref.BrakeFraction
		result.BrakeTimingDeltaS = deltaFrac * a.cfg.FractionToSeconds
	}
	if throttleIdx >= 0 {
		deltaFrac := buffer[throttleIdx].LapFraction - ref.ThrottleFraction
		result.ThrottleTimingDeltaS = deltaFrac * a.cfg.FractionToSeconds
	}

	entry := buffer[0]
	exit := buffer[len(buffer)-1]
	apex := buffer[apexIdx]

	result.EntrySpeedDeltaKph = mpsToKph(entry.SpeedMps) - ref.EntrySpeedKph
	result.ApexSpeedDeltaKph = mpsToKph(apex.SpeedMps) - ref.ApexSpeedKph
	result.ExitSpeedDeltaKph = mpsToKph(exit.SpeedMps) - ref.ExitSpeedKph

	result.RacingLineDeviation, result.Smoothness = lineDeviationAndSmoothness(buffer, ref, a.cfg.SmoothnessDivisor)

	result.TotalTimeLossS = 0.1*absF(result.BrakeTimingDeltaS) +
		0.1*absF(result.ThrottleTimingDeltaS) +
		0.01*absF(result.EntrySpeedDeltaKph) +
		0.02*absF(result.ApexSpeedDeltaKph) +
		0.01*absF(result.ExitSpeedDeltaKph)

	result.LossBreakdown["brake_timing"] = 0.1 * absF(result.BrakeTimingDeltaS)
	result.LossBreakdown["throttle_timing"] = 0.1 * absF(result.ThrottleTimingDeltaS)
	result.LossBreakdown["entry_speed"] = 0.01 * absF(result.EntrySpeedDeltaKph)
	result.LossBreakdown["apex_speed"] = 0.02 * absF(result.ApexSpeedDeltaKph)
	result.LossBreakdown["exit_speed"] = 0.01 * absF(result.ExitSpeedDeltaKph)

	result.Feedback = buildFeedback(result)
	result.Priority = priorityFor(result)

	return result
}

func firstIndex(buffer []telemetry.Sample, pred func(telemetry.Sample) bool) int {
	for i, s := range buffer {
		if pred(s) {
			return i
		}
	}
	return -1
}

func argminSpeed(buffer []telemetry.Sample) int {
	best := 0
	for i, s := range buffer {
		if s.SpeedMps < buffer[best].SpeedMps {
			best = i
		}
		_ = s
	}
	return best
}

func mpsToKph(mps float64) float64 { return mps * 3.6 }

func lineDeviationAndSmoothness(buffer []telemetry.Sample, ref *reference.CornerReference, divisor float64) (deviation, smoothness float64) {
	if len(ref.RacingLine) == 0 || len(buffer) == 0 {
		return 0, 1
	}
	var sumAbs float64
	var prevDelta float64
	var sumSmoothDiff float64
	var n int
	for i, s := range buffer {
		refSteer := nearestRefSteering(ref.RacingLine, s.LapFraction)
		delta := s.SteeringRad - refSteer
		sumAbs += absF(delta)
		if i > 0 {
			sumSmoothDiff += absF(delta - prevDelta)
		}
		prevDelta = delta
		n++
	}
	if n == 0 {
		return 0, 1
	}
	deviation = sumAbs / float64(n)
	smoothness = 1 - (sumSmoothDiff/float64(n))/divisor
	if smoothness < 0 {
		smoothness = 0
	}
	if smoothness > 1 {
		smoothness = 1
	}
	return deviation, smoothness
}

func nearestRefSteering(line []reference.RacingLinePoint, frac float64) float64 {
	best := line[0]
	bestDist := absF(line[0].Fraction - frac)
	for _, p := range line[1:] {
		if d := absF(p.Fraction - frac); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best.Steering
}

func buildFeedback(r *MicroAnalysis) []string {
	var out []string
	if r.BrakeTimingDeltaS > 0.03 {
		out = append(out, fmt.Sprintf("You braked %.2fs too late into this corner", r.BrakeTimingDeltaS))
	} else if r.BrakeTimingDeltaS < -0.03 {
		out = append(out, fmt.Sprintf("You braked %.2fs too early into this corner", -r.BrakeTimingDeltaS))
	}
	if r.ApexSpeedDeltaKph < -2 {
		out = append(out, fmt.Sprintf("Apex speed down %.0f km/h versus reference", -r.ApexSpeedDeltaKph))
	} else if r.ApexSpeedDeltaKph > 2 {
		out = append(out, fmt.Sprintf("Apex speed up %.0f km/h versus reference", r.ApexSpeedDeltaKph))
	}
	if r.ExitSpeedDeltaKph < -2 {
		out = append(out, fmt.Sprintf("Exit speed down %.0f km/h, carry more speed out", -r.ExitSpeedDeltaKph))
	}
	if r.Smoothness < 0.6 {
		out = append(out, "Steering inputs were rougher than your reference lap")
	}
	return out
}

func priorityFor(r *MicroAnalysis) Priority {
	for _, p := range r.Patterns {
		if p == "off_throttle_oversteer" || p == "high_speed_understeer" {
			return PriorityCritical
		}
	}
	switch {
	case r.TotalTimeLossS > 0.5:
		return PriorityHigh
	case r.TotalTimeLossS > 0.1:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
