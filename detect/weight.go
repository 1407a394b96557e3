package detect

import (
	"math"
	"time"

	"racecoach/config"
	"racecoach/telemetry"
)

type gSample struct {
	at         time.Time
	combinedG  float64
	gripUtil   float64
}

// WeightGForceDetector tracks weight-transfer and g-force over a rolling
// history window, per §4.4.4.
type WeightGForceDetector struct {
	cfg     config.WeightGForceConfig
	history []gSample
}

// NewWeightGForceDetector builds a detector bound to the given config.
func NewWeightGForceDetector(cfg config.WeightGForceConfig) *WeightGForceDetector {
	return &WeightGForceDetector{cfg: cfg}
}

// Detect updates the history with s and emits any threshold-crossing
// insights. FrontAxleLoad is returned for callers who want the instantaneous
// value without re-deriving it.
func (d *WeightGForceDetector) Detect(s telemetry.Sample) (insights []Insight, frontAxleLoad, combinedG, gripUtil float64) {
	frontAxleLoad = clampRange(0.45-0.1*s.AccelLongG, 0.35, 0.65)
	combinedG = math.Sqrt(s.AccelLatG*s.AccelLatG + s.AccelLongG*s.AccelLongG)
	gripUtil = minF(1, math.Sqrt(sq(s.AccelLatG/d.cfg.GripUtilLatMax)+sq(s.AccelLongG/d.cfg.GripUtilLongMax)))

	d.history = append(d.history, gSample{at: s.Timestamp, combinedG: combinedG, gripUtil: gripUtil})
	cutoff := s.Timestamp.Add(-d.cfg.HistoryWindow)
	i := 0
	for i < len(d.history) && d.history[i].at.Before(cutoff) {
		i++
	}
	d.history = d.history[i:]

	if combinedG > d.cfg.HighGThreshold {
		insights = append(insights, Insight{
			Situation:  SituationHighGWarning,
			Confidence: clampUnit((combinedG - d.cfg.HighGThreshold) / d.cfg.HighGThreshold),
			Importance: 0.6,
			Descriptor: map[string]any{"combined_g": combinedG},
			At:         s.Timestamp,
		})
	}

	smoothness := d.smoothness()
	if smoothness < d.cfg.SmoothnessThreshold {
		insights = append(insights, Insight{
			Situation:  SituationRoughGTransitions,
			Confidence: clampUnit(1 - smoothness/d.cfg.SmoothnessThreshold),
			Importance: 0.5,
			Descriptor: map[string]any{"smoothness": smoothness},
			At:         s.Timestamp,
		})
	}

	if d.sustainedUnderusedGrip(s.Timestamp) {
		insights = append(insights, Insight{
			Situation:  SituationUnderusedGrip,
			Confidence: 0.5,
			Importance: 0.4,
			Descriptor: map[string]any{"avg_grip_util": d.avgGripUtil()},
			At:         s.Timestamp,
		})
	}

	return insights, frontAxleLoad, combinedG, gripUtil
}

func (d *WeightGForceDetector) smoothness() float64 {
	if len(d.history) < 2 {
		return 1
	}
	vals := make([]float64, len(d.history))
	for i, h := range d.history {
		vals[i] = h.combinedG
	}
	_, variance := meanVariance(vals)
	return clampRange(1-2*variance, 0, 1)
}

func (d *WeightGForceDetector) avgGripUtil() float64 {
	if len(d.history) == 0 {
		return 0
	}
	var sum float64
	for _, h := range d.history {
		sum += h.gripUtil
	}
	return sum / float64(len(d.history))
}

func (d *WeightGForceDetector) sustainedUnderusedGrip(now time.Time) bool {
	cutoff := now.Add(-d.cfg.UnderusedGripWindow)
	var n int
	var sum float64
	for _, h := range d.history {
		if h.at.Before(cutoff) {
			continue
		}
		sum += h.gripUtil
		n++
	}
	if n == 0 {
		return false
	}
	elapsed := now.Sub(d.history[0].at)
	return elapsed >= d.cfg.UnderusedGripWindow && sum/float64(n) < d.cfg.UnderusedGripMax
}

func sq(v float64) float64 { return v * v }

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
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
