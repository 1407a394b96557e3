package detect

import (
	"math"
	"time"

	"racecoach/config"
)

// ConsistencyDetector compares lap times over a rolling window, per §4.4.5.
type ConsistencyDetector struct {
	cfg  config.ConsistencyConfig
	laps []float64
}

// NewConsistencyDetector builds a detector bound to the given config.
func NewConsistencyDetector(cfg config.ConsistencyConfig) *ConsistencyDetector {
	return &ConsistencyDetector{cfg: cfg}
}

// OnValidLap folds in a new valid lap time and evaluates the window.
func (d *ConsistencyDetector) OnValidLap(lapTime float64, now time.Time) []Insight {
	d.laps = append(d.laps, lapTime)
	if len(d.laps) > d.cfg.WindowLaps {
		d.laps = d.laps[len(d.laps)-d.cfg.WindowLaps:]
	}
	if len(d.laps) < 2 {
		return nil
	}

	mean, variance := meanVariance(d.laps)
	if mean == 0 {
		return nil
	}
	stdev := math.Sqrt(variance)
	ratio := stdev / mean

	var out []Insight
	if ratio > d.cfg.Threshold {
		out = append(out, Insight{
			Situation:  SituationInconsistentLapTimes,
			Confidence: clampUnit(2 * ratio),
			Importance: clampUnit(2 * ratio),
			Descriptor: map[string]any{"ratio": ratio},
			At:         now,
		})
	} else if ratio < d.cfg.Threshold/2 && len(d.laps) >= d.cfg.ExcellentMinLaps {
		out = append(out, Insight{
			Situation:  SituationExcellentConsistency,
			Confidence: 0.8,
			Importance: 0.3,
			Descriptor: map[string]any{"ratio": ratio},
			At:         now,
		})
	}
	return out
}
